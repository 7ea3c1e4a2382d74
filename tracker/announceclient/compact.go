// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.
package announceclient

import (
	"encoding/binary"

	"github.com/grishavanika/bittorrent-client/core"
)

// parseCompactPeers decodes a compact peer handout: 6-byte groups of
// (ipv4, port) in network byte order. The blob must be a nonzero multiple
// of 6 bytes.
func parseCompactPeers(b []byte) ([]*core.PeerInfo, error) {
	if len(b) == 0 || len(b)%6 != 0 {
		return nil, ErrInvalidPeersLength
	}
	peers := make([]*core.PeerInfo, 0, len(b)/6)
	for i := 0; i < len(b); i += 6 {
		peers = append(peers, core.NewPeerInfo(
			binary.BigEndian.Uint32(b[i:]),
			binary.BigEndian.Uint16(b[i+4:])))
	}
	return peers, nil
}

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
package core

// PeerContext defines the local peer's identity for a running client.
// Port is the listening port reported to trackers; this client does not
// actually accept incoming connections, so the value is advisory.
type PeerContext struct {
	PeerID PeerID `yaml:"peer_id"`
	Port   int    `yaml:"port"`
}

// NewPeerContext creates a new PeerContext.
func NewPeerContext(f PeerIDFactory, port int) (PeerContext, error) {
	peerID, err := f.GeneratePeerID()
	if err != nil {
		return PeerContext{}, err
	}
	return PeerContext{
		PeerID: peerID,
		Port:   port,
	}, nil
}

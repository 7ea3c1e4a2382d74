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

import (
	"fmt"
	"net"
)

// PeerInfo is a peer address handed out by a tracker. IP and Port are
// stored exactly as received from the wire in the compact peer encoding
// (network byte order) and converted to host representation only at the
// point of use.
type PeerInfo struct {
	IP   uint32
	Port uint16
}

// NewPeerInfo creates a new PeerInfo from wire-order fields.
func NewPeerInfo(ip uint32, port uint16) *PeerInfo {
	return &PeerInfo{IP: ip, Port: port}
}

// Addr returns the "host:port" dial address for p.
func (p *PeerInfo) Addr() string {
	ip := net.IPv4(byte(p.IP>>24), byte(p.IP>>16), byte(p.IP>>8), byte(p.IP))
	return fmt.Sprintf("%s:%d", ip, p.Port)
}

func (p *PeerInfo) String() string {
	return p.Addr()
}

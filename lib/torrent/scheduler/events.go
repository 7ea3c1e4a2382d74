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
package scheduler

import "github.com/grishavanika/bittorrent-client/core"

// Events defines observer callbacks for progress reporting. PieceCompleted
// fires serialized with the work-queue; PeersReceived fires from the
// announce loop. Implementations must not block.
type Events interface {
	PieceCompleted(index int, size int64)
	PeersReceived(peers []*core.PeerInfo)
}

// NoopEvents is a no-op Events implementation.
type NoopEvents struct{}

// PieceCompleted noops.
func (e NoopEvents) PieceCompleted(int, int64) {}

// PeersReceived noops.
func (e NoopEvents) PeersReceived([]*core.PeerInfo) {}

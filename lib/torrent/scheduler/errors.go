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

import (
	"errors"
	"fmt"
)

// ErrConnClosed occurs when the remote peer closes the connection while a
// session still has work in flight.
var ErrConnClosed = errors.New("connection closed by peer")

// ErrUnexpectedBitfield occurs when a peer sends a bitfield after its
// first message. The bitfield is only valid directly after the handshake.
var ErrUnexpectedBitfield = errors.New("bitfield received after first message")

// PieceIndexMismatchError occurs when a peer delivers a block for a piece
// the session did not request.
type PieceIndexMismatchError struct {
	Expected int
	Actual   int
}

func (e *PieceIndexMismatchError) Error() string {
	return fmt.Sprintf("piece payload for piece %d, expected %d", e.Actual, e.Expected)
}

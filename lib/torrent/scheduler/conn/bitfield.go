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
package conn

import (
	"errors"

	"github.com/willf/bitset"
)

// Wire bitfields are MSB-first: bit i of byte i/8 corresponds to piece i,
// with bit 7 of byte 0 being piece 0.

// ErrPieceOutOfBounds is returned when setting a piece index beyond the
// bitfield's length.
var ErrPieceOutOfBounds = errors.New("piece index out of bounds")

// BitfieldFromWire converts raw wire bitfield bytes into a BitSet of
// numPieces bits. Trailing spare bits are ignored; bits beyond the wire
// payload read as unset.
func BitfieldFromWire(b []byte, numPieces int) *bitset.BitSet {
	s := bitset.New(uint(numPieces))
	for i := 0; i < numPieces; i++ {
		if HasWirePiece(b, i) {
			s.Set(uint(i))
		}
	}
	return s
}

// BitfieldToWire converts s into raw wire bitfield bytes covering
// numPieces pieces.
func BitfieldToWire(s *bitset.BitSet, numPieces int) []byte {
	b := make([]byte, (numPieces+7)/8)
	for i := 0; i < numPieces; i++ {
		if s.Test(uint(i)) {
			b[i/8] |= 1 << uint(7-i%8)
		}
	}
	return b
}

// HasWirePiece reports whether wire bitfield bytes b advertise piece i.
// Out-of-range indices read as false.
func HasWirePiece(b []byte, i int) bool {
	if i < 0 || i/8 >= len(b) {
		return false
	}
	return (b[i/8]>>uint(7-i%8))&1 == 1
}

// SetWirePiece sets piece i in wire bitfield bytes b. Fails on
// out-of-range indices.
func SetWirePiece(b []byte, i int) error {
	if i < 0 || i/8 >= len(b) {
		return ErrPieceOutOfBounds
	}
	b[i/8] |= 1 << uint(7-i%8)
	return nil
}

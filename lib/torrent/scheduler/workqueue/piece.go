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
package workqueue

import "fmt"

// OffsetMismatchError occurs when a block arrives at an offset other than
// the piece's current download position. Requests are issued at strictly
// increasing offsets, so a compliant peer delivers blocks in order.
type OffsetMismatchError struct {
	Piece    int
	Expected int64
	Actual   int64
}

func (e *OffsetMismatchError) Error() string {
	return fmt.Sprintf("piece %d: block offset %d does not match download position %d",
		e.Piece, e.Actual, e.Expected)
}

// Piece tracks the download progress of a single assigned piece.
// requested and downloaded advance monotonically and satisfy
// 0 <= downloaded <= requested <= size until the piece is reset.
type Piece struct {
	index      int
	size       int64
	requested  int64
	downloaded int64
	data       []byte
}

func newPiece(index int, size int64) *Piece {
	return &Piece{index: index, size: size}
}

// Index returns the piece index.
func (p *Piece) Index() int {
	return p.index
}

// Size returns the piece length in bytes.
func (p *Piece) Size() int64 {
	return p.size
}

// Requested returns how many bytes of the piece have been requested.
func (p *Piece) Requested() int64 {
	return p.requested
}

// Downloaded returns how many bytes of the piece have been received.
func (p *Piece) Downloaded() int64 {
	return p.downloaded
}

// Data returns the accumulated piece bytes.
func (p *Piece) Data() []byte {
	return p.data
}

// Complete returns true once the entire piece has been received.
func (p *Piece) Complete() bool {
	return p.downloaded == p.size
}

// NextRequest returns the offset and length of the next block request, up
// to maxLength bytes, and false once the whole piece has been requested.
func (p *Piece) NextRequest(maxLength int64) (offset, length int64, ok bool) {
	remaining := p.size - p.requested
	if remaining <= 0 {
		return 0, 0, false
	}
	if remaining < maxLength {
		maxLength = remaining
	}
	return p.requested, maxLength, true
}

// MarkRequested advances the requested position by n bytes.
func (p *Piece) MarkRequested(n int64) {
	p.requested += n
}

// ReceiveBlock appends a block delivered at the given offset. Blocks must
// arrive strictly in order at the current download position.
func (p *Piece) ReceiveBlock(offset int64, payload []byte) error {
	if offset != p.downloaded {
		return &OffsetMismatchError{Piece: p.index, Expected: p.downloaded, Actual: offset}
	}
	p.data = append(p.data, payload...)
	p.downloaded += int64(len(payload))
	return nil
}

// reset zeroes the piece's progress so it may be re-downloaded in full.
func (p *Piece) reset() {
	p.requested = 0
	p.downloaded = 0
	p.data = nil
}

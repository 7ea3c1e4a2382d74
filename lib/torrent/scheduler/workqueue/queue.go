// Copyright (c) 2016-2019 Uber Technologies, Inc.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package workqueue implements the shared piece work-queue which
// distributes piece downloads across peer sessions, re-queues pieces
// released by failed peers, and verifies completed pieces before handing
// them to the completion callback.
package workqueue

import (
	"crypto/sha1"
	"errors"
	"fmt"
	"sync"

	"github.com/grishavanika/bittorrent-client/core"

	"github.com/uber-go/tally"
	"github.com/willf/bitset"
)

// ErrPieceHashMismatch occurs when a completed piece's SHA-1 does not
// match the metainfo checksum. The piece is re-queued for download.
var ErrPieceHashMismatch = errors.New("piece hash does not match metainfo checksum")

// Queue is the shared work-queue coordinating piece downloads. All
// methods are safe for concurrent use.
//
// A piece index is, at any quiescent point, in exactly one of four
// states: unassigned (>= nextIndex), in-flight, queued for retry, or
// completed.
type Queue struct {
	mu sync.Mutex

	mi    *core.MetaInfo
	stats tally.Scope

	nextIndex int
	inflight  map[int]*Piece
	retry     []int
	completed int

	completedBytes int64

	onComplete func(*Piece) error
}

// New creates a new Queue. onComplete is invoked under the queue lock for
// every verified piece; an onComplete error re-queues the piece.
func New(mi *core.MetaInfo, stats tally.Scope, onComplete func(*Piece) error) *Queue {
	return &Queue{
		mi:         mi,
		stats:      stats.Tagged(map[string]string{"module": "workqueue"}),
		inflight:   make(map[int]*Piece),
		onComplete: onComplete,
	}
}

// Pop hands out the next piece for a peer advertising the given bitfield.
// Returns nil when the queue has nothing for this peer, either because
// all pieces are complete or because the peer lacks every remaining
// piece.
//
// Fresh indices are handed out without consulting the bitfield: this
// guarantees that a piece no connected peer has still enters the retry
// queue at least once, where later-connecting peers can pick it up. Only
// retry assignments filter on the bitfield.
func (q *Queue) Pop(b *bitset.BitSet) *Piece {
	q.mu.Lock()
	defer q.mu.Unlock()

	if q.nextIndex < q.mi.NumPieces() {
		p := newPiece(q.nextIndex, q.mi.GetPieceLength(q.nextIndex))
		q.nextIndex++
		q.inflight[p.index] = p
		return p
	}
	for i, index := range q.retry {
		if b.Test(uint(index)) {
			q.retry = append(q.retry[:i], q.retry[i+1:]...)
			p := newPiece(index, q.mi.GetPieceLength(index))
			q.inflight[index] = p
			return p
		}
	}
	return nil
}

// Release returns an in-flight piece to the retry queue, zeroing its
// progress. Another peer will re-download it in full.
func (q *Queue) Release(p *Piece) {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[p.index]; !ok {
		return
	}
	delete(q.inflight, p.index)
	p.reset()
	q.retry = append(q.retry, p.index)
	q.stats.Counter("piece_releases").Inc(1)
}

// Complete verifies and finalizes a fully downloaded piece. On hash
// mismatch or completion callback failure the piece is re-queued and an
// error returned.
func (q *Queue) Complete(p *Piece) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, ok := q.inflight[p.index]; !ok {
		return fmt.Errorf("piece %d is not in flight", p.index)
	}
	if sha1.Sum(p.data) != q.mi.PieceHash(p.index) {
		q.requeue(p)
		q.stats.Counter("piece_hash_mismatches").Inc(1)
		return ErrPieceHashMismatch
	}
	if err := q.onComplete(p); err != nil {
		q.requeue(p)
		return fmt.Errorf("piece completion: %s", err)
	}
	delete(q.inflight, p.index)
	q.completed++
	q.completedBytes += p.size
	q.stats.Counter("piece_completions").Inc(1)
	return nil
}

// requeue must be called under q.mu.
func (q *Queue) requeue(p *Piece) {
	delete(q.inflight, p.index)
	p.reset()
	q.retry = append(q.retry, p.index)
}

// Done returns true once every piece has completed.
func (q *Queue) Done() bool {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.completed == q.mi.NumPieces()
}

// NumCompleted returns the number of completed pieces.
func (q *Queue) NumCompleted() int {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.completed
}

// Progress returns the number of payload bytes downloaded and remaining,
// counting completed pieces only. Used for tracker announces.
func (q *Queue) Progress() (downloaded, left int64) {
	q.mu.Lock()
	defer q.mu.Unlock()

	return q.completedBytes, q.mi.Length() - q.completedBytes
}

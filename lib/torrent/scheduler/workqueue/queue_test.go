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

import (
	"errors"
	"testing"

	"github.com/grishavanika/bittorrent-client/core"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"
)

func fullBitfield(n int) *bitset.BitSet {
	b := bitset.New(uint(n))
	for i := 0; i < n; i++ {
		b.Set(uint(i))
	}
	return b
}

func newQueue(f *core.TorrentFixture, onComplete func(*Piece) error) *Queue {
	if onComplete == nil {
		onComplete = func(*Piece) error { return nil }
	}
	return New(f.MetaInfo, tally.NoopScope, onComplete)
}

func download(p *Piece, content []byte) {
	p.MarkRequested(p.Size())
	if err := p.ReceiveBlock(0, content); err != nil {
		panic(err)
	}
}

func TestQueuePopAssignsFreshIndicesInOrder(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(64, 16) // 4 pieces.
	q := newQueue(f, nil)

	// Fresh assignment ignores the bitfield.
	empty := bitset.New(4)
	for i := 0; i < 4; i++ {
		p := q.Pop(empty)
		require.NotNil(p)
		require.Equal(i, p.Index())
		require.Equal(int64(16), p.Size())
	}
	require.Nil(q.Pop(empty))
}

func TestQueueLastPieceIsShort(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(40, 32) // 32K + 8K shape, scaled down.
	q := newQueue(f, nil)

	b := fullBitfield(2)
	require.Equal(int64(32), q.Pop(b).Size())
	require.Equal(int64(8), q.Pop(b).Size())
}

func TestQueueCompleteAndReleaseAccounting(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(64, 16)
	q := newQueue(f, nil)

	b := fullBitfield(4)
	var pieces []*Piece
	for i := 0; i < 4; i++ {
		pieces = append(pieces, q.Pop(b))
	}

	// Complete two, release two.
	for _, p := range pieces[:2] {
		download(p, f.PieceContent(p.Index()))
		require.NoError(q.Complete(p))
	}
	for _, p := range pieces[2:] {
		q.Release(p)
	}

	require.Equal(2, q.NumCompleted())
	downloaded, left := q.Progress()
	require.Equal(int64(32), downloaded)
	require.Equal(int64(32), left)
	require.False(q.Done())

	// Released pieces come back, zeroed.
	seen := map[int]bool{}
	for i := 0; i < 2; i++ {
		p := q.Pop(b)
		require.NotNil(p)
		require.False(seen[p.Index()])
		seen[p.Index()] = true
		require.Equal(int64(0), p.Downloaded())
		require.Equal(int64(0), p.Requested())
		require.Empty(p.Data())

		download(p, f.PieceContent(p.Index()))
		require.NoError(q.Complete(p))
	}

	require.True(q.Done())
	require.Nil(q.Pop(b))
}

func TestQueueRetryFiltersOnBitfield(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(160, 16) // 10 pieces.
	q := newQueue(f, nil)

	b := fullBitfield(10)
	pieces := make(map[int]*Piece)
	for i := 0; i < 10; i++ {
		p := q.Pop(b)
		pieces[p.Index()] = p
	}

	// Complete everything except 7 and 9, which a failed peer releases.
	for i, p := range pieces {
		if i == 7 || i == 9 {
			q.Release(p)
			continue
		}
		download(p, f.PieceContent(i))
		require.NoError(q.Complete(p))
	}

	// A peer holding only piece 7 gets piece 7, then nothing.
	only7 := bitset.New(10).Set(7)
	p := q.Pop(only7)
	require.NotNil(p)
	require.Equal(7, p.Index())
	require.Nil(q.Pop(only7))

	// A peer holding piece 9 still gets it.
	only9 := bitset.New(10).Set(9)
	p = q.Pop(only9)
	require.NotNil(p)
	require.Equal(9, p.Index())
}

func TestQueueCompleteRejectsHashMismatch(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(32, 16)
	q := newQueue(f, nil)

	b := fullBitfield(2)
	p := q.Pop(b)

	bogus := make([]byte, p.Size())
	download(p, bogus)
	require.Equal(ErrPieceHashMismatch, q.Complete(p))

	// The piece went back on the retry queue, zeroed.
	q.Pop(b) // Drain piece 1.
	retried := q.Pop(b)
	require.NotNil(retried)
	require.Equal(p.Index(), retried.Index())
	require.Equal(int64(0), retried.Downloaded())
}

func TestQueueCompleteRequeuesOnCallbackError(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(16, 16)
	q := newQueue(f, func(*Piece) error { return errors.New("disk full") })

	b := fullBitfield(1)
	p := q.Pop(b)
	download(p, f.PieceContent(0))
	require.Error(q.Complete(p))
	require.False(q.Done())

	retried := q.Pop(b)
	require.NotNil(retried)
	require.Equal(0, retried.Index())
}

func TestQueueReleaseTwiceIsIdempotent(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(32, 16)
	q := newQueue(f, nil)

	b := fullBitfield(2)
	p := q.Pop(b)
	q.Release(p)
	q.Release(p)

	q.Pop(b) // Fresh piece 1.
	require.NotNil(q.Pop(b))
	require.Nil(q.Pop(b))
}

func TestPieceReceiveBlockEnforcesOrder(t *testing.T) {
	require := require.New(t)

	p := newPiece(3, 32)

	offset, length, ok := p.NextRequest(16)
	require.True(ok)
	require.Equal(int64(0), offset)
	require.Equal(int64(16), length)
	p.MarkRequested(length)

	offset, length, ok = p.NextRequest(16)
	require.True(ok)
	require.Equal(int64(16), offset)
	p.MarkRequested(length)

	_, _, ok = p.NextRequest(16)
	require.False(ok)

	require.NoError(p.ReceiveBlock(0, make([]byte, 16)))
	err := p.ReceiveBlock(32, make([]byte, 16))
	require.Error(err)
	require.Equal(int64(16), err.(*OffsetMismatchError).Expected)
	require.NoError(p.ReceiveBlock(16, make([]byte, 16)))
	require.True(p.Complete())
}

func TestPieceNextRequestClampsFinalBlock(t *testing.T) {
	require := require.New(t)

	p := newPiece(0, 20)
	p.MarkRequested(16)
	_, length, ok := p.NextRequest(16)
	require.True(ok)
	require.Equal(int64(4), length)
}

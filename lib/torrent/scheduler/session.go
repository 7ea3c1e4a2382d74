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
	"context"
	"fmt"

	"github.com/grishavanika/bittorrent-client/core"
	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler/conn"
	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler/workqueue"

	"github.com/willf/bitset"
	"go.uber.org/zap"
)

// BlockSize is the length of a single block request. Fixed at 16 KiB:
// peers commonly drop connections requesting larger blocks.
const BlockSize = 16384

// session drives the download loop against a single remote peer. It owns
// its connection and bitfield exclusively; the work-queue is the only
// shared state it touches.
type session struct {
	config Config
	peer   *core.PeerInfo
	conn   *conn.Conn
	queue  *workqueue.Queue

	bitfield *bitset.BitSet

	// peerChokingUs starts true per BEP-3; no requests are sent while the
	// peer is choking us.
	peerChokingUs bool

	logger *zap.SugaredLogger
}

func newSession(
	config Config,
	peer *core.PeerInfo,
	c *conn.Conn,
	bitfield *bitset.BitSet,
	queue *workqueue.Queue,
	logger *zap.SugaredLogger) *session {

	return &session{
		config:        config,
		peer:          peer,
		conn:          c,
		queue:         queue,
		bitfield:      bitfield,
		peerChokingUs: true,
		logger:        logger,
	}
}

// run executes the download loop until the queue has nothing left for
// this peer or an error terminates the session. Any error releases the
// in-flight piece back to the queue.
func (s *session) run(ctx context.Context) error {
	s.conn.Start()
	defer s.conn.Close()

	// Reciprocate unchoke and declare interest once after the handshake.
	if err := s.conn.Send(conn.NewUnchokeMessage()); err != nil {
		return fmt.Errorf("send unchoke: %s", err)
	}
	if err := s.conn.Send(conn.NewInterestedMessage()); err != nil {
		return fmt.Errorf("send interested: %s", err)
	}

	for {
		p := s.queue.Pop(s.bitfield)
		if p == nil {
			// Either all pieces are complete or this peer has nothing we
			// still need.
			return nil
		}
		if !s.bitfield.Test(uint(p.Index())) {
			// Fresh assignments skip the bitfield filter; parking the
			// piece on the retry queue guarantees a later peer gets a
			// shot at it.
			s.queue.Release(p)
			continue
		}
		if err := s.downloadPiece(ctx, p); err != nil {
			// Release zeroes the piece unless completion already
			// re-queued it.
			s.queue.Release(p)
			return err
		}
	}
}

// downloadPiece downloads a single assigned piece, pipelining up to
// PipelineLimit block requests while unchoked.
func (s *session) downloadPiece(ctx context.Context, p *workqueue.Piece) error {
	inflight := 0
	for !p.Complete() {
		for !s.peerChokingUs && inflight < s.config.PipelineLimit {
			offset, length, ok := p.NextRequest(BlockSize)
			if !ok {
				break
			}
			msg := conn.NewRequestMessage(p.Index(), int(offset), int(length))
			if err := s.conn.Send(msg); err != nil {
				return fmt.Errorf("send request: %s", err)
			}
			p.MarkRequested(length)
			inflight++
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-s.conn.Receiver():
			if !ok {
				return ErrConnClosed
			}
			received, err := s.handleMessage(p, msg)
			if err != nil {
				return err
			}
			if received {
				inflight--
			}
		}
	}

	if err := s.queue.Complete(p); err != nil {
		return err
	}

	// Advisory: let the peer know we now have this piece.
	if err := s.conn.Send(conn.NewHaveMessage(p.Index())); err != nil {
		s.log().Infof("Error sending have message: %s", err)
	}
	return nil
}

// handleMessage dispatches one inbound message. Returns true if the
// message delivered a block of the current piece.
func (s *session) handleMessage(p *workqueue.Piece, msg *conn.Message) (bool, error) {
	switch msg.Type {
	case conn.TypeKeepAlive:
	case conn.TypeChoke:
		s.peerChokingUs = true
	case conn.TypeUnchoke:
		s.peerChokingUs = false
	case conn.TypeHave:
		s.bitfield.Set(uint(msg.Index))
	case conn.TypePiece:
		if msg.Index != p.Index() {
			return false, &PieceIndexMismatchError{Expected: p.Index(), Actual: msg.Index}
		}
		if err := p.ReceiveBlock(int64(msg.Begin), msg.Payload); err != nil {
			return false, err
		}
		return true, nil
	case conn.TypeBitfield:
		// The bitfield is only valid as the first message, which the
		// handshaker already consumed.
		return false, ErrUnexpectedBitfield
	case conn.TypeRequest, conn.TypeCancel:
		// No upload support; parsed and ignored.
	case conn.TypeUnknown:
		s.log().Debugf("Ignoring unknown message id %d", msg.RawID)
	}
	return false, nil
}

func (s *session) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "peer", s.peer)
	return s.logger.With(keysAndValues...)
}

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

// Package scheduler ties the download together: it runs tracker announce
// rounds, spawns one peer session per handed-out address against the
// shared work-queue, and finishes once every piece has been written.
package scheduler

import (
	"context"
	"fmt"
	"sync"

	"github.com/grishavanika/bittorrent-client/core"
	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler/conn"
	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler/workqueue"
	"github.com/grishavanika/bittorrent-client/lib/torrent/storage"
	"github.com/grishavanika/bittorrent-client/tracker/announceclient"
	"github.com/grishavanika/bittorrent-client/utils/backoff"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

// Scheduler downloads a single torrent.
type Scheduler struct {
	config Config
	stats  tally.Scope
	clk    clock.Clock
	pctx   core.PeerContext
	mi     *core.MetaInfo

	queue      *workqueue.Queue
	writer     *storage.Writer
	announcer  *announceclient.Group
	handshaker *conn.Handshaker
	backoff    *backoff.Backoff

	events Events
	logger *zap.SugaredLogger
}

// Option allows setting custom parameters for Scheduler.
type Option func(*Scheduler)

// WithClock configures the Scheduler with a custom clock.
func WithClock(clk clock.Clock) Option {
	return func(s *Scheduler) { s.clk = clk }
}

// WithEvents configures the Scheduler with observer callbacks.
func WithEvents(events Events) Option {
	return func(s *Scheduler) { s.events = events }
}

// New creates a new Scheduler for the given torrent. writer receives
// completed, hash-verified pieces.
func New(
	config Config,
	stats tally.Scope,
	pctx core.PeerContext,
	mi *core.MetaInfo,
	writer *storage.Writer,
	announcer *announceclient.Group,
	logger *zap.SugaredLogger,
	opts ...Option) (*Scheduler, error) {

	config = config.applyDefaults()

	stats = stats.Tagged(map[string]string{
		"module": "scheduler",
	})

	s := &Scheduler{
		config:    config,
		stats:     stats,
		clk:       clock.New(),
		pctx:      pctx,
		mi:        mi,
		writer:    writer,
		announcer: announcer,
		backoff:   backoff.New(config.EmptyHandoutBackoff),
		events:    NoopEvents{},
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}

	s.queue = workqueue.New(mi, stats, func(p *workqueue.Piece) error {
		if err := writer.WritePiece(p.Index(), p.Data()); err != nil {
			return err
		}
		s.events.PieceCompleted(p.Index(), p.Size())
		return nil
	})

	handshaker, err := conn.NewHandshaker(
		config.Conn, stats, s.clk, pctx.PeerID, conn.NoopEvents{}, logger)
	if err != nil {
		return nil, fmt.Errorf("handshaker: %s", err)
	}
	s.handshaker = handshaker

	return s, nil
}

// Download runs tracker rounds until the torrent completes or ctx is
// cancelled. A round announces, spawns one session per handed-out peer,
// and waits for every session to terminate before re-announcing with
// updated progress counters.
func (s *Scheduler) Download(ctx context.Context) error {
	attempts := s.backoff.Attempts()
	for !s.queue.Done() {
		if err := ctx.Err(); err != nil {
			return err
		}

		resp, err := s.announce()
		if err != nil {
			return fmt.Errorf("announce: %s", err)
		}
		s.events.PeersReceived(resp.Peers)

		if len(resp.Peers) == 0 {
			s.log().Info("Tracker round handed out no peers, backing off")
			if !attempts.WaitForNext() {
				return fmt.Errorf("no peers: %s", attempts.Err())
			}
			continue
		}
		attempts = s.backoff.Attempts()

		before := s.queue.NumCompleted()
		s.runRound(ctx, resp.Peers)
		if s.queue.NumCompleted() == before && !s.queue.Done() && ctx.Err() == nil {
			// The round made no progress; honor the tracker's interval
			// before asking again.
			s.log().Infof("Round made no progress, re-announcing in %s", resp.Interval)
			s.clk.Sleep(resp.Interval)
		}
	}

	if err := s.writer.Verify(); err != nil {
		return fmt.Errorf("verify output: %s", err)
	}
	return s.writer.Close()
}

// announce reports current progress and returns the merged peer handout.
func (s *Scheduler) announce() (*announceclient.Response, error) {
	downloaded, left := s.queue.Progress()
	resp, err := s.announcer.Announce(&announceclient.Request{
		InfoHash:   s.mi.InfoHash(),
		PeerID:     s.pctx.PeerID,
		Port:       s.pctx.Port,
		Downloaded: downloaded,
		Left:       left,
	})
	if err != nil {
		return nil, err
	}
	if resp.Interval == 0 {
		resp.Interval = s.config.DefaultAnnounceInterval
	}
	if resp.Interval > s.config.MaxAnnounceInterval {
		// Protect against a misbehaving tracker locking down the round
		// loop.
		resp.Interval = s.config.MaxAnnounceInterval
	}
	return resp, nil
}

// runRound spawns one session per peer and waits for all of them.
func (s *Scheduler) runRound(ctx context.Context, peers []*core.PeerInfo) {
	var wg sync.WaitGroup
	for _, p := range peers {
		if s.queue.Done() {
			break
		}
		wg.Add(1)
		go func(p *core.PeerInfo) {
			defer wg.Done()
			start := s.clk.Now()
			if err := s.runSession(ctx, p); err != nil {
				s.stats.Counter("session_errors").Inc(1)
				s.log("peer", p).Infof("Session terminated: %s", err)
				return
			}
			s.stats.Timer("session_duration").Record(s.clk.Now().Sub(start))
		}(p)
	}
	wg.Wait()
}

func (s *Scheduler) runSession(ctx context.Context, p *core.PeerInfo) error {
	res, err := s.handshaker.Initialize(p.Addr(), s.mi.InfoHash(), s.mi.NumPieces())
	if err != nil {
		return fmt.Errorf("handshake: %w", err)
	}
	sess := newSession(s.config, p, res.Conn, res.Bitfield, s.queue, s.logger)

	// Cancellation closes the conn, which unblocks the session's receive
	// loop.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			res.Conn.Close()
		case <-done:
		}
	}()

	return sess.run(ctx)
}

// NumCompleted returns the number of completed pieces.
func (s *Scheduler) NumCompleted() int {
	return s.queue.NumCompleted()
}

func (s *Scheduler) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "hash", s.mi.InfoHash())
	return s.logger.With(keysAndValues...)
}

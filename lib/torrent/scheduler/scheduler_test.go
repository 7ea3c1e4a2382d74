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
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/grishavanika/bittorrent-client/core"

	"github.com/stretchr/testify/require"
)

func downloadWithTimeout(t *testing.T, s *Scheduler) {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, s.Download(ctx))
}

func TestDownloadSingleFile(t *testing.T) {
	require := require.New(t)

	// 40 KiB over two pieces: 32 KiB + 8 KiB.
	f := core.SizedTorrentFixture(40*1024, 32*1024)
	peer := startFakePeer(t, f)
	mi := startFakeTracker(t, f, peer)

	dir := t.TempDir()
	s := testScheduler(t, mi, dir)
	downloadWithTimeout(t, s)

	require.Equal(2, s.NumCompleted())

	b, err := os.ReadFile(filepath.Join(dir, mi.Name()))
	require.NoError(err)
	require.Equal(f.Content, b)

	// The peer was sent an advisory Have for each completed piece.
	haves := peer.receivedHaves()
	sort.Ints(haves)
	require.Equal([]int{0, 1}, haves)
}

func TestDownloadMultiFileSplitsAtBoundary(t *testing.T) {
	require := require.New(t)

	// Files of 30 KiB and 40 KiB with 32 KiB pieces; pieces 0 and 1 span
	// the file boundary at byte 30720.
	f := core.MultiFileTorrentFixture(32*1024, 30*1024, 40*1024)
	peer := startFakePeer(t, f)
	mi := startFakeTracker(t, f, peer)

	dir := t.TempDir()
	s := testScheduler(t, mi, dir)
	downloadWithTimeout(t, s)

	require.Equal(3, s.NumCompleted())

	root := filepath.Join(dir, mi.Name())
	a, err := os.ReadFile(filepath.Join(root, "file0"))
	require.NoError(err)
	require.Equal(f.Content[:30*1024], a)

	b, err := os.ReadFile(filepath.Join(root, "file1"))
	require.NoError(err)
	require.Equal(f.Content[30*1024:], b)
}

func TestDownloadSurvivesPeerDisconnectMidPiece(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(64*1024, 32*1024)
	// Peer A dies after serving half a piece; peer B serves everything.
	peerA := startFakePeer(t, f, withCloseAfterBytes(16*1024))
	peerB := startFakePeer(t, f)
	mi := startFakeTracker(t, f, peerA, peerB)

	dir := t.TempDir()
	s := testScheduler(t, mi, dir)
	downloadWithTimeout(t, s)

	require.Equal(2, s.NumCompleted())

	b, err := os.ReadFile(filepath.Join(dir, mi.Name()))
	require.NoError(err)
	require.Equal(f.Content, b)
}

func TestDownloadParksPiecesThePeerLacks(t *testing.T) {
	require := require.New(t)

	// Peer A only has piece 1; fresh assignments it cannot serve must be
	// parked for peer B instead of failing the session.
	f := core.SizedTorrentFixture(64*1024, 32*1024)
	peerA := startFakePeer(t, f, withPieces(1))
	peerB := startFakePeer(t, f)
	mi := startFakeTracker(t, f, peerA, peerB)

	dir := t.TempDir()
	s := testScheduler(t, mi, dir)
	downloadWithTimeout(t, s)

	b, err := os.ReadFile(filepath.Join(dir, mi.Name()))
	require.NoError(err)
	require.Equal(f.Content, b)
}

func TestDownloadWaitsForUnchoke(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(32*1024, 32*1024)
	peer := startFakePeer(t, f, withChokeFirst(300*time.Millisecond))
	mi := startFakeTracker(t, f, peer)

	dir := t.TempDir()
	s := testScheduler(t, mi, dir)
	downloadWithTimeout(t, s)

	b, err := os.ReadFile(filepath.Join(dir, mi.Name()))
	require.NoError(err)
	require.Equal(f.Content, b)
}

func TestDownloadPipelinesUpToLimit(t *testing.T) {
	require := require.New(t)

	// A single 96 KiB piece is six 16 KiB blocks; the session must keep
	// exactly five requests outstanding.
	f := core.SizedTorrentFixture(96*1024, 96*1024)
	peer := startFakePeer(t, f, withExpectPipelined(5))
	mi := startFakeTracker(t, f, peer)

	dir := t.TempDir()
	s := testScheduler(t, mi, dir)
	downloadWithTimeout(t, s)

	b, err := os.ReadFile(filepath.Join(dir, mi.Name()))
	require.NoError(err)
	require.Equal(f.Content, b)
	require.Equal(6, peer.numRequests())
}

func TestDownloadCancellation(t *testing.T) {
	require := require.New(t)

	// A tracker handing out only an unreachable peer keeps the scheduler
	// looping through rounds until the context is cancelled.
	f := core.SizedTorrentFixture(1024, 1024)
	peer := startFakePeer(t, f)
	peer.ln.Close() // Connections to the peer are now refused.
	mi := startFakeTracker(t, f, peer)

	s := testScheduler(t, mi, t.TempDir())

	ctx, cancel := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	wg.Add(1)
	var err error
	go func() {
		defer wg.Done()
		err = s.Download(ctx)
	}()
	cancel()
	wg.Wait()
	require.Error(err)
}

func TestDownloadReportsPieceCompletions(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(64*1024, 32*1024)
	peer := startFakePeer(t, f)
	mi := startFakeTracker(t, f, peer)

	var mu sync.Mutex
	var completed []int
	events := &recordingEvents{onPiece: func(i int, size int64) {
		mu.Lock()
		completed = append(completed, i)
		mu.Unlock()
	}}

	s := testScheduler(t, mi, t.TempDir(), WithEvents(events))
	downloadWithTimeout(t, s)

	mu.Lock()
	sort.Ints(completed)
	mu.Unlock()
	require.Equal([]int{0, 1}, completed)
}

type recordingEvents struct {
	onPiece func(int, int64)
}

func (e *recordingEvents) PieceCompleted(i int, size int64) { e.onPiece(i, size) }
func (e *recordingEvents) PeersReceived([]*core.PeerInfo)   {}

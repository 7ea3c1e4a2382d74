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
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/grishavanika/bittorrent-client/core"
	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler/conn"
	"github.com/grishavanika/bittorrent-client/lib/torrent/storage"
	"github.com/grishavanika/bittorrent-client/tracker/announceclient"
	"github.com/grishavanika/bittorrent-client/utils/backoff"

	"github.com/stretchr/testify/require"
	"github.com/uber-go/tally"
	"go.uber.org/zap"
)

const testMaxFrame = 64 * 1024

// fakePeer is an in-process remote peer serving the BEP-3 server side of
// the protocol for a single torrent.
type fakePeer struct {
	t *testing.T
	f *core.TorrentFixture

	ln net.Listener

	// sendChokeFirst makes the peer send Choke after its bitfield and
	// delay the Unchoke.
	sendChokeFirst bool
	unchokeDelay   time.Duration

	// closeAfterBytes closes the connection after serving this many
	// payload bytes. Zero means serve everything.
	closeAfterBytes int

	// expectPipelined makes the peer withhold responses until this many
	// requests are queued, and asserts no further request arrives while
	// the window is full.
	expectPipelined int

	// pieces restricts the advertised bitfield to the given indices. Nil
	// advertises every piece.
	pieces []int

	mu       sync.Mutex
	haves    []int
	requests int
}

type fakePeerOption func(*fakePeer)

func withChokeFirst(delay time.Duration) fakePeerOption {
	return func(p *fakePeer) {
		p.sendChokeFirst = true
		p.unchokeDelay = delay
	}
}

func withCloseAfterBytes(n int) fakePeerOption {
	return func(p *fakePeer) { p.closeAfterBytes = n }
}

func withExpectPipelined(n int) fakePeerOption {
	return func(p *fakePeer) { p.expectPipelined = n }
}

func withPieces(pieces ...int) fakePeerOption {
	return func(p *fakePeer) { p.pieces = pieces }
}

func startFakePeer(t *testing.T, f *core.TorrentFixture, opts ...fakePeerOption) *fakePeer {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	p := &fakePeer{t: t, f: f, ln: ln}
	for _, opt := range opts {
		opt(p)
	}
	t.Cleanup(func() { ln.Close() })

	go func() {
		for {
			nc, err := ln.Accept()
			if err != nil {
				return
			}
			go p.serve(nc)
		}
	}()
	return p
}

// compactAddr returns the peer's address in the tracker's 6-byte compact
// encoding.
func (p *fakePeer) compactAddr() []byte {
	host, portStr, err := net.SplitHostPort(p.ln.Addr().String())
	require.NoError(p.t, err)
	port, err := strconv.Atoi(portStr)
	require.NoError(p.t, err)

	b := make([]byte, 6)
	copy(b, net.ParseIP(host).To4())
	binary.BigEndian.PutUint16(b[4:], uint16(port))
	return b
}

func (p *fakePeer) receivedHaves() []int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]int(nil), p.haves...)
}

func (p *fakePeer) numRequests() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.requests
}

func (p *fakePeer) serve(nc net.Conn) {
	defer nc.Close()

	// Handshake exchange.
	hs := make([]byte, 68)
	if _, err := io.ReadFull(nc, hs); err != nil {
		return
	}
	peerID := core.PeerIDFixture()
	reply := make([]byte, 68)
	copy(reply, hs[:28])
	copy(reply[28:], p.f.MetaInfo.InfoHash().Bytes())
	copy(reply[48:], peerID.Bytes())
	if _, err := nc.Write(reply); err != nil {
		return
	}

	// Advertise pieces. Nil advertises everything.
	n := p.f.MetaInfo.NumPieces()
	wire := make([]byte, (n+7)/8)
	if p.pieces == nil {
		for i := 0; i < n; i++ {
			wire[i/8] |= 1 << uint(7-i%8)
		}
	} else {
		for _, i := range p.pieces {
			wire[i/8] |= 1 << uint(7-i%8)
		}
	}
	p.send(nc, conn.NewBitfieldMessage(wire))

	if p.sendChokeFirst {
		p.send(nc, conn.NewChokeMessage())
		// While choking, the client must not issue any requests.
		deadline := time.Now().Add(p.unchokeDelay)
		for {
			nc.SetReadDeadline(deadline)
			msg, err := conn.ReadMessage(nc, testMaxFrame)
			if err != nil {
				break
			}
			if msg.Type == conn.TypeRequest {
				p.t.Errorf("request received while choking")
			}
		}
		nc.SetReadDeadline(time.Time{})
	}
	p.send(nc, conn.NewUnchokeMessage())

	p.serveRequests(nc)
}

func (p *fakePeer) send(nc net.Conn, msg *conn.Message) {
	if err := conn.WriteMessage(nc, msg); err != nil {
		return
	}
}

func (p *fakePeer) serveRequests(nc net.Conn) {
	var served int
	var window []*conn.Message
	for {
		msg, err := conn.ReadMessage(nc, testMaxFrame)
		if err != nil {
			return
		}
		switch msg.Type {
		case conn.TypeRequest:
			p.mu.Lock()
			p.requests++
			p.mu.Unlock()

			if p.expectPipelined > 0 {
				window = append(window, msg)
				if len(window) < p.expectPipelined {
					continue
				}
				// The request window is full; the client must not issue
				// another request until a block arrives.
				nc.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
				if extra, err := conn.ReadMessage(nc, testMaxFrame); err == nil {
					p.t.Errorf("unexpected message while request window full: %s", extra)
				}
				nc.SetReadDeadline(time.Time{})

				p.expectPipelined = 0 // Only assert once.
				for _, m := range window {
					if !p.serveBlock(nc, m, &served) {
						return
					}
				}
				window = nil
				continue
			}
			if !p.serveBlock(nc, msg, &served) {
				return
			}
		case conn.TypeHave:
			p.mu.Lock()
			p.haves = append(p.haves, msg.Index)
			p.mu.Unlock()
		default:
			// Unchoke / interested / keep-alives are ignored.
		}
	}
}

// serveBlock responds to a single block request. Returns false if the
// connection should close.
func (p *fakePeer) serveBlock(nc net.Conn, msg *conn.Message, served *int) bool {
	start := int64(msg.Index)*p.f.MetaInfo.PieceLength() + int64(msg.Begin)
	block := p.f.Content[start : start+int64(msg.Length)]

	if p.closeAfterBytes > 0 && *served+len(block) > p.closeAfterBytes {
		return false
	}
	p.send(nc, conn.NewPieceMessage(msg.Index, msg.Begin, block))
	*served += len(block)
	return true
}

// startFakeTracker serves a compact handout of the given peers over HTTP
// and rewrites the fixture's metainfo announce url to point at itself.
func startFakeTracker(t *testing.T, f *core.TorrentFixture, peers ...*fakePeer) *core.MetaInfo {
	var handout []byte
	for _, p := range peers {
		handout = append(handout, p.compactAddr()...)
	}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, "d8:intervali1e5:peers%d:%se", len(handout), handout)
	}))
	t.Cleanup(server.Close)

	// Rebuild the fixture's torrent with the test tracker's announce url.
	lengths := make([]int64, 0, len(f.MetaInfo.Files()))
	for _, fi := range f.MetaInfo.Files() {
		lengths = append(lengths, fi.Length)
	}
	rebuilt := core.CustomTorrentFixture(
		f.MetaInfo.Name(),
		server.URL+"/announce",
		f.Content,
		f.MetaInfo.PieceLength(),
		lengths)
	return rebuilt.MetaInfo
}

// testScheduler wires a Scheduler against a temp output dir.
func testScheduler(
	t *testing.T, mi *core.MetaInfo, outputDir string, opts ...Option) *Scheduler {

	logger := zap.NewNop().Sugar()

	w, err := storage.NewWriter(storage.Config{}, mi, outputDir)
	require.NoError(t, err)

	g, err := announceclient.NewGroup(mi, announceclient.Config{}, nil, logger)
	require.NoError(t, err)

	config := Config{
		EmptyHandoutBackoff: backoff.Config{
			Min:          10 * time.Millisecond,
			Max:          50 * time.Millisecond,
			RetryTimeout: 5 * time.Second,
		},
		DefaultAnnounceInterval: 10 * time.Millisecond,
	}
	s, err := New(
		config, tally.NoopScope, core.PeerContextFixture(), mi, w, g, logger, opts...)
	require.NoError(t, err)
	return s
}

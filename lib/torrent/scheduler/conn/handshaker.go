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
	"bytes"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/grishavanika/bittorrent-client/core"
	"github.com/grishavanika/bittorrent-client/utils/bandwidth"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"github.com/willf/bitset"
	"go.uber.org/zap"
)

// protocolName identifies the BitTorrent protocol in handshakes.
const protocolName = "BitTorrent protocol"

// handshakeLength is the fixed length of a wire handshake: one length
// byte, the protocol name, 8 reserved bytes, the info hash and peer id.
const handshakeLength = 1 + len(protocolName) + 8 + 20 + 20

// BadHandshakeError occurs when a remote handshake does not match the
// expected protocol or torrent.
type BadHandshakeError struct {
	Reason string
}

func (e *BadHandshakeError) Error() string {
	return fmt.Sprintf("bad handshake: %s", e.Reason)
}

// handshake contains the fields exchanged in the fixed-size wire
// handshake. Reserved bytes are always zero for this client.
type handshake struct {
	infoHash core.InfoHash
	peerID   core.PeerID
}

func (h *handshake) serialize() []byte {
	b := make([]byte, 0, handshakeLength)
	b = append(b, byte(len(protocolName)))
	b = append(b, protocolName...)
	b = append(b, make([]byte, 8)...)
	b = append(b, h.infoHash.Bytes()...)
	b = append(b, h.peerID.Bytes()...)
	return b
}

func parseHandshake(b []byte) (*handshake, error) {
	if int(b[0]) != len(protocolName) {
		return nil, &BadHandshakeError{"protocol length mismatch"}
	}
	if !bytes.Equal(b[1:1+len(protocolName)], []byte(protocolName)) {
		return nil, &BadHandshakeError{"protocol name mismatch"}
	}
	var h handshake
	copy(h.infoHash[:], b[1+len(protocolName)+8:])
	peerID, err := core.NewPeerIDFromBytes(b[1+len(protocolName)+8+20:])
	if err != nil {
		return nil, &BadHandshakeError{"peer id: " + err.Error()}
	}
	h.peerID = peerID
	return &h, nil
}

// HandshakeResult wraps data returned from a successful handshake.
type HandshakeResult struct {
	Conn *Conn

	// Bitfield is the remote peer's advertised piece set, sent as the
	// first framed message after the handshake.
	Bitfield *bitset.BitSet
}

// Handshaker defines the handshake protocol for establishing connections
// to other peers.
type Handshaker struct {
	config    Config
	stats     tally.Scope
	clk       clock.Clock
	bandwidth *bandwidth.Limiter
	peerID    core.PeerID
	events    Events
	logger    *zap.SugaredLogger
}

// NewHandshaker creates a new Handshaker.
func NewHandshaker(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	peerID core.PeerID,
	events Events,
	logger *zap.SugaredLogger) (*Handshaker, error) {

	config = config.applyDefaults()

	stats = stats.Tagged(map[string]string{
		"module": "conn",
	})

	bl, err := bandwidth.NewLimiter(config.Bandwidth, bandwidth.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("bandwidth: %s", err)
	}

	return &Handshaker{
		config:    config,
		stats:     stats,
		clk:       clk,
		bandwidth: bl,
		peerID:    peerID,
		events:    events,
		logger:    logger,
	}, nil
}

// Initialize returns a fully established Conn to the peer at addr for the
// given torrent, along with the peer's advertised bitfield. The remote
// peer must reciprocate the handshake with a matching info hash and send
// a bitfield as its first framed message.
func (h *Handshaker) Initialize(
	addr string,
	infoHash core.InfoHash,
	numPieces int) (*HandshakeResult, error) {

	nc, err := net.DialTimeout("tcp", addr, h.config.HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}
	r, err := h.fullHandshake(nc, infoHash, numPieces)
	if err != nil {
		nc.Close()
		return nil, err
	}
	return r, nil
}

func (h *Handshaker) sendHandshake(nc net.Conn, infoHash core.InfoHash) error {
	hs := &handshake{
		infoHash: infoHash,
		peerID:   h.peerID,
	}
	if err := nc.SetWriteDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return fmt.Errorf("set write deadline: %s", err)
	}
	if _, err := nc.Write(hs.serialize()); err != nil {
		return fmt.Errorf("write handshake: %s", err)
	}
	return nil
}

func (h *Handshaker) readHandshake(nc net.Conn, infoHash core.InfoHash) (*handshake, error) {
	if err := nc.SetReadDeadline(time.Now().Add(h.config.HandshakeTimeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %s", err)
	}
	b := make([]byte, handshakeLength)
	if _, err := io.ReadFull(nc, b); err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}
	hs, err := parseHandshake(b)
	if err != nil {
		return nil, err
	}
	if hs.infoHash != infoHash {
		return nil, &BadHandshakeError{"info hash mismatch"}
	}
	return hs, nil
}

func (h *Handshaker) fullHandshake(
	nc net.Conn,
	infoHash core.InfoHash,
	numPieces int) (*HandshakeResult, error) {

	if err := h.sendHandshake(nc, infoHash); err != nil {
		return nil, fmt.Errorf("send handshake: %s", err)
	}
	hs, err := h.readHandshake(nc, infoHash)
	if err != nil {
		return nil, fmt.Errorf("read handshake: %w", err)
	}

	// The remote bitfield is expected as the very first framed message.
	msg, err := readMessageWithTimeout(
		nc, uint32(h.config.MaxFrameSize), h.config.HandshakeTimeout)
	if err != nil {
		return nil, fmt.Errorf("read bitfield: %w", err)
	}
	if msg.Type != TypeBitfield {
		return nil, fmt.Errorf("expected bitfield message, got %s", msg.Type)
	}

	c, err := newConn(
		h.config, h.stats, h.clk, h.bandwidth, h.events, nc, hs.peerID, infoHash, h.logger)
	if err != nil {
		return nil, fmt.Errorf("new conn: %s", err)
	}
	return &HandshakeResult{
		Conn:     c,
		Bitfield: BitfieldFromWire(msg.Bitfield, numPieces),
	}, nil
}

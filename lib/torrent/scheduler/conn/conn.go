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

// Package conn implements the BEP-3 peer wire: the 68-byte handshake, the
// length-prefixed message codec, and live connections with buffered
// sender / receiver channels.
package conn

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"sync"
	"time"

	"github.com/grishavanika/bittorrent-client/core"
	"github.com/grishavanika/bittorrent-client/utils/bandwidth"

	"github.com/andres-erbsen/clock"
	"github.com/uber-go/tally"
	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Events defines Conn events.
type Events interface {
	ConnClosed(*Conn)
}

// NoopEvents is a no-op Events implementation.
type NoopEvents struct{}

// ConnClosed noops.
func (e NoopEvents) ConnClosed(*Conn) {}

// Conn manages peer communication over a single connection for a single
// torrent.
type Conn struct {
	peerID    core.PeerID
	infoHash  core.InfoHash
	createdAt time.Time
	bandwidth *bandwidth.Limiter

	events Events

	nc     net.Conn
	config Config
	clk    clock.Clock
	stats  tally.Scope

	startOnce sync.Once

	sender   chan *Message
	receiver chan *Message

	// The following fields orchestrate the closing of the connection:
	closed *atomic.Bool
	done   chan struct{}  // Signals to readLoop / writeLoop to exit.
	wg     sync.WaitGroup // Waits for readLoop / writeLoop to exit.

	logger *zap.SugaredLogger
}

func newConn(
	config Config,
	stats tally.Scope,
	clk clock.Clock,
	bandwidth *bandwidth.Limiter,
	events Events,
	nc net.Conn,
	remotePeerID core.PeerID,
	infoHash core.InfoHash,
	logger *zap.SugaredLogger) (*Conn, error) {

	// Clear all deadlines set during handshake. Once a Conn is created, we
	// rely on session-level liveness management.
	if err := nc.SetDeadline(time.Time{}); err != nil {
		return nil, fmt.Errorf("set deadline: %s", err)
	}

	c := &Conn{
		peerID:    remotePeerID,
		infoHash:  infoHash,
		createdAt: clk.Now(),
		bandwidth: bandwidth,
		events:    events,
		nc:        nc,
		config:    config,
		clk:       clk,
		stats:     stats,
		sender:    make(chan *Message, config.SenderBufferSize),
		receiver:  make(chan *Message, config.ReceiverBufferSize),
		closed:    atomic.NewBool(false),
		done:      make(chan struct{}),
		logger:    logger,
	}

	return c, nil
}

// Start starts message processing on c. Note, once c has been started, it may
// close itself if it encounters an error reading/writing to the underlying
// socket.
func (c *Conn) Start() {
	c.startOnce.Do(func() {
		c.wg.Add(2)
		go c.readLoop()
		go c.writeLoop()
	})
}

// PeerID returns the remote peer id.
func (c *Conn) PeerID() core.PeerID {
	return c.peerID
}

// InfoHash returns the info hash for the torrent being transmitted over
// this connection.
func (c *Conn) InfoHash() core.InfoHash {
	return c.infoHash
}

// CreatedAt returns the time at which the Conn was created.
func (c *Conn) CreatedAt() time.Time {
	return c.createdAt
}

func (c *Conn) String() string {
	return fmt.Sprintf("Conn(peer=%s, hash=%s)", c.peerID, c.infoHash)
}

// Send writes the given message to the underlying connection.
func (c *Conn) Send(msg *Message) error {
	select {
	case <-c.done:
		return errors.New("conn closed")
	case c.sender <- msg:
		return nil
	default:
		c.stats.Tagged(map[string]string{
			"dropped_message_type": msg.Type.String(),
		}).Counter("dropped_messages").Inc(1)
		return errors.New("send buffer full")
	}
}

// Receiver returns a read-only channel for reading incoming messages off
// the connection. The channel is closed once the connection closes.
func (c *Conn) Receiver() <-chan *Message {
	return c.receiver
}

// Close starts the shutdown sequence for the Conn.
func (c *Conn) Close() {
	if !c.closed.CAS(false, true) {
		return
	}
	go func() {
		close(c.done)
		c.nc.Close()
		c.wg.Wait()
		c.events.ConnClosed(c)
	}()
}

// IsClosed returns true if the c is closed.
func (c *Conn) IsClosed() bool {
	return c.closed.Load()
}

func (c *Conn) readMessage() (*Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(c.nc, prefix[:]); err != nil {
		return nil, fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return NewKeepAliveMessage(), nil
	}
	if uint64(n) > uint64(c.config.MaxFrameSize) {
		return nil, fmt.Errorf("message exceeds max size: %d > %d", n, c.config.MaxFrameSize)
	}
	if err := c.bandwidth.ReserveIngress(int64(n)); err != nil {
		c.log().Errorf("Error reserving ingress bandwidth for frame: %s", err)
		return nil, fmt.Errorf("ingress bandwidth: %s", err)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(c.nc, body); err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	c.countBandwidth("ingress", int64(8*n))
	return parseMessageBody(body)
}

// readLoop reads messages off of the underlying connection and sends them to the
// receiver channel.
func (c *Conn) readLoop() {
	defer func() {
		close(c.receiver)
		c.wg.Done()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		default:
			msg, err := c.readMessage()
			if err != nil {
				c.log().Infof("Error reading message from socket, exiting read loop: %s", err)
				return
			}
			select {
			case <-c.done:
				return
			case c.receiver <- msg:
			}
		}
	}
}

func (c *Conn) sendMessage(msg *Message) error {
	if msg.Type == TypePiece {
		if err := c.bandwidth.ReserveEgress(int64(len(msg.Payload))); err != nil {
			c.log().Errorf("Error reserving egress bandwidth for piece payload: %s", err)
			return fmt.Errorf("egress bandwidth: %s", err)
		}
	}
	if err := WriteMessage(c.nc, msg); err != nil {
		return fmt.Errorf("send message: %s", err)
	}
	c.countBandwidth("egress", int64(8*len(msg.Payload)))
	return nil
}

// writeLoop writes messages the underlying connection by pulling messages off of the sender
// channel.
func (c *Conn) writeLoop() {
	defer func() {
		c.wg.Done()
		c.Close()
	}()

	for {
		select {
		case <-c.done:
			return
		case msg := <-c.sender:
			if err := c.sendMessage(msg); err != nil {
				c.log().Infof("Error writing message to socket, exiting write loop: %s", err)
				return
			}
		}
	}
}

func (c *Conn) countBandwidth(direction string, n int64) {
	c.stats.Tagged(map[string]string{
		"piece_bandwidth_direction": direction,
	}).Counter("piece_bandwidth").Inc(n)
}

func (c *Conn) log(keysAndValues ...interface{}) *zap.SugaredLogger {
	keysAndValues = append(keysAndValues, "remote_peer", c.peerID, "hash", c.infoHash)
	return c.logger.With(keysAndValues...)
}

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
package announceclient

import (
	"encoding/binary"
	"fmt"
	"math/rand"
	"net"
	"net/url"
	"time"
)

// BEP-15 constants.
const (
	// udpMagicConnectionID opens every connect request.
	udpMagicConnectionID uint64 = 0x41727101980

	udpActionConnect  uint32 = 0
	udpActionAnnounce uint32 = 1

	// udpMaxPacketSize bounds a single announce response datagram.
	udpMaxPacketSize = 2048
)

// udpClient announces over the BEP-15 two-step connect / announce
// exchange. Requests are retransmitted on the t*2^n schedule until a
// response arrives or the schedule is exhausted.
type udpClient struct {
	config Config
	url    *url.URL
}

func newUDPClient(u *url.URL, config Config) *udpClient {
	return &udpClient{config: config, url: u}
}

func (c *udpClient) URL() string {
	return c.url.String()
}

// Announce runs the connect / announce exchange.
func (c *udpClient) Announce(req *Request) (*Response, error) {
	conn, err := net.Dial("udp", c.url.Host)
	if err != nil {
		return nil, fmt.Errorf("dial: %s", err)
	}
	defer conn.Close()

	connID, err := c.connect(conn)
	if err != nil {
		return nil, err
	}
	return c.announce(conn, connID, req)
}

// exchange sends a request datagram built by build and reads one response
// datagram, retransmitting per the BEP-15 schedule: attempt n times out
// after base * 2^n seconds.
func (c *udpClient) exchange(
	conn net.Conn,
	build func(txID uint32) []byte) ([]byte, uint32, error) {

	for n := 0; n <= c.config.UDPMaxRetries; n++ {
		txID := rand.Uint32()
		if _, err := conn.Write(build(txID)); err != nil {
			return nil, 0, fmt.Errorf("send: %s", err)
		}

		timeout := c.config.UDPRetryBaseTimeout * (1 << uint(n))
		if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
			return nil, 0, fmt.Errorf("set read deadline: %s", err)
		}
		resp := make([]byte, udpMaxPacketSize)
		nread, err := conn.Read(resp)
		if err != nil {
			if nerr, ok := err.(net.Error); ok && nerr.Timeout() {
				continue
			}
			return nil, 0, fmt.Errorf("receive: %s", err)
		}
		return resp[:nread], txID, nil
	}
	return nil, 0, ErrTimeout
}

// connect obtains a connection id for subsequent announces.
func (c *udpClient) connect(conn net.Conn) (uint64, error) {
	resp, txID, err := c.exchange(conn, func(txID uint32) []byte {
		b := make([]byte, 16)
		binary.BigEndian.PutUint64(b, udpMagicConnectionID)
		binary.BigEndian.PutUint32(b[8:], udpActionConnect)
		binary.BigEndian.PutUint32(b[12:], txID)
		return b
	})
	if err != nil {
		return 0, err
	}
	if len(resp) < 16 {
		return 0, fmt.Errorf("short connect response: %d bytes", len(resp))
	}
	if action := binary.BigEndian.Uint32(resp); action != udpActionConnect {
		return 0, fmt.Errorf("unexpected connect action: %d", action)
	}
	if rx := binary.BigEndian.Uint32(resp[4:]); rx != txID {
		return 0, fmt.Errorf("connect transaction id mismatch")
	}
	return binary.BigEndian.Uint64(resp[8:]), nil
}

// announce executes the 98-byte announce request and parses the handout.
func (c *udpClient) announce(conn net.Conn, connID uint64, req *Request) (*Response, error) {
	resp, txID, err := c.exchange(conn, func(txID uint32) []byte {
		b := make([]byte, 98)
		binary.BigEndian.PutUint64(b, connID)
		binary.BigEndian.PutUint32(b[8:], udpActionAnnounce)
		binary.BigEndian.PutUint32(b[12:], txID)
		copy(b[16:], req.InfoHash.Bytes())
		copy(b[36:], req.PeerID.Bytes())
		binary.BigEndian.PutUint64(b[56:], uint64(req.Downloaded))
		binary.BigEndian.PutUint64(b[64:], uint64(req.Left))
		binary.BigEndian.PutUint64(b[72:], uint64(req.Uploaded))
		binary.BigEndian.PutUint32(b[80:], 0)             // Event: none.
		binary.BigEndian.PutUint32(b[84:], 0)             // IP: default.
		binary.BigEndian.PutUint32(b[88:], rand.Uint32()) // Key.
		binary.BigEndian.PutUint32(b[92:], 0xFFFFFFFF)    // num_want: -1.
		binary.BigEndian.PutUint16(b[96:], uint16(req.Port))
		return b
	})
	if err != nil {
		return nil, err
	}
	if len(resp) < 20 {
		return nil, fmt.Errorf("short announce response: %d bytes", len(resp))
	}
	if action := binary.BigEndian.Uint32(resp); action != udpActionAnnounce {
		return nil, fmt.Errorf("unexpected announce action: %d", action)
	}
	if rx := binary.BigEndian.Uint32(resp[4:]); rx != txID {
		return nil, fmt.Errorf("announce transaction id mismatch")
	}
	interval := time.Duration(binary.BigEndian.Uint32(resp[8:])) * time.Second
	// resp[12:16] leechers and resp[16:20] seeders are not used.

	// Unlike the HTTP handout, an empty UDP handout is valid: the peer
	// records simply end with the datagram.
	peerBytes := resp[20:]
	if len(peerBytes)%6 != 0 {
		return nil, ErrInvalidPeersLength
	}
	r := &Response{Interval: interval}
	if len(peerBytes) > 0 {
		peers, err := parseCompactPeers(peerBytes)
		if err != nil {
			return nil, err
		}
		r.Peers = peers
	}
	return r, nil
}

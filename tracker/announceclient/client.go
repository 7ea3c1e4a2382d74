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

// Package announceclient implements tracker announces over HTTP(S) and
// UDP, and aggregates peer handouts across a torrent's tracker list.
package announceclient

import (
	"crypto/tls"
	"errors"
	"fmt"
	"net/url"
	"sync"
	"time"

	"github.com/grishavanika/bittorrent-client/core"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Request defines an announce request.
type Request struct {
	InfoHash   core.InfoHash
	PeerID     core.PeerID
	Port       int
	Uploaded   int64
	Downloaded int64
	Left       int64
}

// Response defines an announce response.
type Response struct {
	// Peers is the tracker's peer handout.
	Peers []*core.PeerInfo

	// Interval is the tracker's requested delay before the next announce.
	Interval time.Duration
}

// Client defines a client for announcing and getting peers.
type Client interface {
	Announce(req *Request) (*Response, error)
	URL() string
}

// UnsupportedSchemeError occurs when a tracker url scheme has no
// transport.
type UnsupportedSchemeError struct {
	Scheme string
}

func (e *UnsupportedSchemeError) Error() string {
	return fmt.Sprintf("unsupported tracker scheme %q", e.Scheme)
}

// New creates a Client for a single tracker url, dispatching on scheme.
func New(rawurl string, config Config, tlsConfig *tls.Config) (Client, error) {
	config = config.applyDefaults()
	u, err := url.Parse(rawurl)
	if err != nil {
		return nil, fmt.Errorf("parse url: %s", err)
	}
	switch u.Scheme {
	case "http", "https":
		return newHTTPClient(u, config, tlsConfig), nil
	case "udp":
		if u.Port() == "" {
			return nil, errors.New("udp tracker url requires a port")
		}
		return newUDPClient(u, config), nil
	default:
		return nil, &UnsupportedSchemeError{u.Scheme}
	}
}

// Group announces to every tracker of a torrent and merges the handouts.
type Group struct {
	clients []Client
	logger  *zap.SugaredLogger
}

// NewGroup creates a Group from the torrent's announce url and
// announce-list. Urls which fail to parse are logged and discarded; at
// least one usable tracker is required.
func NewGroup(
	mi *core.MetaInfo,
	config Config,
	tlsConfig *tls.Config,
	logger *zap.SugaredLogger) (*Group, error) {

	var clients []Client
	for _, rawurl := range mi.Trackers() {
		c, err := New(rawurl, config, tlsConfig)
		if err != nil {
			logger.Warnf("Discarding tracker %s: %s", rawurl, err)
			continue
		}
		clients = append(clients, c)
	}
	if len(clients) == 0 {
		return nil, errors.New("no usable tracker urls")
	}
	return &Group{clients, logger}, nil
}

// Announce announces to all trackers concurrently and merges their peer
// handouts, deduplicated by address. Individual tracker failures are
// logged and skipped; Announce fails only if every tracker fails, with
// the last error observed.
func (g *Group) Announce(req *Request) (*Response, error) {
	var mu sync.Mutex
	var peers []*core.PeerInfo
	var interval time.Duration
	var lastErr error
	var succeeded int
	seen := make(map[core.PeerInfo]bool)

	var eg errgroup.Group
	for _, c := range g.clients {
		c := c
		eg.Go(func() error {
			resp, err := c.Announce(req)

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				g.logger.Warnf("Announce to %s failed: %s", c.URL(), err)
				lastErr = err
				return nil
			}
			succeeded++
			for _, p := range resp.Peers {
				if !seen[*p] {
					seen[*p] = true
					peers = append(peers, p)
				}
			}
			if interval == 0 || (resp.Interval > 0 && resp.Interval < interval) {
				interval = resp.Interval
			}
			return nil
		})
	}
	eg.Wait()

	if succeeded == 0 && lastErr != nil {
		return nil, lastErr
	}
	return &Response{Peers: peers, Interval: interval}, nil
}

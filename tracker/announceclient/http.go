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
	"crypto/tls"
	"fmt"
	"io"
	"net/url"
	"strconv"
	"time"

	"github.com/grishavanika/bittorrent-client/lib/bencode"
	"github.com/grishavanika/bittorrent-client/utils/httputil"
)

// httpClient announces over HTTP or HTTPS with a single GET request per
// announce. The response body is a bencoded dictionary.
type httpClient struct {
	config Config
	url    *url.URL
	tls    *tls.Config
}

func newHTTPClient(u *url.URL, config Config, tlsConfig *tls.Config) *httpClient {
	if u.Scheme == "http" {
		// SendTLS would otherwise upgrade the scheme.
		tlsConfig = nil
	}
	return &httpClient{config: config, url: u, tls: tlsConfig}
}

func (c *httpClient) URL() string {
	return c.url.String()
}

// announceURL builds the announce GET url. The info hash and peer id are
// percent-encoded byte for byte, not interpreted as UTF-8.
func (c *httpClient) announceURL(req *Request) string {
	params := url.Values{}
	params.Set("info_hash", string(req.InfoHash.Bytes()))
	params.Set("peer_id", string(req.PeerID.Bytes()))
	params.Set("port", strconv.Itoa(req.Port))
	params.Set("uploaded", strconv.FormatInt(req.Uploaded, 10))
	params.Set("downloaded", strconv.FormatInt(req.Downloaded, 10))
	params.Set("left", strconv.FormatInt(req.Left, 10))
	params.Set("compact", "1")

	u := *c.url
	if u.RawQuery == "" {
		u.RawQuery = params.Encode()
	} else {
		u.RawQuery += "&" + params.Encode()
	}
	return u.String()
}

// Announce executes one announce GET. Any non-200 status is an error.
func (c *httpClient) Announce(req *Request) (*Response, error) {
	resp, err := httputil.Get(
		c.announceURL(req),
		httputil.SendTimeout(c.config.Timeout),
		httputil.SendTLS(c.tls),
		httputil.SendHeaders(map[string]string{
			"Accept":     "*/*",
			"Connection": "close",
		}))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %s", err)
	}
	return parseHTTPResponse(body)
}

func parseHTTPResponse(body []byte) (*Response, error) {
	root, err := bencode.ParseDict(body)
	if err != nil {
		return nil, fmt.Errorf("parse response: %s", err)
	}
	if v, ok := root.Find("failure reason"); ok {
		return nil, &FailureError{Reason: string(v.Bytes)}
	}
	peersBlob, ok := root.Find("peers")
	if !ok {
		return nil, &MissingFieldError{"peers"}
	}
	if peersBlob.Kind != bencode.KindBytes {
		return nil, fmt.Errorf("peers field is not a compact string")
	}
	peers, err := parseCompactPeers(peersBlob.Bytes)
	if err != nil {
		return nil, err
	}

	var interval time.Duration
	if v, ok := root.Find("interval"); ok {
		secs, err := v.Int64()
		if err != nil {
			return nil, fmt.Errorf("interval: %s", err)
		}
		interval = time.Duration(secs) * time.Second
	}
	return &Response{Peers: peers, Interval: interval}, nil
}

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
package cmd

import (
	"crypto/tls"

	"github.com/grishavanika/bittorrent-client/core"
	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler"
	"github.com/grishavanika/bittorrent-client/lib/torrent/storage"
	"github.com/grishavanika/bittorrent-client/metrics"
	"github.com/grishavanika/bittorrent-client/tracker/announceclient"
	"github.com/grishavanika/bittorrent-client/utils/log"

	"go.uber.org/zap"
)

// Config defines the client configuration.
type Config struct {
	ZapLogging    zap.Config            `yaml:"zap"`
	Metrics       metrics.Config        `yaml:"metrics"`
	PeerIDFactory core.PeerIDFactory    `yaml:"peer_id_factory"`
	Scheduler     scheduler.Config      `yaml:"scheduler"`
	Tracker       announceclient.Config `yaml:"tracker"`
	Storage       storage.Config        `yaml:"storage"`
	TLS           TLSConfig             `yaml:"tls"`
}

// TLSConfig defines the client TLS policy towards HTTPS trackers.
type TLSConfig struct {
	// DisableVerification skips certificate verification. Do not disable
	// outside of testing.
	DisableVerification bool `yaml:"disable_verification"`
}

// BuildClient builds the tls.Config used for HTTPS announces.
func (c TLSConfig) BuildClient() *tls.Config {
	return &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: c.DisableVerification,
	}
}

func (c Config) applyDefaults() Config {
	if len(c.ZapLogging.OutputPaths) == 0 {
		c.ZapLogging = log.Default()
	}
	if c.PeerIDFactory == "" {
		c.PeerIDFactory = core.RandomPeerIDFactory
	}
	return c
}

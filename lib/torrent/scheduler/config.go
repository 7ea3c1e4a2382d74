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
	"time"

	"github.com/grishavanika/bittorrent-client/lib/torrent/scheduler/conn"
	"github.com/grishavanika/bittorrent-client/utils/backoff"
)

// Config defines Scheduler configuration.
type Config struct {

	// PipelineLimit is the maximum number of outstanding block requests
	// per peer. Bounds both peer load and local memory.
	PipelineLimit int `yaml:"pipeline_limit"`

	// DefaultAnnounceInterval is used when a tracker does not request a
	// specific re-announce interval.
	DefaultAnnounceInterval time.Duration `yaml:"default_announce_interval"`

	// MaxAnnounceInterval clamps tracker-requested intervals. A wildly
	// high interval from a misbehaving tracker would otherwise stall the
	// download between rounds.
	MaxAnnounceInterval time.Duration `yaml:"max_announce_interval"`

	// EmptyHandoutBackoff paces re-announces while trackers keep handing
	// out zero peers.
	EmptyHandoutBackoff backoff.Config `yaml:"empty_handout_backoff"`

	Conn conn.Config `yaml:"conn"`
}

func (c Config) applyDefaults() Config {
	if c.PipelineLimit == 0 {
		c.PipelineLimit = 5
	}
	if c.DefaultAnnounceInterval == 0 {
		c.DefaultAnnounceInterval = 5 * time.Second
	}
	if c.MaxAnnounceInterval == 0 {
		c.MaxAnnounceInterval = time.Minute
	}
	return c
}

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

import "time"

// Config defines announce client configuration, shared by the HTTP and
// UDP transports.
type Config struct {
	// Timeout bounds a single HTTP announce request.
	Timeout time.Duration `yaml:"timeout"`

	// UDPRetryBaseTimeout is the base t of the BEP-15 retransmit
	// schedule: attempt n times out after t * 2^n.
	UDPRetryBaseTimeout time.Duration `yaml:"udp_retry_base_timeout"`

	// UDPMaxRetries caps the BEP-15 retransmit schedule at attempt n.
	// BEP-15 runs the schedule to n=8 (~64 minutes); the default stops
	// at n=4 (~4 minutes), which is plenty for a tracker that is up.
	UDPMaxRetries int `yaml:"udp_max_retries"`
}

func (c Config) applyDefaults() Config {
	if c.Timeout == 0 {
		c.Timeout = 30 * time.Second
	}
	if c.UDPRetryBaseTimeout == 0 {
		c.UDPRetryBaseTimeout = 15 * time.Second
	}
	if c.UDPMaxRetries == 0 {
		c.UDPMaxRetries = 4
	}
	return c
}

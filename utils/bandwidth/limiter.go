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

// Package bandwidth provides token-bucket rate limiting for piece traffic.
package bandwidth

import (
	"errors"
	"fmt"
	"time"

	"github.com/grishavanika/bittorrent-client/utils/log"
	"github.com/grishavanika/bittorrent-client/utils/memsize"

	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// Config defines Limiter configuration.
type Config struct {
	EgressBitsPerSec  uint64 `yaml:"egress_bits_per_sec"`
	IngressBitsPerSec uint64 `yaml:"ingress_bits_per_sec"`

	// TokenSize defines the granularity of a token in the bucket. Using
	// small tokens (e.g. 1 bit) is prohibitively expensive, so tokens are
	// coarser chunks of bits.
	TokenSize uint64 `yaml:"token_size"`

	Enable bool `yaml:"enable"`
}

func (c Config) applyDefaults() Config {
	if c.TokenSize == 0 {
		c.TokenSize = 8 * memsize.Kbit
	}
	return c
}

// Limiter limits egress and ingress bandwidth.
type Limiter struct {
	config     Config
	egress     *rate.Limiter
	ingress    *rate.Limiter
	egressBPS  uint64
	ingressBPS uint64
	logger     *zap.SugaredLogger
}

// Option allows setting custom parameters for Limiter.
type Option func(*Limiter)

// WithLogger configures the Limiter with a custom logger.
func WithLogger(logger *zap.SugaredLogger) Option {
	return func(l *Limiter) { l.logger = logger }
}

// NewLimiter creates a new Limiter. Returns a no-op Limiter if the config
// is not enabled.
func NewLimiter(config Config, opts ...Option) (*Limiter, error) {
	config = config.applyDefaults()

	l := &Limiter{config: config, logger: log.GetGlobalLogger()}
	for _, opt := range opts {
		opt(l)
	}

	if !config.Enable {
		return l, nil
	}

	if config.EgressBitsPerSec == 0 {
		return nil, errors.New("invalid config: egress_bits_per_sec must be non-zero")
	}
	if config.IngressBitsPerSec == 0 {
		return nil, errors.New("invalid config: ingress_bits_per_sec must be non-zero")
	}

	l.logger.Infof("Setting egress bandwidth to %s/sec", memsize.BitFormat(config.EgressBitsPerSec))
	l.logger.Infof("Setting ingress bandwidth to %s/sec", memsize.BitFormat(config.IngressBitsPerSec))

	l.egress = newRateLimiter(config.EgressBitsPerSec, config.TokenSize)
	l.ingress = newRateLimiter(config.IngressBitsPerSec, config.TokenSize)
	l.egressBPS = config.EgressBitsPerSec
	l.ingressBPS = config.IngressBitsPerSec

	return l, nil
}

// Adjust divides the configured limits by denom, e.g. to split bandwidth
// fairly across denom connections.
func (l *Limiter) Adjust(denom int) error {
	if denom <= 0 {
		return fmt.Errorf("invalid denominator %d", denom)
	}
	if l.egress == nil || l.ingress == nil {
		return nil
	}
	l.egressBPS = maxU64(1, l.config.EgressBitsPerSec/uint64(denom))
	l.ingressBPS = maxU64(1, l.config.IngressBitsPerSec/uint64(denom))
	setRate(l.egress, l.egressBPS, l.config.TokenSize)
	setRate(l.ingress, l.ingressBPS, l.config.TokenSize)
	return nil
}

// EgressLimit returns the current egress limit in bits per second.
func (l *Limiter) EgressLimit() int64 {
	return int64(l.egressBPS)
}

// IngressLimit returns the current ingress limit in bits per second.
func (l *Limiter) IngressLimit() int64 {
	return int64(l.ingressBPS)
}

func setRate(limiter *rate.Limiter, bps, tokenSize uint64) {
	tps := max(1, int(bps/tokenSize))
	limiter.SetLimit(rate.Limit(tps))
	limiter.SetBurst(tps)
}

func maxU64(a, b uint64) uint64 {
	if a > b {
		return a
	}
	return b
}

func newRateLimiter(bps, tokenSize uint64) *rate.Limiter {
	tps := max(1, int(bps/tokenSize))
	return rate.NewLimiter(rate.Limit(tps), tps)
}

// ReserveEgress blocks until egress bandwidth for nbytes is available.
func (l *Limiter) ReserveEgress(nbytes int64) error {
	return reserveTokens(l.egress, l.config.TokenSize, nbytes)
}

// ReserveIngress blocks until ingress bandwidth for nbytes is available.
func (l *Limiter) ReserveIngress(nbytes int64) error {
	return reserveTokens(l.ingress, l.config.TokenSize, nbytes)
}

func reserveTokens(limiter *rate.Limiter, tokenSize uint64, nbytes int64) error {
	if limiter == nil {
		return nil
	}
	tokens := max(1, int(uint64(nbytes)*8/tokenSize))
	r := limiter.ReserveN(time.Now(), tokens)
	if !r.OK() {
		return fmt.Errorf(
			"cannot reserve %d tokens, burst size %d", tokens, limiter.Burst())
	}
	time.Sleep(r.Delay())
	return nil
}

func max(a, b int) int {
	if a > b {
		return a
	}
	return b
}

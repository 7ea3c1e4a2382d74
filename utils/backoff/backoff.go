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

// Package backoff provides exponential backoff with a bounded retry window.
package backoff

import (
	"errors"
	"math/rand"
	"time"
)

// Config defines Backoff configuration.
type Config struct {
	Min          time.Duration `yaml:"min"`
	Max          time.Duration `yaml:"max"`
	Factor       float64       `yaml:"factor"`
	RetryTimeout time.Duration `yaml:"retry_timeout"`

	// NoJitter disables randomization of each backoff. Used for testing
	// purposes.
	NoJitter bool `yaml:"-"`
}

func (c Config) applyDefaults() Config {
	if c.Min == 0 {
		c.Min = time.Second
	}
	if c.Max == 0 {
		c.Max = time.Minute
	}
	if c.Factor == 0 {
		c.Factor = 2
	}
	if c.RetryTimeout == 0 {
		c.RetryTimeout = 5 * time.Minute
	}
	return c
}

// Backoff computes exponentially increasing backoffs.
type Backoff struct {
	config Config
}

// New creates a new Backoff.
func New(config Config) *Backoff {
	return &Backoff{config.applyDefaults()}
}

// ErrRetryTimeout is returned by Attempts.Err once the retry window has
// been exhausted.
var ErrRetryTimeout = errors.New("retry timeout exceeded")

// Attempts tracks the backoff state of a single series of attempts.
type Attempts struct {
	config   Config
	deadline time.Time
	delay    time.Duration
	first    bool
	err      error
}

// Attempts starts a new series of attempts.
func (b *Backoff) Attempts() *Attempts {
	return &Attempts{
		config:   b.config,
		deadline: time.Now().Add(b.config.RetryTimeout),
		delay:    b.config.Min,
		first:    true,
	}
}

// WaitForNext sleeps until the next attempt may execute, and returns true
// if said attempt is within the retry window. The first attempt always
// executes immediately. Once WaitForNext returns false, Err returns
// ErrRetryTimeout.
func (a *Attempts) WaitForNext() bool {
	if a.err != nil {
		return false
	}
	if a.first {
		a.first = false
		return true
	}
	d := a.delay
	if a.delay < a.config.Max {
		a.delay = time.Duration(float64(a.delay) * a.config.Factor)
		if a.delay > a.config.Max {
			a.delay = a.config.Max
		}
	}
	if !a.config.NoJitter {
		d = d/2 + time.Duration(rand.Int63n(int64(d/2)+1))
	}
	if time.Now().Add(d).After(a.deadline) {
		a.err = ErrRetryTimeout
		return false
	}
	time.Sleep(d)
	return true
}

// Err returns a non-nil error once attempts have been exhausted.
func (a *Attempts) Err() error {
	return a.err
}

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

// Package randutil provides utilities for generating random test data.
package randutil

import (
	"fmt"
	"math/rand"
)

const _chars = "abcdefghijklmnopqrstuvwxyz0123456789"

// Text returns n random alphanumeric characters.
func Text(n uint64) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = _chars[rand.Intn(len(_chars))]
	}
	return b
}

// Blob returns n random bytes.
func Blob(n uint64) []byte {
	b := make([]byte, n)
	if _, err := rand.Read(b); err != nil {
		panic(err)
	}
	return b
}

// Range returns a random integer in [start, stop).
func Range(start, stop int) int {
	return start + rand.Intn(stop-start)
}

// IP returns a random ipv4 address.
func IP() string {
	return fmt.Sprintf("%d.%d.%d.%d", Range(1, 255), Range(1, 255), Range(1, 255), Range(1, 255))
}

// Port returns a random port in the dynamic range.
func Port() int {
	return Range(1025, 65535)
}

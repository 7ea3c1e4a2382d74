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

// Package memsize provides pretty-printing and constants for memory sizes.
package memsize

import "fmt"

// Bit size constants.
const (
	bit  uint64 = 1
	Kbit        = 1000 * bit
	Mbit        = 1000 * Kbit
	Gbit        = 1000 * Mbit
	Tbit        = 1000 * Gbit
)

// Byte size constants.
const (
	B  uint64 = 1
	KB        = 1024 * B
	MB        = 1024 * KB
	GB        = 1024 * MB
	TB        = 1024 * GB
)

// Format returns a human readable representation of n bytes.
func Format(n uint64) string {
	return format(n, 1024, []unit{
		{TB, "TB"},
		{GB, "GB"},
		{MB, "MB"},
		{KB, "KB"},
		{B, "B"},
	})
}

// BitFormat returns a human readable representation of n bits.
func BitFormat(n uint64) string {
	return format(n, 1000, []unit{
		{Tbit, "Tbit"},
		{Gbit, "Gbit"},
		{Mbit, "Mbit"},
		{Kbit, "Kbit"},
		{bit, "bit"},
	})
}

type unit struct {
	n      uint64
	suffix string
}

func format(n uint64, base uint64, units []unit) string {
	if n == 0 {
		return "0" + units[len(units)-1].suffix
	}
	for _, u := range units {
		if n >= u.n {
			return fmt.Sprintf("%.2f%s", float64(n)/float64(u.n), u.suffix)
		}
	}
	return fmt.Sprintf("%d%s", n, units[len(units)-1].suffix)
}

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
	"errors"
	"fmt"
)

// ErrTimeout occurs when a UDP tracker does not respond within the full
// retransmit schedule.
var ErrTimeout = errors.New("tracker did not respond within the retry schedule")

// ErrInvalidPeersLength occurs when a compact peers blob is empty or not
// a multiple of 6 bytes.
var ErrInvalidPeersLength = errors.New("peers blob length is not a nonzero multiple of 6")

// FailureError carries the failure reason returned by a tracker in place
// of a peer handout.
type FailureError struct {
	Reason string
}

func (e *FailureError) Error() string {
	return fmt.Sprintf("tracker failure: %s", e.Reason)
}

// MissingFieldError occurs when a tracker response omits a required
// field.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("tracker response missing field %q", e.Field)
}

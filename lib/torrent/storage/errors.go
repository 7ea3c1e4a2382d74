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
package storage

import "fmt"

// InvalidPathError occurs when a torrent declares a file path which could
// escape the output directory or cannot name a file.
type InvalidPathError struct {
	Path   string
	Reason string
}

func (e *InvalidPathError) Error() string {
	return fmt.Sprintf("invalid file path %q: %s", e.Path, e.Reason)
}

// PieceSizeError occurs when a completed piece's data does not match the
// expected piece length.
type PieceSizeError struct {
	Piece    int
	Expected int64
	Actual   int64
}

func (e *PieceSizeError) Error() string {
	return fmt.Sprintf("piece %d: expected %d bytes, got %d", e.Piece, e.Expected, e.Actual)
}

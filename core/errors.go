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
package core

import (
	"errors"
	"fmt"
)

// Metainfo validation errors.
var (
	// ErrEmptyAnnounce occurs when a torrent names no tracker at all,
	// neither via announce nor announce-list.
	ErrEmptyAnnounce = errors.New("no tracker url in announce or announce-list")

	// ErrInvalidPiecesLength occurs when the pieces blob is empty or not a
	// multiple of 20 bytes.
	ErrInvalidPiecesLength = errors.New("pieces length is not a nonzero multiple of 20")

	// ErrAmbiguousFileLayout occurs when the info dictionary carries both
	// a single-file length and a multi-file files list.
	ErrAmbiguousFileLayout = errors.New("info contains both length and files")

	// ErrEmptyMultiFile occurs when a files list has no entries.
	ErrEmptyMultiFile = errors.New("files list is empty")

	// ErrEmptyMultiFilePath occurs when a file path is empty or contains
	// an empty component.
	ErrEmptyMultiFilePath = errors.New("file path is empty")
)

// MissingPropertyError occurs when a required metainfo key is absent.
type MissingPropertyError struct {
	Property string
}

func (e *MissingPropertyError) Error() string {
	return fmt.Sprintf("missing metainfo property %q", e.Property)
}

// PropertyTypeError occurs when a metainfo key holds a value of the wrong
// bencoded kind.
type PropertyTypeError struct {
	Property string
	Expected string
}

func (e *PropertyTypeError) Error() string {
	return fmt.Sprintf("metainfo property %q is not a %s", e.Property, e.Expected)
}

// InvalidIntegerError occurs when a metainfo integer is outside its valid
// range, e.g. a non-positive piece length.
type InvalidIntegerError struct {
	Property string
}

func (e *InvalidIntegerError) Error() string {
	return fmt.Sprintf("metainfo property %q is not a positive integer", e.Property)
}

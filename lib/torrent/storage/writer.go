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

// Package storage maps completed pieces onto the torrent's output files
// and performs the writes.
package storage

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"github.com/grishavanika/bittorrent-client/core"
)

// Config defines Writer configuration.
type Config struct {
	// DisablePreallocation skips pre-sizing files to their final length
	// on creation. Pre-sizing is a platform optimization; the payload is
	// identical either way.
	DisablePreallocation bool `yaml:"disable_preallocation"`
}

// fileSpan is one output file's byte range [start, end) within the
// logical concatenation of all files.
type fileSpan struct {
	path  string
	start int64
	end   int64
}

// Writer writes completed pieces into their output files. Files are
// created lazily on first write and fail if a file already exists at the
// destination path. A file is closed as soon as all of its bytes have
// been written.
type Writer struct {
	mu sync.Mutex

	config Config
	mi     *core.MetaInfo

	spans   []fileSpan
	files   []*os.File
	written []int64
}

// NewWriter creates a Writer placing the torrent payload under outputDir.
// Multi-file torrents are rooted in a directory named after the torrent.
func NewWriter(config Config, mi *core.MetaInfo, outputDir string) (*Writer, error) {
	root := outputDir
	if mi.MultiFile() && mi.Name() != "" {
		if err := checkPathComponent(mi.Name()); err != nil {
			return nil, err
		}
		root = filepath.Join(outputDir, mi.Name())
	}

	files := mi.Files()
	w := &Writer{
		config:  config,
		mi:      mi,
		files:   make([]*os.File, len(files)),
		written: make([]int64, len(files)),
	}
	var offset int64
	for _, f := range files {
		if len(f.Path) == 0 {
			return nil, &InvalidPathError{Path: "", Reason: "empty path"}
		}
		for _, c := range f.Path {
			if err := checkPathComponent(c); err != nil {
				return nil, err
			}
		}
		w.spans = append(w.spans, fileSpan{
			path:  filepath.Join(append([]string{root}, f.Path...)...),
			start: offset,
			end:   offset + f.Length,
		})
		offset += f.Length
	}
	return w, nil
}

// checkPathComponent rejects components which could traverse outside the
// output directory or cannot name a file.
func checkPathComponent(c string) error {
	switch {
	case c == "":
		return &InvalidPathError{Path: c, Reason: "empty path component"}
	case c == "." || c == "..":
		return &InvalidPathError{Path: c, Reason: "relative path component"}
	case strings.ContainsAny(c, `/\`):
		return &InvalidPathError{Path: c, Reason: "path separator in component"}
	}
	return nil
}

// WritePiece writes piece data at the piece's position in the payload,
// splitting across file boundaries as needed.
func (w *Writer) WritePiece(index int, data []byte) error {
	if expected := w.mi.GetPieceLength(index); int64(len(data)) != expected {
		return &PieceSizeError{Piece: index, Expected: expected, Actual: int64(len(data))}
	}

	w.mu.Lock()
	defer w.mu.Unlock()

	pieceStart := int64(index) * w.mi.PieceLength()
	pieceEnd := pieceStart + int64(len(data))

	// First file whose byte range extends past the piece start.
	i := sort.Search(len(w.spans), func(i int) bool {
		return w.spans[i].end > pieceStart
	})
	for ; i < len(w.spans) && w.spans[i].start < pieceEnd; i++ {
		span := w.spans[i]
		start := max64(pieceStart, span.start)
		end := min64(pieceEnd, span.end)

		f, err := w.file(i)
		if err != nil {
			return err
		}
		chunk := data[start-pieceStart : end-pieceStart]
		if _, err := f.WriteAt(chunk, start-span.start); err != nil {
			return fmt.Errorf("write %s: %s", span.path, err)
		}
		w.written[i] += end - start
		if w.written[i] == span.end-span.start {
			if err := f.Close(); err != nil {
				return fmt.Errorf("close %s: %s", span.path, err)
			}
			w.files[i] = nil
		}
	}
	return nil
}

// file lazily creates the i'th output file. Creation fails if a file
// already exists at the path. Must be called under w.mu.
func (w *Writer) file(i int) (*os.File, error) {
	if w.files[i] != nil {
		return w.files[i], nil
	}
	span := w.spans[i]
	if err := os.MkdirAll(filepath.Dir(span.path), 0775); err != nil {
		return nil, fmt.Errorf("mkdir for %s: %s", span.path, err)
	}
	f, err := os.OpenFile(span.path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0644)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", span.path, err)
	}
	if !w.config.DisablePreallocation {
		if err := f.Truncate(span.end - span.start); err != nil {
			f.Close()
			return nil, fmt.Errorf("preallocate %s: %s", span.path, err)
		}
	}
	w.files[i] = f
	return f, nil
}

// Verify checks that every output file received exactly its final length.
func (w *Writer) Verify() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	for i, span := range w.spans {
		if w.written[i] != span.end-span.start {
			return fmt.Errorf("file %s: wrote %d of %d bytes",
				span.path, w.written[i], span.end-span.start)
		}
	}
	return nil
}

// Close closes any output files still open.
func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	var err error
	for i, f := range w.files {
		if f != nil {
			if cerr := f.Close(); cerr != nil && err == nil {
				err = cerr
			}
			w.files[i] = nil
		}
	}
	return err
}

func max64(a, b int64) int64 {
	if a > b {
		return a
	}
	return b
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}

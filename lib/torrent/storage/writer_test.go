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

import (
	"crypto/sha1"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/grishavanika/bittorrent-client/core"

	"github.com/stretchr/testify/require"
)

func bencodeStr(s string) string {
	return fmt.Sprintf("%d:%s", len(s), s)
}

func sha1Str(b []byte) string {
	h := sha1.Sum(b)
	return string(h[:])
}

func writeAll(t *testing.T, w *Writer, f *core.TorrentFixture, order ...int) {
	for _, i := range order {
		require.NoError(t, w.WritePiece(i, f.PieceContent(i)))
	}
}

func TestWriterSingleFile(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	f := core.SizedTorrentFixture(40*1024, 32*1024) // 2 pieces: 32K + 8K.

	w, err := NewWriter(Config{}, f.MetaInfo, dir)
	require.NoError(err)
	writeAll(t, w, f, 0, 1)
	require.NoError(w.Verify())
	require.NoError(w.Close())

	b, err := os.ReadFile(filepath.Join(dir, f.MetaInfo.Name()))
	require.NoError(err)
	require.Equal(f.Content, b)
}

func TestWriterSingleFileOutOfOrderPieces(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	f := core.SizedTorrentFixture(64, 16) // 4 pieces.

	w, err := NewWriter(Config{}, f.MetaInfo, dir)
	require.NoError(err)
	writeAll(t, w, f, 2, 0, 3, 1)
	require.NoError(w.Verify())

	b, err := os.ReadFile(filepath.Join(dir, f.MetaInfo.Name()))
	require.NoError(err)
	require.Equal(f.Content, b)
}

func TestWriterMultiFileSplitsAtBoundary(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	// Two files of 30 KiB and 40 KiB with 32 KiB pieces: pieces 0 and 1
	// straddle the file boundary at byte 30720.
	f := core.MultiFileTorrentFixture(32*1024, 30*1024, 40*1024)

	w, err := NewWriter(Config{}, f.MetaInfo, dir)
	require.NoError(err)
	writeAll(t, w, f, 0, 1, 2)
	require.NoError(w.Verify())
	require.NoError(w.Close())

	root := filepath.Join(dir, f.MetaInfo.Name())

	a, err := os.ReadFile(filepath.Join(root, "file0"))
	require.NoError(err)
	require.Equal(f.Content[:30*1024], a)

	b, err := os.ReadFile(filepath.Join(root, "file1"))
	require.NoError(err)
	require.Equal(f.Content[30*1024:], b)
}

func TestWriterPreallocates(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	f := core.SizedTorrentFixture(64, 16)

	w, err := NewWriter(Config{}, f.MetaInfo, dir)
	require.NoError(err)

	// Writing the last piece first creates the file at its final size.
	require.NoError(w.WritePiece(3, f.PieceContent(3)))

	info, err := os.Stat(filepath.Join(dir, f.MetaInfo.Name()))
	require.NoError(err)
	require.Equal(int64(64), info.Size())
}

func TestWriterFailsIfFileExists(t *testing.T) {
	require := require.New(t)

	dir := t.TempDir()
	f := core.SizedTorrentFixture(16, 16)

	require.NoError(os.WriteFile(filepath.Join(dir, f.MetaInfo.Name()), []byte("x"), 0644))

	w, err := NewWriter(Config{}, f.MetaInfo, dir)
	require.NoError(err)
	require.Error(w.WritePiece(0, f.PieceContent(0)))
}

func TestWriterRejectsWrongPieceSize(t *testing.T) {
	require := require.New(t)

	f := core.SizedTorrentFixture(32, 16)
	w, err := NewWriter(Config{}, f.MetaInfo, t.TempDir())
	require.NoError(err)

	err = w.WritePiece(0, make([]byte, 8))
	require.Error(err)
	require.IsType(&PieceSizeError{}, err)
}

func TestWriterRejectsTraversalPaths(t *testing.T) {
	tests := []struct {
		desc string
		path []string
	}{
		{"dotdot", []string{"..", "escape"}},
		{"dot", []string{"."}},
		{"separator", []string{"a/b"}},
		{"empty component", []string{""}},
	}
	for _, test := range tests {
		t.Run(test.desc, func(t *testing.T) {
			require := require.New(t)

			content := []byte("0123456789abcdef")
			blob := "d8:announce9:http://t/4:infod5:filesl"
			blob += "d6:lengthi16e4:pathl"
			for _, c := range test.path {
				blob += bencodeStr(c)
			}
			blob += "eee"
			blob += "4:name4:test12:piece lengthi16e6:pieces" + bencodeStr(sha1Str(content)) + "ee"

			mi, err := core.ParseMetaInfo([]byte(blob))
			if err != nil {
				// Empty components are rejected by the metainfo loader
				// already.
				require.Equal(core.ErrEmptyMultiFilePath, err)
				return
			}
			_, err = NewWriter(Config{}, mi, t.TempDir())
			require.Error(err)
			require.IsType(&InvalidPathError{}, err)
		})
	}
}

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
	"os"
	"strings"

	"github.com/grishavanika/bittorrent-client/lib/bencode"
)

// FileInfo describes one file of the torrent payload.
type FileInfo struct {
	// Length of the file in bytes.
	Length int64

	// Path components, joined with '/' to form the file's relative path.
	Path []string
}

// RelPath returns the file's path relative to the output directory.
func (f FileInfo) RelPath() string {
	return strings.Join(f.Path, "/")
}

// MetaInfo contains torrent metadata parsed from a .torrent file. All
// fields are deep copies; nothing references the parse buffer.
type MetaInfo struct {
	announce     string
	announceList [][]string
	name         string
	pieceLength  int64
	pieces       []byte
	length       int64
	files        []FileInfo
	multiFile    bool
	infoHash     InfoHash
}

// ParseMetaInfo parses and validates the contents of a .torrent file.
// The info hash is computed over the raw source bytes of the info
// dictionary, never from a re-serialization.
func ParseMetaInfo(b []byte) (*MetaInfo, error) {
	root, err := bencode.ParseDict(b)
	if err != nil {
		return nil, err
	}

	mi := &MetaInfo{}

	if v, ok := root.Find("announce"); ok {
		if v.Kind != bencode.KindBytes {
			return nil, &PropertyTypeError{"announce", "string"}
		}
		mi.announce = string(v.Bytes)
	}
	if v, ok := root.Find("announce-list"); ok {
		tiers, err := parseAnnounceList(v)
		if err != nil {
			return nil, err
		}
		mi.announceList = tiers
	}
	if mi.announce == "" && len(mi.announceList) == 0 {
		return nil, ErrEmptyAnnounce
	}

	info, ok := root.Find("info")
	if !ok {
		return nil, &MissingPropertyError{"info"}
	}
	if info.Kind != bencode.KindDict {
		return nil, &PropertyTypeError{"info", "dictionary"}
	}
	if err := mi.parseInfo(info); err != nil {
		return nil, err
	}

	mi.infoHash = NewInfoHashFromBytes(b[info.Pos.Start:info.Pos.End])
	return mi, nil
}

// ParseMetaInfoFile reads and parses the .torrent file at path.
func ParseMetaInfoFile(path string) (*MetaInfo, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ParseMetaInfo(b)
}

func parseAnnounceList(v bencode.Value) ([][]string, error) {
	if v.Kind != bencode.KindList {
		return nil, &PropertyTypeError{"announce-list", "list"}
	}
	var tiers [][]string
	for _, tier := range v.List {
		if tier.Kind != bencode.KindList {
			return nil, &PropertyTypeError{"announce-list tier", "list"}
		}
		var urls []string
		for _, u := range tier.List {
			if u.Kind != bencode.KindBytes {
				return nil, &PropertyTypeError{"announce-list url", "string"}
			}
			if len(u.Bytes) > 0 {
				urls = append(urls, string(u.Bytes))
			}
		}
		if len(urls) > 0 {
			tiers = append(tiers, urls)
		}
	}
	return tiers, nil
}

func (mi *MetaInfo) parseInfo(info bencode.Value) error {
	if v, ok := info.Find("name"); ok {
		if v.Kind != bencode.KindBytes {
			return &PropertyTypeError{"name", "string"}
		}
		mi.name = string(v.Bytes)
	}

	v, ok := info.Find("piece length")
	if !ok {
		return &MissingPropertyError{"piece length"}
	}
	n, err := v.Int64()
	if err != nil {
		return &PropertyTypeError{"piece length", "integer"}
	}
	if n <= 0 {
		return &InvalidIntegerError{"piece length"}
	}
	mi.pieceLength = n

	v, ok = info.Find("pieces")
	if !ok {
		return &MissingPropertyError{"pieces"}
	}
	if v.Kind != bencode.KindBytes {
		return &PropertyTypeError{"pieces", "string"}
	}
	if len(v.Bytes) == 0 || len(v.Bytes)%20 != 0 {
		return ErrInvalidPiecesLength
	}
	mi.pieces = append([]byte(nil), v.Bytes...)

	length, hasLength := info.Find("length")
	files, hasFiles := info.Find("files")
	switch {
	case hasLength && hasFiles:
		return ErrAmbiguousFileLayout
	case hasLength:
		n, err := length.Int64()
		if err != nil {
			return &PropertyTypeError{"length", "integer"}
		}
		if n <= 0 {
			return &InvalidIntegerError{"length"}
		}
		mi.length = n
	case hasFiles:
		if err := mi.parseFiles(files); err != nil {
			return err
		}
	default:
		return &MissingPropertyError{"length or files"}
	}
	return nil
}

func (mi *MetaInfo) parseFiles(files bencode.Value) error {
	if files.Kind != bencode.KindList {
		return &PropertyTypeError{"files", "list"}
	}
	if len(files.List) == 0 {
		return ErrEmptyMultiFile
	}
	mi.multiFile = true
	for _, f := range files.List {
		if f.Kind != bencode.KindDict {
			return &PropertyTypeError{"files entry", "dictionary"}
		}
		length, ok := f.Find("length")
		if !ok {
			return &MissingPropertyError{"files length"}
		}
		n, err := length.Int64()
		if err != nil {
			return &PropertyTypeError{"files length", "integer"}
		}
		if n <= 0 {
			return &InvalidIntegerError{"files length"}
		}
		path, ok := f.Find("path")
		if !ok {
			return &MissingPropertyError{"files path"}
		}
		if path.Kind != bencode.KindList {
			return &PropertyTypeError{"files path", "list"}
		}
		if len(path.List) == 0 {
			return ErrEmptyMultiFilePath
		}
		var components []string
		for _, c := range path.List {
			if c.Kind != bencode.KindBytes {
				return &PropertyTypeError{"files path component", "string"}
			}
			if len(c.Bytes) == 0 {
				return ErrEmptyMultiFilePath
			}
			components = append(components, string(c.Bytes))
		}
		mi.files = append(mi.files, FileInfo{Length: n, Path: components})
		mi.length += n
	}
	return nil
}

// InfoHash returns the torrent InfoHash.
func (mi *MetaInfo) InfoHash() InfoHash {
	return mi.infoHash
}

// Announce returns the primary tracker url. May be empty if the torrent
// carries an announce-list.
func (mi *MetaInfo) Announce() string {
	return mi.announce
}

// AnnounceList returns the multitracker tiers, outermost index being the
// tier. May be empty.
func (mi *MetaInfo) AnnounceList() [][]string {
	return mi.announceList
}

// Trackers returns all tracker urls, announce first, deduplicated,
// flattening announce-list tiers in order.
func (mi *MetaInfo) Trackers() []string {
	var urls []string
	seen := make(map[string]bool)
	add := func(u string) {
		if u != "" && !seen[u] {
			seen[u] = true
			urls = append(urls, u)
		}
	}
	add(mi.announce)
	for _, tier := range mi.announceList {
		for _, u := range tier {
			add(u)
		}
	}
	return urls
}

// Name returns the suggested payload name. Advisory; may be empty.
func (mi *MetaInfo) Name() string {
	return mi.name
}

// Length returns the total length of the payload across all files.
func (mi *MetaInfo) Length() int64 {
	return mi.length
}

// PieceLength returns the nominal piece length. Note, the final piece may
// be shorter than this. Use GetPieceLength for the true lengths of each
// piece.
func (mi *MetaInfo) PieceLength() int64 {
	return mi.pieceLength
}

// NumPieces returns the number of pieces in the torrent.
func (mi *MetaInfo) NumPieces() int {
	return len(mi.pieces) / 20
}

// GetPieceLength returns the length of piece i.
func (mi *MetaInfo) GetPieceLength(i int) int64 {
	n := mi.NumPieces()
	if i < 0 || i >= n {
		return 0
	}
	if i == n-1 {
		// Last piece.
		return mi.length - mi.pieceLength*int64(i)
	}
	return mi.pieceLength
}

// PieceHash returns the SHA-1 checksum of piece i. Does not check bounds.
func (mi *MetaInfo) PieceHash(i int) [20]byte {
	var h [20]byte
	copy(h[:], mi.pieces[i*20:])
	return h
}

// MultiFile returns true if the torrent carries a files list.
func (mi *MetaInfo) MultiFile() bool {
	return mi.multiFile
}

// Files returns the payload file layout in declaration order. Single-file
// torrents yield one entry whose path is the suggested name.
func (mi *MetaInfo) Files() []FileInfo {
	if !mi.multiFile {
		return []FileInfo{{Length: mi.length, Path: []string{mi.name}}}
	}
	return mi.files
}

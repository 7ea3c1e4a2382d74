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
	"bytes"
	"crypto/sha1"
	"fmt"

	"github.com/grishavanika/bittorrent-client/utils/randutil"
)

// TorrentFixture joins a torrent's payload with its parsed metainfo for
// testing convenience.
type TorrentFixture struct {
	// Content is the logical concatenation of all payload files.
	Content []byte

	// Raw is the bencoded .torrent file.
	Raw []byte

	MetaInfo *MetaInfo
}

// PieceContent returns the expected content of piece i.
func (f *TorrentFixture) PieceContent(i int) []byte {
	start := int64(i) * f.MetaInfo.PieceLength()
	end := start + f.MetaInfo.GetPieceLength(i)
	return f.Content[start:end]
}

func pieceHashes(content []byte, pieceLength int64) []byte {
	var hashes []byte
	for start := int64(0); start < int64(len(content)); start += pieceLength {
		end := start + pieceLength
		if end > int64(len(content)) {
			end = int64(len(content))
		}
		h := sha1.Sum(content[start:end])
		hashes = append(hashes, h[:]...)
	}
	return hashes
}

func bencodeString(b *bytes.Buffer, s []byte) {
	fmt.Fprintf(b, "%d:%s", len(s), s)
}

// CustomTorrentFixture creates a TorrentFixture for the given payload
// content split over files, with the given announce url.
func CustomTorrentFixture(
	name string,
	announce string,
	content []byte,
	pieceLength int64,
	fileLengths []int64) *TorrentFixture {

	var b bytes.Buffer
	b.WriteString("d")
	b.WriteString("8:announce")
	bencodeString(&b, []byte(announce))
	b.WriteString("4:infod")
	if len(fileLengths) == 1 {
		fmt.Fprintf(&b, "6:lengthi%de", fileLengths[0])
	} else {
		b.WriteString("5:filesl")
		for i, n := range fileLengths {
			fmt.Fprintf(&b, "d6:lengthi%de4:pathl", n)
			bencodeString(&b, []byte(fmt.Sprintf("file%d", i)))
			b.WriteString("ee")
		}
		b.WriteString("e")
	}
	b.WriteString("4:name")
	bencodeString(&b, []byte(name))
	fmt.Fprintf(&b, "12:piece lengthi%de", pieceLength)
	b.WriteString("6:pieces")
	bencodeString(&b, pieceHashes(content, pieceLength))
	b.WriteString("ee")

	mi, err := ParseMetaInfo(b.Bytes())
	if err != nil {
		panic(err)
	}
	return &TorrentFixture{
		Content:  content,
		Raw:      b.Bytes(),
		MetaInfo: mi,
	}
}

// SizedTorrentFixture creates a single-file TorrentFixture of given size
// and piece length with random content.
func SizedTorrentFixture(size, pieceLength uint64) *TorrentFixture {
	return CustomTorrentFixture(
		string(randutil.Text(8)),
		"http://localhost:0/announce",
		randutil.Text(size),
		int64(pieceLength),
		[]int64{int64(size)})
}

// MultiFileTorrentFixture creates a multi-file TorrentFixture with random
// content.
func MultiFileTorrentFixture(pieceLength uint64, fileLengths ...int64) *TorrentFixture {
	var total int64
	for _, n := range fileLengths {
		total += n
	}
	return CustomTorrentFixture(
		string(randutil.Text(8)),
		"http://localhost:0/announce",
		randutil.Text(uint64(total)),
		int64(pieceLength),
		fileLengths)
}

// NewTorrentFixture creates a small randomly generated TorrentFixture.
func NewTorrentFixture() *TorrentFixture {
	return SizedTorrentFixture(256, 8)
}

// MetaInfoFixture returns a randomly generated MetaInfo.
func MetaInfoFixture() *MetaInfo {
	return NewTorrentFixture().MetaInfo
}

// InfoHashFixture returns a randomly generated InfoHash.
func InfoHashFixture() InfoHash {
	return MetaInfoFixture().InfoHash()
}

// PeerIDFixture returns a randomly generated PeerID.
func PeerIDFixture() PeerID {
	p, err := RandomPeerID()
	if err != nil {
		panic(err)
	}
	return p
}

// PeerInfoFixture returns a randomly generated PeerInfo.
func PeerInfoFixture() *PeerInfo {
	return NewPeerInfo(uint32(randutil.Range(1, 1<<31)), uint16(randutil.Port()))
}

// PeerContextFixture returns a randomly generated PeerContext.
func PeerContextFixture() PeerContext {
	pctx, err := NewPeerContext(RandomPeerIDFactory, randutil.Port())
	if err != nil {
		panic(err)
	}
	return pctx
}

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
package conn

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
	"time"
)

// Wire message ids, per BEP-3.
const (
	idChoke         byte = 0
	idUnchoke       byte = 1
	idInterested    byte = 2
	idNotInterested byte = 3
	idHave          byte = 4
	idBitfield      byte = 5
	idRequest       byte = 6
	idPiece         byte = 7
	idCancel        byte = 8
)

// MessageType discriminates peer wire messages.
type MessageType int

// Message types. A zero-length frame is a keep-alive; ids this client does
// not understand decode into TypeUnknown and are ignored by sessions.
const (
	TypeKeepAlive MessageType = iota
	TypeChoke
	TypeUnchoke
	TypeInterested
	TypeNotInterested
	TypeHave
	TypeBitfield
	TypeRequest
	TypePiece
	TypeCancel
	TypeUnknown
)

func (t MessageType) String() string {
	switch t {
	case TypeKeepAlive:
		return "keep_alive"
	case TypeChoke:
		return "choke"
	case TypeUnchoke:
		return "unchoke"
	case TypeInterested:
		return "interested"
	case TypeNotInterested:
		return "not_interested"
	case TypeHave:
		return "have"
	case TypeBitfield:
		return "bitfield"
	case TypeRequest:
		return "request"
	case TypePiece:
		return "piece"
	case TypeCancel:
		return "cancel"
	}
	return "unknown"
}

// Message is a single decoded peer wire message. Fields beyond Type are
// populated per message type.
type Message struct {
	Type MessageType

	// Index is the piece index for Have, Request, Piece and Cancel.
	Index int

	// Begin is the byte offset within the piece for Request, Piece and
	// Cancel.
	Begin int

	// Length is the requested block length for Request and Cancel.
	Length int

	// Bitfield holds the raw wire bytes (MSB-first) of a Bitfield message.
	Bitfield []byte

	// Payload holds the block data of a Piece message.
	Payload []byte

	// RawID preserves the wire id of an unknown message.
	RawID byte
}

func (m *Message) String() string {
	switch m.Type {
	case TypeHave:
		return fmt.Sprintf("Message(%s, piece=%d)", m.Type, m.Index)
	case TypeRequest, TypeCancel:
		return fmt.Sprintf("Message(%s, piece=%d, begin=%d, length=%d)",
			m.Type, m.Index, m.Begin, m.Length)
	case TypePiece:
		return fmt.Sprintf("Message(%s, piece=%d, begin=%d, length=%d)",
			m.Type, m.Index, m.Begin, len(m.Payload))
	default:
		return fmt.Sprintf("Message(%s)", m.Type)
	}
}

// NewKeepAliveMessage returns a keep-alive Message.
func NewKeepAliveMessage() *Message {
	return &Message{Type: TypeKeepAlive}
}

// NewChokeMessage returns a choke Message.
func NewChokeMessage() *Message {
	return &Message{Type: TypeChoke}
}

// NewUnchokeMessage returns an unchoke Message.
func NewUnchokeMessage() *Message {
	return &Message{Type: TypeUnchoke}
}

// NewInterestedMessage returns an interested Message.
func NewInterestedMessage() *Message {
	return &Message{Type: TypeInterested}
}

// NewNotInterestedMessage returns a not-interested Message.
func NewNotInterestedMessage() *Message {
	return &Message{Type: TypeNotInterested}
}

// NewHaveMessage returns a Message announcing possession of piece i.
func NewHaveMessage(i int) *Message {
	return &Message{Type: TypeHave, Index: i}
}

// NewBitfieldMessage returns a Message carrying raw bitfield bytes.
func NewBitfieldMessage(b []byte) *Message {
	return &Message{Type: TypeBitfield, Bitfield: b}
}

// NewRequestMessage returns a Message requesting a block.
func NewRequestMessage(index, begin, length int) *Message {
	return &Message{Type: TypeRequest, Index: index, Begin: begin, Length: length}
}

// NewPieceMessage returns a Message carrying a block payload.
func NewPieceMessage(index, begin int, payload []byte) *Message {
	return &Message{Type: TypePiece, Index: index, Begin: begin, Payload: payload}
}

// NewCancelMessage returns a Message cancelling a block request.
func NewCancelMessage(index, begin, length int) *Message {
	return &Message{Type: TypeCancel, Index: index, Begin: begin, Length: length}
}

func u32(b []byte) int {
	return int(binary.BigEndian.Uint32(b))
}

func putU32(b []byte, v int) {
	binary.BigEndian.PutUint32(b, uint32(v))
}

// encode returns the framed wire encoding of m, length prefix included.
func (m *Message) encode() ([]byte, error) {
	var id byte
	var payload []byte
	switch m.Type {
	case TypeKeepAlive:
		return []byte{0, 0, 0, 0}, nil
	case TypeChoke, TypeUnchoke, TypeInterested, TypeNotInterested:
		id = byte(m.Type - TypeChoke)
	case TypeHave:
		id = idHave
		payload = make([]byte, 4)
		putU32(payload, m.Index)
	case TypeBitfield:
		id = idBitfield
		payload = m.Bitfield
	case TypeRequest, TypeCancel:
		id = idRequest
		if m.Type == TypeCancel {
			id = idCancel
		}
		payload = make([]byte, 12)
		putU32(payload, m.Index)
		putU32(payload[4:], m.Begin)
		putU32(payload[8:], m.Length)
	case TypePiece:
		id = idPiece
		payload = make([]byte, 8+len(m.Payload))
		putU32(payload, m.Index)
		putU32(payload[4:], m.Begin)
		copy(payload[8:], m.Payload)
	case TypeUnknown:
		id = m.RawID
		payload = m.Payload
	default:
		return nil, fmt.Errorf("unsupported message type %v", m.Type)
	}
	frame := make([]byte, 5+len(payload))
	putU32(frame, 1+len(payload))
	frame[4] = id
	copy(frame[5:], payload)
	return frame, nil
}

// parseMessageBody decodes the body of a non-empty frame, id byte first.
func parseMessageBody(body []byte) (*Message, error) {
	id := body[0]
	payload := body[1:]
	fixed := func(n int) error {
		if len(payload) != n {
			return fmt.Errorf("message id %d: expected %d byte payload, got %d",
				id, n, len(payload))
		}
		return nil
	}
	switch id {
	case idChoke, idUnchoke, idInterested, idNotInterested:
		if err := fixed(0); err != nil {
			return nil, err
		}
		return &Message{Type: TypeChoke + MessageType(id)}, nil
	case idHave:
		if err := fixed(4); err != nil {
			return nil, err
		}
		return &Message{Type: TypeHave, Index: u32(payload)}, nil
	case idBitfield:
		return &Message{Type: TypeBitfield, Bitfield: payload}, nil
	case idRequest, idCancel:
		if err := fixed(12); err != nil {
			return nil, err
		}
		t := TypeRequest
		if id == idCancel {
			t = TypeCancel
		}
		return &Message{
			Type:   t,
			Index:  u32(payload),
			Begin:  u32(payload[4:]),
			Length: u32(payload[8:]),
		}, nil
	case idPiece:
		if len(payload) < 8 {
			return nil, fmt.Errorf("piece message: short payload: %d bytes", len(payload))
		}
		return &Message{
			Type:    TypePiece,
			Index:   u32(payload),
			Begin:   u32(payload[4:]),
			Payload: payload[8:],
		}, nil
	default:
		return &Message{Type: TypeUnknown, RawID: id, Payload: payload}, nil
	}
}

// WriteMessage writes the framed encoding of msg to w.
func WriteMessage(w io.Writer, msg *Message) error {
	frame, err := msg.encode()
	if err != nil {
		return err
	}
	for len(frame) > 0 {
		n, err := w.Write(frame)
		if err != nil {
			return fmt.Errorf("write frame: %s", err)
		}
		frame = frame[n:]
	}
	return nil
}

// ReadMessage reads one framed message off of r. Frames larger than limit
// bytes are rejected.
func ReadMessage(r io.Reader, limit uint32) (*Message, error) {
	var prefix [4]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, fmt.Errorf("read length prefix: %w", err)
	}
	n := binary.BigEndian.Uint32(prefix[:])
	if n == 0 {
		return NewKeepAliveMessage(), nil
	}
	if n > limit {
		return nil, fmt.Errorf("message exceeds max size: %d > %d", n, limit)
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("read frame: %w", err)
	}
	return parseMessageBody(body)
}

func sendMessageWithTimeout(nc net.Conn, msg *Message, timeout time.Duration) error {
	// NOTE: We do not use the clock interface here because the net package
	// uses the system clock when evaluating deadlines.
	if err := nc.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set write deadline: %s", err)
	}
	return WriteMessage(nc, msg)
}

func readMessageWithTimeout(nc net.Conn, limit uint32, timeout time.Duration) (*Message, error) {
	// NOTE: We do not use the clock interface here because the net package
	// uses the system clock when evaluating deadlines.
	if err := nc.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, fmt.Errorf("set read deadline: %s", err)
	}
	return ReadMessage(nc, limit)
}

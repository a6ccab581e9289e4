package channel

import (
	"encoding/binary"
	"errors"
	"io"

	"github.com/wiregate-web/wiregate/wire"
)

type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

var (
	ErrFrameTooLarge   = errors.New("channel: frame exceeds the allowed size")
	ErrMessageTooLarge = errors.New("channel: assembled message exceeds the allowed size")
	ErrUnmaskedFrame   = errors.New("channel: client frame is not masked")
	ErrBadFragment     = errors.New("channel: unexpected continuation frame")
	errControlTooLong  = errors.New("channel: control frame payload exceeds 125 bytes")
)

// Frame is one wire frame with its payload unmasked.
type Frame struct {
	Opcode  Opcode
	Final   bool
	Payload []byte
}

func (f Frame) IsControl() bool {
	return f.Opcode >= OpClose
}

// ReadFrame reads and unmasks a single client frame.
func ReadFrame(r io.Reader, maxSize int64) (Frame, error) {
	var header [2]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return Frame{}, err
	}

	frame := Frame{
		Opcode: Opcode(header[0] & 0x0F),
		Final:  header[0]&0x80 != 0,
	}

	masked := header[1]&0x80 != 0
	if !masked {
		// client-to-server frames must be masked per the upgrade convention
		return Frame{}, ErrUnmaskedFrame
	}

	length := int64(header[1] & 0x7F)
	switch length {
	case 126:
		var ext [2]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = int64(binary.BigEndian.Uint16(ext[:]))
	case 127:
		var ext [8]byte
		if _, err := io.ReadFull(r, ext[:]); err != nil {
			return Frame{}, err
		}
		length = int64(binary.BigEndian.Uint64(ext[:]))
	}

	if length > maxSize || length < 0 {
		return Frame{}, ErrFrameTooLarge
	}

	var mask [4]byte
	if _, err := io.ReadFull(r, mask[:]); err != nil {
		return Frame{}, err
	}

	frame.Payload = make([]byte, length)
	if _, err := io.ReadFull(r, frame.Payload); err != nil {
		return Frame{}, err
	}

	for i := range frame.Payload {
		frame.Payload[i] ^= mask[i%4]
	}

	return frame, nil
}

// Assembler merges fragmented data frames into one logical message. Control
// frames arriving between fragments are returned as-is, so the caller can
// answer pings without losing the pending fragments. Max bounds the assembled
// payload across fragments; zero means unbounded.
type Assembler struct {
	Max int64

	pending []byte
	opcode  Opcode
}

func (a *Assembler) Feed(frame Frame) (Frame, bool, error) {
	if frame.IsControl() {
		if len(frame.Payload) > 125 {
			return Frame{}, false, errControlTooLong
		}

		return frame, true, nil
	}

	// per-frame reads are bounded elsewhere; fragments still have to be
	// bounded here, or small non-final frames assemble past any limit
	if a.Max > 0 && int64(len(a.pending))+int64(len(frame.Payload)) > a.Max {
		return Frame{}, false, ErrMessageTooLarge
	}

	switch frame.Opcode {
	case OpContinuation:
		if a.opcode == 0 {
			return Frame{}, false, ErrBadFragment
		}

		a.pending = append(a.pending, frame.Payload...)
	case OpText, OpBinary:
		if a.opcode != 0 {
			return Frame{}, false, ErrBadFragment
		}

		a.opcode = frame.Opcode
		a.pending = append(a.pending, frame.Payload...)
	}

	if !frame.Final {
		return Frame{}, false, nil
	}

	complete := Frame{Opcode: a.opcode, Final: true, Payload: a.pending}
	a.pending = nil
	a.opcode = 0

	return complete, true, nil
}

// WriteFrame writes one unmasked server frame.
func WriteFrame(w wire.Writer, opcode Opcode, payload []byte) error {
	header := make([]byte, 2, 10)
	header[0] = 0x80 | byte(opcode)

	switch {
	case len(payload) < 126:
		header[1] = byte(len(payload))
	case len(payload) <= 0xFFFF:
		header[1] = 126
		header = binary.BigEndian.AppendUint16(header, uint16(len(payload)))
	default:
		header[1] = 127
		header = binary.BigEndian.AppendUint64(header, uint64(len(payload)))
	}

	if err := w.Write(header); err != nil {
		return err
	}

	return w.Write(payload)
}

// CloseCode extracts the close code from a close frame payload, falling back to
// the given default when the peer sent none.
func CloseCode(payload []byte, fallback uint16) uint16 {
	if len(payload) < 2 {
		return fallback
	}

	return binary.BigEndian.Uint16(payload)
}

// ClosePayload renders a close code into a close frame payload.
func ClosePayload(code uint16) []byte {
	return binary.BigEndian.AppendUint16(nil, code)
}

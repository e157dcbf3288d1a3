// Copyright (c) 2025 Bob Vawter (bob@vawter.org)
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
// SOFTWARE.
//
// SPDX-License-Identifier: MIT

// Package mux implements the RFCOMM multiplexer control-channel command
// codec described in GSM 07.10 section 5.4.6 and the Bluetooth RFCOMM
// specification. Commands are the payloads exchanged over DLCI 0 inside
// UIH frames; the frame layer itself is out of scope.
package mux

import (
	"fmt"
	"io"
	"log/slog"
)

// Each command starts with a type octet:
//
//	bit 0: EA, always 1 for a single-octet type field
//	bit 1: C/R, set for commands, clear for responses
//	bits 2..7: the command type tag
const (
	eaBit    = 0b00000001
	crBit    = 0b00000010
	typeMask = 0b11111100
)

// A CommandType is a multiplexer command type tag, stored pre-shifted
// into the high six bits of the type octet.
type CommandType uint8

const (
	TypeParameterNegotiation  CommandType = 0b10000000
	TypeTest                  CommandType = 0b00100000
	TypeFlowControlOn         CommandType = 0b10100000
	TypeFlowControlOff        CommandType = 0b01100000
	TypeModemStatus           CommandType = 0b11100000
	TypeNotSupported          CommandType = 0b00010000
	TypeRemotePortNegotiation CommandType = 0b10010000
	TypeRemoteLineStatus      CommandType = 0b01010000
)

func (t CommandType) String() string {
	switch t {
	case TypeParameterNegotiation:
		return "ParameterNegotiation"
	case TypeTest:
		return "Test"
	case TypeFlowControlOn:
		return "FlowControlOn"
	case TypeFlowControlOff:
		return "FlowControlOff"
	case TypeModemStatus:
		return "ModemStatus"
	case TypeNotSupported:
		return "NotSupported"
	case TypeRemotePortNegotiation:
		return "RemotePortNegotiation"
	case TypeRemoteLineStatus:
		return "RemoteLineStatus"
	default:
		return fmt.Sprintf("unknown (%#02x)", uint8(t))
	}
}

// A Role is the C/R bit carried inside a multiplexer command. It is
// independent of any C/R bit on an enclosing frame.
type Role uint8

const (
	RoleResponse Role = iota
	RoleCommand
)

func (r Role) String() string {
	if r == RoleCommand {
		return "command"
	}
	return "response"
}

func (r Role) crBit() byte {
	if r == RoleCommand {
		return crBit
	}
	return 0
}

// A DLCI is a six-bit data link connection identifier.
type DLCI uint8

// MaxDLCI is the largest identifier assignable to a data link
// connection.
const MaxDLCI DLCI = 61

// A Command is a single multiplexer control-channel command. All
// implementations are immutable after construction and safe for
// concurrent use.
type Command interface {
	fmt.Stringer
	slog.LogValuer

	// WriteTo implements [io.WriterTo].
	WriteTo(out io.Writer) (int64, error)

	// Type returns the command's type tag.
	Type() CommandType

	// Role returns the command's own C/R setting.
	Role() Role

	// EncodedLen returns the exact number of bytes Encode will write.
	EncodedLen() int

	// Encode writes the wire form of the command to the front of dst.
	// It fails with [ErrBufferTooSmall] if len(dst) < EncodedLen.
	Encode(dst []byte) error

	isCommand()
}

// header carries the C/R setting common to every command.
type header struct {
	role Role
}

func (h header) Role() Role { return h.role }
func (h header) isCommand() {}

func writeTo(out io.Writer, cmd Command) (int64, error) {
	buf := make([]byte, cmd.EncodedLen())
	if err := cmd.Encode(buf); err != nil {
		return 0, err
	}
	count, err := out.Write(buf)
	return int64(count), err
}

// Parse interprets the input as a single multiplexer command. The
// buffer must contain the complete command; trailing bytes are
// ignored. Either a fully valid command is returned or an error from
// the taxonomy in errors.go; no partially constructed command is ever
// produced.
func Parse(buf []byte) (Command, error) {
	if len(buf) < 2 {
		return nil, fmt.Errorf("%w: need at least 2 octets, have %d", ErrBufferTooShort, len(buf))
	}

	role := RoleResponse
	if buf[0]&crBit != 0 {
		role = RoleCommand
	}
	typ := CommandType(buf[0] & typeMask)

	length, consumed, err := DecodeLength(buf[1:])
	if err != nil {
		return nil, err
	}
	if uint64(len(buf)) < 1+uint64(consumed)+length {
		return nil, fmt.Errorf("%w: declared length %d exceeds buffer", ErrBufferTooShort, length)
	}
	payload := buf[1+consumed : 1+consumed+int(length)]

	switch typ {
	case TypeParameterNegotiation:
		if length != parameterNegotiationLen {
			return nil, lengthError(typ, length)
		}
		return parseParameterNegotiation(role, payload), nil

	case TypeTest:
		// Any pattern length is valid, including zero.
		return NewTest(role, payload), nil

	case TypeFlowControlOn:
		if length != 0 {
			return nil, lengthError(typ, length)
		}
		return NewFlowControlOn(role), nil

	case TypeFlowControlOff:
		if length != 0 {
			return nil, lengthError(typ, length)
		}
		return NewFlowControlOff(role), nil

	case TypeModemStatus:
		if length != modemStatusLen && length != modemStatusBreakLen {
			return nil, lengthError(typ, length)
		}
		return parseModemStatus(role, payload), nil

	case TypeNotSupported:
		if length != notSupportedLen {
			return nil, lengthError(typ, length)
		}
		return parseNotSupported(payload), nil

	default:
		// RemotePortNegotiation and RemoteLineStatus fall through here
		// as well: they are valid tags that this codec does not
		// implement.
		return nil, &UnrecognizedTypeError{Octet: buf[0]}
	}
}

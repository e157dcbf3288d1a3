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

package mux

import (
	"bytes"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// These byte sequences are taken from the GSM 07.10 examples and
// cross-checked against another RFCOMM implementation.
func TestWireVectors(t *testing.T) {
	tcs := []struct {
		Cmd   Command
		Bytes []byte
	}{
		{
			Cmd:   NewTest(RoleCommand, []byte("fuchsia")),
			Bytes: []byte{0b00100011, 0b00001111, 'f', 'u', 'c', 'h', 's', 'i', 'a'},
		},
		{
			Cmd:   NewFlowControlOn(RoleResponse),
			Bytes: []byte{0b10100001, 0b00000001},
		},
		{
			Cmd:   NewFlowControlOff(RoleCommand),
			Bytes: []byte{0b01100011, 0b00000001},
		},
		{
			Cmd: NewModemStatusWithBreak(RoleCommand, 0x23, Signals{
				FlowControl:    true,
				ReadyToReceive: true,
				DataValid:      true,
			}, 0b1010),
			Bytes: []byte{0b11100011, 0b00000111, 0b10001111, 0b10001010, 0b10100011},
		},
		{
			Cmd: NewModemStatus(RoleResponse, 5, Signals{
				ReadyToCommunicate: true,
				ReadyToReceive:     true,
			}),
			Bytes: []byte{0b11100001, 0b00000101, 0b00010111, 0b00001101},
		},
		{
			Cmd:   NewNotSupported(RoleResponse, 0b00101001),
			Bytes: []byte{0b00010001, 0b00000011, 0b10100101},
		},
		{
			Cmd:   NewParameterNegotiation(RoleResponse, 61, CreditFlowResponse, 63, 0x1234, 7),
			Bytes: []byte{0b10000001, 0b00010001, 0b00111101, 0xE0, 63, 0, 0x34, 0x12, 0, 7},
		},
		{
			Cmd:   NewTest(RoleResponse, []byte{}),
			Bytes: []byte{0b00100001, 0b00000001},
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Cmd.String(), func(t *testing.T) {
			a := assert.New(t)
			r := require.New(t)

			r.Equal(len(tc.Bytes), tc.Cmd.EncodedLen())

			// An exactly sized buffer always succeeds.
			buf := make([]byte, tc.Cmd.EncodedLen())
			r.NoError(tc.Cmd.Encode(buf))
			r.Equal(tc.Bytes, buf)

			// One byte shorter always fails.
			r.ErrorIs(tc.Cmd.Encode(buf[:len(buf)-1]), ErrBufferTooSmall)

			// Encode only touches the first EncodedLen bytes.
			padded := make([]byte, len(tc.Bytes)+4)
			for i := range padded {
				padded[i] = 0xAA
			}
			r.NoError(tc.Cmd.Encode(padded))
			a.Equal(tc.Bytes, padded[:len(tc.Bytes)])
			a.Equal([]byte{0xAA, 0xAA, 0xAA, 0xAA}, padded[len(tc.Bytes):])

			parsed, err := Parse(tc.Bytes)
			r.NoError(err)
			r.Equal(tc.Cmd, parsed)

			var sink bytes.Buffer
			count, err := tc.Cmd.WriteTo(&sink)
			r.NoError(err)
			a.Equal(int64(len(tc.Bytes)), count)
			a.Equal(tc.Bytes, sink.Bytes())
		})
	}
}

func TestParseModemStatusFields(t *testing.T) {
	r := require.New(t)

	parsed, err := Parse([]byte{0b11100011, 0b00000111, 0b10001111, 0b10001010, 0b10100011})
	r.NoError(err)

	ms, ok := parsed.(*ModemStatus)
	r.True(ok)
	r.Equal(RoleCommand, ms.Role())
	r.Equal(DLCI(0x23), ms.DLCI())
	r.Equal(Signals{
		FlowControl:    true,
		ReadyToReceive: true,
		DataValid:      true,
	}, ms.Signals())

	value, ok := ms.BreakValue()
	r.True(ok)
	r.Equal(uint8(0b1010), value)
}

// A three-octet ModemStatus whose break octet has the break flag bit
// clear carries no break signal; both conditions are required.
func TestModemStatusBreakFlag(t *testing.T) {
	r := require.New(t)

	parsed, err := Parse([]byte{0b11100011, 0b00000111, 0b10001111, 0b10001010, 0b10100001})
	r.NoError(err)

	ms, ok := parsed.(*ModemStatus)
	r.True(ok)
	_, hasBreak := ms.BreakValue()
	r.False(hasBreak)
}

// The handshake nibble of a parameter negotiation is passed through
// without validating membership in the three known values. This pins
// the current leniency so any future tightening is deliberate.
func TestCreditFlowLeniency(t *testing.T) {
	r := require.New(t)

	buf := []byte{0b10000011, 0b00010001, 5, 0x70, 0, 0, 127, 0, 0, 0}
	parsed, err := Parse(buf)
	r.NoError(err)

	pn, ok := parsed.(*ParameterNegotiation)
	r.True(ok)
	r.Equal(CreditFlow(0x7), pn.CreditFlow())

	// The unknown nibble survives a round trip.
	enc := make([]byte, pn.EncodedLen())
	r.NoError(pn.Encode(enc))
	r.Equal(buf, enc)
}

func TestParseErrors(t *testing.T) {
	tcs := []struct {
		Name string
		Buf  []byte
		Err  error
	}{
		{Name: "empty", Buf: nil, Err: ErrBufferTooShort},
		{Name: "header only", Buf: []byte{0b00100011}, Err: ErrBufferTooShort},
		{Name: "unterminated length", Buf: []byte{0b00100011, 0b00000010}, Err: ErrBufferTooShort},
		{
			Name: "truncated payload",
			Buf:  []byte{0b00100011, 0b00001111, 'f', 'u'},
			Err:  ErrBufferTooShort,
		},
		{
			Name: "length field too wide",
			Buf: []byte{
				0b00100011,
				0b10, 0b10, 0b10, 0b10, 0b10, 0b10, 0b10, 0b10, 0b10, 0b10, 0b11,
			},
			Err: ErrLengthTooLarge,
		},
		{
			Name: "flow control on with payload",
			Buf:  []byte{0b10100011, 0b00000011, 0xFF},
			Err:  ErrInvalidLength,
		},
		{
			Name: "flow control off with payload",
			Buf:  []byte{0b01100011, 0b00000011, 0xFF},
			Err:  ErrInvalidLength,
		},
		{
			Name: "modem status undersized",
			Buf:  []byte{0b11100011, 0b00000011, 0xFF},
			Err:  ErrInvalidLength,
		},
		{
			Name: "modem status oversized",
			Buf:  []byte{0b11100011, 0b00001001, 1, 2, 3, 4},
			Err:  ErrInvalidLength,
		},
		{
			Name: "parameter negotiation short",
			Buf:  []byte{0b10000011, 0b00001111, 1, 2, 3, 4, 5, 6, 7},
			Err:  ErrInvalidLength,
		},
		{
			Name: "not supported oversized",
			Buf:  []byte{0b00010001, 0b00000101, 1, 2},
			Err:  ErrInvalidLength,
		},
		{
			Name: "remote port negotiation",
			Buf:  []byte{0b10010011, 0b00000001},
			Err:  ErrUnrecognizedType,
		},
		{
			Name: "remote line status",
			Buf:  []byte{0b01010011, 0b00000001},
			Err:  ErrUnrecognizedType,
		},
		{
			Name: "unknown tag",
			Buf:  []byte{0b11111101, 0b00000001},
			Err:  ErrUnrecognizedType,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			r := require.New(t)

			parsed, err := Parse(tc.Buf)
			r.ErrorIs(err, tc.Err)
			r.Nil(parsed)
		})
	}
}

func TestUnrecognizedTypeDetails(t *testing.T) {
	r := require.New(t)

	_, err := Parse([]byte{0b10010011, 0b00000001})
	typeErr := (*UnrecognizedTypeError)(nil)
	r.ErrorAs(err, &typeErr)
	r.Equal(RoleCommand, typeErr.Role())
	r.Equal(byte(0b100100), typeErr.Tag())

	// The details are exactly what an NSC reply needs.
	nsc := NewNotSupported(typeErr.Role(), typeErr.Tag())
	r.Equal(TypeRemotePortNegotiation, CommandType(nsc.RejectedTag()<<2))
}

func TestRoleFromHeader(t *testing.T) {
	tcs := []struct {
		Octet byte
		Role  Role
	}{
		{Octet: 0b00100011, Role: RoleCommand},
		{Octet: 0b00100001, Role: RoleResponse},
	}

	for idx, tc := range tcs {
		t.Run(fmt.Sprintf("%d", idx), func(t *testing.T) {
			r := require.New(t)

			parsed, err := Parse([]byte{tc.Octet, 0b00000001})
			r.NoError(err)
			r.Equal(tc.Role, parsed.Role())
			r.Equal(TypeTest, parsed.Type())
		})
	}
}

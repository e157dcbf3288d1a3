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
	"bufio"
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"
)

// The wire format is self-delimiting, so back-to-back commands on a
// stream must come apart cleanly.
func TestReadCommandStream(t *testing.T) {
	r := require.New(t)

	cmds := []Command{
		NewTest(RoleCommand, []byte("fuchsia")),
		NewFlowControlOff(RoleCommand),
		NewModemStatusWithBreak(RoleResponse, 7, Signals{DataValid: true}, 3),
		NewParameterNegotiation(RoleCommand, 2, CreditFlowRequest, 0, 127, 7),
		NewNotSupported(RoleCommand, 0b100100),
	}

	var stream bytes.Buffer
	for _, cmd := range cmds {
		_, err := cmd.WriteTo(&stream)
		r.NoError(err)
	}

	in := bufio.NewReader(&stream)
	for _, want := range cmds {
		got, err := ReadCommand(in)
		r.NoError(err)
		r.Equal(want, got)
	}

	_, err := ReadCommand(in)
	r.ErrorIs(err, io.EOF)
}

func TestReadCommandErrors(t *testing.T) {
	tcs := []struct {
		Name string
		Buf  []byte
		Err  error
	}{
		{Name: "empty", Buf: nil, Err: io.EOF},
		{Name: "header only", Buf: []byte{0b00100011}, Err: io.EOF},
		{
			Name: "truncated payload",
			Buf:  []byte{0b00100011, 0b00001111, 'f', 'u'},
			Err:  io.ErrUnexpectedEOF,
		},
		{
			// The declared length crosses the stream cap long before
			// the peer could deliver the payload.
			Name: "hostile length",
			Buf:  []byte{0b00100011, 0b00000000, 0b00000000, 0b00001011},
			Err:  ErrLengthTooLarge,
		},
		{
			Name: "unrecognized type",
			Buf:  []byte{0b10010011, 0b00000001},
			Err:  ErrUnrecognizedType,
		},
	}

	for _, tc := range tcs {
		t.Run(tc.Name, func(t *testing.T) {
			_, err := ReadCommand(bufio.NewReader(bytes.NewReader(tc.Buf)))
			require.ErrorIs(t, err, tc.Err)
		})
	}
}

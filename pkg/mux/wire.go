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
	"fmt"
	"io"
)

// maxStreamLength bounds the payload size ReadCommand will buffer from
// a stream, keeping a hostile peer from declaring an enormous length.
const maxStreamLength = 1 << 16

// ReadCommand reads a single multiplexer command from the stream. The
// wire format is self-delimiting: a type octet, an EA-terminated
// length field, then exactly that many payload octets.
func ReadCommand(in *bufio.Reader) (Command, error) {
	buf := make([]byte, 0, 8)

	b, err := in.ReadByte()
	if err != nil {
		return nil, err
	}
	buf = append(buf, b)

	var length uint64
	for i := 0; ; i++ {
		if i >= maxLengthOctets {
			return nil, fmt.Errorf("%w: more than %d octets", ErrLengthTooLarge, maxLengthOctets)
		}
		b, err := in.ReadByte()
		if err != nil {
			return nil, err
		}
		buf = append(buf, b)
		length |= uint64(b>>1) << (7 * i)
		if b&eaBit != 0 {
			break
		}
	}
	if length > maxStreamLength {
		return nil, fmt.Errorf("%w: %d octet payload", ErrLengthTooLarge, length)
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(in, payload); err != nil {
		return nil, err
	}
	return Parse(append(buf, payload...))
}

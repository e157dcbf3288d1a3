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
	"errors"
	"fmt"
)

var (
	// ErrBufferTooShort indicates an input shorter than the two-octet
	// header or shorter than the header plus its declared length.
	ErrBufferTooShort = errors.New("buffer too short")

	// ErrBufferTooSmall indicates an Encode destination smaller than
	// the command's EncodedLen.
	ErrBufferTooSmall = errors.New("destination buffer too small")

	// ErrLengthTooLarge indicates a length field too wide to represent.
	ErrLengthTooLarge = errors.New("encoded length field too large")

	// ErrInvalidLength indicates a decoded length that does not match
	// the fixed length mandated for the command's type.
	ErrInvalidLength = errors.New("invalid length for command type")

	// ErrUnrecognizedType indicates a type tag that does not match any
	// command this codec implements.
	ErrUnrecognizedType = errors.New("unrecognized command type")
)

func lengthError(typ CommandType, length uint64) error {
	return fmt.Errorf("%w %s: %d", ErrInvalidLength, typ, length)
}

// An UnrecognizedTypeError reports an unknown or unimplemented type
// octet. The raw octet is retained so that callers can synthesize a
// NonSupportedCommandResponse for the rejected command.
type UnrecognizedTypeError struct {
	Octet byte
}

// Tag returns the six-bit type tag of the rejected command.
func (e *UnrecognizedTypeError) Tag() byte {
	return e.Octet >> 2
}

// Role returns the C/R setting of the rejected command.
func (e *UnrecognizedTypeError) Role() Role {
	if e.Octet&crBit != 0 {
		return RoleCommand
	}
	return RoleResponse
}

func (e *UnrecognizedTypeError) Error() string {
	return fmt.Sprintf("unrecognized command type %#02x", e.Octet&typeMask)
}

func (e *UnrecognizedTypeError) Unwrap() error { return ErrUnrecognizedType }

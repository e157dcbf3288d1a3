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
	"io"
	"log/slog"
)

// A Test command carries an arbitrary pattern that the peer echoes
// back, verifying the control channel end to end.
type Test struct {
	header
	pattern []byte
}

var _ Command = (*Test)(nil)

// NewTest constructs a Test command. The pattern is copied.
func NewTest(role Role, pattern []byte) *Test {
	return &Test{header{role}, bytes.Clone(pattern)}
}

// Pattern returns the test pattern. The returned slice should not be
// modified by callers.
func (t *Test) Pattern() []byte { return t.pattern }

func (t *Test) Type() CommandType { return TypeTest }

func (t *Test) EncodedLen() int {
	return 1 + LengthOctets(uint64(len(t.pattern))) + len(t.pattern)
}

func (t *Test) Encode(dst []byte) error {
	if len(dst) < t.EncodedLen() {
		return fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, t.EncodedLen(), len(dst))
	}
	dst[0] = byte(TypeTest) | t.role.crBit() | eaBit
	next := AppendLength(dst[1:1], uint64(len(t.pattern)))
	copy(dst[1+len(next):], t.pattern)
	return nil
}

func (t *Test) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("type", t.Type()),
		slog.Any("role", t.role),
		slog.Int("pattern", len(t.pattern)),
	)
}

func (t *Test) String() string {
	return fmt.Sprintf("Test %s pattern=%q", t.role, t.pattern)
}

func (t *Test) WriteTo(out io.Writer) (int64, error) { return writeTo(out, t) }

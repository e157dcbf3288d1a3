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
	"fmt"
	"io"
	"log/slog"
)

// FlowControlOn asks the peer to resume transmission on all channels
// at once. It carries no payload beyond its own C/R setting.
type FlowControlOn struct {
	header
}

// FlowControlOff asks the peer to stop transmission on all channels at
// once. It carries no payload beyond its own C/R setting.
type FlowControlOff struct {
	header
}

var (
	_ Command = (*FlowControlOn)(nil)
	_ Command = (*FlowControlOff)(nil)
)

// NewFlowControlOn constructs a FlowControlOn command.
func NewFlowControlOn(role Role) *FlowControlOn {
	return &FlowControlOn{header{role}}
}

// NewFlowControlOff constructs a FlowControlOff command.
func NewFlowControlOff(role Role) *FlowControlOff {
	return &FlowControlOff{header{role}}
}

func encodeEmpty(dst []byte, typ CommandType, role Role) error {
	if len(dst) < 2 {
		return fmt.Errorf("%w: need 2, have %d", ErrBufferTooSmall, len(dst))
	}
	dst[0] = byte(typ) | role.crBit() | eaBit
	dst[1] = eaBit // Zero-length payload.
	return nil
}

func (f *FlowControlOn) Type() CommandType { return TypeFlowControlOn }
func (f *FlowControlOn) EncodedLen() int   { return 2 }

func (f *FlowControlOn) Encode(dst []byte) error {
	return encodeEmpty(dst, TypeFlowControlOn, f.role)
}

func (f *FlowControlOn) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("type", f.Type()),
		slog.Any("role", f.role),
	)
}

func (f *FlowControlOn) String() string {
	return fmt.Sprintf("FlowControlOn %s", f.role)
}

func (f *FlowControlOn) WriteTo(out io.Writer) (int64, error) { return writeTo(out, f) }

func (f *FlowControlOff) Type() CommandType { return TypeFlowControlOff }
func (f *FlowControlOff) EncodedLen() int   { return 2 }

func (f *FlowControlOff) Encode(dst []byte) error {
	return encodeEmpty(dst, TypeFlowControlOff, f.role)
}

func (f *FlowControlOff) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("type", f.Type()),
		slog.Any("role", f.role),
	)
}

func (f *FlowControlOff) String() string {
	return fmt.Sprintf("FlowControlOff %s", f.role)
}

func (f *FlowControlOff) WriteTo(out io.Writer) (int64, error) { return writeTo(out, f) }

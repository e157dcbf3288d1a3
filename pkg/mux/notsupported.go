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

const notSupportedLen = 1

// A NotSupported response rejects a command whose type the sender does
// not implement. It is always a response; the C/R setting and type tag
// it carries describe the rejected command.
type NotSupported struct {
	header
	rejectedRole Role
	rejectedTag  byte
}

var _ Command = (*NotSupported)(nil)

// NewNotSupported constructs a NotSupported response for a command
// with the given C/R setting and six-bit type tag.
func NewNotSupported(rejectedRole Role, rejectedTag byte) *NotSupported {
	return &NotSupported{
		header:       header{RoleResponse},
		rejectedRole: rejectedRole,
		rejectedTag:  rejectedTag & 0b00111111,
	}
}

func parseNotSupported(payload []byte) *NotSupported {
	rejectedRole := RoleResponse
	if payload[0]&0b00000010 != 0 {
		rejectedRole = RoleCommand
	}
	return NewNotSupported(rejectedRole, payload[0]>>2)
}

// RejectedRole returns the C/R setting of the rejected command.
func (n *NotSupported) RejectedRole() Role { return n.rejectedRole }

// RejectedTag returns the six-bit type tag of the rejected command.
func (n *NotSupported) RejectedTag() byte { return n.rejectedTag }

func (n *NotSupported) Type() CommandType { return TypeNotSupported }

func (n *NotSupported) EncodedLen() int { return 2 + notSupportedLen }

func (n *NotSupported) Encode(dst []byte) error {
	if len(dst) < n.EncodedLen() {
		return fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, n.EncodedLen(), len(dst))
	}
	dst[0] = byte(TypeNotSupported) | n.role.crBit() | eaBit
	dst[1] = notSupportedLen<<1 | eaBit
	var rejected byte
	if n.rejectedRole == RoleCommand {
		rejected = 0b00000010
	}
	dst[2] = eaBit | rejected | n.rejectedTag<<2
	return nil
}

func (n *NotSupported) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("type", n.Type()),
		slog.Any("role", n.role),
		slog.Any("rejectedRole", n.rejectedRole),
		slog.Any("rejectedTag", CommandType(n.rejectedTag<<2)),
	)
}

func (n *NotSupported) String() string {
	return fmt.Sprintf("NotSupported response rejecting %s %s",
		CommandType(n.rejectedTag<<2), n.rejectedRole)
}

func (n *NotSupported) WriteTo(out io.Writer) (int64, error) { return writeTo(out, n) }

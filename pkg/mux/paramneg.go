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
	"encoding/binary"
	"fmt"
	"io"
	"log/slog"
)

const parameterNegotiationLen = 8

// CreditFlow is the credit-based flow control handshake field of a
// parameter negotiation. The encoding is non-contiguous per GSM: a
// request is 0xF and its matching response is 0xE.
type CreditFlow uint8

const (
	CreditFlowUnsupported CreditFlow = 0x0
	CreditFlowRequest     CreditFlow = 0xF
	CreditFlowResponse    CreditFlow = 0xE
)

func (c CreditFlow) String() string {
	switch c {
	case CreditFlowUnsupported:
		return "unsupported"
	case CreditFlowRequest:
		return "request"
	case CreditFlowResponse:
		return "response"
	default:
		return fmt.Sprintf("unknown (%#x)", uint8(c))
	}
}

// A ParameterNegotiation command proposes or confirms the parameters
// of a DLC before it is opened.
type ParameterNegotiation struct {
	header
	dlci           DLCI
	creditFlow     CreditFlow
	priority       uint8
	maxFrameSize   uint16
	initialCredits uint8
}

var _ Command = (*ParameterNegotiation)(nil)

// NewParameterNegotiation constructs a ParameterNegotiation command.
// The priority is limited to six bits and the initial credit count to
// three.
func NewParameterNegotiation(
	role Role, dlci DLCI, creditFlow CreditFlow,
	priority uint8, maxFrameSize uint16, initialCredits uint8,
) *ParameterNegotiation {
	if priority > 0b00111111 {
		panic("priority out of range")
	}
	if initialCredits > 0b00000111 {
		panic("initial credits out of range")
	}
	return &ParameterNegotiation{
		header:         header{role},
		dlci:           dlci,
		creditFlow:     creditFlow,
		priority:       priority,
		maxFrameSize:   maxFrameSize,
		initialCredits: initialCredits,
	}
}

func parseParameterNegotiation(role Role, payload []byte) *ParameterNegotiation {
	return &ParameterNegotiation{
		header: header{role},
		dlci:   DLCI(payload[0] & 0b00111111),
		// The handshake nibble is accepted without checking membership
		// in the three known values; GSM does not say how to react to
		// others and peers have been observed sending them.
		creditFlow:     CreditFlow(payload[1] >> 4),
		priority:       payload[2] & 0b00111111,
		maxFrameSize:   binary.LittleEndian.Uint16(payload[4:6]),
		initialCredits: payload[7] & 0b00000111,
	}
}

// CreditFlow returns the credit-based flow control handshake field.
func (p *ParameterNegotiation) CreditFlow() CreditFlow { return p.creditFlow }

// DLCI returns the channel being negotiated.
func (p *ParameterNegotiation) DLCI() DLCI { return p.dlci }

// InitialCredits returns the initial credit count, 0 through 7.
func (p *ParameterNegotiation) InitialCredits() uint8 { return p.initialCredits }

// MaxFrameSize returns the negotiated maximum frame size.
func (p *ParameterNegotiation) MaxFrameSize() uint16 { return p.maxFrameSize }

// Priority returns the channel priority, 0 through 63.
func (p *ParameterNegotiation) Priority() uint8 { return p.priority }

func (p *ParameterNegotiation) Type() CommandType { return TypeParameterNegotiation }

func (p *ParameterNegotiation) EncodedLen() int { return 2 + parameterNegotiationLen }

func (p *ParameterNegotiation) Encode(dst []byte) error {
	if len(dst) < p.EncodedLen() {
		return fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, p.EncodedLen(), len(dst))
	}
	dst[0] = byte(TypeParameterNegotiation) | p.role.crBit() | eaBit
	dst[1] = parameterNegotiationLen<<1 | eaBit
	dst[2] = byte(p.dlci) & 0b00111111
	dst[3] = byte(p.creditFlow) << 4
	dst[4] = p.priority & 0b00111111
	dst[5] = 0 // Reserved.
	binary.LittleEndian.PutUint16(dst[6:8], p.maxFrameSize)
	dst[8] = 0 // Reserved.
	dst[9] = p.initialCredits & 0b00000111
	return nil
}

func (p *ParameterNegotiation) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Any("type", p.Type()),
		slog.Any("role", p.role),
		slog.Int("dlci", int(p.dlci)),
		slog.Any("creditFlow", p.creditFlow),
		slog.Int("priority", int(p.priority)),
		slog.Int("maxFrameSize", int(p.maxFrameSize)),
		slog.Int("initialCredits", int(p.initialCredits)),
	)
}

func (p *ParameterNegotiation) String() string {
	return fmt.Sprintf("ParameterNegotiation %s dlci=%d flow=%s priority=%d frame=%d credits=%d",
		p.role, p.dlci, p.creditFlow, p.priority, p.maxFrameSize, p.initialCredits)
}

func (p *ParameterNegotiation) WriteTo(out io.Writer) (int64, error) { return writeTo(out, p) }

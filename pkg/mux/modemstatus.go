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

const (
	modemStatusLen      = 2 // Without a break octet.
	modemStatusBreakLen = 3 // With a break octet.

	// MaxBreakValue bounds the four-bit break interval of a
	// ModemStatus command.
	MaxBreakValue = 15
)

// Signals are the V.24 signal bits carried by a ModemStatus command.
type Signals struct {
	FlowControl        bool
	ReadyToCommunicate bool
	ReadyToReceive     bool
	IncomingCall       bool
	DataValid          bool
}

// A ModemStatus command conveys the V.24 signal state of a single DLC,
// optionally with a break signal.
type ModemStatus struct {
	header
	dlci       DLCI
	signals    Signals
	breakValue uint8
	hasBreak   bool
}

var _ Command = (*ModemStatus)(nil)

// NewModemStatus constructs a ModemStatus command with no break signal.
func NewModemStatus(role Role, dlci DLCI, signals Signals) *ModemStatus {
	return &ModemStatus{header: header{role}, dlci: dlci, signals: signals}
}

// NewModemStatusWithBreak constructs a ModemStatus command carrying a
// break signal. The break value must not exceed [MaxBreakValue].
func NewModemStatusWithBreak(role Role, dlci DLCI, signals Signals, breakValue uint8) *ModemStatus {
	if breakValue > MaxBreakValue {
		panic("break value out of range")
	}
	return &ModemStatus{
		header:     header{role},
		dlci:       dlci,
		signals:    signals,
		breakValue: breakValue,
		hasBreak:   true,
	}
}

func parseModemStatus(role Role, payload []byte) *ModemStatus {
	ret := &ModemStatus{
		header: header{role},
		dlci:   DLCI(payload[0] >> 2),
		signals: Signals{
			FlowControl:        payload[1]&0b00000010 != 0,
			ReadyToCommunicate: payload[1]&0b00000100 != 0,
			ReadyToReceive:     payload[1]&0b00001000 != 0,
			IncomingCall:       payload[1]&0b01000000 != 0,
			DataValid:          payload[1]&0b10000000 != 0,
		},
	}
	// Both the three-octet length and the break flag bit must agree
	// before a break value is accepted.
	if len(payload) == modemStatusBreakLen && payload[2]&0b00000010 != 0 {
		ret.breakValue = payload[2] >> 4
		ret.hasBreak = true
	}
	return ret
}

// BreakValue returns the break interval, if a break signal is present.
func (m *ModemStatus) BreakValue() (uint8, bool) { return m.breakValue, m.hasBreak }

// DLCI returns the channel the status applies to.
func (m *ModemStatus) DLCI() DLCI { return m.dlci }

// Signals returns the V.24 signal bits.
func (m *ModemStatus) Signals() Signals { return m.signals }

func (m *ModemStatus) Type() CommandType { return TypeModemStatus }

func (m *ModemStatus) EncodedLen() int {
	if m.hasBreak {
		return 2 + modemStatusBreakLen
	}
	return 2 + modemStatusLen
}

func (m *ModemStatus) Encode(dst []byte) error {
	if len(dst) < m.EncodedLen() {
		return fmt.Errorf("%w: need %d, have %d", ErrBufferTooSmall, m.EncodedLen(), len(dst))
	}
	dst[0] = byte(TypeModemStatus) | m.role.crBit() | eaBit
	// Bit 1 of the address octet is mandated to be 1.
	dst[2] = eaBit | 0b00000010 | byte(m.dlci)<<2

	// Bit 0 of the signal octet is the EA continuation for the
	// optional break octet, so its polarity is inverted.
	var signals byte
	if !m.hasBreak {
		signals = eaBit
	}
	if m.signals.FlowControl {
		signals |= 0b00000010
	}
	if m.signals.ReadyToCommunicate {
		signals |= 0b00000100
	}
	if m.signals.ReadyToReceive {
		signals |= 0b00001000
	}
	if m.signals.IncomingCall {
		signals |= 0b01000000
	}
	if m.signals.DataValid {
		signals |= 0b10000000
	}
	dst[3] = signals

	if m.hasBreak {
		dst[1] = modemStatusBreakLen<<1 | eaBit
		dst[4] = eaBit | 0b00000010 | m.breakValue<<4
	} else {
		dst[1] = modemStatusLen<<1 | eaBit
	}
	return nil
}

func (m *ModemStatus) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.Any("type", m.Type()),
		slog.Any("role", m.role),
		slog.Int("dlci", int(m.dlci)),
	}
	if m.hasBreak {
		attrs = append(attrs, slog.Int("break", int(m.breakValue)))
	}
	return slog.GroupValue(attrs...)
}

func (m *ModemStatus) String() string {
	if m.hasBreak {
		return fmt.Sprintf("ModemStatus %s dlci=%d signals=%+v break=%d",
			m.role, m.dlci, m.signals, m.breakValue)
	}
	return fmt.Sprintf("ModemStatus %s dlci=%d signals=%+v", m.role, m.dlci, m.signals)
}

func (m *ModemStatus) WriteTo(out io.Writer) (int64, error) { return writeTo(out, m) }

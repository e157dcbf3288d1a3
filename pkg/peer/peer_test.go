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

package peer

import (
	"bufio"
	"log/slog"
	"net"
	"testing"

	"github.com/stretchr/testify/require"
	"vawter.tech/rfmux/internal/muxtest"
	"vawter.tech/rfmux/pkg/channel"
	"vawter.tech/rfmux/pkg/mux"
)

func TestPeerServer(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)
	r := require.New(t)

	ctx := muxtest.NewStopperForTest(t)

	p, err := New(ctx, "127.0.0.1:0")
	r.NoError(err)

	pConn := channel.New(p.Addr().String())

	t.Run("echo", func(t *testing.T) {
		r := require.New(t)
		resp, err := pConn.RoundTrip(ctx, mux.NewTest(mux.RoleCommand, []byte{0xDE, 0xAD}))
		r.NoError(err)
		echo, ok := resp.(*mux.Test)
		r.True(ok)
		r.Equal(mux.RoleResponse, echo.Role())
		r.Equal([]byte{0xDE, 0xAD}, echo.Pattern())
	})

	t.Run("flow", func(t *testing.T) {
		r := require.New(t)

		resp, err := pConn.RoundTrip(ctx, mux.NewFlowControlOff(mux.RoleCommand))
		r.NoError(err)
		r.IsType(&mux.FlowControlOff{}, resp)
		r.True(p.FlowStopped())

		resp, err = pConn.RoundTrip(ctx, mux.NewFlowControlOn(mux.RoleCommand))
		r.NoError(err)
		r.IsType(&mux.FlowControlOn{}, resp)
		r.False(p.FlowStopped())
	})

	t.Run("status", func(t *testing.T) {
		r := require.New(t)

		signals := mux.Signals{DataValid: true, IncomingCall: true}
		resp, err := pConn.RoundTrip(ctx, mux.NewModemStatusWithBreak(mux.RoleCommand, 9, signals, 3))
		r.NoError(err)
		ms, ok := resp.(*mux.ModemStatus)
		r.True(ok)
		r.Equal(signals, ms.Signals())
		value, ok := ms.BreakValue()
		r.True(ok)
		r.Equal(uint8(3), value)

		stored, ok := p.SignalsFor(9)
		r.True(ok)
		r.Equal(signals, stored)
	})

	// An unrecognized type octet draws an NSC and the connection
	// remains usable afterwards.
	t.Run("unrecognized", func(t *testing.T) {
		r := require.New(t)

		raw, err := net.Dial("tcp", p.Addr().String())
		r.NoError(err)
		defer func() { _ = raw.Close() }()

		// A remote-port-negotiation command, which the peer does not
		// implement: type octet, length 1, one value octet.
		_, err = raw.Write([]byte{0b10010011, 0b00000011, 0x00})
		r.NoError(err)

		in := bufio.NewReader(raw)
		resp, err := mux.ReadCommand(in)
		r.NoError(err)
		nsc, ok := resp.(*mux.NotSupported)
		r.True(ok)
		r.Equal(mux.RoleResponse, nsc.Role())
		r.Equal(mux.RoleCommand, nsc.RejectedRole())
		r.Equal(byte(0b100100), nsc.RejectedTag())

		ping := mux.NewTest(mux.RoleCommand, []byte("still here"))
		_, err = ping.WriteTo(raw)
		r.NoError(err)
		resp, err = mux.ReadCommand(in)
		r.NoError(err)
		echo, ok := resp.(*mux.Test)
		r.True(ok)
		r.Equal([]byte("still here"), echo.Pattern())
	})
}

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

package relay

import (
	"context"
	"log/slog"
	"net/netip"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"vawter.tech/notify"
	"vawter.tech/rfmux/pkg/channel"
	"vawter.tech/rfmux/pkg/mux"
	"vawter.tech/rfmux/pkg/peer"
	"vawter.tech/stopper"
)

func TestRelay(t *testing.T) {
	slog.SetLogLoggerLevel(slog.LevelDebug)
	a := assert.New(t)
	r := require.New(t)

	ctx := stopper.WithContext(context.Background())
	defer func() {
		ctx.Stop(100 * time.Millisecond)
		r.NoError(ctx.Wait())
	}()

	// Start a canned peer as the backend.
	backend, err := peer.New(ctx, "127.0.0.1:0")
	r.NoError(err)

	cfg := &Config{
		Bind: netip.AddrFrom4([4]byte{127, 0, 0, 1}),
		Policy: map[netip.Prefix]*Policy{
			netip.PrefixFrom(netip.AddrFrom4([4]byte{127, 0, 0, 1}), 32): {
				AllowDLCIs:   [][2]int{{2, 40}},
				MaxFrameSize: 1024,
				Audit:        true,
			},
		},
		Targets: map[string]*Target{
			backend.Addr().String(): {
				RelayPort: 0,
			},
		},
	}

	relay, err := New(ctx, notify.VarOf(cfg))
	r.NoError(err)

	var through *channel.Conn
	for {
		relay.mu.RLock()
		_, reconfigured := relay.reconfigured.Get()
		bindings := relay.mu.listeners
		relay.mu.RUnlock()

		if len(bindings) == 0 {
			select {
			case <-ctx.Stopping():
				r.Fail("never saw configuration update")
			case <-reconfigured:
				continue
			}
		}

		r.Len(bindings, 1)
		for _, b := range bindings {
			through = channel.New(b.Addr().String())
		}
		break
	}

	// Test commands pass any policy and the backend echoes them.
	resp, err := through.RoundTrip(ctx, mux.NewTest(mux.RoleCommand, []byte("via relay")))
	r.NoError(err)
	if echo, ok := resp.(*mux.Test); a.True(ok) {
		a.Equal([]byte("via relay"), echo.Pattern())
	}

	// A modem status within the allowed DLCI range is relayed.
	signals := mux.Signals{ReadyToCommunicate: true}
	resp, err = through.RoundTrip(ctx, mux.NewModemStatus(mux.RoleCommand, 7, signals))
	r.NoError(err)
	a.IsType(&mux.ModemStatus{}, resp)
	if stored, ok := backend.SignalsFor(7); a.True(ok) {
		a.Equal(signals, stored)
	}

	// DLCI 50 is outside the allowed range; the relay answers with an
	// NSC and the backend never sees the command.
	resp, err = through.RoundTrip(ctx, mux.NewModemStatus(mux.RoleCommand, 50, signals))
	r.NoError(err)
	if nsc, ok := resp.(*mux.NotSupported); a.True(ok) {
		a.Equal(mux.TypeModemStatus, mux.CommandType(nsc.RejectedTag()<<2))
		a.Equal(mux.RoleCommand, nsc.RejectedRole())
	}
	_, ok := backend.SignalsFor(50)
	a.False(ok)

	// Flow control is not enabled by this policy.
	resp, err = through.RoundTrip(ctx, mux.NewFlowControlOff(mux.RoleCommand))
	r.NoError(err)
	a.IsType(&mux.NotSupported{}, resp)
	a.False(backend.FlowStopped())

	// A negotiation above the frame-size cap is denied.
	resp, err = through.RoundTrip(ctx, mux.NewParameterNegotiation(
		mux.RoleCommand, 7, mux.CreditFlowRequest, 0, 4096, 1))
	r.NoError(err)
	a.IsType(&mux.NotSupported{}, resp)

	// Within the cap it is relayed and the backend clamps it.
	resp, err = through.RoundTrip(ctx, mux.NewParameterNegotiation(
		mux.RoleCommand, 7, mux.CreditFlowRequest, 0, 1000, 1))
	r.NoError(err)
	if pn, ok := resp.(*mux.ParameterNegotiation); a.True(ok) {
		a.Equal(uint16(127), pn.MaxFrameSize())
	}
}

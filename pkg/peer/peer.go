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

// Package peer contains a canned control-channel endpoint for testing
// and demo purposes. It reacts to multiplexer commands the way GSM
// 07.10 requires of a peer: test patterns are echoed, flow-control
// toggles are acknowledged, modem status is echoed back, parameter
// negotiation is answered with clamped values, and unrecognized type
// octets draw a NonSupportedCommandResponse.
package peer

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"vawter.tech/rfmux/pkg/mux"
	"vawter.tech/stopper"
)

// The RFCOMM default frame size.
const defaultMaxFrame = 127

// Server implements a canned control-channel peer.
type Server struct {
	listener net.Listener
	maxFrame uint16

	mu struct {
		sync.Mutex
		flowStopped bool
		signals     map[mux.DLCI]mux.Signals
	}
}

// New runs a canned peer within the context.
func New(ctx *stopper.Context, bind string) (*Server, error) {
	listener, err := net.Listen("tcp", bind)
	if err != nil {
		return nil, err
	}
	slog.InfoContext(ctx, "peer listening", slog.Any("address", listener.Addr()))
	ctx.Go(func(ctx *stopper.Context) error {
		<-ctx.Stopping()
		_ = listener.Close()
		slog.InfoContext(ctx, "peer listener closed")
		return nil
	})

	s := &Server{
		listener: listener,
		maxFrame: defaultMaxFrame,
	}
	s.mu.signals = make(map[mux.DLCI]mux.Signals)

	openConns := make(map[net.Conn]struct{})
	var openConnsMu sync.Mutex

	// Unblock reads when the server gets shut down.
	ctx.Go(func(ctx *stopper.Context) error {
		<-ctx.Stopping()
		now := time.UnixMilli(1)
		openConnsMu.Lock()
		for conn := range openConns {
			_ = conn.SetReadDeadline(now)
		}
		openConnsMu.Unlock()
		return nil
	})

	// This is the main accept loop for the server.
	ctx.Go(func(ctx *stopper.Context) error {
		for {
			conn, err := s.listener.Accept()
			if err != nil {
				return nil
			}

			openConnsMu.Lock()
			openConns[conn] = struct{}{}
			openConnsMu.Unlock()

			if !ctx.Go(func(ctx *stopper.Context) error {
				defer func() {
					openConnsMu.Lock()
					delete(openConns, conn)
					openConnsMu.Unlock()
					_ = conn.Close()
				}()
				if err := s.run(ctx, conn); err != nil && !ctx.IsStopping() {
					slog.ErrorContext(ctx, "handler exiting", slog.Any("error", err))
				}
				return nil
			}) {
				slog.DebugContext(ctx, "dropping unaccepted connection")
				_ = conn.Close()
			}
		}
	})
	return s, nil
}

// Addr returns the address to which the server is bound.
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

// FlowStopped reports whether the peer last saw a FlowControlOff.
func (s *Server) FlowStopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mu.flowStopped
}

// SignalsFor returns the last modem status reported for a channel.
func (s *Server) SignalsFor(dlci mux.DLCI) (mux.Signals, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	signals, ok := s.mu.signals[dlci]
	return signals, ok
}

func (s *Server) handle(_ *stopper.Context, cmd mux.Command, out *bufio.Writer) error {
	var resp mux.Command
	switch c := cmd.(type) {
	case *mux.Test:
		resp = mux.NewTest(mux.RoleResponse, c.Pattern())

	case *mux.FlowControlOn:
		s.mu.Lock()
		s.mu.flowStopped = false
		s.mu.Unlock()
		resp = mux.NewFlowControlOn(mux.RoleResponse)

	case *mux.FlowControlOff:
		s.mu.Lock()
		s.mu.flowStopped = true
		s.mu.Unlock()
		resp = mux.NewFlowControlOff(mux.RoleResponse)

	case *mux.ModemStatus:
		s.mu.Lock()
		s.mu.signals[c.DLCI()] = c.Signals()
		s.mu.Unlock()
		// Modem status is acknowledged by echoing it.
		if value, ok := c.BreakValue(); ok {
			resp = mux.NewModemStatusWithBreak(mux.RoleResponse, c.DLCI(), c.Signals(), value)
		} else {
			resp = mux.NewModemStatus(mux.RoleResponse, c.DLCI(), c.Signals())
		}

	case *mux.ParameterNegotiation:
		frame := min(c.MaxFrameSize(), s.maxFrame)
		flow := mux.CreditFlowUnsupported
		credits := uint8(0)
		if c.CreditFlow() == mux.CreditFlowRequest {
			flow = mux.CreditFlowResponse
			credits = c.InitialCredits()
		}
		resp = mux.NewParameterNegotiation(
			mux.RoleResponse, c.DLCI(), flow, c.Priority(), frame, credits)

	default:
		// A NotSupported response from the remote needs no reply.
		return nil
	}
	return reply(out, resp)
}

func (s *Server) run(ctx *stopper.Context, c net.Conn) error {
	in := bufio.NewReader(c)
	out := bufio.NewWriter(c)

	for {
		cmd, err := mux.ReadCommand(in)
		switch {
		case errors.Is(err, io.EOF):
			return nil

		case err != nil:
			// The stream stays aligned on a parse failure because the
			// full command was consumed before parsing.
			typeErr := (*mux.UnrecognizedTypeError)(nil)
			if errors.As(err, &typeErr) {
				if err := reply(out, mux.NewNotSupported(typeErr.Role(), typeErr.Tag())); err != nil {
					return err
				}
				continue
			}
			if errors.Is(err, mux.ErrInvalidLength) {
				slog.DebugContext(ctx, "inbound parse error", slog.Any("error", err))
				continue
			}
			return err
		}

		if cmd.Role() != mux.RoleCommand {
			slog.DebugContext(ctx, "ignoring inbound response", slog.Any("command", cmd))
			continue
		}
		if err := s.handle(ctx, cmd, out); err != nil {
			return err
		}
	}
}

func reply(out *bufio.Writer, resp mux.Command) error {
	if _, err := resp.WriteTo(out); err != nil {
		return err
	}
	return out.Flush()
}

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

// Package relay contains a policy-enforcing relay for control-channel
// byte streams. Clients connect to a per-target listener; each parsed
// command is checked against an address-based policy before being
// round-tripped to the backend endpoint.
package relay

import (
	"bufio"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/netip"
	"sync"
	"time"

	"vawter.tech/notify"
	"vawter.tech/notify/notifyx"
	"vawter.tech/rfmux/pkg/channel"
	"vawter.tech/rfmux/pkg/mux"
	"vawter.tech/stopper"
)

type Relay struct {
	cfg          *notify.Var[*Config]
	reconfigured notify.Var[struct{}] // For testing.

	mu struct {
		sync.RWMutex

		// Network connections to the backend endpoints are conserved
		// across reconfiguration.
		connByHostname map[string]*channel.Conn

		// Network listeners are conserved.
		listeners map[netip.AddrPort]*net.TCPListener

		// Client connections, so shutdown can unblock reads.
		open map[net.Conn]struct{}

		routes map[*net.TCPListener]*listenerRoute
	}
}

type listenerRoute struct {
	mu struct {
		sync.RWMutex

		backend  *channel.Conn
		policies []*orderedPolicy
	}
}

func (r *listenerRoute) get(client netip.Addr) (*channel.Conn, *Policy, bool) {
	r.mu.RLock()
	backend := r.mu.backend
	policies := r.mu.policies
	r.mu.RUnlock()

	for _, policy := range policies {
		if policy.Contains(client) {
			return backend, policy.Policy, true
		}
	}
	return nil, nil, false
}

func New(ctx *stopper.Context, cfg *notify.Var[*Config]) (*Relay, error) {
	r := &Relay{cfg: cfg}
	r.mu.connByHostname = make(map[string]*channel.Conn)
	r.mu.listeners = make(map[netip.AddrPort]*net.TCPListener)
	r.mu.open = make(map[net.Conn]struct{})
	r.mu.routes = make(map[*net.TCPListener]*listenerRoute)

	// Unblock client reads when the relay gets shut down.
	ctx.Go(func(ctx *stopper.Context) error {
		<-ctx.Stopping()
		now := time.UnixMilli(1)
		r.mu.Lock()
		for conn := range r.mu.open {
			_ = conn.SetReadDeadline(now)
		}
		r.mu.Unlock()
		return nil
	})

	ctx.Go(func(ctx *stopper.Context) error {
		_, err := notifyx.DoWhenChanged(ctx, nil, cfg, func(ctx *stopper.Context, _, cfg *Config) error {
			slog.DebugContext(ctx, "updating configuration")
			cfg.expandPolicy()

			r.mu.Lock()
			defer r.mu.Unlock()

			nextConns := make(map[string]*channel.Conn)
			nextListeners := make(map[netip.AddrPort]*net.TCPListener)
			nextRoutes := make(map[*net.TCPListener]*listenerRoute)

			for hostname, target := range cfg.Targets {
				// Find connection from previous generation.
				c := r.mu.connByHostname[hostname]
				if c == nil {
					c = channel.New(hostname)
				}
				nextConns[hostname] = c

				// Find existing listener, or create one.
				addrPort := netip.AddrPortFrom(cfg.Bind, target.RelayPort)
				l := r.mu.listeners[addrPort]
				if l == nil {
					var err error

					l, err = net.ListenTCP("tcp", net.TCPAddrFromAddrPort(addrPort))
					if err != nil {
						slog.ErrorContext(ctx, "could not create listener, not reconfiguring",
							slog.String("hostname", hostname),
							slog.String("addrPort", addrPort.String()),
							slog.Any("error", err))
						return nil
					}
					slog.DebugContext(ctx, "relay listening",
						slog.String("target", hostname),
						slog.Any("relay", l.Addr()))
					r.accept(ctx, l)
				}
				nextListeners[addrPort] = l

				route := r.mu.routes[l]
				if route == nil {
					route = &listenerRoute{}
				}
				nextRoutes[l] = route

				route.mu.Lock()
				route.mu.backend = c
				route.mu.policies = target.ordered
				route.mu.Unlock()

			}

			// Close unreferenced listeners.
			for listenAddr, oldListener := range r.mu.listeners {
				if nextListeners[listenAddr] == nil {
					_ = oldListener.Close()
					slog.DebugContext(ctx, "closing listener due to reconfiguration", "address", listenAddr)
				}
			}

			r.mu.connByHostname = nextConns
			r.mu.listeners = nextListeners
			r.mu.routes = nextRoutes

			r.reconfigured.Notify()
			return nil
		})

		// Context is stopping, close all listeners.
		r.mu.Lock()
		defer r.mu.Unlock()
		for _, listener := range r.mu.listeners {
			_ = listener.Close()
		}

		return err
	})

	return r, nil
}

func (r *Relay) accept(ctx *stopper.Context, listener *net.TCPListener) {
	ctx.Go(func(ctx *stopper.Context) error {
		for {
			tcpConn, err := listener.AcceptTCP()
			if err != nil {
				// Being shut down, just exit.
				return nil
			}

			client := tcpConn.RemoteAddr().(*net.TCPAddr).AddrPort()
			logger := slog.With(
				slog.Any("client", client),
				slog.Any("listener", tcpConn.LocalAddr()))

			// Allow late-binding of policies to reflect configuration
			// file changes.
			router := func() (*channel.Conn, *Policy, bool) {
				return r.policyFor(listener, client.Addr())
			}

			// Immediately drop connections that we cannot route.
			if _, _, ok := router(); !ok {
				logger.DebugContext(ctx, "no route for connection")
				_ = tcpConn.Close()
				continue
			}

			r.mu.Lock()
			r.mu.open[tcpConn] = struct{}{}
			r.mu.Unlock()

			// Service the individual connection.
			ctx.Go(func(ctx *stopper.Context) error {
				defer func() {
					r.mu.Lock()
					delete(r.mu.open, tcpConn)
					r.mu.Unlock()
					_ = tcpConn.Close()
				}()
				if err := r.serve(ctx, logger, tcpConn, router); err != nil && !ctx.IsStopping() {
					logger.ErrorContext(ctx, "could not relay connection", "error", err)
				}
				return nil
			})
		}
	})
}

func (r *Relay) serve(ctx *stopper.Context,
	logger *slog.Logger,
	tcpConn *net.TCPConn,
	router func() (backend *channel.Conn, policy *Policy, ok bool)) error {
	in := bufio.NewReader(tcpConn)
	out := bufio.NewWriter(tcpConn)
	defer func() { _ = out.Flush() }()

	// A denied or failed command draws an NSC naming the command's
	// type, the same reply a peer gives for a type it will not handle.
	writeDenied := func(cmd mux.Command) error {
		nsc := mux.NewNotSupported(cmd.Role(), byte(cmd.Type())>>2)
		if _, err := nsc.WriteTo(out); err != nil {
			return err
		}
		return out.Flush()
	}

	// Updated at the bottom of the loop.
	idleSince := time.Now()
	for {
		if ctx.IsStopping() {
			return nil
		}

		// Impose maximum connection idle time behavior. The read
		// deadline below both enforces it and allows clean shutdown.
		cfg, _ := r.cfg.Get()
		_ = tcpConn.SetReadDeadline(idleSince.Add(cfg.MaxIdle))

		cmd, err := mux.ReadCommand(in)
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			if netErr := (net.Error)(nil); errors.As(err, &netErr) && netErr.Timeout() {
				logger.DebugContext(ctx, "dropping idle connection")
				return nil
			}
			// The stream stays aligned after an unrecognized type, so
			// answer it and keep going.
			typeErr := (*mux.UnrecognizedTypeError)(nil)
			if errors.As(err, &typeErr) {
				nsc := mux.NewNotSupported(typeErr.Role(), typeErr.Tag())
				if _, err := nsc.WriteTo(out); err != nil {
					return err
				}
				if err := out.Flush(); err != nil {
					return err
				}
				continue
			}
			logger.DebugContext(ctx, "could not parse command", "error", err)
			return err
		}

		// Record time between client requests.
		clientLatency := time.Since(idleSince)

		// Look up the route on each incoming command. This prevents
		// old connections from retaining stale policies.
		backend, policy, ok := router()

		// Deconfigured.
		if !ok {
			logger.DebugContext(ctx, "no route found")
			return nil
		}

		logger := logger.With(slog.String("backend", backend.Addr()))

		var auditData []slog.Attr
		if policy.Audit {
			auditData = append(make([]slog.Attr, 0, 16),
				slog.Bool("audit", true),
				slog.Any("request", cmd),
			)
		}

		// A failed access check doesn't kill the connection.
		if !policy.Allow(cmd) {
			if len(auditData) > 0 {
				auditData = append(auditData, slog.Bool("deny", true))
				logger.LogAttrs(ctx, slog.LevelInfo, "deny", auditData...)
			}
			if err := writeDenied(cmd); err != nil {
				return err
			}
			idleSince = time.Now()
			continue
		}

		// Relay the command across.
		writeStart := time.Now()
		resp, err := backend.RoundTrip(ctx, cmd)
		if err != nil {
			_ = writeDenied(cmd)
			return err
		}
		flushStart := time.Now()
		if _, err := resp.WriteTo(out); err != nil {
			return err
		}
		if err := out.Flush(); err != nil {
			return err
		}
		flushEnd := time.Now()

		if len(auditData) > 0 {
			auditData = append(auditData,
				slog.Group("latency",
					slog.Duration("backend", flushStart.Sub(writeStart)),
					slog.Duration("client", clientLatency),
					slog.Duration("flush", flushEnd.Sub(flushStart)),
				),
				slog.Any("response", resp),
			)
			logger.LogAttrs(ctx, slog.LevelInfo, "relay", auditData...)
		}

		idleSince = time.Now()
	}
}

func (r *Relay) policyFor(l *net.TCPListener, client netip.Addr) (
	backend *channel.Conn, policy *Policy, ok bool,
) {
	r.mu.RLock()
	route := r.mu.routes[l]
	r.mu.RUnlock()

	if route == nil {
		return nil, nil, false
	}
	return route.get(client)
}

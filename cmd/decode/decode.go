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

// Package decode contains a command that decodes hex-encoded mux
// commands into a readable form.
package decode

import (
	"bufio"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"vawter.tech/rfmux/pkg/mux"
)

// Command is an entrypoint to decode hex-encoded mux commands. Each
// argument is decoded independently; with no arguments, a stream of
// commands is read from stdin.
func Command() *cobra.Command {
	d := &decoder{}
	cmd := &cobra.Command{
		Use:   "decode [hex ...]",
		Short: "Decode hex-encoded mux commands",
		RunE: func(cmd *cobra.Command, args []string) error {
			return d.Run(cmd.Context(), cmd.OutOrStdout(), args)
		},
	}
	return cmd
}

type decoder struct{}

func (d *decoder) Run(_ context.Context, out io.Writer, args []string) error {
	if len(args) == 0 {
		return d.stream(out, os.Stdin)
	}
	for _, arg := range args {
		buf, err := decodeHex(arg)
		if err != nil {
			return fmt.Errorf("could not decode %q: %w", arg, err)
		}
		cmd, err := mux.Parse(buf)
		if err != nil {
			return fmt.Errorf("could not parse %q: %w", arg, err)
		}
		if _, err := fmt.Fprintln(out, cmd); err != nil {
			return err
		}
	}
	return nil
}

// stream decodes back-to-back commands from a binary stream.
func (d *decoder) stream(out io.Writer, raw io.Reader) error {
	in := bufio.NewReader(raw)
	for {
		cmd, err := mux.ReadCommand(in)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		if _, err := fmt.Fprintln(out, cmd); err != nil {
			return err
		}
	}
}

func decodeHex(arg string) ([]byte, error) {
	// Accept 0x prefixes, spaces, and colon separators.
	arg = strings.TrimPrefix(arg, "0x")
	arg = strings.Map(func(r rune) rune {
		switch r {
		case ' ', ':':
			return -1
		default:
			return r
		}
	}, arg)
	buf, err := hex.DecodeString(arg)
	if err != nil {
		return nil, err
	}
	if len(buf) == 0 {
		return nil, errors.New("empty input")
	}
	return buf, nil
}

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
	"math/bits"
)

// The length field packs seven value bits per octet, least-significant
// group first. Bit 0 of each octet is the EA bit: clear while more
// octets follow, set on the final octet. GSM imposes no bound on the
// field width; this codec rejects fields wider than a uint64.
const maxLengthOctets = 64 / 7

// LengthOctets returns the minimum number of octets needed to encode n
// as a length field. A length of zero still occupies one octet.
func LengthOctets(n uint64) int {
	octets := (bits.Len64(n) + 6) / 7
	if octets == 0 {
		return 1
	}
	return octets
}

// AppendLength appends the length-field encoding of n to dst and
// returns the extended slice. The encoding always uses the minimal
// octet count reported by [LengthOctets].
func AppendLength(dst []byte, n uint64) []byte {
	for octets := LengthOctets(n); octets > 1; octets-- {
		dst = append(dst, byte(n&0x7F)<<1)
		n >>= 7
	}
	return append(dst, byte(n&0x7F)<<1|eaBit)
}

// DecodeLength reads a length field from the front of buf, returning
// the decoded value and the number of octets consumed. It fails with
// [ErrBufferTooShort] if the buffer ends before the final EA octet and
// with [ErrLengthTooLarge] if the field is wider than a uint64.
func DecodeLength(buf []byte) (uint64, int, error) {
	var length uint64
	for i := 0; ; i++ {
		if i >= len(buf) {
			return 0, 0, fmt.Errorf("%w: length field not terminated", ErrBufferTooShort)
		}
		if i >= maxLengthOctets {
			return 0, 0, fmt.Errorf("%w: more than %d octets", ErrLengthTooLarge, maxLengthOctets)
		}
		length |= uint64(buf[i]>>1) << (7 * i)
		if buf[i]&eaBit != 0 {
			return length, i + 1, nil
		}
	}
}

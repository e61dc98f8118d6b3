/* Apache v2 license
 * Copyright (C) 2019 Intel Corporation
 *
 * SPDX-License-Identifier: Apache-2.0
 */

package bitextract

import (
	"fmt"
	"math/big"
	"strconv"
	"strings"
)

// packBits writes the low width bits of v into dst, MSB-first, starting at bit
// offset. It's the inverse of ExtractUnsigned, used to build test buffers.
func packBits(dst []byte, offset, width int, v uint64) {
	for i := 0; i < width; i++ {
		idx, bit := Locate(offset + i)
		mask := byte(1) << uint(ByteSize-1-bit)
		if (v>>uint(width-1-i))&1 == 1 {
			dst[idx] |= mask
		} else {
			dst[idx] &^= mask
		}
	}
}

// fromBitString converts a string of '0's and '1's, most significant first,
// into bytes, right-padding the final byte with 0s.
func fromBitString(bits string) []byte {
	if pad := len(bits) % ByteSize; pad != 0 {
		bits += strings.Repeat("0", ByteSize-pad)
	}
	b := make([]byte, len(bits)/ByteSize)
	for i := range b {
		v, err := strconv.ParseUint(bits[i*ByteSize:(i+1)*ByteSize], 2, 8)
		if err != nil {
			panic(err)
		}
		b[i] = byte(v)
	}
	return b
}

// extractUsingBitString is an alternative implementation that converts the
// incoming data to one large bit string, uses string functions to cut it apart,
// then converts the resulting string back to a byte slice. It's much simpler,
// but far slower and more memory-demanding; it's only here to check results.
func extractUsingBitString(src []byte, start, length int) []byte {
	bi := big.NewInt(0)
	bi.SetBytes(src)
	bitStr := fmt.Sprintf("%0[1]*b", len(src)*8, bi)
	return fromBitString(bitStr[start : start+length])
}

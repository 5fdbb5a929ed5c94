// Package lsn implements PostgreSQL Log Sequence Number parsing, textual
// formatting, and the comparison/increment arithmetic used by the standby
// status protocol.
package lsn

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// LSN is a PostgreSQL Log Sequence Number: a monotonic byte offset into the
// WAL, represented as a pair of unsigned 32-bit halves. Comparison is total
// lexicographic ordering by (H, L).
type LSN struct {
	H uint32
	L uint32
}

// Zero is the sentinel "start from the slot's restart point" LSN.
var Zero = LSN{}

// String renders the LSN in its canonical "H/L" textual form: uppercase hex,
// each half at least one digit, no padding beyond that.
func (v LSN) String() string {
	return fmt.Sprintf("%X/%X", v.H, v.L)
}

// Parse decodes a textual "H/L" LSN into its numeric halves.
func Parse(s string) (LSN, error) {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return LSN{}, errors.Errorf("malformed LSN %q: expected \"H/L\"", s)
	}
	h, err := strconv.ParseUint(parts[0], 16, 32)
	if err != nil {
		return LSN{}, errors.Wrapf(err, "malformed LSN %q: bad high half", s)
	}
	l, err := strconv.ParseUint(parts[1], 16, 32)
	if err != nil {
		return LSN{}, errors.Wrapf(err, "malformed LSN %q: bad low half", s)
	}
	return LSN{H: uint32(h), L: uint32(l)}, nil
}

// FromHalves builds an LSN from its two 32-bit halves.
func FromHalves(h, l uint32) LSN {
	return LSN{H: h, L: l}
}

// Compare returns -1, 0, or 1 as v is less than, equal to, or greater than
// other, ordering lexicographically by (H, L).
func (v LSN) Compare(other LSN) int {
	switch {
	case v.H != other.H:
		if v.H < other.H {
			return -1
		}
		return 1
	case v.L != other.L:
		if v.L < other.L {
			return -1
		}
		return 1
	default:
		return 0
	}
}

// IsZero reports whether this is the "0/0" sentinel.
func (v LSN) IsZero() bool {
	return v.H == 0 && v.L == 0
}

// IncrementByte returns the LSN representing "one byte past v", used by the
// standby-status-update packet which reports "last byte received + 1".
func (v LSN) IncrementByte() LSN {
	if v.L == 0xFFFFFFFF {
		return LSN{H: v.H + 1, L: 0}
	}
	return LSN{H: v.H, L: v.L + 1}
}

// Uint64 packs the LSN into PostgreSQL's native 64-bit wire representation.
func (v LSN) Uint64() uint64 {
	return uint64(v.H)<<32 | uint64(v.L)
}

// FromUint64 unpacks PostgreSQL's native 64-bit wire representation.
func FromUint64(n uint64) LSN {
	return LSN{H: uint32(n >> 32), L: uint32(n)}
}

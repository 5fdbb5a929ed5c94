// Package wire provides the low-level byte-cursor and standby-status-update
// packet encoder shared by the WAL envelope and pgoutput decoders.
package wire

import (
	"encoding/binary"
	"time"
	"unicode/utf8"

	"github.com/nikunjy/pgoutputd/lsn"
	"github.com/pkg/errors"
)

// postgresEpochMicros is the number of microseconds between the Unix epoch
// and the PostgreSQL epoch (2000-01-01T00:00:00Z).
const postgresEpochMicros int64 = 946684800000000

// OutOfBoundsError is raised when a Reader is asked to read more bytes than
// remain in its underlying slice. Decoders convert this into a ProtocolError
// at the package boundary; Reader itself never wraps it.
type OutOfBoundsError struct {
	Op   string
	Need int
	Have int
}

func (e *OutOfBoundsError) Error() string {
	return errors.Errorf("%s: need %d bytes, have %d", e.Op, e.Need, e.Have).Error()
}

// Reader is a positional cursor over an immutable byte slice. All integer
// reads are big-endian. Reader never copies the underlying slice; Read and
// Remaining borrow sub-slices of it.
type Reader struct {
	buf []byte
	pos int
}

// NewReader wraps buf in a Reader starting at position 0.
func NewReader(buf []byte) *Reader {
	return &Reader{buf: buf}
}

// Pos returns the current cursor offset.
func (r *Reader) Pos() int {
	return r.pos
}

// Len returns the total length of the underlying slice.
func (r *Reader) Len() int {
	return len(r.buf)
}

func (r *Reader) require(op string, n int) error {
	if n < 0 || len(r.buf)-r.pos < n {
		return &OutOfBoundsError{Op: op, Need: n, Have: len(r.buf) - r.pos}
	}
	return nil
}

// ReadU8 reads one unsigned byte.
func (r *Reader) ReadU8() (uint8, error) {
	if err := r.require("readU8", 1); err != nil {
		return 0, err
	}
	v := r.buf[r.pos]
	r.pos++
	return v, nil
}

// ReadU16 reads a big-endian unsigned 16-bit integer.
func (r *Reader) ReadU16() (uint16, error) {
	if err := r.require("readU16", 2); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint16(r.buf[r.pos : r.pos+2])
	r.pos += 2
	return v, nil
}

// ReadI16 reads a big-endian signed 16-bit integer.
func (r *Reader) ReadI16() (int16, error) {
	v, err := r.ReadU16()
	return int16(v), err
}

// ReadU32 reads a big-endian unsigned 32-bit integer.
func (r *Reader) ReadU32() (uint32, error) {
	if err := r.require("readU32", 4); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint32(r.buf[r.pos : r.pos+4])
	r.pos += 4
	return v, nil
}

// ReadI32 reads a big-endian signed 32-bit integer.
func (r *Reader) ReadI32() (int32, error) {
	v, err := r.ReadU32()
	return int32(v), err
}

// ReadU64 reads a big-endian unsigned 64-bit integer.
func (r *Reader) ReadU64() (uint64, error) {
	if err := r.require("readU64", 8); err != nil {
		return 0, err
	}
	v := binary.BigEndian.Uint64(r.buf[r.pos : r.pos+8])
	r.pos += 8
	return v, nil
}

// Read borrows the next n bytes without copying and advances the cursor.
func (r *Reader) Read(n int) ([]byte, error) {
	if err := r.require("read", n); err != nil {
		return nil, err
	}
	v := r.buf[r.pos : r.pos+n]
	r.pos += n
	return v, nil
}

// ReadCString reads bytes up to (not including) the next NUL byte, consumes
// the terminator, and UTF-8 decodes the result. Fails if no terminator is
// found before the end of the buffer.
func (r *Reader) ReadCString() (string, error) {
	end := -1
	for i := r.pos; i < len(r.buf); i++ {
		if r.buf[i] == 0x00 {
			end = i
			break
		}
	}
	if end == -1 {
		return "", &OutOfBoundsError{Op: "readCString", Need: 1, Have: 0}
	}
	s := r.buf[r.pos:end]
	if !utf8.Valid(s) {
		return "", errors.New("readCString: invalid UTF-8")
	}
	r.pos = end + 1
	return string(s), nil
}

// ReadLengthPrefixedString reads a 32-bit length followed by that many
// UTF-8 bytes.
func (r *Reader) ReadLengthPrefixedString() (string, error) {
	n, err := r.ReadU32()
	if err != nil {
		return "", err
	}
	b, err := r.Read(int(n))
	if err != nil {
		return "", err
	}
	if !utf8.Valid(b) {
		return "", errors.New("readLengthPrefixedString: invalid UTF-8")
	}
	return string(b), nil
}

// ReadLSN reads two big-endian u32 halves and returns them as an lsn.LSN
// (whose String form is "H/L").
func (r *Reader) ReadLSN() (lsn.LSN, error) {
	h, err := r.ReadU32()
	if err != nil {
		return lsn.LSN{}, err
	}
	l, err := r.ReadU32()
	if err != nil {
		return lsn.LSN{}, err
	}
	return lsn.FromHalves(h, l), nil
}

// ReadTimestamp reads a u64 count of microseconds since the PostgreSQL
// epoch (2000-01-01T00:00:00Z) and converts it to a UTC time truncated to
// millisecond resolution.
func (r *Reader) ReadTimestamp() (time.Time, error) {
	micros, err := r.ReadU64()
	if err != nil {
		return time.Time{}, err
	}
	unixMicros := int64(micros) + postgresEpochMicros
	millis := unixMicros / 1000
	return time.UnixMilli(millis).UTC(), nil
}

// Remaining borrows the unread tail of the buffer without advancing the
// cursor.
func (r *Reader) Remaining() []byte {
	return r.buf[r.pos:]
}

package wire

import (
	"testing"
	"time"
)

func TestReadU8U16U32U64(t *testing.T) {
	buf := []byte{0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 0x03, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x00, 0x04}
	r := NewReader(buf)

	u8, err := r.ReadU8()
	if err != nil || u8 != 1 {
		t.Fatalf("ReadU8() = %d, %v", u8, err)
	}
	u16, err := r.ReadU16()
	if err != nil || u16 != 2 {
		t.Fatalf("ReadU16() = %d, %v", u16, err)
	}
	u32, err := r.ReadU32()
	if err != nil || u32 != 3 {
		t.Fatalf("ReadU32() = %d, %v", u32, err)
	}
	u64, err := r.ReadU64()
	if err != nil || u64 != 4 {
		t.Fatalf("ReadU64() = %d, %v", u64, err)
	}
	if r.Pos() != len(buf) {
		t.Fatalf("Pos() = %d, want %d", r.Pos(), len(buf))
	}
}

func TestReadOutOfBounds(t *testing.T) {
	r := NewReader([]byte{0x01})
	if _, err := r.ReadU32(); err == nil {
		t.Fatal("expected out-of-bounds error, got nil")
	}
	if _, ok := func() (*OutOfBoundsError, bool) {
		_, err := NewReader([]byte{}).ReadU8()
		oob, ok := err.(*OutOfBoundsError)
		return oob, ok
	}(); !ok {
		t.Fatal("expected *OutOfBoundsError")
	}
}

// A negative length (as would come from misinterpreting a corrupted or
// adversarial i32 length field) must be rejected as an OutOfBoundsError
// rather than reaching the slice expression, which would panic.
func TestReadNegativeLengthIsOutOfBounds(t *testing.T) {
	r := NewReader([]byte{1, 2, 3, 4, 5})
	_, err := r.Read(-1)
	if err == nil {
		t.Fatal("Read(-1): expected error, got nil")
	}
	if _, ok := err.(*OutOfBoundsError); !ok {
		t.Fatalf("Read(-1): error = %T, want *OutOfBoundsError", err)
	}
	if r.Pos() != 0 {
		t.Fatalf("Read(-1): cursor advanced to %d, want 0", r.Pos())
	}
}

func TestReadCString(t *testing.T) {
	r := NewReader([]byte("hello\x00world\x00"))
	s, err := r.ReadCString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadCString() = %q, %v", s, err)
	}
	s2, err := r.ReadCString()
	if err != nil || s2 != "world" {
		t.Fatalf("ReadCString() = %q, %v", s2, err)
	}
}

func TestReadCStringUnterminated(t *testing.T) {
	r := NewReader([]byte("noterminator"))
	if _, err := r.ReadCString(); err == nil {
		t.Fatal("expected error for unterminated string, got nil")
	}
}

func TestReadLengthPrefixedString(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x05, 'h', 'e', 'l', 'l', 'o'}
	r := NewReader(buf)
	s, err := r.ReadLengthPrefixedString()
	if err != nil || s != "hello" {
		t.Fatalf("ReadLengthPrefixedString() = %q, %v", s, err)
	}
}

func TestReadLSN(t *testing.T) {
	buf := []byte{0x00, 0x00, 0x00, 0x16, 0xB3, 0x74, 0xD8, 0x48}
	r := NewReader(buf)
	v, err := r.ReadLSN()
	if err != nil {
		t.Fatalf("ReadLSN(): %v", err)
	}
	if v.H != 0x16 || v.L != 0xB374D848 {
		t.Fatalf("ReadLSN() = %+v, want {H:0x16 L:0xB374D848}", v)
	}
}

func TestReadTimestampEpoch(t *testing.T) {
	r := NewReader([]byte{0, 0, 0, 0, 0, 0, 0, 0})
	ts, err := r.ReadTimestamp()
	if err != nil {
		t.Fatalf("ReadTimestamp(): %v", err)
	}
	want := time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	if !ts.Equal(want) {
		t.Fatalf("ReadTimestamp() = %v, want %v", ts, want)
	}
}

func TestRemainingDoesNotAdvance(t *testing.T) {
	r := NewReader([]byte{1, 2, 3})
	rest := r.Remaining()
	if len(rest) != 3 {
		t.Fatalf("Remaining() len = %d, want 3", len(rest))
	}
	if r.Pos() != 0 {
		t.Fatalf("Remaining() advanced cursor to %d", r.Pos())
	}
}

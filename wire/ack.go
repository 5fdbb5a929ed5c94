package wire

import (
	"encoding/binary"

	"github.com/nikunjy/pgoutputd/lsn"
)

// standbyStatusByteID is the leading byte of a standby-status-update
// CopyData payload ('r').
const standbyStatusByteID = 0x72

// AckPacketLen is the fixed length of a standby-status-update packet.
const AckPacketLen = 34

// BuildAckPacket encodes a 34-byte standby-status-update packet from an
// LSN. The received/flushed/applied positions are all set to
// "one byte past" the given LSN, per the documented increment rule: if the
// low half is 0xFFFFFFFF it rolls over into the high half.
//
// clockMicros is the client's wall clock expressed as microseconds since
// the PostgreSQL epoch; callers derive it from wall time so that the value
// is deterministic and testable.
func BuildAckPacket(l lsn.LSN, clockMicros int64) []byte {
	ackLSN := l.IncrementByte().Uint64()

	buf := make([]byte, AckPacketLen)
	buf[0] = standbyStatusByteID
	binary.BigEndian.PutUint64(buf[1:9], ackLSN)
	binary.BigEndian.PutUint64(buf[9:17], ackLSN)
	binary.BigEndian.PutUint64(buf[17:25], ackLSN)
	binary.BigEndian.PutUint64(buf[25:33], uint64(clockMicros))
	buf[33] = 0x00
	return buf
}

// ClockMicrosSinceUnixMillis converts a Unix-epoch millisecond timestamp
// (as returned by time.Now().UnixMilli()) into microseconds since the
// PostgreSQL epoch, the unit the standby-status clock field expects.
func ClockMicrosSinceUnixMillis(nowUnixMillis int64) int64 {
	return (nowUnixMillis - postgresEpochMicros/1000) * 1000
}

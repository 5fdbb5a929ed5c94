package pgoutput

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/require"
)

// helper builds a pgoutput message payload from its parts, mirroring the
// grammar decoder.go reads. Tests write raw bytes rather than going through
// wire.Reader so a bug in Reader can't mask a bug in the decoder.
type msgBuilder struct {
	bytes.Buffer
}

func newMsgBuilder(tag byte) *msgBuilder {
	b := &msgBuilder{}
	b.WriteByte(tag)
	return b
}

func (b *msgBuilder) u8(v uint8)   { b.WriteByte(v) }
func (b *msgBuilder) i16(v int16)  { binary.Write(b, binary.BigEndian, v) }
func (b *msgBuilder) u32(v uint32) { binary.Write(b, binary.BigEndian, v) }
func (b *msgBuilder) i32(v int32)  { binary.Write(b, binary.BigEndian, v) }
func (b *msgBuilder) u64(v uint64) { binary.Write(b, binary.BigEndian, v) }
func (b *msgBuilder) lsn(h, l uint32) {
	b.u32(h)
	b.u32(l)
}
func (b *msgBuilder) cstring(s string) {
	b.WriteString(s)
	b.WriteByte(0)
}
func (b *msgBuilder) textField(s string) {
	b.WriteByte('t')
	b.i32(int32(len(s)))
	b.WriteString(s)
}
func (b *msgBuilder) nullField() {
	b.WriteByte('n')
}

// textFieldWithRawLength writes a 't' field whose length prefix is taken
// verbatim (used to construct a negative length without the helper itself
// refusing to produce one).
func (b *msgBuilder) textFieldWithRawLength(length int32, data string) {
	b.WriteByte('t')
	b.i32(length)
	b.WriteString(data)
}
func (b *msgBuilder) unchangedField() {
	b.WriteByte('u')
}

func relationPayload() []byte {
	b := newMsgBuilder(tagRelation)
	b.u32(1) // oid
	b.cstring("public")
	b.cstring("accounts")
	b.u8(byte(ReplicaIdentityDefault))
	b.i16(2) // ncols
	// key column "id"
	b.u8(1)
	b.cstring("id")
	b.u32(23) // int4 oid
	b.i32(-1)
	// non-key column "name"
	b.u8(0)
	b.cstring("name")
	b.u32(25) // text oid
	b.i32(-1)
	return b.Bytes()
}

func newTestDecoder() *Decoder {
	return NewDecoder(nil)
}

func TestDecodeRelation(t *testing.T) {
	d := newTestDecoder()
	msg, err := d.Decode(relationPayload())
	require.NoError(t, err)

	rel, ok := msg.(RelationMessage)
	require.True(t, ok)
	require.Equal(t, uint32(1), rel.Relation.OID)
	require.Equal(t, "public", rel.Relation.Schema)
	require.Equal(t, "accounts", rel.Relation.Name)
	require.Len(t, rel.Relation.Columns, 2)
	require.Equal(t, []string{"id"}, rel.Relation.KeyColumns)
	require.True(t, rel.Relation.Columns[0].IsKey())
	require.False(t, rel.Relation.Columns[1].IsKey())
}

func TestDecodeInsertRoundTrip(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode(relationPayload())
	require.NoError(t, err)

	b := newMsgBuilder(tagInsert)
	b.u32(1) // relid
	b.WriteByte('N')
	b.i16(2)
	b.textField("42")
	b.textField("ada")

	msg, err := d.Decode(b.Bytes())
	require.NoError(t, err)

	insert, ok := msg.(InsertMessage)
	require.True(t, ok)
	require.Equal(t, "42", insert.New["id"])
	require.Equal(t, "ada", insert.New["name"])
}

func TestDecodeUpdateWithOldTupleTOASTFallback(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode(relationPayload())
	require.NoError(t, err)

	b := newMsgBuilder(tagUpdate)
	b.u32(1)
	b.WriteByte('O')
	// old tuple: full row
	b.i16(2)
	b.textField("42")
	b.textField("ada")
	// marker
	b.WriteByte('N')
	// new tuple: id changed, name unchanged (TOAST 'u')
	b.i16(2)
	b.textField("43")
	b.unchangedField()

	msg, err := d.Decode(b.Bytes())
	require.NoError(t, err)

	update, ok := msg.(UpdateMessage)
	require.True(t, ok)
	require.Equal(t, "42", update.Old["id"])
	require.Equal(t, "43", update.New["id"])
	// unchanged TOAST field is recovered from the old tuple fallback.
	require.Equal(t, "ada", update.New["name"])
}

func TestDecodeUpdateWithKeyTupleOmitsNonKeyNulls(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode(relationPayload())
	require.NoError(t, err)

	b := newMsgBuilder(tagUpdate)
	b.u32(1)
	b.WriteByte('K')
	// key tuple: id present, name null (non-key columns are sent null in 'K')
	b.i16(2)
	b.textField("42")
	b.nullField()
	b.WriteByte('N')
	b.i16(2)
	b.textField("43")
	b.textField("ada2")

	msg, err := d.Decode(b.Bytes())
	require.NoError(t, err)

	update, ok := msg.(UpdateMessage)
	require.True(t, ok)
	require.Equal(t, "42", update.Key["id"])
	_, hasName := update.Key["name"]
	require.False(t, hasName, "non-key column must not appear in the projected key tuple")
}

func TestDecodeDeleteWithKeyTuple(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode(relationPayload())
	require.NoError(t, err)

	b := newMsgBuilder(tagDelete)
	b.u32(1)
	b.WriteByte('K')
	b.i16(2)
	b.textField("42")
	b.nullField()

	msg, err := d.Decode(b.Bytes())
	require.NoError(t, err)

	del, ok := msg.(DeleteMessage)
	require.True(t, ok)
	require.Equal(t, "42", del.Key["id"])
	require.Len(t, del.Key, 1)
}

func TestDecodeUnknownRelationIsProtocolError(t *testing.T) {
	d := newTestDecoder()
	b := newMsgBuilder(tagInsert)
	b.u32(999)
	b.WriteByte('N')
	b.i16(0)

	_, err := d.Decode(b.Bytes())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown relation")
}

func TestDecodeTupleNegativeTextFieldLengthIsProtocolError(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode(relationPayload())
	require.NoError(t, err)

	b := newMsgBuilder(tagInsert)
	b.u32(1)
	b.WriteByte('N')
	b.i16(2)
	b.textFieldWithRawLength(-1, "")
	b.textField("ada")

	_, err = d.Decode(b.Bytes())
	require.Error(t, err, "a negative field length must be rejected, not panic")
}

func TestDecodeMessageNegativeContentLengthIsProtocolError(t *testing.T) {
	d := newTestDecoder()

	b := newMsgBuilder(tagMessage)
	b.u8(0) // flags
	b.lsn(0, 1)
	b.cstring("prefix")
	b.i32(-1) // content length

	_, err := d.Decode(b.Bytes())
	require.Error(t, err, "a negative message content length must be rejected, not panic")
}

func TestDecodeTupleFieldCountMismatch(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode(relationPayload())
	require.NoError(t, err)

	b := newMsgBuilder(tagInsert)
	b.u32(1)
	b.WriteByte('N')
	b.i16(1) // relation has 2 columns
	b.textField("42")

	_, err = d.Decode(b.Bytes())
	require.Error(t, err)
	require.Contains(t, err.Error(), "does not match relation")
}

func TestDecodeTypeThenRelationEnrichesColumns(t *testing.T) {
	d := newTestDecoder()

	typeMsg := newMsgBuilder(tagType)
	typeMsg.u32(25)
	typeMsg.cstring("pg_catalog")
	typeMsg.cstring("text")
	_, err := d.Decode(typeMsg.Bytes())
	require.NoError(t, err)

	msg, err := d.Decode(relationPayload())
	require.NoError(t, err)

	rel := msg.(RelationMessage).Relation
	require.Equal(t, "pg_catalog", rel.Columns[1].TypeSchema)
	require.Equal(t, "text", rel.Columns[1].TypeName)
}

func TestDecodeUnknownTagIsProtocolError(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode([]byte{'Z'})
	require.Error(t, err)
}

func TestDecodeTruncate(t *testing.T) {
	d := newTestDecoder()
	_, err := d.Decode(relationPayload())
	require.NoError(t, err)

	b := newMsgBuilder(tagTruncate)
	b.i32(1)
	b.u8(1 | 2) // cascade + restart identity
	b.u32(1)

	msg, err := d.Decode(b.Bytes())
	require.NoError(t, err)

	truncate, ok := msg.(TruncateMessage)
	require.True(t, ok)
	require.Len(t, truncate.Relations, 1)
	require.True(t, truncate.Cascade)
	require.True(t, truncate.RestartIdentity)
}

package pgoutput

import (
	"github.com/nikunjy/pgoutputd/protoerr"
	"github.com/nikunjy/pgoutputd/wire"
)

// field kind bytes from the pgoutput tuple grammar.
const (
	fieldKindNull      byte = 'n'
	fieldKindText      byte = 't'
	fieldKindBinary    byte = 'b'
	fieldKindUnchanged byte = 'u'
)

// message tag bytes.
const (
	tagBegin    byte = 'B'
	tagCommit   byte = 'C'
	tagOrigin   byte = 'O'
	tagRelation byte = 'R'
	tagType     byte = 'Y'
	tagInsert   byte = 'I'
	tagUpdate   byte = 'U'
	tagDelete   byte = 'D'
	tagTruncate byte = 'T'
	tagMessage  byte = 'M'
)

// update/delete submessage bytes.
const (
	submsgKey = 'K'
	submsgOld = 'O'
	submsgNew = 'N'
)

// Decoder is a stateful decoder of pgoutput messages. It maintains the
// relation and custom-type caches for a single replication session; it must
// not be shared across sessions or used concurrently.
type Decoder struct {
	registry  TypeRegistry
	relations map[uint32]Relation
	types     map[uint32]CustomType
}

// NewDecoder constructs a Decoder backed by the given type-parser registry.
func NewDecoder(registry TypeRegistry) *Decoder {
	return &Decoder{
		registry:  registry,
		relations: make(map[uint32]Relation),
		types:     make(map[uint32]CustomType),
	}
}

// Decode parses a single pgoutput message (the bytes following the outer
// WAL envelope) into a Message. The first byte is the message tag; an
// unrecognized tag is a fatal ProtocolError.
func (d *Decoder) Decode(payload []byte) (Message, error) {
	r := wire.NewReader(payload)
	tag, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "empty pgoutput message")
	}

	switch tag {
	case tagBegin:
		return d.decodeBegin(r)
	case tagCommit:
		return d.decodeCommit(r)
	case tagOrigin:
		return d.decodeOrigin(r)
	case tagType:
		return d.decodeType(r)
	case tagRelation:
		return d.decodeRelation(r)
	case tagInsert:
		return d.decodeInsert(r)
	case tagUpdate:
		return d.decodeUpdate(r)
	case tagDelete:
		return d.decodeDelete(r)
	case tagTruncate:
		return d.decodeTruncate(r)
	case tagMessage:
		return d.decodeMessage(r)
	default:
		return nil, protoerr.NewProtocolError("unexpected pgoutput message tag %q", rune(tag))
	}
}

func (d *Decoder) decodeBegin(r *wire.Reader) (Message, error) {
	commitLSN, err := r.ReadLSN()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "begin: commitLsn")
	}
	commitTime, err := r.ReadTimestamp()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "begin: commitTime")
	}
	xid, err := r.ReadU32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "begin: xid")
	}
	return BeginMessage{CommitLSN: commitLSN, CommitTime: commitTime, XID: xid}, nil
}

func (d *Decoder) decodeCommit(r *wire.Reader) (Message, error) {
	flags, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "commit: flags")
	}
	commitLSN, err := r.ReadLSN()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "commit: commitLsn")
	}
	commitEndLSN, err := r.ReadLSN()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "commit: commitEndLsn")
	}
	commitTime, err := r.ReadTimestamp()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "commit: commitTime")
	}
	return CommitMessage{Flags: flags, CommitLSN: commitLSN, CommitEndLSN: commitEndLSN, CommitTime: commitTime}, nil
}

func (d *Decoder) decodeOrigin(r *wire.Reader) (Message, error) {
	originLSN, err := r.ReadLSN()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "origin: originLsn")
	}
	name, err := r.ReadCString()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "origin: originName")
	}
	return OriginMessage{OriginLSN: originLSN, OriginName: name}, nil
}

func (d *Decoder) decodeType(r *wire.Reader) (Message, error) {
	oid, err := r.ReadU32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "type: typeOid")
	}
	schema, err := r.ReadCString()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "type: typeSchema")
	}
	name, err := r.ReadCString()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "type: typeName")
	}
	d.types[oid] = CustomType{TypeOID: oid, TypeSchema: schema, TypeName: name}
	return TypeMessage{TypeOID: oid, TypeSchema: schema, TypeName: name}, nil
}

func (d *Decoder) decodeRelation(r *wire.Reader) (Message, error) {
	oid, err := r.ReadU32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "relation: oid")
	}
	schema, err := r.ReadCString()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "relation: schema")
	}
	name, err := r.ReadCString()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "relation: name")
	}
	replicaIdentityByte, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "relation: replicaIdentity")
	}
	replicaIdentity := ReplicaIdentity(replicaIdentityByte)
	switch replicaIdentity {
	case ReplicaIdentityDefault, ReplicaIdentityNothing, ReplicaIdentityFull, ReplicaIdentityIndex:
	default:
		return nil, protoerr.NewProtocolError("relation: unknown replica identity %q", rune(replicaIdentityByte))
	}

	nCols, err := r.ReadI16()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "relation: nCols")
	}

	cols := make([]Column, 0, nCols)
	var keyColumns []string
	for i := int16(0); i < nCols; i++ {
		flags, err := r.ReadU8()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "relation: column flags")
		}
		colName, err := r.ReadCString()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "relation: column name")
		}
		typeOID, err := r.ReadU32()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "relation: column typeOid")
		}
		typeMod, err := r.ReadI32()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "relation: column typeMod")
		}

		col := Column{
			Flags:   flags,
			Name:    colName,
			TypeOID: typeOID,
			TypeMod: typeMod,
			Parse:   d.lookupParser(typeOID),
		}
		if ct, ok := d.types[typeOID]; ok {
			col.TypeSchema = ct.TypeSchema
			col.TypeName = ct.TypeName
		}
		if col.IsKey() {
			keyColumns = append(keyColumns, col.Name)
		}
		cols = append(cols, col)
	}

	rel := Relation{
		OID:             oid,
		Schema:          schema,
		Name:            name,
		ReplicaIdentity: replicaIdentity,
		Columns:         cols,
		KeyColumns:      keyColumns,
	}
	d.relations[oid] = rel
	return RelationMessage{Relation: rel}, nil
}

func (d *Decoder) lookupParser(oid uint32) ColumnParser {
	if d.registry == nil {
		return identityParser
	}
	if p := d.registry.Parser(oid); p != nil {
		return p
	}
	return identityParser
}

func identityParser(text string) (interface{}, error) {
	return text, nil
}

func (d *Decoder) lookupRelation(relID uint32) (Relation, error) {
	rel, ok := d.relations[relID]
	if !ok {
		return Relation{}, protoerr.NewProtocolError("reference to unknown relation id %d", relID)
	}
	return rel, nil
}

func (d *Decoder) decodeInsert(r *wire.Reader) (Message, error) {
	relID, err := r.ReadU32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "insert: relid")
	}
	rel, err := d.lookupRelation(relID)
	if err != nil {
		return nil, err
	}
	marker, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "insert: tuple marker")
	}
	if marker != submsgNew {
		return nil, protoerr.NewProtocolError("insert: expected 'N' tuple marker, got %q", rune(marker))
	}
	newTuple, err := d.decodeTuple(r, rel, nil)
	if err != nil {
		return nil, err
	}
	return InsertMessage{Relation: rel, New: newTuple}, nil
}

func (d *Decoder) decodeUpdate(r *wire.Reader) (Message, error) {
	relID, err := r.ReadU32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "update: relid")
	}
	rel, err := d.lookupRelation(relID)
	if err != nil {
		return nil, err
	}
	submsg, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "update: submessage")
	}

	switch submsg {
	case submsgKey:
		key, err := d.decodeTuple(r, rel, nil)
		if err != nil {
			return nil, err
		}
		key = projectKeyTuple(key, rel.KeyColumns)
		marker, err := r.ReadU8()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "update(K): tuple marker")
		}
		if marker != submsgNew {
			return nil, protoerr.NewProtocolError("update(K): expected 'N' tuple marker, got %q", rune(marker))
		}
		newTuple, err := d.decodeTuple(r, rel, nil)
		if err != nil {
			return nil, err
		}
		return UpdateMessage{Relation: rel, Key: key, New: newTuple}, nil

	case submsgOld:
		old, err := d.decodeTuple(r, rel, nil)
		if err != nil {
			return nil, err
		}
		marker, err := r.ReadU8()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "update(O): tuple marker")
		}
		if marker != submsgNew {
			return nil, protoerr.NewProtocolError("update(O): expected 'N' tuple marker, got %q", rune(marker))
		}
		newTuple, err := d.decodeTuple(r, rel, old)
		if err != nil {
			return nil, err
		}
		return UpdateMessage{Relation: rel, Old: old, New: newTuple}, nil

	case submsgNew:
		newTuple, err := d.decodeTuple(r, rel, nil)
		if err != nil {
			return nil, err
		}
		return UpdateMessage{Relation: rel, New: newTuple}, nil

	default:
		return nil, protoerr.NewProtocolError("update: unknown submessage key %q", rune(submsg))
	}
}

func (d *Decoder) decodeDelete(r *wire.Reader) (Message, error) {
	relID, err := r.ReadU32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "delete: relid")
	}
	rel, err := d.lookupRelation(relID)
	if err != nil {
		return nil, err
	}
	submsg, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "delete: submessage")
	}

	switch submsg {
	case submsgKey:
		key, err := d.decodeTuple(r, rel, nil)
		if err != nil {
			return nil, err
		}
		key = projectKeyTuple(key, rel.KeyColumns)
		return DeleteMessage{Relation: rel, Key: key}, nil
	case submsgOld:
		old, err := d.decodeTuple(r, rel, nil)
		if err != nil {
			return nil, err
		}
		return DeleteMessage{Relation: rel, Old: old}, nil
	default:
		return nil, protoerr.NewProtocolError("delete: unknown submessage key %q", rune(submsg))
	}
}

func (d *Decoder) decodeTruncate(r *wire.Reader) (Message, error) {
	nRels, err := r.ReadI32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "truncate: nrels")
	}
	flags, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "truncate: flags")
	}
	rels := make([]Relation, 0, nRels)
	for i := int32(0); i < nRels; i++ {
		relID, err := r.ReadU32()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "truncate: relid")
		}
		rel, err := d.lookupRelation(relID)
		if err != nil {
			return nil, err
		}
		rels = append(rels, rel)
	}
	return TruncateMessage{
		Relations:       rels,
		Cascade:         flags&1 != 0,
		RestartIdentity: flags&2 != 0,
	}, nil
}

func (d *Decoder) decodeMessage(r *wire.Reader) (Message, error) {
	flags, err := r.ReadU8()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "message: flags")
	}
	messageLSN, err := r.ReadLSN()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "message: messageLsn")
	}
	prefix, err := r.ReadCString()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "message: prefix")
	}
	length, err := r.ReadI32()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "message: len")
	}
	content, err := r.Read(int(length))
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "message: content")
	}
	contentCopy := make([]byte, len(content))
	copy(contentCopy, content)
	return LogicalMessage{
		Transactional: flags&1 != 0,
		MessageLSN:    messageLSN,
		Prefix:        prefix,
		Content:       contentCopy,
	}, nil
}

// decodeTuple reads a tuple's field count and fields, dispatching on each
// field's kind byte. fallback supplies values for unchanged-TOAST ('u')
// fields when decoding a new-tuple following an 'O' old-tuple; it is nil
// for every other call site.
func (d *Decoder) decodeTuple(r *wire.Reader, rel Relation, fallback Tuple) (Tuple, error) {
	nFields, err := r.ReadI16()
	if err != nil {
		return nil, protoerr.WrapProtocolError(err, "tuple: field count")
	}
	if int(nFields) != len(rel.Columns) {
		return nil, protoerr.NewProtocolError(
			"tuple field count %d does not match relation %q column count %d", nFields, rel.Name, len(rel.Columns))
	}

	tuple := make(Tuple, nFields)
	for i := int16(0); i < nFields; i++ {
		col := rel.Columns[i]
		kind, err := r.ReadU8()
		if err != nil {
			return nil, protoerr.WrapProtocolError(err, "tuple: field kind")
		}
		switch kind {
		case fieldKindNull:
			tuple[col.Name] = nil
		case fieldKindText:
			length, err := r.ReadI32()
			if err != nil {
				return nil, protoerr.WrapProtocolError(err, "tuple: text field length")
			}
			raw, err := r.Read(int(length))
			if err != nil {
				return nil, protoerr.WrapProtocolError(err, "tuple: text field data")
			}
			val, err := col.Parse(string(raw))
			if err != nil {
				return nil, protoerr.WrapProtocolError(err, "tuple: parse column %q", col.Name)
			}
			tuple[col.Name] = val
		case fieldKindBinary:
			length, err := r.ReadI32()
			if err != nil {
				return nil, protoerr.WrapProtocolError(err, "tuple: binary field length")
			}
			raw, err := r.Read(int(length))
			if err != nil {
				return nil, protoerr.WrapProtocolError(err, "tuple: binary field data")
			}
			rawCopy := make([]byte, len(raw))
			copy(rawCopy, raw)
			tuple[col.Name] = rawCopy
		case fieldKindUnchanged:
			if fallback != nil {
				if v, ok := fallback[col.Name]; ok {
					tuple[col.Name] = v
				}
			}
			// else: genuinely absent, leave the key unset.
		default:
			return nil, protoerr.NewProtocolError("tuple: unknown field kind %q", rune(kind))
		}
	}
	return tuple, nil
}

// projectKeyTuple retains only the relation's key columns, reinterpreting a
// null at a key position as "this is a placeholder for a non-key column"
// and omitting it. This matches spec.md §4.3's key-tuple post-processing.
func projectKeyTuple(tuple Tuple, keyColumns []string) Tuple {
	key := make(Tuple, len(keyColumns))
	for _, name := range keyColumns {
		if v, ok := tuple[name]; ok && v != nil {
			key[name] = v
		}
	}
	return key
}

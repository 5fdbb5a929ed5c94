package pgoutput

import (
	"time"

	"github.com/nikunjy/pgoutputd/lsn"
)

// ReplicaIdentity is a table's replica-identity mode, as seen in a Relation
// message.
type ReplicaIdentity byte

const (
	ReplicaIdentityDefault ReplicaIdentity = 'd'
	ReplicaIdentityNothing ReplicaIdentity = 'n'
	ReplicaIdentityFull    ReplicaIdentity = 'f'
	ReplicaIdentityIndex   ReplicaIdentity = 'i'
)

// String renders the replica identity using the names from spec.md §3.
func (r ReplicaIdentity) String() string {
	switch r {
	case ReplicaIdentityDefault:
		return "default"
	case ReplicaIdentityNothing:
		return "nothing"
	case ReplicaIdentityFull:
		return "full"
	case ReplicaIdentityIndex:
		return "index"
	default:
		return "unknown"
	}
}

// ColumnParser converts a column's text-encoded wire value into a Go value.
// The default registry (see the typeparser package) covers common scalar
// OIDs; unknown OIDs fall back to an identity passthrough.
type ColumnParser func(text string) (interface{}, error)

// TypeRegistry resolves a PostgreSQL type OID to a ColumnParser. It is the
// abstract collaborator described in spec.md §6 — the core never embeds a
// concrete OID table, it only calls through this interface once per column
// discovered in a Relation message.
type TypeRegistry interface {
	Parser(oid uint32) ColumnParser
}

// Column describes one column of a relation as seen in the replication
// stream.
type Column struct {
	Flags      uint8
	Name       string
	TypeOID    uint32
	TypeMod    int32
	TypeSchema string       // populated only if a Type message for TypeOID was seen first
	TypeName   string       // populated only if a Type message for TypeOID was seen first
	Parse      ColumnParser `json:"-"`
}

// IsKey reports whether this column is part of the table's replica-identity
// key (flags & 1 == 1).
func (c Column) IsKey() bool {
	return c.Flags&1 == 1
}

// Relation is a schema-qualified table description as emitted by a pgoutput
// Relation message. Relations are cached by OID for the session's lifetime
// and embedded by value in every subsequent tuple event that references
// them, so a Relation snapshot never changes out from under a consumer that
// is holding on to an old event.
type Relation struct {
	OID             uint32
	Schema          string
	Name            string
	ReplicaIdentity ReplicaIdentity
	Columns         []Column
	KeyColumns      []string
}

// CustomType is a cached {oid, schema, name} triple populated by Type
// messages. It enriches Column.TypeSchema/TypeName at the moment a Relation
// referencing the OID is parsed; Type messages arriving after the fact do
// not retroactively enrich already-cached relations (see spec.md §9, Open
// Questions).
type CustomType struct {
	TypeOID    uint32
	TypeSchema string
	TypeName   string
}

// Tuple is a decoded row: column name to value. A present key with a nil
// value means the wire carried an explicit null ('n'). A present key with a
// []byte value came from a binary ('b') field. An absent key means the
// field was an unchanged TOAST datum ('u') with no fallback tuple to
// recover the value from.
type Tuple map[string]interface{}

// MessageKind names the tag of a decoded pgoutput message, matching the
// ChangeEvent.Type vocabulary from spec.md §3.
type MessageKind string

const (
	KindBegin    MessageKind = "begin"
	KindCommit   MessageKind = "commit"
	KindOrigin   MessageKind = "origin"
	KindRelation MessageKind = "relation"
	KindType     MessageKind = "type"
	KindInsert   MessageKind = "insert"
	KindUpdate   MessageKind = "update"
	KindDelete   MessageKind = "delete"
	KindTruncate MessageKind = "truncate"
	KindMessage  MessageKind = "message"
)

// Message is the tagged-union of decoded pgoutput events. Concrete types
// below implement it.
type Message interface {
	Kind() MessageKind
}

// BeginMessage marks the start of a transaction.
type BeginMessage struct {
	CommitLSN  lsn.LSN
	CommitTime time.Time
	XID        uint32
}

func (BeginMessage) Kind() MessageKind { return KindBegin }

// CommitMessage marks the end of the transaction started by the matching
// BeginMessage (same CommitLSN).
type CommitMessage struct {
	Flags        uint8
	CommitLSN    lsn.LSN
	CommitEndLSN lsn.LSN
	CommitTime   time.Time
}

func (CommitMessage) Kind() MessageKind { return KindCommit }

// OriginMessage identifies the origin of replicated changes (used in
// cascading/bidirectional replication setups).
type OriginMessage struct {
	OriginLSN  lsn.LSN
	OriginName string
}

func (OriginMessage) Kind() MessageKind { return KindOrigin }

// TypeMessage announces a custom type's schema-qualified name; it updates
// the decoder's type cache but carries no directly consumer-visible value
// beyond that side effect.
type TypeMessage struct {
	TypeOID    uint32
	TypeSchema string
	TypeName   string
}

func (TypeMessage) Kind() MessageKind { return KindType }

// RelationMessage announces (or re-announces) a table's structure. It
// carries the full Relation snapshot that subsequent Insert/Update/Delete
// messages for this OID will embed by value.
type RelationMessage struct {
	Relation Relation
}

func (RelationMessage) Kind() MessageKind { return KindRelation }

// InsertMessage is a single-row INSERT.
type InsertMessage struct {
	Relation Relation
	New      Tuple
}

func (InsertMessage) Kind() MessageKind { return KindInsert }

// UpdateMessage is a single-row UPDATE. Key is non-nil only for the 'K'
// submessage variant; Old is non-nil only for the 'O' variant.
type UpdateMessage struct {
	Relation Relation
	Key      Tuple
	Old      Tuple
	New      Tuple
}

func (UpdateMessage) Kind() MessageKind { return KindUpdate }

// DeleteMessage is a single-row DELETE. Exactly one of Key/Old is non-nil,
// depending on whether the relation's replica identity supplied a key-only
// ('K') or full old-row ('O') submessage.
type DeleteMessage struct {
	Relation Relation
	Key      Tuple
	Old      Tuple
}

func (DeleteMessage) Kind() MessageKind { return KindDelete }

// TruncateMessage is a TRUNCATE affecting one or more relations in a single
// statement.
type TruncateMessage struct {
	Relations       []Relation
	Cascade         bool
	RestartIdentity bool
}

func (TruncateMessage) Kind() MessageKind { return KindTruncate }

// LogicalMessage is a custom message emitted via pg_logical_emit_message,
// only present when the session was started with includeCustomMessages.
type LogicalMessage struct {
	Transactional bool
	MessageLSN    lsn.LSN
	Prefix        string
	Content       []byte
}

func (LogicalMessage) Kind() MessageKind { return KindMessage }

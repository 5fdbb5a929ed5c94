// Package replication implements the replication transport (C5) and the
// thin decode adaptor (C6) from spec.md §4.5-4.6: it owns the PostgreSQL
// replication connection, drives the START_REPLICATION handshake, exposes a
// pull-driven byte stream with manual backpressure, and layers typed
// ChangeEvent decoding on top of it.
package replication

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgproto3"
	"github.com/nikunjy/pgoutputd/lsn"
	"github.com/nikunjy/pgoutputd/protoerr"
	"github.com/nikunjy/pgoutputd/wire"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

// Options configures a Session. Every recognized option from spec.md §4.5
// is represented here.
type Options struct {
	// ClientConfig carries the opaque connection parameters (host, port,
	// database, credentials, application name, TLS) for the replication
	// connection. The caller is responsible for populating it (e.g. via
	// pgconn.ParseConfig); the session only sets the "replication" runtime
	// parameter on top of it.
	ClientConfig *pgconn.Config

	// SlotName is the replication slot to attach to. It is assumed to
	// already exist and to use the pgoutput plugin.
	SlotName string

	// PublicationName is the publication whose tables are streamed.
	PublicationName string

	// ProtocolVersion is the pgoutput protocol version. Only version 1 is
	// supported; zero is treated as 1 and any other value is a
	// construction-time error.
	ProtocolVersion int

	// LSN is the start position. The zero value means "the slot's restart
	// point".
	LSN lsn.LSN

	// IncludeCustomMessages, if true, passes messages 'true' to the plugin so
	// that logical-decoding Message ('M') events are emitted.
	IncludeCustomMessages bool

	// Logger receives session lifecycle events. A nil Logger disables
	// logging.
	Logger logrus.FieldLogger
}

// Session owns a PostgreSQL logical-replication connection. It is a scoped
// resource: construct with Open, terminate exactly once with Dispose.
type Session struct {
	opts Options
	log  logrus.FieldLogger

	mu      sync.Mutex
	conn    *pgconn.PgConn
	aborted bool
}

// Open connects in `replication=database` mode, issues START_REPLICATION,
// and enters CopyBoth mode. No bytes are read from the socket until the
// first call to Pull.
func Open(ctx context.Context, opts Options) (*Session, error) {
	if opts.ProtocolVersion == 0 {
		opts.ProtocolVersion = 1
	}
	if opts.ProtocolVersion != 1 {
		return nil, protoerr.NewProtocolError("unsupported pgoutput protocol version %d", opts.ProtocolVersion)
	}
	if opts.SlotName == "" {
		return nil, errors.New("replication: slotName is required")
	}
	if opts.PublicationName == "" {
		return nil, errors.New("replication: publicationName is required")
	}
	log := opts.Logger
	if log == nil {
		log = logrus.StandardLogger()
	}

	cfg := opts.ClientConfig.Copy()
	if cfg.RuntimeParams == nil {
		cfg.RuntimeParams = map[string]string{}
	}
	cfg.RuntimeParams["replication"] = "database"

	conn, err := pgconn.ConnectConfig(ctx, cfg)
	if err != nil {
		return nil, protoerr.WrapTransportError(errors.Wrap(err, "replication: connect"))
	}

	s := &Session{opts: opts, log: log, conn: conn}

	log.WithFields(logrus.Fields{
		"slot":        opts.SlotName,
		"publication": opts.PublicationName,
		"startLSN":    opts.LSN.String(),
	}).Info("starting replication")

	if err := s.startReplication(ctx); err != nil {
		conn.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Session) startReplication(ctx context.Context) error {
	cmd := buildStartReplicationCommand(s.opts.SlotName, s.opts.LSN, s.opts.ProtocolVersion, s.opts.PublicationName, s.opts.IncludeCustomMessages)
	mrr := s.conn.Exec(ctx, cmd)
	_, err := mrr.ReadAll()
	if closeErr := mrr.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return protoerr.WrapTransportError(errors.Wrap(err, "replication: START_REPLICATION"))
	}
	return nil
}

// buildStartReplicationCommand renders the START_REPLICATION statement.
// Per spec.md §4.5 this is literal interpolation; the caller is responsible
// for validating slotName/publicationName do not contain characters that
// would break out of the quoting (they are typically validated identifiers
// supplied by configuration, not untrusted user input).
func buildStartReplicationCommand(slotName string, startLSN lsn.LSN, protoVersion int, pubName string, includeMessages bool) string {
	lsnStr := "0/0"
	if !startLSN.IsZero() {
		lsnStr = startLSN.String()
	}
	return fmt.Sprintf(
		`START_REPLICATION SLOT "%s" LOGICAL %s (proto_version '%d', publication_names '%s', messages '%s')`,
		slotName, lsnStr, protoVersion, pubName, strconv.FormatBool(includeMessages),
	)
}

// Pull blocks until the next complete CopyData frame is available, the
// context is cancelled, or the session ends. It returns the raw frame
// payload (the envelope tag byte and everything after it) with no further
// decoding — pair with an EnvelopeDecoder via Stream for typed events.
//
// Exactly one frame is returned per call: this is the session's manual
// backpressure, there is no internal read-ahead.
func (s *Session) Pull(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return nil, protoerr.ErrCleanEnd
	}
	conn := s.conn
	s.mu.Unlock()

	for {
		msg, err := conn.ReceiveMessage(ctx)
		if err != nil {
			return nil, s.classifyReceiveError(err)
		}

		switch m := msg.(type) {
		case *pgproto3.CopyData:
			if len(m.Data) == 0 {
				continue
			}
			return m.Data, nil
		case *pgproto3.ErrorResponse:
			return nil, protoerr.WrapTransportError(errors.Errorf("postgres error: %s", m.Message))
		case *pgproto3.CopyDone, *pgproto3.CommandComplete:
			return nil, protoerr.ErrCleanEnd
		default:
			s.log.WithField("message", fmt.Sprintf("%T", m)).Warn("unexpected message during replication")
			continue
		}
	}
}

// classifyReceiveError turns a transport-level receive failure into either
// the CleanEnd sentinel (server-initiated clean disconnect, or we're
// already aborted and a concurrent Dispose is draining the connection) or a
// TransportError.
func (s *Session) classifyReceiveError(err error) error {
	s.mu.Lock()
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		return protoerr.ErrCleanEnd
	}
	if strings.Contains(err.Error(), "Connection terminated") {
		return protoerr.ErrCleanEnd
	}
	return protoerr.WrapTransportError(err)
}

// Acknowledge builds a standby-status-update packet for lsnStr and writes
// it to the CopyBoth writable side. It is idempotent to skip calls;
// acknowledging LSN X implicitly acknowledges all LSNs below it.
func (s *Session) Acknowledge(ctx context.Context, lsnStr string) error {
	parsed, err := lsn.Parse(lsnStr)
	if err != nil {
		return protoerr.NewProtocolError("acknowledge: %s", err)
	}

	s.mu.Lock()
	conn := s.conn
	aborted := s.aborted
	s.mu.Unlock()
	if aborted {
		return nil
	}

	clockMicros := wire.ClockMicrosSinceUnixMillis(time.Now().UnixMilli())
	packet := wire.BuildAckPacket(parsed, clockMicros)

	conn.Frontend().Send(&pgproto3.CopyData{Data: packet})
	if err := conn.Frontend().Flush(); err != nil {
		return protoerr.WrapTransportError(errors.Wrap(err, "acknowledge: flush"))
	}
	s.log.WithField("lsn", lsnStr).Debug("sent standby status update")
	return nil
}

// Dispose performs the one-shot termination discipline from spec.md §4.5:
// mark aborted so further transport events are suppressed, send an
// end-of-copy packet, and close the connection. It is idempotent.
func (s *Session) Dispose(ctx context.Context) error {
	s.mu.Lock()
	if s.aborted {
		s.mu.Unlock()
		return nil
	}
	s.aborted = true
	conn := s.conn
	s.mu.Unlock()

	if conn == nil {
		return nil
	}

	conn.Frontend().Send(&pgproto3.CopyDone{})
	_ = conn.Frontend().Flush() // best-effort; we're closing regardless

	if err := conn.Close(ctx); err != nil {
		return protoerr.WrapTransportError(errors.Wrap(err, "dispose: close"))
	}
	s.log.Info("replication session disposed")
	return nil
}

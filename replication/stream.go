package replication

import (
	"context"

	"github.com/nikunjy/pgoutputd/pgoutput"
)

// Stream is the DecoderStage (C6): a trivial adaptor that pipes a Session's
// raw byte frames through an EnvelopeDecoder and yields typed Frames. It
// does no buffering or reassembly — frames are already message-aligned by
// the Session.
type Stream struct {
	session *Session
	decoder *pgoutput.EnvelopeDecoder
}

// NewStream pairs a Session with a fresh pgoutput decoder backed by the
// given type registry.
func NewStream(session *Session, registry pgoutput.TypeRegistry) *Stream {
	return &Stream{
		session: session,
		decoder: pgoutput.NewEnvelopeDecoder(pgoutput.NewDecoder(registry)),
	}
}

// Next pulls the next frame from the session and decodes it. Callers drive
// the whole stream by calling Next in a loop until it returns an error.
func (s *Stream) Next(ctx context.Context) (pgoutput.Frame, error) {
	raw, err := s.session.Pull(ctx)
	if err != nil {
		return pgoutput.Frame{}, err
	}
	return s.decoder.Decode(raw)
}

// Acknowledge delegates to the underlying session.
func (s *Stream) Acknowledge(ctx context.Context, lsnStr string) error {
	return s.session.Acknowledge(ctx, lsnStr)
}

// Dispose delegates to the underlying session.
func (s *Stream) Dispose(ctx context.Context) error {
	return s.session.Dispose(ctx)
}

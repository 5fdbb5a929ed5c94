package pgoutput

import (
	"time"

	"github.com/nikunjy/pgoutputd/lsn"
	"github.com/nikunjy/pgoutputd/protoerr"
	"github.com/nikunjy/pgoutputd/wire"
)

// outer CopyData envelope tag bytes.
const (
	envelopeTagKeepalive byte = 'k'
	envelopeTagWalData   byte = 'w'
)

// FrameKind names the outer envelope variant.
type FrameKind string

const (
	FrameKeepalive FrameKind = "keepalive"
	FrameWalData   FrameKind = "waldata"
)

// Frame is the decoded outer WAL envelope: either a primary keepalive or a
// WAL-data frame carrying a decoded pgoutput Message.
type Frame struct {
	Kind          FrameKind
	CurrentLSN    lsn.LSN
	SystemTime    time.Time
	ShouldRespond bool // keepalive only

	MessageLSN lsn.LSN // waldata only
	Payload    Message // waldata only
}

// EnvelopeDecoder decodes the outer CopyData-payload envelope and delegates
// WAL-data payloads to an inner pgoutput Decoder.
type EnvelopeDecoder struct {
	inner *Decoder
}

// NewEnvelopeDecoder wraps a pgoutput Decoder with outer-envelope decoding.
func NewEnvelopeDecoder(inner *Decoder) *EnvelopeDecoder {
	return &EnvelopeDecoder{inner: inner}
}

// Decode parses one CopyData payload (without its leading CopyData framing,
// just the envelope tag and body) into a Frame.
func (e *EnvelopeDecoder) Decode(payload []byte) (Frame, error) {
	r := wire.NewReader(payload)
	tag, err := r.ReadU8()
	if err != nil {
		return Frame{}, protoerr.WrapProtocolError(err, "empty WAL envelope")
	}

	switch tag {
	case envelopeTagKeepalive:
		currentLSN, err := r.ReadLSN()
		if err != nil {
			return Frame{}, protoerr.WrapProtocolError(err, "keepalive: currentLsn")
		}
		systemTime, err := r.ReadTimestamp()
		if err != nil {
			return Frame{}, protoerr.WrapProtocolError(err, "keepalive: systemTime")
		}
		shouldRespond, err := r.ReadU8()
		if err != nil {
			return Frame{}, protoerr.WrapProtocolError(err, "keepalive: shouldRespond")
		}
		return Frame{
			Kind:          FrameKeepalive,
			CurrentLSN:    currentLSN,
			SystemTime:    systemTime,
			ShouldRespond: shouldRespond == 1,
		}, nil

	case envelopeTagWalData:
		messageLSN, err := r.ReadLSN()
		if err != nil {
			return Frame{}, protoerr.WrapProtocolError(err, "waldata: messageLsn")
		}
		currentLSN, err := r.ReadLSN()
		if err != nil {
			return Frame{}, protoerr.WrapProtocolError(err, "waldata: currentLsn")
		}
		systemTime, err := r.ReadTimestamp()
		if err != nil {
			return Frame{}, protoerr.WrapProtocolError(err, "waldata: systemTime")
		}
		payload, err := e.inner.Decode(r.Remaining())
		if err != nil {
			return Frame{}, err
		}
		return Frame{
			Kind:       FrameWalData,
			MessageLSN: messageLSN,
			CurrentLSN: currentLSN,
			SystemTime: systemTime,
			Payload:    payload,
		}, nil

	default:
		return Frame{}, protoerr.NewProtocolError("unexpected WAL envelope tag %q", rune(tag))
	}
}

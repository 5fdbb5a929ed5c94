package api

import (
	jsoniter "github.com/json-iterator/go"
	"github.com/nikunjy/pgoutputd/pgoutput"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// eventEnvelope is the wire shape pushed to websocket/SSE subscribers: a
// flat discriminated union, since pgoutput.Frame's Payload field is an
// interface and would otherwise lose its message-kind tag across JSON.
type eventEnvelope struct {
	Kind       string      `json:"kind"`
	CurrentLSN string      `json:"currentLsn"`
	MessageLSN string      `json:"messageLsn,omitempty"`
	Payload    interface{} `json:"payload,omitempty"`
}

// encodeFrame renders a decoded Frame as JSON using json-iterator, the
// teacher's own JSON dependency.
func encodeFrame(frame pgoutput.Frame) ([]byte, error) {
	env := eventEnvelope{
		Kind:       string(frame.Kind),
		CurrentLSN: frame.CurrentLSN.String(),
	}
	if frame.Kind == pgoutput.FrameWalData {
		env.MessageLSN = frame.MessageLSN.String()
		env.Payload = framePayload(frame.Payload)
	}
	return json.Marshal(env)
}

// framePayload adds a "type" discriminator alongside a Message's own
// fields so clients can dispatch without reflecting on Go's dynamic type.
func framePayload(msg pgoutput.Message) map[string]interface{} {
	if msg == nil {
		return nil
	}
	raw, err := json.Marshal(msg)
	if err != nil {
		return map[string]interface{}{"type": string(msg.Kind()), "error": err.Error()}
	}
	var fields map[string]interface{}
	if err := json.Unmarshal(raw, &fields); err != nil {
		return map[string]interface{}{"type": string(msg.Kind())}
	}
	fields["type"] = string(msg.Kind())
	return fields
}

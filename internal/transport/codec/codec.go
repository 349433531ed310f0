// Package codec implements the opaque wire envelope grpc relies on to
// carry MINHTON messages without binding the protocol to protobuf
// (spec.md §1: "opaque codec"). Envelope is a flat byte-oriented
// struct; grpctransport registers EnvelopeCodec as the grpc.Codec so
// the RPC plumbing itself stays real grpc while the payload encoding
// is a pluggable collaborator.
package codec

import (
	"bytes"
	"encoding/gob"
	"fmt"

	"minhton/internal/mdomain"
)

// Envelope is what actually crosses the wire for every Deliver call:
// the message header plus a gob-encoded, type-tagged payload.
type Envelope struct {
	Header      mdomain.Header
	PayloadType mdomain.MsgType
	PayloadGob  []byte
}

// Encode serializes header+payload into an Envelope ready for
// transmission.
func Encode(h mdomain.Header, payload any) (*Envelope, error) {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(&payload); err != nil {
		return nil, fmt.Errorf("codec: encode payload: %w", err)
	}
	return &Envelope{Header: h, PayloadType: h.Type, PayloadGob: buf.Bytes()}, nil
}

// Decode reconstructs the payload into a pointer of the caller's
// choosing (the caller knows, from Header.Type, which concrete message
// struct to allocate — see mdomain.NewPayload).
func Decode(e *Envelope, out any) error {
	return gob.NewDecoder(bytes.NewReader(e.PayloadGob)).Decode(out)
}

// Name is the grpc codec name registered via encoding.RegisterCodec,
// analogous to the teacher's "proto" codec registration but naming a
// codec that never touches protobuf wire format.
const Name = "minhton-envelope"

// GRPCCodec implements google.golang.org/grpc/encoding.Codec by
// gob-encoding the Envelope itself (a second layer around the
// payload's own gob encoding, matching spec.md's requirement that the
// header and transport framing stay independent of whatever the
// payload codec is).
type GRPCCodec struct{}

func (GRPCCodec) Marshal(v any) ([]byte, error) {
	env, ok := v.(*Envelope)
	if !ok {
		return nil, fmt.Errorf("codec: Marshal: unsupported type %T", v)
	}
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(env); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (GRPCCodec) Unmarshal(data []byte, v any) error {
	env, ok := v.(*Envelope)
	if !ok {
		return fmt.Errorf("codec: Unmarshal: unsupported type %T", v)
	}
	return gob.NewDecoder(bytes.NewReader(data)).Decode(env)
}

func (GRPCCodec) Name() string { return Name }

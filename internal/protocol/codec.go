package protocol

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Codec turns envelopes into websocket payloads and back.
type Codec interface {
	Name() string
	// Binary reports whether payloads go in binary frames.
	Binary() bool
	Marshal(env Envelope) ([]byte, error)
	Unmarshal(data []byte, env *Envelope) error
}

var (
	// JSON is the default codec, sent in text frames.
	JSON Codec = jsonCodec{}
	// CBOR is the compact codec, sent in binary frames.
	CBOR Codec = cborCodec{}
)

// CodecByName returns the codec with the given name. The empty name selects
// JSON.
func CodecByName(name string) (Codec, error) {
	switch name {
	case "", "json":
		return JSON, nil
	case "cbor":
		return CBOR, nil
	}
	return nil, fmt.Errorf("protocol: unknown codec %q", name)
}

type jsonCodec struct{}

func (jsonCodec) Name() string { return "json" }
func (jsonCodec) Binary() bool { return false }

func (jsonCodec) Marshal(env Envelope) ([]byte, error) { return json.Marshal(env) }

func (jsonCodec) Unmarshal(data []byte, env *Envelope) error {
	if err := json.Unmarshal(data, env); err != nil {
		return fmt.Errorf("decode json envelope: %w", err)
	}
	return nil
}

type cborCodec struct{}

func (cborCodec) Name() string { return "cbor" }
func (cborCodec) Binary() bool { return true }

func (cborCodec) Marshal(env Envelope) ([]byte, error) { return cbor.Marshal(env) }

func (cborCodec) Unmarshal(data []byte, env *Envelope) error {
	if err := cbor.Unmarshal(data, env); err != nil {
		return fmt.Errorf("decode cbor envelope: %w", err)
	}
	return nil
}

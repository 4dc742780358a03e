package storage

import (
	"encoding/json"
	"fmt"
)

const (
	envelopeVer    = 1
	envelopeScheme = "json"
)

// Envelope is a stored record: a JSON document plus the version used for
// compare-and-swap writes.
type Envelope struct {
	Ver     int    `json:"ver"`
	Scheme  string `json:"scheme"`
	Data    []byte `json:"data"`
	Version uint64 `json:"version,omitempty"`
}

// SealJSON encodes v into an Envelope carrying the given record version.
func SealJSON(v any, version uint64) (*Envelope, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encoding record: %w", err)
	}
	return &Envelope{
		Ver:     envelopeVer,
		Scheme:  envelopeScheme,
		Data:    data,
		Version: version,
	}, nil
}

// OpenJSON decodes the Envelope's document into v.
func OpenJSON(envelope *Envelope, v any) error {
	if envelope == nil {
		return ErrNotFound
	}
	if envelope.Ver != envelopeVer {
		return fmt.Errorf("unsupported envelope version: %d", envelope.Ver)
	}
	if envelope.Scheme != envelopeScheme {
		return fmt.Errorf("unsupported envelope scheme: %s", envelope.Scheme)
	}
	if err := json.Unmarshal(envelope.Data, v); err != nil {
		return fmt.Errorf("decoding record: %w", err)
	}
	return nil
}

package jobq

import (
	"encoding/json"

	"github.com/bytedance/sonic"
)

// Encoder defines the interface for job (de)serialization at the API edges.
type Encoder interface {
	// Encode serializes a value to bytes.
	Encode(any) ([]byte, error)
	// Decode deserializes bytes to a value.
	Decode([]byte, any) error
}

// JSONEncoder is the default implementation of Encoder using JSON.
// It uses standard library for encoding and sonic for decoding.
type JSONEncoder struct{}

// Encode serializes a value to JSON using standard library.
func (*JSONEncoder) Encode(v any) ([]byte, error) {
	return json.Marshal(v)
}

// Decode deserializes JSON bytes using sonic.
func (*JSONEncoder) Decode(data []byte, v any) error {
	return sonic.Unmarshal(data, v)
}

// EnqueueRequest is the wire form of an enqueue call, shared by the CLI and HTTP API.
type EnqueueRequest struct {
	ID         string `json:"id,omitempty"`
	Command    string `json:"command"`
	MaxRetries *int   `json:"max_retries,omitempty"`
	// Delay is a Go duration string such as "30s".
	Delay string `json:"delay,omitempty"`
}

// Options converts the request into Enqueue options.
func (r EnqueueRequest) Options() ([]Option, error) {
	var opts []Option
	if r.ID != "" {
		opts = append(opts, JobID(r.ID))
	}
	if r.MaxRetries != nil {
		opts = append(opts, MaxRetries(*r.MaxRetries))
	}
	if r.Delay != "" {
		d, err := parseDelay(r.Delay)
		if err != nil {
			return nil, err
		}
		opts = append(opts, Delay(d))
	}
	return opts, nil
}

package signing

import (
	"bytes"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/moddyapp/signproxy/canonical"
)

// Vector is a recorded canonicalization and signature case, shared with
// the backend verifier to catch format drift.
type Vector struct {
	Name      string `yaml:"name"`
	Secret    string `yaml:"secret"`
	RequestID string `yaml:"request_id"`
	ASCII     bool   `yaml:"ascii,omitempty"`

	// Body is JSON text. An empty body stands for {}.
	Body string `yaml:"body"`

	Canonical string `yaml:"canonical"`
	Signature string `yaml:"signature"`
}

type vectorFile struct {
	Vectors []Vector `yaml:"vectors"`
}

// LoadVectors reads a YAML vector file.
func LoadVectors(r io.Reader) ([]Vector, error) {
	var f vectorFile

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("signing: decode vectors: %w", err)
	}

	return f.Vectors, nil
}

// Check recomputes the canonical bytes and signature of v and compares
// them with the recorded values.
func (v Vector) Check() error {
	body, err := v.body()
	if err != nil {
		return err
	}

	opts := canonical.Options{ASCII: v.ASCII}

	got, err := canonical.Payload{RequestID: v.RequestID, Body: body}.BytesWith(opts)
	if err != nil {
		return err
	}

	if !bytes.Equal(got, []byte(v.Canonical)) {
		return fmt.Errorf("%w: %s: canonical bytes %q, want %q", ErrVectorMismatch, v.Name, got, v.Canonical)
	}

	verifier, err := NewVerifier([]byte(v.Secret), opts)
	if err != nil {
		return err
	}

	if err := verifier.Verify(v.RequestID, body, v.Signature); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrVectorMismatch, v.Name, err)
	}

	return nil
}

func (v Vector) body() (any, error) {
	if v.Body == "" {
		return map[string]any{}, nil
	}

	return canonical.Decode([]byte(v.Body))
}

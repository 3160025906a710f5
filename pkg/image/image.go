// Package image serializes compiled programs to a single-file binary
// image: a fixed magic header followed by a CBOR-encoded envelope holding
// the bytecode, the resolved label table, and the entry offset. Images let
// an embedder compile once and execute many times without the front end.
package image

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/fxamacker/cbor/v2"

	"quill/pkg/compiler"
)

// Magic identifies a Quill image file.
var Magic = [4]byte{'Q', 'I', 'm', 'g'}

// Version is the image format version.
// v1: initial format (code, labels, entry, source name)
const Version uint32 = 1

// envelope is the CBOR payload following the magic bytes.
type envelope struct {
	Version uint32            `cbor:"version"`
	Source  string            `cbor:"source"`
	Entry   uint32            `cbor:"entry"`
	Labels  map[string]uint32 `cbor:"labels"`
	Code    []byte            `cbor:"code"`
}

// Write serializes a compiled program to w. Source names the origin of the
// program (a file path or "<eval>") and is informational.
func Write(w io.Writer, p *compiler.Program, source string) error {
	if _, err := w.Write(Magic[:]); err != nil {
		return fmt.Errorf("image: writing magic: %w", err)
	}
	payload, err := cbor.Marshal(envelope{
		Version: Version,
		Source:  source,
		Entry:   p.Entry,
		Labels:  p.Labels,
		Code:    p.Code,
	})
	if err != nil {
		return fmt.Errorf("image: encoding envelope: %w", err)
	}
	if _, err := w.Write(payload); err != nil {
		return fmt.Errorf("image: writing envelope: %w", err)
	}
	return nil
}

// Read deserializes a compiled program from r. It returns the program and
// the recorded source name.
func Read(r io.Reader) (*compiler.Program, string, error) {
	var magic [4]byte
	if _, err := io.ReadFull(r, magic[:]); err != nil {
		return nil, "", fmt.Errorf("image: reading magic: %w", err)
	}
	if !bytes.Equal(magic[:], Magic[:]) {
		return nil, "", fmt.Errorf("image: bad magic % x", magic)
	}

	payload, err := io.ReadAll(r)
	if err != nil {
		return nil, "", fmt.Errorf("image: reading envelope: %w", err)
	}
	var env envelope
	if err := cbor.Unmarshal(payload, &env); err != nil {
		return nil, "", fmt.Errorf("image: decoding envelope: %w", err)
	}
	if env.Version != Version {
		return nil, "", fmt.Errorf("image: unsupported version %d (want %d)", env.Version, Version)
	}
	return &compiler.Program{
		Code:   env.Code,
		Labels: env.Labels,
		Entry:  env.Entry,
	}, env.Source, nil
}

// WriteFile serializes a compiled program to path.
func WriteFile(path string, p *compiler.Program, source string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("image: %w", err)
	}
	if err := Write(f, p, source); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// ReadFile deserializes a compiled program from path.
func ReadFile(path string) (*compiler.Program, string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("image: %w", err)
	}
	defer f.Close()
	return Read(f)
}

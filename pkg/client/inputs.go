package client

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"cwlclient/pkg/apperrors"
)

// InputValue is one binding in a job's input description: a scalar, a single
// file reference, or an array of file references. The variant is closed;
// only the three types in this package implement it.
type InputValue interface {
	isInputValue()
}

// Scalar is a plain workflow input value (string, number or bool).
type Scalar struct {
	Value any
}

func (Scalar) isInputValue() {}

// FileRef points at an uploaded file in the job's remote input directory.
// Secondary files keep their append order; the order is significant to the
// workflow engine.
type FileRef struct {
	Location       string
	Basename       string
	SecondaryFiles []FileRef
}

func (FileRef) isInputValue() {}

// FileArray is an array-typed file input.
type FileArray []FileRef

func (FileArray) isInputValue() {}

// fileRefJSON is the wire form of a file reference.
type fileRefJSON struct {
	Class          string        `json:"class"`
	Location       string        `json:"location"`
	Basename       string        `json:"basename"`
	SecondaryFiles []fileRefJSON `json:"secondaryFiles,omitempty"`
}

func toWire(f FileRef) fileRefJSON {
	w := fileRefJSON{Class: "File", Location: f.Location, Basename: f.Basename}
	for _, s := range f.SecondaryFiles {
		w.SecondaryFiles = append(w.SecondaryFiles, toWire(s))
	}
	return w
}

func fromWire(w fileRefJSON) FileRef {
	f := FileRef{Location: w.Location, Basename: w.Basename}
	for _, s := range w.SecondaryFiles {
		f.SecondaryFiles = append(f.SecondaryFiles, fromWire(s))
	}
	return f
}

// MarshalJSON serializes the reference as a CWL File object.
func (f FileRef) MarshalJSON() ([]byte, error) {
	return json.Marshal(toWire(f))
}

// UnmarshalJSON parses a CWL File object.
func (f *FileRef) UnmarshalJSON(data []byte) error {
	var w fileRefJSON
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*f = fromWire(w)
	return nil
}

// Bindings maps input names to their values. Keys are unique; a repeated
// bind overwrites the whole entry.
type Bindings map[string]InputValue

// MarshalJSON writes the input description the service expects: scalars as
// bare values, file references as File objects, arrays as arrays of File
// objects.
func (b Bindings) MarshalJSON() ([]byte, error) {
	out := make(map[string]json.RawMessage, len(b))
	for name, value := range b {
		var (
			raw []byte
			err error
		)
		switch v := value.(type) {
		case Scalar:
			raw, err = json.Marshal(v.Value)
		case FileRef:
			raw, err = json.Marshal(v)
		case FileArray:
			refs := make([]fileRefJSON, 0, len(v))
			for _, f := range v {
				refs = append(refs, toWire(f))
			}
			raw, err = json.Marshal(refs)
		default:
			err = fmt.Errorf("unsupported input value %T for %q", value, name)
		}
		if err != nil {
			return nil, err
		}
		out[name] = raw
	}
	return json.Marshal(out)
}

// UnmarshalJSON reconstructs bindings from a job record. Objects tagged
// class File become FileRefs, arrays become FileArrays, everything else is
// kept as a scalar.
func (b *Bindings) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	out := make(Bindings, len(raw))
	for name, msg := range raw {
		value, err := decodeInputValue(msg)
		if err != nil {
			return fmt.Errorf("input %q: %w", name, err)
		}
		out[name] = value
	}
	*b = out
	return nil
}

func decodeInputValue(msg json.RawMessage) (InputValue, error) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return Scalar{}, nil
	}

	switch trimmed[0] {
	case '{':
		var w fileRefJSON
		if err := json.Unmarshal(trimmed, &w); err != nil {
			return nil, err
		}
		if w.Class == "File" {
			return fromWire(w), nil
		}
		// Not a File object; keep it as an opaque scalar.
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, err
		}
		return Scalar{Value: v}, nil
	case '[':
		var ws []fileRefJSON
		if err := json.Unmarshal(trimmed, &ws); err != nil {
			return nil, err
		}
		arr := make(FileArray, 0, len(ws))
		for _, w := range ws {
			arr = append(arr, fromWire(w))
		}
		return arr, nil
	default:
		var v any
		if err := json.Unmarshal(trimmed, &v); err != nil {
			return nil, err
		}
		return Scalar{Value: v}, nil
	}
}

// FileSource names a local piece of content to upload: a filesystem path, or
// an in-memory name plus reader. Sources are resolved to a basename and a
// byte stream right before upload.
type FileSource interface {
	open() (string, io.ReadCloser, error)
}

type pathSource string

// PathSource uploads the file at path under its basename.
func PathSource(path string) FileSource {
	return pathSource(path)
}

func (p pathSource) open() (string, io.ReadCloser, error) {
	f, err := os.Open(string(p))
	if err != nil {
		return "", nil, apperrors.FileNotFound(string(p), err)
	}
	return filepath.Base(string(p)), f, nil
}

type namedSource struct {
	name string
	r    io.Reader
}

// NamedSource uploads the contents of r under the given name.
func NamedSource(name string, r io.Reader) FileSource {
	return namedSource{name: name, r: r}
}

// BytesSource uploads data under the given name.
func BytesSource(name string, data []byte) FileSource {
	return namedSource{name: name, r: bytes.NewReader(data)}
}

func (n namedSource) open() (string, io.ReadCloser, error) {
	return n.name, io.NopCloser(n.r), nil
}

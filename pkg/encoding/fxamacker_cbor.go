// Package encoding serializes proofs and records as canonical CBOR.
package encoding

import (
	"bytes"
	"io"

	cbor "github.com/fxamacker/cbor/v2"
	"golang.org/x/xerrors"
)

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	// canonical mode sorts map keys, so equal values always encode to equal bytes.
	if encMode, err = cbor.CanonicalEncOptions().EncMode(); err != nil {
		panic(err)
	}
	if decMode, err = (cbor.DecOptions{MaxArrayElements: 1 << 24}).DecMode(); err != nil {
		panic(err)
	}
}

// Encode returns the canonical CBOR encoding of obj. Objects implementing a
// streamed MarshalCBOR are encoded through it.
func Encode(obj interface{}) ([]byte, error) {
	if m, ok := obj.(cborMarshalerStreamed); ok {
		var b bytes.Buffer
		if err := m.MarshalCBOR(&b); err != nil {
			return nil, err
		}
		return b.Bytes(), nil
	}
	raw, err := encMode.Marshal(obj)
	if err != nil {
		return nil, xerrors.Errorf("cbor encode %T: %w", obj, err)
	}
	return raw, nil
}

// Decode fills obj from raw.
func Decode(raw []byte, obj interface{}) error {
	if u, ok := obj.(cborUnmarshalerStreamed); ok {
		return u.UnmarshalCBOR(bytes.NewReader(raw))
	}
	if err := decMode.Unmarshal(raw, obj); err != nil {
		return xerrors.Errorf("cbor decode %T: %w", obj, err)
	}
	return nil
}

// NewStreamEncoder writes a sequence of CBOR items to w.
func NewStreamEncoder(w io.Writer) *cbor.Encoder {
	return encMode.NewEncoder(w)
}

// NewStreamDecoder reads a sequence of CBOR items from r.
func NewStreamDecoder(r io.Reader) *cbor.Decoder {
	return decMode.NewDecoder(r)
}

type cborUnmarshalerStreamed interface {
	UnmarshalCBOR(io.Reader) error
}

type cborMarshalerStreamed interface {
	MarshalCBOR(io.Writer) error
}

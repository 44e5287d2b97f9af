package bytecode

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// wireProgram mirrors Program but with a CBOR-friendly literal index:
// cbor has no native support for map[uint32]int keys under some modes,
// but more importantly we want the on-disk format to be stable and
// inspectable, so the side table is written as parallel key/value
// slices rather than a Go map.
type wireProgram struct {
	Code              []byte             `cbor:"code"`
	Literals          []Literal          `cbor:"literals"`
	IndexKeys         []uint32           `cbor:"index_keys"`
	IndexValues       []int              `cbor:"index_values"`
	ExceptionHandlers []ExceptionHandler `cbor:"exception_handlers"`
}

// Encode serialises a Program to CBOR, the format `emberjs run` and
// `emberjs dump` read and TestEncodeDecodeRoundTrip decodes back.
func Encode(p *Program) ([]byte, error) {
	w := wireProgram{Code: p.Code, Literals: p.Literals, ExceptionHandlers: p.ExceptionHandlers}
	for k, v := range p.LiteralIndex {
		w.IndexKeys = append(w.IndexKeys, k)
		w.IndexValues = append(w.IndexValues, v)
	}
	data, err := cbor.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("bytecode: encode: %w", err)
	}
	return data, nil
}

// Decode parses a Program previously produced by Encode.
func Decode(data []byte) (*Program, error) {
	var w wireProgram
	if err := cbor.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("bytecode: decode: %w", err)
	}
	if len(w.IndexKeys) != len(w.IndexValues) {
		return nil, fmt.Errorf("bytecode: decode: mismatched literal index arrays")
	}
	p := &Program{
		Code:              w.Code,
		Literals:          w.Literals,
		LiteralIndex:      make(map[uint32]int, len(w.IndexKeys)),
		ExceptionHandlers: w.ExceptionHandlers,
	}
	for i, k := range w.IndexKeys {
		p.LiteralIndex[k] = w.IndexValues[i]
	}
	return p, nil
}

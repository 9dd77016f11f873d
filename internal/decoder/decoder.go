// Package decoder implements the Wasm MVP binary decoder and validator
// (spec §4.1): parse(bytes) -> Module | ParseError. It produces the
// internal/wasm representation consumed by the linker, instance, and
// interpreter packages.
package decoder

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"unicode/utf8"

	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/wasm"
)

var magic = [4]byte{0x00, 0x61, 0x73, 0x6d} // "\0asm"

const version1 = 1

type sectionID byte

const (
	sectionCustom sectionID = iota
	sectionType
	sectionImport
	sectionFunction
	sectionTable
	sectionMemory
	sectionGlobal
	sectionExport
	sectionStart
	sectionElement
	sectionCode
	sectionData
)

// Options controls optional decoder behavior.
type Options struct {
	// EnablePeephole turns on the super-instruction fusion pass described
	// in spec §4.1's "Optimization opportunities". Off by default: fused
	// instructions are transparently equivalent but complicate comparing
	// decoded instruction streams in tests.
	EnablePeephole bool
}

// Parse decodes a complete Wasm binary module. It performs the structural
// and type validation spec §4.1 requires; it does not run any code.
func Parse(data []byte, opts Options) (*wasm.Module, error) {
	r := bytes.NewReader(data)

	var hdr [8]byte
	if n, err := r.Read(hdr[:]); err != nil || n != 8 {
		return nil, &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "truncated header"}
	}
	if !bytes.Equal(hdr[0:4], magic[:]) {
		return nil, &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "bad magic"}
	}
	if v := binary.LittleEndian.Uint32(hdr[4:8]); v != version1 {
		return nil, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: fmt.Sprintf("unsupported version %d", v)}
	}

	d := &decoderState{r: r, m: &wasm.Module{}}
	lastSection := sectionID(0)
	seenNonCustom := false
	for r.Len() > 0 {
		idByte, err := r.ReadByte()
		if err != nil {
			return nil, wrapEOF(err)
		}
		id := sectionID(idByte)
		size, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, &wasm.ParseError{Kind: wasm.ParseErrorLEBOverflow, Detail: "section size"}
		}
		body := make([]byte, size)
		if _, err := r.Read(body); err != nil {
			return nil, wrapEOF(err)
		}

		if id != sectionCustom {
			if seenNonCustom && id <= lastSection {
				return nil, &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "sections out of order"}
			}
			lastSection = id
			seenNonCustom = true
		}

		sr := bytes.NewReader(body)
		switch id {
		case sectionCustom:
			// Names and other custom sections are not meaningful to
			// execution; skip.
		case sectionType:
			if err := d.decodeTypeSection(sr); err != nil {
				return nil, err
			}
		case sectionImport:
			if err := d.decodeImportSection(sr); err != nil {
				return nil, err
			}
		case sectionFunction:
			if err := d.decodeFunctionSection(sr); err != nil {
				return nil, err
			}
		case sectionTable:
			if err := d.decodeTableSection(sr); err != nil {
				return nil, err
			}
		case sectionMemory:
			if err := d.decodeMemorySection(sr); err != nil {
				return nil, err
			}
		case sectionGlobal:
			if err := d.decodeGlobalSection(sr); err != nil {
				return nil, err
			}
		case sectionExport:
			if err := d.decodeExportSection(sr); err != nil {
				return nil, err
			}
		case sectionStart:
			if err := d.decodeStartSection(sr); err != nil {
				return nil, err
			}
		case sectionElement:
			if err := d.decodeElementSection(sr); err != nil {
				return nil, err
			}
		case sectionCode:
			if err := d.decodeCodeSection(sr, opts); err != nil {
				return nil, err
			}
		case sectionData:
			if err := d.decodeDataSection(sr); err != nil {
				return nil, err
			}
		default:
			return nil, &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: fmt.Sprintf("unknown section id %d", id)}
		}
	}

	if err := d.crossCheckCodeAgainstFunction(); err != nil {
		return nil, err
	}
	if err := validateModule(d.m); err != nil {
		return nil, err
	}
	return d.m, nil
}

type decoderState struct {
	r          *bytes.Reader
	m          *wasm.Module
	codeBodies [][]byte // raw code-section bodies, paired with d.m.Functions by index
}

func wrapEOF(err error) error {
	return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: err.Error()}
}

func readName(r *bytes.Reader) (string, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return "", &wasm.ParseError{Kind: wasm.ParseErrorLEBOverflow, Detail: "name length"}
	}
	buf := make([]byte, n)
	if _, err := r.Read(buf); err != nil {
		return "", wrapEOF(err)
	}
	if !utf8.Valid(buf) {
		return "", &wasm.ParseError{Kind: wasm.ParseErrorInvalidUTF8, Detail: "import/export name"}
	}
	return string(buf), nil
}

func (d *decoderState) crossCheckCodeAgainstFunction() error {
	if len(d.codeBodies) != len(d.m.Functions) {
		return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "function and code section counts differ"}
	}
	return nil
}

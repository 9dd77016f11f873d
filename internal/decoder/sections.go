package decoder

import (
	"bytes"

	"github.com/reef-runtime/reef/api"
	"github.com/reef-runtime/reef/internal/leb128"
	"github.com/reef-runtime/reef/internal/wasm"
)

const functionTypeForm = 0x60

func (d *decoderState) decodeTypeSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	d.m.Types = make([]*wasm.FunctionType, 0, count)
	for i := uint32(0); i < count; i++ {
		form, err := r.ReadByte()
		if err != nil {
			return wrapEOF(err)
		}
		if form != functionTypeForm {
			return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "type section: expected form 0x60"}
		}
		params, err := decodeValueTypes(r)
		if err != nil {
			return err
		}
		results, err := decodeValueTypes(r)
		if err != nil {
			return err
		}
		if len(results) > 1 {
			// Reef targets the 20191205 MVP: at most one result value.
			return &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "multi-value results"}
		}
		d.m.Types = append(d.m.Types, &wasm.FunctionType{Params: params, Results: results})
	}
	return nil
}

func decodeValueTypes(r *bytes.Reader) ([]api.ValueType, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapEOF(err)
	}
	out := make([]api.ValueType, n)
	for i := range out {
		b, err := r.ReadByte()
		if err != nil {
			return nil, wrapEOF(err)
		}
		if !isValueType(b) {
			return nil, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "unsupported value type"}
		}
		out[i] = b
	}
	return out, nil
}

func isValueType(b byte) bool {
	switch b {
	case api.ValueTypeI32, api.ValueTypeI64, api.ValueTypeF32, api.ValueTypeF64, api.ValueTypeFuncref:
		return true
	}
	return false
}

func decodeLimits(r *bytes.Reader) (min uint32, max *uint32, err error) {
	flag, err := r.ReadByte()
	if err != nil {
		return 0, nil, wrapEOF(err)
	}
	min, _, err = leb128.DecodeUint32(r)
	if err != nil {
		return 0, nil, wrapEOF(err)
	}
	if flag == 1 {
		m, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return 0, nil, wrapEOF(err)
		}
		max = &m
	} else if flag != 0 {
		return 0, nil, &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "bad limits flag"}
	}
	return min, max, nil
}

func (d *decoderState) decodeImportSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	for i := uint32(0); i < count; i++ {
		modName, err := readName(r)
		if err != nil {
			return err
		}
		fieldName, err := readName(r)
		if err != nil {
			return err
		}
		kind, err := r.ReadByte()
		if err != nil {
			return wrapEOF(err)
		}
		imp := &wasm.Import{Module: modName, Name: fieldName, Type: kind}
		switch kind {
		case api.ExternTypeFunc:
			idx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return wrapEOF(err)
			}
			imp.FuncTypeIndex = idx
			d.m.ImportedFunctionCount++
		case api.ExternTypeTable:
			tt, err := decodeTableType(r)
			if err != nil {
				return err
			}
			imp.Table = tt
			d.m.ImportedTableCount++
		case api.ExternTypeMemory:
			min, max, err := decodeLimits(r)
			if err != nil {
				return err
			}
			imp.Memory = &wasm.MemoryType{Min: min, Max: max}
			d.m.ImportedMemoryCount++
		case api.ExternTypeGlobal:
			gt, err := decodeGlobalType(r)
			if err != nil {
				return err
			}
			imp.Global = gt
			d.m.ImportedGlobalCount++
		default:
			return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "bad import kind"}
		}
		d.m.Imports = append(d.m.Imports, imp)
	}
	return nil
}

func decodeTableType(r *bytes.Reader) (*wasm.TableType, error) {
	elem, err := r.ReadByte()
	if err != nil {
		return nil, wrapEOF(err)
	}
	if elem != api.ValueTypeFuncref {
		return nil, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "non-funcref table"}
	}
	min, max, err := decodeLimits(r)
	if err != nil {
		return nil, err
	}
	return &wasm.TableType{ElemType: elem, Min: min, Max: max}, nil
}

func decodeGlobalType(r *bytes.Reader) (*wasm.GlobalType, error) {
	vt, err := r.ReadByte()
	if err != nil {
		return nil, wrapEOF(err)
	}
	if !isValueType(vt) {
		return nil, &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "unsupported global value type"}
	}
	mutFlag, err := r.ReadByte()
	if err != nil {
		return nil, wrapEOF(err)
	}
	return &wasm.GlobalType{ValType: vt, Mutable: mutFlag == 1}, nil
}

func (d *decoderState) decodeFunctionSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	d.m.Functions = make([]*wasm.Function, count)
	for i := uint32(0); i < count; i++ {
		typeIdx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapEOF(err)
		}
		if int(typeIdx) >= len(d.m.Types) {
			return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "function type index out of range"}
		}
		d.m.Functions[i] = &wasm.Function{TypeIndex: typeIdx, Type: d.m.Types[typeIdx]}
	}
	return nil
}

func (d *decoderState) decodeTableSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	if count > 1 {
		return &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "multiple tables"}
	}
	for i := uint32(0); i < count; i++ {
		tt, err := decodeTableType(r)
		if err != nil {
			return err
		}
		d.m.Tables = append(d.m.Tables, tt)
	}
	return nil
}

func (d *decoderState) decodeMemorySection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	if count > 1 {
		return &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "multiple memories"}
	}
	for i := uint32(0); i < count; i++ {
		min, max, err := decodeLimits(r)
		if err != nil {
			return err
		}
		d.m.Memories = append(d.m.Memories, &wasm.MemoryType{Min: min, Max: max})
	}
	return nil
}

func (d *decoderState) decodeGlobalSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	for i := uint32(0); i < count; i++ {
		gt, err := decodeGlobalType(r)
		if err != nil {
			return err
		}
		ce, err := decodeConstantExpression(r)
		if err != nil {
			return err
		}
		d.m.Globals = append(d.m.Globals, &wasm.Global{Type: gt, Init: ce})
	}
	return nil
}

func (d *decoderState) decodeExportSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	seen := map[string]bool{}
	for i := uint32(0); i < count; i++ {
		name, err := readName(r)
		if err != nil {
			return err
		}
		if seen[name] {
			return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "duplicate export name"}
		}
		seen[name] = true
		kind, err := r.ReadByte()
		if err != nil {
			return wrapEOF(err)
		}
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapEOF(err)
		}
		d.m.Exports = append(d.m.Exports, &wasm.Export{Name: name, Type: kind, Index: idx})
	}
	return nil
}

func (d *decoderState) decodeStartSection(r *bytes.Reader) error {
	idx, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	d.m.StartFunc = &idx
	return nil
}

func (d *decoderState) decodeElementSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	for i := uint32(0); i < count; i++ {
		flag, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapEOF(err)
		}
		seg := &wasm.ElementSegment{}
		switch flag {
		case 0: // active, table 0, funcidx* directly
			ce, err := decodeConstantExpression(r)
			if err != nil {
				return err
			}
			seg.Kind = wasm.ElementSegmentKindActive
			seg.TableIndex = 0
			seg.Offset = ce
			if seg.Init, err = decodeFuncIndexVec(r); err != nil {
				return err
			}
		case 1: // passive, elemkind + funcidx*
			if _, err := r.ReadByte(); err != nil { // elemkind, always funcref
				return wrapEOF(err)
			}
			seg.Kind = wasm.ElementSegmentKindPassive
			if seg.Init, err = decodeFuncIndexVec(r); err != nil {
				return err
			}
		case 2: // active, explicit table index
			tblIdx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return wrapEOF(err)
			}
			ce, err := decodeConstantExpression(r)
			if err != nil {
				return err
			}
			if _, err := r.ReadByte(); err != nil {
				return wrapEOF(err)
			}
			seg.Kind = wasm.ElementSegmentKindActive
			seg.TableIndex = tblIdx
			seg.Offset = ce
			if seg.Init, err = decodeFuncIndexVec(r); err != nil {
				return err
			}
		case 3: // declared
			if _, err := r.ReadByte(); err != nil {
				return wrapEOF(err)
			}
			seg.Kind = wasm.ElementSegmentKindDeclared
			if seg.Init, err = decodeFuncIndexVec(r); err != nil {
				return err
			}
		default:
			return &wasm.ParseError{Kind: wasm.ParseErrorUnsupportedFeature, Detail: "unsupported element segment encoding"}
		}
		d.m.Elements = append(d.m.Elements, seg)
	}
	return nil
}

func decodeFuncIndexVec(r *bytes.Reader) ([]uint32, error) {
	n, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return nil, wrapEOF(err)
	}
	out := make([]uint32, n)
	for i := range out {
		v, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, wrapEOF(err)
		}
		out[i] = v
	}
	return out, nil
}

func (d *decoderState) decodeDataSection(r *bytes.Reader) error {
	count, _, err := leb128.DecodeUint32(r)
	if err != nil {
		return wrapEOF(err)
	}
	for i := uint32(0); i < count; i++ {
		flag, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapEOF(err)
		}
		seg := &wasm.DataSegment{}
		switch flag {
		case 0:
			ce, err := decodeConstantExpression(r)
			if err != nil {
				return err
			}
			seg.Kind = wasm.DataSegmentKindActive
			seg.Offset = ce
		case 1:
			seg.Kind = wasm.DataSegmentKindPassive
		case 2:
			memIdx, _, err := leb128.DecodeUint32(r)
			if err != nil {
				return wrapEOF(err)
			}
			ce, err := decodeConstantExpression(r)
			if err != nil {
				return err
			}
			seg.Kind = wasm.DataSegmentKindActive
			seg.MemoryIndex = memIdx
			seg.Offset = ce
		default:
			return &wasm.ParseError{Kind: wasm.ParseErrorMalformedSection, Detail: "bad data segment flag"}
		}
		n, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return wrapEOF(err)
		}
		buf := make([]byte, n)
		if _, err := r.Read(buf); err != nil {
			return wrapEOF(err)
		}
		seg.Init = buf
		d.m.Data = append(d.m.Data, seg)
	}
	return nil
}

package sema

import (
	"minicc/pkg/cabs"
	"minicc/pkg/symbols"
	"minicc/pkg/types"
)

// decodeBasicType folds a declaration's keyword multiset into a Type,
// per spec §4.1.
func (a *Analyzer) decodeBasicType(spec cabs.BasicTypeSpec) (types.Type, error) {
	if spec.StructTag != "" {
		sym, ok := a.scope.LookupRecursive(symbols.StructKey(spec.StructTag))
		if !ok {
			return nil, errf(spec.Pos, "undefined struct %q", spec.StructTag)
		}
		return sym.Type, nil
	}

	has := spec.Has

	exclusiveCount := 0
	for _, k := range []cabs.TypeKeyword{cabs.KwVoid, cabs.KwChar, cabs.KwInt} {
		if has(k) {
			exclusiveCount++
		}
	}
	if exclusiveCount > 1 {
		return nil, errf(spec.Pos, "at most one of void, char, int may appear in a declaration")
	}

	if has(cabs.KwVoid) {
		for _, k := range []cabs.TypeKeyword{cabs.KwChar, cabs.KwInt, cabs.KwLong, cabs.KwShort, cabs.KwSigned, cabs.KwUnsigned} {
			if has(k) {
				return nil, errf(spec.Pos, "void must appear alone")
			}
		}
	}

	if has(cabs.KwLong) && has(cabs.KwShort) {
		return nil, errf(spec.Pos, "long and short are mutually exclusive")
	}
	if has(cabs.KwLong) && has(cabs.KwChar) {
		return nil, errf(spec.Pos, "long may only pair with int or nothing")
	}
	if has(cabs.KwShort) && has(cabs.KwChar) {
		return nil, errf(spec.Pos, "short may only pair with int or nothing")
	}
	if has(cabs.KwSigned) && has(cabs.KwUnsigned) {
		return nil, errf(spec.Pos, "signed and unsigned are mutually exclusive")
	}

	var kind types.Kind
	switch {
	case has(cabs.KwVoid):
		kind = types.Void
	case has(cabs.KwChar):
		kind = types.Char
	case has(cabs.KwLong):
		kind = types.Long
	case has(cabs.KwShort):
		kind = types.Short
	default:
		kind = types.Int
	}

	signed := !has(cabs.KwUnsigned)
	var t types.Type = types.NewBasic(kind, signed)

	var q types.Qualifier
	if has(cabs.KwConst) {
		q |= types.QConst
	}
	if has(cabs.KwVolatile) {
		q |= types.QVolatile
	}
	if q != 0 {
		t = types.NewQualified(t, q)
	}
	return t, nil
}

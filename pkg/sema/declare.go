package sema

import (
	"minicc/pkg/cabs"
	"minicc/pkg/symbols"
	"minicc/pkg/types"
)

// lowerDeclarator folds a Declarator over base left to right (spec §4.2):
// pointer levels, then an array suffix or a function parameter list.
func (a *Analyzer) lowerDeclarator(base types.Type, decl cabs.Declarator) (types.Type, error) {
	t := base
	for i := 0; i < decl.Pointers; i++ {
		t = types.NewPointer(t)
	}
	switch {
	case decl.IsArray:
		t = types.NewArray(t, uint64(decl.ArrayLen))
	case decl.IsFunc:
		params := make([]types.Member, 0, len(decl.Params))
		for _, p := range decl.Params {
			pbase, err := a.decodeBasicType(p.Base)
			if err != nil {
				return nil, err
			}
			pt, err := a.lowerDeclarator(pbase, p.Decl)
			if err != nil {
				return nil, err
			}
			// Array-typed parameters decay to pointers, the usual C rule;
			// this keeps "array lhs with pointer rhs" assignment (spec
			// §4.4) a plain pointer-to-pointer case with no special care
			// needed at the assignment site.
			if arr, ok := types.Unqualified(pt).(types.Array); ok {
				pt = types.NewPointer(arr.Base)
			}
			params = append(params, types.Member{Name: p.Decl.Name, Type: pt})
		}
		t = types.Function{Return: t, Params: params}
	}
	return t, nil
}

// declareVariable inserts a VARIABLE symbol for decl.Name in the current
// scope, failing if the name already exists locally (spec §4.2).
func (a *Analyzer) declareVariable(base cabs.BasicTypeSpec, decl cabs.Declarator, pos cabs.Location) (*symbols.Symbol, types.Type, error) {
	bt, err := a.decodeBasicType(base)
	if err != nil {
		return nil, nil, err
	}
	t, err := a.lowerDeclarator(bt, decl)
	if err != nil {
		return nil, nil, err
	}
	sym := &symbols.Symbol{Name: decl.Name, SymKind: symbols.Variable, Type: t}
	if !a.scope.Insert(sym) {
		return nil, nil, errf(pos, "redeclaration of %q", decl.Name)
	}
	return sym, t, nil
}

// declareStruct registers `struct Tag { members };` (spec §4.3).
func (a *Analyzer) declareStruct(sd *cabs.StructDecl) error {
	if _, exists := a.scope.LookupLocal(symbols.StructKey(sd.Tag)); exists {
		return errf(sd.Pos, "redefinition of struct %q", sd.Tag)
	}
	st := &types.Struct{Tag: sd.Tag}
	sym := &symbols.Symbol{Name: symbols.StructKey(sd.Tag), SymKind: symbols.TypeName, Type: st}
	a.scope.Insert(sym)

	fieldScope := symbols.NewTable(a.scope)
	saved := a.scope
	a.scope = fieldScope
	for _, m := range sd.Members {
		mbt, err := a.decodeBasicType(m.Base)
		if err != nil {
			a.scope = saved
			return err
		}
		mt, err := a.lowerDeclarator(mbt, m.Decl)
		if err != nil {
			a.scope = saved
			return err
		}
		st.Members = append(st.Members, types.Member{Name: m.Decl.Name, Type: mt})
	}
	a.scope = saved
	st.Finalize()
	a.attr(sd).Type = st
	a.attr(sd).Symbol = sym
	return nil
}

// declareFunction inserts or matches a FUNCTION symbol and, if a body is
// present, analyzes it in a fresh parameter scope (spec §4.3).
func (a *Analyzer) declareFunction(fd *cabs.FunDecl) error {
	retType, err := a.decodeBasicType(fd.Base)
	if err != nil {
		return err
	}
	fnType, err := a.lowerDeclarator(retType, fd.Decl)
	if err != nil {
		return err
	}
	ft := fnType.(types.Function)

	existing, found := a.scope.LookupLocal(fd.Decl.Name)
	var sym *symbols.Symbol
	if found {
		if existing.SymKind != symbols.Function || !types.IsSame(existing.Type, ft) {
			return errf(fd.Pos, "conflicting declaration of %q", fd.Decl.Name)
		}
		if fd.Body != nil && existing.IsDefined {
			return errf(fd.Pos, "redefinition of %q", fd.Decl.Name)
		}
		sym = existing
	} else {
		sym = &symbols.Symbol{Name: fd.Decl.Name, SymKind: symbols.Function, Type: ft}
		a.scope.Insert(sym)
	}
	a.attr(fd).Symbol = sym
	a.attr(fd).Type = ft

	if fd.Body == nil {
		return nil
	}
	sym.IsDefined = true

	if len(ft.Params) > 9 {
		return errf(fd.Pos, "function %q has more than nine parameters", fd.Decl.Name)
	}

	paramScope := symbols.NewTable(a.scope)
	for i, p := range ft.Params {
		psym := &symbols.Symbol{Name: p.Name, SymKind: symbols.Variable, Type: p.Type}
		paramScope.Insert(psym)
		pat := a.attr(fd.Decl.Params[i])
		pat.Symbol, pat.Type = psym, p.Type
	}

	savedScope, savedFn := a.scope, a.fn
	a.scope, a.fn = paramScope, sym
	err = a.visitBlockBody(fd.Body)
	a.scope, a.fn = savedScope, savedFn
	return err
}

package sema

import (
	"minicc/pkg/cabs"
	"minicc/pkg/literal"
	"minicc/pkg/symbols"
	"minicc/pkg/types"
)

// promote applies integer promotion: any operand narrower than int
// promotes to int (spec §4.4).
func promote(t types.Type) types.Type {
	u := types.Unqualified(t)
	if types.Rank(u) < types.Rank(types.NewBasic(types.Int, true)) {
		return types.NewBasic(types.Int, true)
	}
	return u
}

// commonType applies the usual arithmetic conversions to two already
// integral types (spec §4.4).
func commonType(a, b types.Type) types.Type {
	pa, pb := promote(a).(types.Basic), promote(b).(types.Basic)
	if types.Rank(pa) == types.Rank(pb) {
		if pa.Signed == pb.Signed {
			return pa
		}
		return types.NewBasic(pa.Kind, false)
	}
	hi, lo := pa, pb
	if types.Rank(pb) > types.Rank(pa) {
		hi, lo = pb, pa
	}
	if hi.Signed == lo.Signed || !hi.Signed {
		return hi
	}
	// Higher rank is signed, lower rank is unsigned: both convert to the
	// unsigned version of the higher rank.
	return types.NewBasic(hi.Kind, false)
}

// assignCompatible reports whether src may be assigned/passed where dst
// is expected (spec §4.4's assignment-compatibility rules), and whether
// that requires materializing a numeric conversion.
func assignCompatible(dst, src types.Type) (needsConv, ok bool) {
	dstU, srcU := types.Unqualified(dst), types.Unqualified(src)

	if sd, isStruct := dstU.(*types.Struct); isStruct {
		ss, ok2 := srcU.(*types.Struct)
		return false, ok2 && types.IsSame(sd, ss)
	}
	if types.IsIntegral(dstU) {
		if !types.IsIntegral(srcU) {
			return false, false
		}
		return !types.IsSame(dstU, srcU), true
	}
	if pd, isPtr := dstU.(types.Pointer); isPtr {
		ps, ok2 := srcU.(types.Pointer)
		if !ok2 {
			return false, false
		}
		if !types.IsSame(types.Unqualified(pd.Base), types.Unqualified(ps.Base)) {
			return false, false
		}
		rq, lq := types.QualifiersOf(ps.Base), types.QualifiersOf(pd.Base)
		if rq & ^lq != 0 {
			return false, false
		}
		return false, true
	}
	return false, false
}

// typeExpr visits an expression bottom-up, attributing it and every
// subexpression, and returns its type (spec §4.4).
func (a *Analyzer) typeExpr(e cabs.Expr) (types.Type, error) {
	switch n := e.(type) {
	case *cabs.IntLit:
		lit, err := literal.ParseInt(n.Text)
		if err != nil {
			return nil, errf(n.Pos, "%s", err)
		}
		kind := types.Int
		if lit.LongHint {
			kind = types.Long
		}
		t := types.NewBasic(kind, true)
		a.attr(n).Type, a.attr(n).Lit = t, &lit
		return t, nil

	case *cabs.CharLit:
		lit, err := literal.ParseChar(n.Raw)
		if err != nil {
			return nil, errf(n.Pos, "%s", err)
		}
		t := types.NewBasic(types.Char, true)
		a.attr(n).Type, a.attr(n).Lit = t, &lit
		return t, nil

	case *cabs.StringLit:
		lit, err := literal.ParseString(n.Raw)
		if err != nil {
			return nil, errf(n.Pos, "%s", err)
		}
		t := types.NewPointer(types.NewBasic(types.Char, true))
		a.attr(n).Type, a.attr(n).Lit = t, &lit
		return t, nil

	case *cabs.Ident:
		sym, ok := a.scope.LookupRecursive(n.Name)
		if !ok {
			return nil, errf(n.Pos, "undefined identifier %q", n.Name)
		}
		t := sym.Type
		isArray := false
		if arr, ok := types.Unqualified(t).(types.Array); ok {
			t = types.NewPointer(arr.Base)
			isArray = true
		}
		at := a.attr(n)
		at.Type, at.Symbol, at.IsArray = t, sym, isArray
		return t, nil

	case *cabs.Unary:
		return a.typeUnary(n)

	case *cabs.Binary:
		return a.typeBinary(n)

	case *cabs.Call:
		return a.typeCall(n)

	case *cabs.Index:
		at, err := a.typeExpr(n.Array)
		if err != nil {
			return nil, err
		}
		p, ok := types.Unqualified(at).(types.Pointer)
		if !ok {
			return nil, errf(n.Pos, "subscripted value is not a pointer")
		}
		it, err := a.typeExpr(n.Idx)
		if err != nil {
			return nil, err
		}
		if !types.IsIntegral(it) {
			return nil, errf(n.Pos, "array subscript is not an integer")
		}
		a.attr(n).Type = p.Base
		return p.Base, nil

	case *cabs.Field:
		return a.typeField(n)
	}
	return nil, errf(e.Loc(), "unsupported expression form")
}

func (a *Analyzer) typeUnary(n *cabs.Unary) (types.Type, error) {
	inner, err := a.typeExpr(n.Expr)
	if err != nil {
		return nil, err
	}
	switch n.Op {
	case cabs.OpDeref:
		p, ok := types.Unqualified(inner).(types.Pointer)
		if !ok {
			return nil, errf(n.Pos, "dereferencing a non-pointer value")
		}
		a.attr(n).Type = p.Base
		return p.Base, nil

	case cabs.OpAddrOf:
		sym := a.attr(n.Expr).Symbol
		if sym == nil || !isLvalue(n.Expr) {
			return nil, errf(n.Pos, "cannot take the address of a non-lvalue")
		}
		sym.Required = symbols.RequireMemory
		t := types.NewPointer(inner)
		a.attr(n).Type = t
		return t, nil

	case cabs.OpNeg, cabs.OpNot:
		if !types.IsIntegral(inner) {
			return nil, errf(n.Pos, "operand must be an integral type")
		}
		t := promote(inner)
		a.attr(n).Type = t
		return t, nil
	}
	return nil, errf(n.Pos, "unsupported unary operator")
}

// isLvalue reports whether e (already attributed by typeExpr) denotes a
// writable location: variable ref, *p, a.f, p->f, or a[i].
func isLvalue(e cabs.Expr) bool {
	switch n := e.(type) {
	case *cabs.Ident:
		return true
	case *cabs.Unary:
		return n.Op == cabs.OpDeref
	case *cabs.Field, *cabs.Index:
		return true
	}
	return false
}

func (a *Analyzer) typeBinary(n *cabs.Binary) (types.Type, error) {
	lt, err := a.typeExpr(n.Left)
	if err != nil {
		return nil, err
	}

	if n.Op == cabs.OpAssign {
		return a.typeAssign(n, lt)
	}

	rt, err := a.typeExpr(n.Right)
	if err != nil {
		return nil, err
	}

	switch n.Op {
	case cabs.OpAdd, cabs.OpSub:
		if types.IsPointer(lt) && types.IsIntegral(rt) {
			a.attr(n).Type = lt
			return lt, nil
		}
		if n.Op == cabs.OpAdd && types.IsIntegral(lt) && types.IsPointer(rt) {
			a.attr(n).Type = rt
			return rt, nil
		}
		if types.IsPointer(lt) || types.IsPointer(rt) {
			return nil, errf(n.Pos, "invalid pointer arithmetic")
		}
		fallthrough
	case cabs.OpMul, cabs.OpDiv, cabs.OpMod:
		if !types.IsIntegral(lt) || !types.IsIntegral(rt) {
			return nil, errf(n.Pos, "operands must be integral")
		}
		ct := commonType(lt, rt)
		a.convertTo(&n.Left, lt, ct)
		a.convertTo(&n.Right, rt, ct)
		a.attr(n).Type = ct
		return ct, nil

	case cabs.OpLt, cabs.OpLe, cabs.OpGt, cabs.OpGe, cabs.OpEq, cabs.OpNe:
		if types.IsIntegral(lt) && types.IsIntegral(rt) {
			ct := commonType(lt, rt)
			a.convertTo(&n.Left, lt, ct)
			a.convertTo(&n.Right, rt, ct)
		} else if !types.IsSame(lt, rt) {
			return nil, errf(n.Pos, "comparison operands have incompatible types")
		}
		a.attr(n).Type = types.NewBasic(types.Int, true)
		return a.attr(n).Type, nil

	case cabs.OpAnd, cabs.OpOr:
		if !types.IsSame(promote(lt), promote(rt)) && !(types.IsIntegral(lt) && types.IsIntegral(rt)) {
			return nil, errf(n.Pos, "logical operands have incompatible types")
		}
		a.attr(n).Type = types.NewBasic(types.Int, true)
		return a.attr(n).Type, nil
	}
	return nil, errf(n.Pos, "unsupported binary operator")
}

func (a *Analyzer) typeAssign(n *cabs.Binary, lt types.Type) (types.Type, error) {
	if !isLvalue(n.Left) {
		return nil, errf(n.Pos, "left side of assignment is not an lvalue")
	}
	if a.attr(n.Left).IsArray {
		return nil, errf(n.Pos, "cannot assign to an array")
	}
	if types.QualifiersOf(lt)&types.QConst != 0 {
		return nil, errf(n.Pos, "cannot assign to a const-qualified value")
	}
	rt, err := a.typeExpr(n.Right)
	if err != nil {
		return nil, err
	}
	needsConv, ok := assignCompatible(lt, rt)
	if !ok {
		return nil, errf(n.Pos, "incompatible types in assignment")
	}
	if needsConv {
		a.convertTo(&n.Right, rt, lt)
	}
	a.attr(n).Type = lt
	return lt, nil
}

// convertTo wraps *slot with an ImplicitConv to dst when src and dst
// differ, recording the conversion in the attribution table (spec §4.4).
func (a *Analyzer) convertTo(slot *cabs.Expr, src, dst types.Type) {
	if types.IsSame(src, dst) {
		return
	}
	wrapped := &cabs.ImplicitConv{Pos: (*slot).Loc(), Expr: *slot}
	at := a.attr(wrapped)
	at.Type, at.ConvTo = dst, dst
	*slot = wrapped
}

func (a *Analyzer) typeCall(n *cabs.Call) (types.Type, error) {
	ft, err := a.typeExpr(n.Fn)
	if err != nil {
		return nil, err
	}
	fn, ok := types.Unqualified(ft).(types.Function)
	if !ok {
		return nil, errf(n.Pos, "called object is not a function")
	}
	if len(n.Args) != len(fn.Params) {
		return nil, errf(n.Pos, "expected %d arguments, got %d", len(fn.Params), len(n.Args))
	}
	for i, arg := range n.Args {
		at, err := a.typeExpr(arg)
		if err != nil {
			return nil, err
		}
		needsConv, ok := assignCompatible(fn.Params[i].Type, at)
		if !ok {
			return nil, errf(arg.Loc(), "argument %d has incompatible type", i+1)
		}
		if needsConv {
			a.convertTo(&n.Args[i], at, fn.Params[i].Type)
		}
	}
	a.attr(n).Type = fn.Return
	return fn.Return, nil
}

func (a *Analyzer) typeField(n *cabs.Field) (types.Type, error) {
	bt, err := a.typeExpr(n.Base)
	if err != nil {
		return nil, err
	}
	var st *types.Struct
	if n.Arrow {
		p, ok := types.Unqualified(bt).(types.Pointer)
		if !ok {
			return nil, errf(n.Pos, "-> applied to a non-pointer value")
		}
		st, ok = types.Unqualified(p.Base).(*types.Struct)
		if !ok {
			return nil, errf(n.Pos, "-> applied to a pointer that is not to a struct")
		}
	} else {
		var ok bool
		st, ok = types.Unqualified(bt).(*types.Struct)
		if !ok {
			return nil, errf(n.Pos, ". applied to a non-struct value")
		}
	}
	for _, m := range st.Members {
		if m.Name == n.Name {
			t := m.Type
			isArray := false
			if arr, ok := types.Unqualified(t).(types.Array); ok {
				t = types.NewPointer(arr.Base)
				isArray = true
			}
			at := a.attr(n)
			at.Type, at.IsArray = t, isArray
			return t, nil
		}
	}
	return nil, errf(n.Pos, "struct %s has no member %q", st.Tag, n.Name)
}

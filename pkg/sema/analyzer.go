// Package sema implements the semantic analyzer: a visitor over the AST
// that validates declarations and expressions, inserts implicit
// conversions, and attributes every node with types, symbols and literal
// values (spec §4.1–§4.4). Grounded on the teacher's cshmgen pass shape
// (translateFunctionWithStructs walking a Clight AST with a shared
// translator/environment), generalized from a one-way IR lowering into a
// validating, attribute-producing visitor.
package sema

import (
	"minicc/pkg/cabs"
	"minicc/pkg/symbols"
	"minicc/pkg/types"
)

func funcType(sym *symbols.Symbol) types.Function {
	return types.Unqualified(sym.Type).(types.Function)
}

func isVoid(t types.Type) bool {
	b, ok := types.Unqualified(t).(types.Basic)
	return ok && b.Kind == types.Void
}

// Analyzer is the SemanticAnalyzer of spec §2: a visitor carrying the
// current scope, the enclosing function (for return-type checks), and the
// attribution table being built up.
type Analyzer struct {
	global *symbols.Table
	scope  *symbols.Table
	fn     *symbols.Symbol
	attrs  Attrs
}

// New creates an Analyzer with a fresh global scope.
func New() *Analyzer {
	g := symbols.NewTable(nil)
	return &Analyzer{global: g, scope: g, attrs: make(Attrs)}
}

// Global returns the global scope, queried by later passes (storage
// allocation needs to enumerate global variables).
func (a *Analyzer) Global() *symbols.Table { return a.global }

// Attrs returns the attribution table built during Analyze.
func (a *Analyzer) Attrs() Attrs { return a.attrs }

// Analyze validates prog and attributes every node, stopping at the first
// semantic error (spec §7: no recovery, no multi-error reporting).
func (a *Analyzer) Analyze(prog *cabs.Program) error {
	for _, d := range prog.Decls {
		if err := a.analyzeTopLevel(d); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) analyzeTopLevel(d cabs.Definition) error {
	switch n := d.(type) {
	case *cabs.StructDecl:
		return a.declareStruct(n)
	case *cabs.FunDecl:
		return a.declareFunction(n)
	case *cabs.VarDecl:
		sym, t, err := a.declareVariable(n.Base, n.Decl, n.Pos)
		if err != nil {
			return err
		}
		a.attr(n).Symbol, a.attr(n).Type = sym, t
		if n.Init != nil {
			it, err := a.typeExpr(n.Init)
			if err != nil {
				return err
			}
			if needsConv, ok := assignCompatible(t, it); ok {
				if needsConv {
					a.convertTo(&n.Init, it, t)
				}
			} else {
				return errf(n.Pos, "incompatible initializer type for %q", n.Decl.Name)
			}
		}
		return nil
	}
	return errf(d.Loc(), "unsupported top-level definition")
}

// visitBlockBody analyzes a function body in the already-pushed parameter
// scope, without pushing a second scope of its own (the parameter scope
// and the outermost block share one lexical level, as in C).
func (a *Analyzer) visitBlockBody(b *cabs.Block) error {
	for _, s := range b.Items {
		if err := a.visitStmt(s); err != nil {
			return err
		}
	}
	return nil
}

func (a *Analyzer) visitStmt(s cabs.Stmt) error {
	switch n := s.(type) {
	case *cabs.VarDecl:
		sym, t, err := a.declareVariable(n.Base, n.Decl, n.Pos)
		if err != nil {
			return err
		}
		a.attr(n).Symbol, a.attr(n).Type = sym, t
		if n.Init != nil {
			it, err := a.typeExpr(n.Init)
			if err != nil {
				return err
			}
			needsConv, ok := assignCompatible(t, it)
			if !ok {
				return errf(n.Pos, "incompatible initializer type for %q", n.Decl.Name)
			}
			if needsConv {
				a.convertTo(&n.Init, it, t)
			}
		}
		return nil

	case *cabs.ExprStmt:
		_, err := a.typeExpr(n.Expr)
		return err

	case *cabs.ReturnStmt:
		return a.visitReturn(n)

	case *cabs.IfStmt:
		if _, err := a.typeExpr(n.Cond); err != nil {
			return err
		}
		if err := a.visitStmt(n.Then); err != nil {
			return err
		}
		if n.Else != nil {
			return a.visitStmt(n.Else)
		}
		return nil

	case *cabs.WhileStmt:
		if _, err := a.typeExpr(n.Cond); err != nil {
			return err
		}
		return a.visitStmt(n.Body)

	case *cabs.DoWhileStmt:
		if err := a.visitStmt(n.Body); err != nil {
			return err
		}
		_, err := a.typeExpr(n.Cond)
		return err

	case *cabs.ForStmt:
		return a.visitFor(n)

	case *cabs.Block:
		saved := a.scope
		a.scope = symbols.NewTable(saved)
		err := a.visitBlockBody(n)
		a.scope = saved
		return err
	}
	return errf(s.Loc(), "unsupported statement form")
}

func (a *Analyzer) visitReturn(n *cabs.ReturnStmt) error {
	fnType := funcType(a.fn)
	if n.Expr == nil {
		if !isVoid(fnType.Return) {
			return errf(n.Pos, "missing return value")
		}
		return nil
	}
	if isVoid(fnType.Return) {
		return errf(n.Pos, "void function should not return a value")
	}
	rt, err := a.typeExpr(n.Expr)
	if err != nil {
		return err
	}
	needsConv, ok := assignCompatible(fnType.Return, rt)
	if !ok {
		return errf(n.Pos, "return type does not match function's declared return type")
	}
	if needsConv {
		a.convertTo(&n.Expr, rt, fnType.Return)
	}
	return nil
}

func (a *Analyzer) visitFor(n *cabs.ForStmt) error {
	saved := a.scope
	a.scope = symbols.NewTable(saved)
	defer func() { a.scope = saved }()

	if n.Init != nil {
		if err := a.visitStmt(n.Init); err != nil {
			return err
		}
	}
	if n.Cond != nil {
		if _, err := a.typeExpr(n.Cond); err != nil {
			return err
		}
	}
	if n.Post != nil {
		if _, err := a.typeExpr(n.Post); err != nil {
			return err
		}
	}
	return a.visitStmt(n.Body)
}

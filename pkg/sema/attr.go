package sema

import (
	"minicc/pkg/cabs"
	"minicc/pkg/literal"
	"minicc/pkg/symbols"
	"minicc/pkg/types"
)

// Attr is the attribute record attached to one AST node, keyed by the
// node's own identity (spec's Design Notes §9: "attributes belong on the
// node ... not scattered across subclasses"). Exactly one of Type or
// Symbol.Type is meaningful for any attributed node (spec §8 invariant 1).
type Attr struct {
	Type    types.Type
	Symbol  *symbols.Symbol
	Lit     *literal.Value
	IsArray bool // this reference decayed from an array type (spec §4.4)
	ConvTo  types.Type // for an *cabs.ImplicitConv node: the destination type
}

// Attrs is the attribution table produced by an Analyzer run, queried by
// later passes (storage allocation, HL codegen) instead of fields on the
// AST nodes themselves.
type Attrs map[cabs.Node]*Attr

func (a *Analyzer) attr(n cabs.Node) *Attr {
	if at, ok := a.attrs[n]; ok {
		return at
	}
	at := &Attr{}
	a.attrs[n] = at
	return at
}

// Of looks up a previously attributed node's record; callers downstream of
// the analyzer use this instead of reading fields off the AST.
func (at Attrs) Of(n cabs.Node) *Attr { return at[n] }

package sema

import (
	"fmt"

	"minicc/pkg/cabs"
)

// Error is a source-located semantic diagnostic (spec §7's SemanticError):
// raised for any violation of the type, lvalue, or declaration rules in
// spec §4.1–§4.4. The first one raised aborts the compilation (spec §7's
// propagation policy — no recovery, no multi-error reporting).
type Error struct {
	Loc cabs.Location
	Msg string
}

func (e *Error) Error() string { return fmt.Sprintf("%s:%d:%d: %s", e.Loc.File, e.Loc.Line, e.Loc.Col, e.Msg) }

func errf(loc cabs.Location, format string, args ...any) *Error {
	return &Error{Loc: loc, Msg: fmt.Sprintf(format, args...)}
}

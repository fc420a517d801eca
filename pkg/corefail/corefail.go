// Package corefail carries internal invariant failures (spec §7's
// "RuntimeError"): conditions that should never arise from a well-formed,
// already-attributed AST, as distinct from sema.Error's user-facing
// source-located diagnostics. Grounded on the teacher's use of bare
// fmt.Errorf/panic for "this should never happen" conditions (e.g.
// cminorgen.VarEnv.TransformAddrOf's panic on a non-stack variable).
package corefail

import "fmt"

// Error is an internal invariant failure with no associated source
// location — more parameters than the ABI supports, an unhandled opcode,
// a type that should have been rejected during semantic analysis.
type Error struct {
	Msg string
}

func (e *Error) Error() string { return "Error: " + e.Msg }

// Newf builds an Error from a format string, mirroring fmt.Errorf.
func Newf(format string, args ...any) *Error {
	return &Error{Msg: fmt.Sprintf(format, args...)}
}

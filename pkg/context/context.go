// Package context owns the per-compilation-unit mutable state: the label
// counter, the virtual-register counter, and the string-literal table.
// Grounded on the teacher's per-compile state objects (rtlgen.CFGBuilder's
// embedded counters, cminorgen.VarEnv) but pulled out into one explicit
// object threaded through every pass, per spec §5's "no mutable global
// state beyond a single Context for the compilation unit."
package context

import "fmt"

// StringLiteral is one entry of the collected string-literal table:
// spec §4.5 assigns synthetic labels "_str<N>" in sequential order.
type StringLiteral struct {
	Label string
	Bytes []byte
}

// Context is owned by a single compilation run; nothing here is a
// package-level global.
type Context struct {
	nextLabel  int
	nextVReg   int
	strings    []StringLiteral
	funcPrefix string // current function name, for scoped labels like .Lmain_return
}

// New creates a Context with virtual registers starting above the
// reserved vr0..vr9 ABI range (spec §4.5: locals start at vr10).
func New() *Context {
	return &Context{nextVReg: 10}
}

// SetFunction records the enclosing function name for scoped label
// generation (e.g. the per-function return label).
func (c *Context) SetFunction(name string) { c.funcPrefix = name }

// NewLabel returns the next monotonic control-flow label, ".L<N>"
// (spec §4.6).
func (c *Context) NewLabel() string {
	l := fmt.Sprintf(".L%d", c.nextLabel)
	c.nextLabel++
	return l
}

// ReturnLabel returns the current function's scoped return label.
func (c *Context) ReturnLabel() string {
	return fmt.Sprintf(".L%s_return", c.funcPrefix)
}

// NewVReg allocates and returns the next virtual register id.
func (c *Context) NewVReg() int {
	v := c.nextVReg
	c.nextVReg++
	return v
}

// VRegMark returns the current virtual-register counter value, to be
// restored by VRegRestore when a statement list's scope exits (spec
// §4.5's "save/restore the virtual-register counter").
func (c *Context) VRegMark() int { return c.nextVReg }

// VRegRestore resets the counter to a value previously returned by
// VRegMark.
func (c *Context) VRegRestore(mark int) { c.nextVReg = mark }

// MaxVReg returns the highest virtual register id handed out so far,
// used by the low-level translator's frame-size computation (spec §4.10).
func (c *Context) MaxVReg() int { return c.nextVReg - 1 }

// InternString assigns a new synthetic label for a string literal's raw
// bytes and records it in the literal table. Every call appends a new
// entry; identical strings get separate labels.
func (c *Context) InternString(bytes []byte) string {
	label := fmt.Sprintf("_str%d", len(c.strings))
	c.strings = append(c.strings, StringLiteral{Label: label, Bytes: bytes})
	return label
}

// StringLiterals returns the collected (label, raw-bytes) table in
// assignment order.
func (c *Context) StringLiterals() []StringLiteral { return c.strings }

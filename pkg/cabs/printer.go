package cabs

import (
	"fmt"
	"io"
	"strings"
)

// Printer pretty-prints a parsed Program back to C-like text, the "-p" dump
// mode of the CLI (spec §6).
type Printer struct {
	w io.Writer
}

// NewPrinter creates a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w}
}

// PrintProgram prints every top-level definition in order.
func (p *Printer) PrintProgram(prog *Program) {
	for _, d := range prog.Decls {
		p.printDefinition(d)
		fmt.Fprintln(p.w)
	}
}

func (p *Printer) printDefinition(d Definition) {
	switch n := d.(type) {
	case *VarDecl:
		fmt.Fprintf(p.w, "%s;\n", declString(n.Base, n.Decl))
	case *StructDecl:
		fmt.Fprintf(p.w, "struct %s {\n", n.Tag)
		for _, m := range n.Members {
			fmt.Fprintf(p.w, "    %s;\n", declString(m.Base, m.Decl))
		}
		fmt.Fprint(p.w, "};")
	case *FunDecl:
		fmt.Fprintf(p.w, "%s", declString(n.Base, n.Decl))
		if n.Body == nil {
			fmt.Fprint(p.w, ";")
			return
		}
		fmt.Fprint(p.w, " ")
		p.printBlock(n.Body, 0)
	}
}

func declString(base BasicTypeSpec, decl Declarator) string {
	var b strings.Builder
	b.WriteString(baseTypeString(base))
	b.WriteString(" ")
	b.WriteString(strings.Repeat("*", decl.Pointers))
	b.WriteString(decl.Name)
	if decl.IsArray {
		fmt.Fprintf(&b, "[%d]", decl.ArrayLen)
	}
	if decl.IsFunc {
		b.WriteString("(")
		for i, param := range decl.Params {
			if i > 0 {
				b.WriteString(", ")
			}
			b.WriteString(declString(param.Base, param.Decl))
		}
		b.WriteString(")")
	}
	return b.String()
}

func baseTypeString(base BasicTypeSpec) string {
	if base.StructTag != "" {
		return "struct " + base.StructTag
	}
	var parts []string
	names := map[TypeKeyword]string{
		KwVoid: "void", KwChar: "char", KwShort: "short", KwInt: "int",
		KwLong: "long", KwSigned: "signed", KwUnsigned: "unsigned",
		KwConst: "const", KwVolatile: "volatile",
	}
	for _, k := range base.Keywords {
		parts = append(parts, names[k])
	}
	if len(parts) == 0 {
		return "int"
	}
	return strings.Join(parts, " ")
}

func (p *Printer) printBlock(b *Block, indent int) {
	pad := strings.Repeat("    ", indent)
	fmt.Fprintln(p.w, "{")
	for _, s := range b.Items {
		fmt.Fprint(p.w, pad+"    ")
		p.printStmt(s, indent+1)
	}
	fmt.Fprintln(p.w, pad+"}")
}

func (p *Printer) printStmt(s Stmt, indent int) {
	switch n := s.(type) {
	case *VarDecl:
		fmt.Fprintf(p.w, "%s;\n", declString(n.Base, n.Decl))
	case *ExprStmt:
		fmt.Fprintf(p.w, "%s;\n", ExprString(n.Expr))
	case *ReturnStmt:
		if n.Expr == nil {
			fmt.Fprintln(p.w, "return;")
		} else {
			fmt.Fprintf(p.w, "return %s;\n", ExprString(n.Expr))
		}
	case *IfStmt:
		fmt.Fprintf(p.w, "if (%s) ", ExprString(n.Cond))
		p.printInlineStmt(n.Then, indent)
		if n.Else != nil {
			fmt.Fprint(p.w, strings.Repeat("    ", indent)+"else ")
			p.printInlineStmt(n.Else, indent)
		}
	case *WhileStmt:
		fmt.Fprintf(p.w, "while (%s) ", ExprString(n.Cond))
		p.printInlineStmt(n.Body, indent)
	case *DoWhileStmt:
		fmt.Fprint(p.w, "do ")
		p.printInlineStmt(n.Body, indent)
		fmt.Fprintf(p.w, "%swhile (%s);\n", strings.Repeat("    ", indent), ExprString(n.Cond))
	case *ForStmt:
		fmt.Fprint(p.w, "for (...) ")
		p.printInlineStmt(n.Body, indent)
	case *Block:
		p.printBlock(n, indent)
	}
}

func (p *Printer) printInlineStmt(s Stmt, indent int) {
	if b, ok := s.(*Block); ok {
		p.printBlock(b, indent)
		return
	}
	p.printStmt(s, indent)
}

// ExprString renders an expression in C-like infix notation, used by both
// the printer and error messages.
func ExprString(e Expr) string {
	switch n := e.(type) {
	case *IntLit:
		return n.Text
	case *CharLit:
		return "'" + n.Raw + "'"
	case *StringLit:
		return "\"" + n.Raw + "\""
	case *Ident:
		return n.Name
	case *Unary:
		return n.Op.String() + ExprString(n.Expr)
	case *Binary:
		return fmt.Sprintf("%s %s %s", ExprString(n.Left), n.Op.String(), ExprString(n.Right))
	case *Call:
		args := make([]string, len(n.Args))
		for i, a := range n.Args {
			args[i] = ExprString(a)
		}
		return fmt.Sprintf("%s(%s)", ExprString(n.Fn), strings.Join(args, ", "))
	case *Index:
		return fmt.Sprintf("%s[%s]", ExprString(n.Array), ExprString(n.Idx))
	case *Field:
		op := "."
		if n.Arrow {
			op = "->"
		}
		return fmt.Sprintf("%s%s%s", ExprString(n.Base), op, n.Name)
	case *ImplicitConv:
		return ExprString(n.Expr)
	}
	return "?"
}

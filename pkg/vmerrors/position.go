package vmerrors

import "fmt"

// Position identifies a location inside a bytecode program: an absolute
// byte offset into the instruction stream plus the function-local line
// the front end attached to it for diagnostics. The core never derives
// these from source text directly; it only carries what the bytecode
// side table gives it.
type Position struct {
	Offset int
	Line   int
}

func (p Position) String() string {
	if p.Line == 0 {
		return fmt.Sprintf("offset %d", p.Offset)
	}
	return fmt.Sprintf("line %d (offset %d)", p.Line, p.Offset)
}

package bytecode_test

import (
	"testing"

	"emberjs/pkg/bytecode"

	"github.com/stretchr/testify/require"
)

func TestAssemblerSimpleProgram(t *testing.T) {
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 2)
	a.AssignSmallInt(0, 1)
	a.AssignSmallInt(1, 2)
	a.Add(2, 0, 1)
	a.RetVal(2)
	prog := a.Program()

	require.NotEmpty(t, prog.Code)
	op, err := prog.OpAt(0)
	require.NoError(t, err)
	require.Equal(t, bytecode.OpRegVarDecl, op)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 1)
	a.AssignString(0, "hello")
	a.AssignNumber(1, 3.5)
	a.RetVal(0)
	prog := a.Program()

	data, err := bytecode.Encode(prog)
	require.NoError(t, err)

	decoded, err := bytecode.Decode(data)
	require.NoError(t, err)

	require.Equal(t, prog.Code, decoded.Code)
	require.Equal(t, prog.Literals, decoded.Literals)
	require.Equal(t, prog.LiteralIndex, decoded.LiteralIndex)
}

func TestJumpPatching(t *testing.T) {
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 0)
	metaPos := a.Jump()
	target := a.Pos()
	a.PatchJump(metaPos, target)

	prog := a.Program()
	op, err := prog.OpAt(metaPos)
	require.NoError(t, err)
	require.Equal(t, bytecode.OpMeta, op)
	require.Equal(t, uint16(target), prog.ReadMetaCounter(metaPos))
}

func TestExceptionHandlerLookup(t *testing.T) {
	a := bytecode.NewAssembler()
	a.RegVarDecl(0, 1)
	tryStart := a.Pos()
	a.Throw(0)
	tryEnd := a.Pos()
	catchPC := a.Pos()
	a.CatchIdent("e")
	a.RetVal(0)
	catchEnd := a.Pos()

	a.AddExceptionHandler(bytecode.ExceptionHandler{
		TryStart: tryStart, TryEnd: tryEnd,
		CatchPC: catchPC, CatchEnd: catchEnd,
		FinallyPC: -1, EndPC: catchEnd,
	})
	prog := a.Program()

	h, idx := prog.HandlerFor(tryStart, nil)
	require.NotNil(t, h)
	require.Equal(t, 0, idx)
	require.True(t, h.Contains(tryStart))
	require.False(t, h.InCatch(tryStart))
	require.True(t, h.InCatch(catchPC))

	none, noneIdx := prog.HandlerFor(catchEnd, nil)
	require.Nil(t, none)
	require.Equal(t, -1, noneIdx)
}

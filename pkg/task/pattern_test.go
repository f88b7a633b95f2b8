package task

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPatternToolVarSubst(t *testing.T) {
	pt := NewPatternTool(42, "/gevol/vol_a/out.kta", 7, "Databases/CA?version=7")

	assert.Equal(t, "task-42", pt.VarSubst("task-$taskid"))
	assert.Equal(t, "007", pt.VarSubst("$vernum"))
	assert.Equal(t, "out.kta", pt.VarSubst("$defaultpath:basename"))
	assert.Equal(t, "/gevol/vol_a", pt.VarSubst("$defaultpath:dirname"))
	assert.Equal(t, "/gevol/vol_a/out", pt.VarSubst("$defaultpath:sansext"))
	assert.Equal(t, "kta", pt.VarSubst("$defaultpath:ext"))
}

func TestPatternToolCombined(t *testing.T) {
	pt := NewPatternTool(1, "/a/b/c.txt", 3, "X")
	got := pt.VarSubst("$defaultpath:dirname/$vernum/$taskid-$assetref")
	assert.Equal(t, "/a/b/003/1-X", got)
}

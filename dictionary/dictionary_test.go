package dictionary_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lemenkov/pspp-sub002/dictionary"
)

func TestRemoveVariablesShiftsSurvivingIndices(t *testing.T) {
	dict := dictionary.New("utf-8")
	require.True(t, dict.AddVariable(dictionary.Variable{Name: "A"}))
	require.True(t, dict.AddVariable(dictionary.Variable{Name: "B"}))
	require.True(t, dict.AddVariable(dictionary.Variable{Name: "C"}))

	remap := dict.RemoveVariables([]int{1})
	require.Equal(t, map[int]int{0: 0, 2: 1}, remap)

	require.Equal(t, 2, dict.Len())
	_, ok := dict.Variable("B")
	assert.False(t, ok)

	a, ok := dict.Variable("A")
	require.True(t, ok)
	assert.Equal(t, 0, dict.VariableIndex(a.Name))

	c, ok := dict.Variable("C")
	require.True(t, ok)
	assert.Equal(t, 1, dict.VariableIndex(c.Name))
}

func TestRemoveVariablesNoIndicesIsNoop(t *testing.T) {
	dict := dictionary.New("utf-8")
	require.True(t, dict.AddVariable(dictionary.Variable{Name: "A"}))

	remap := dict.RemoveVariables(nil)
	assert.Nil(t, remap)
	assert.Equal(t, 1, dict.Len())
}

func TestVariableSetMembershipAndNamesAreSorted(t *testing.T) {
	dict := dictionary.New("utf-8")
	require.True(t, dict.AddVariable(dictionary.Variable{Name: "Q1"}))
	require.True(t, dict.AddVariable(dictionary.Variable{Name: "Q2"}))

	dict.AddVariableSet(dictionary.VariableSet{Name: "Zeta", Variables: []string{"Q1"}})
	dict.AddVariableSet(dictionary.VariableSet{Name: "Alpha", Variables: []string{"Q1", "Q2"}})

	assert.Equal(t, []string{"Alpha", "Zeta"}, dict.VariableSetNames())
	assert.Equal(t, []string{"Alpha", "Zeta"}, dict.VariableSetMembership()["Q1"])
	assert.Equal(t, []string{"Alpha"}, dict.VariableSetMembership()["Q2"])
}

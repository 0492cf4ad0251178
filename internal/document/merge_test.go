package document

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMerge_MapUnionNewWins(t *testing.T) {
	old := map[string]any{"a": "old", "keep": "me"}
	target := map[string]any{"a": "new"}
	got := Merge(old, target, false).(map[string]any)
	assert.Equal(t, "new", got["a"])
	assert.Equal(t, "me", got["keep"])
}

func TestMerge_RecursesIntoNestedMaps(t *testing.T) {
	old := map[string]any{"env": map[string]any{"a": "1", "b": "2"}}
	target := map[string]any{"env": map[string]any{"b": "override"}}
	got := Merge(old, target, false).(map[string]any)
	env := got["env"].(map[string]any)
	assert.Equal(t, "1", env["a"])
	assert.Equal(t, "override", env["b"])
}

func TestMerge_ListsPrependPreservingOrder(t *testing.T) {
	old := []any{"a", "b"}
	target := []any{"c", "d"}
	got := Merge(old, target, false).([]any)
	assert.Equal(t, []any{"a", "b", "c", "d"}, got)
}

func TestMerge_EqualListsUntouched(t *testing.T) {
	old := []any{"x", "y"}
	target := []any{"x", "y"}
	got := Merge(old, target, false).([]any)
	assert.Equal(t, []any{"x", "y"}, got)
}

func TestMerge_UniqueSkipsDuplicates(t *testing.T) {
	old := []any{"a", "b", "c"}
	target := []any{"b", "d"}
	got := Merge(old, target, true).([]any)
	assert.Equal(t, []any{"a", "c", "b", "d"}, got)
}

func TestMerge_TypeMismatchKeepsTarget(t *testing.T) {
	got := Merge(map[string]any{"a": "1"}, "scalar", false)
	assert.Equal(t, "scalar", got)

	got = Merge([]any{"a"}, map[string]any{"k": "v"}, false)
	assert.Equal(t, map[string]any{"k": "v"}, got)
}

func TestMergeDocuments_InputsUntouched(t *testing.T) {
	stored := Normalize(Document{
		KeyDefault: map[string]any{"a": NewEntry("a", "", "1")},
		KeyParent:  []any{"base"},
	})
	incoming := Normalize(Document{
		KeyDefault: map[string]any{"b": NewEntry("b", "", "2")},
	})

	merged := MergeDocuments(stored, incoming)
	assert.Len(t, merged.Env(KeyDefault), 2)
	assert.Equal(t, []string{"base"}, merged.Parents())

	// Neither input document may be mutated by the merge.
	assert.Len(t, stored.Env(KeyDefault), 1)
	assert.Len(t, incoming.Env(KeyDefault), 1)
	assert.Empty(t, incoming.Parents())
}

func TestMergeDocuments_NestedEntryMerge(t *testing.T) {
	stored := Normalize(Document{
		KeyDefault: map[string]any{"a": NewEntry("a", "kept description", "1")},
	})
	incoming := Normalize(Document{
		KeyDefault: map[string]any{"a": map[string]any{"key": "a", "value": "2"}},
	})

	merged := MergeDocuments(stored, incoming)
	entry, ok := merged.Entry(KeyDefault, "a")
	require.True(t, ok)
	assert.Equal(t, "2", entry["value"], "incoming value wins")
	assert.Equal(t, "kept description", entry["desc"], "absent field filled from stored entry")
}

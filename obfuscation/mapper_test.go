package obfuscation

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildRenameMap_Stable(t *testing.T) {
	t.Parallel()

	idx := &ProjectIndex{
		RenameCandidates: NewNameSet("Alpha", "beta", "gamma"),
		Attributes:       NewNameSet("field"),
	}

	first := BuildRenameMap(idx)
	second := BuildRenameMap(idx)

	if diff := cmp.Diff(first.Mapping(), second.Mapping()); diff != "" {
		t.Errorf("mapping differs between builds (-first +second):\n%s", diff)
	}
	assert.Equal(t, []string{"Alpha", "beta", "field", "gamma"}, first.Names())
	assert.Equal(t, first.Digest(), second.Digest())
}

func TestBuildRenameMap_SortedAssignment(t *testing.T) {
	t.Parallel()

	idx := &ProjectIndex{RenameCandidates: NewNameSet("zeta", "Beta", "alpha")}
	want := map[string]string{"Beta": "a", "alpha": "b", "zeta": "c"}

	if diff := cmp.Diff(want, BuildRenameMap(idx).Mapping()); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRenameMap_ExcludesExternalAndDunder(t *testing.T) {
	t.Parallel()

	idx := &ProjectIndex{
		RenameCandidates: NewNameSet("run", "__init__", "path"),
		ExternalSymbols:  NewNameSet("path"),
	}

	rm := BuildRenameMap(idx)

	assert.False(t, rm.HasKey("path"))
	assert.False(t, rm.HasKey("__init__"))
	assert.True(t, rm.HasKey("run"))
}

func TestBuildRenameMap_MarksLikelyLocal(t *testing.T) {
	t.Parallel()

	idx := &ProjectIndex{
		RenameCandidates:             NewNameSet("worker"),
		Attributes:                   NewNameSet("value"),
		LikelyLocalDynamicAttributes: NewNameSet("value"),
	}

	rm := BuildRenameMap(idx)

	assert.True(t, rm.HasKey("value"))
	assert.True(t, rm.IsLikelyLocal("value"))
	assert.False(t, rm.IsLikelyLocal("worker"))
}

func TestBuildRenameMap_AvoidsCollisions(t *testing.T) {
	t.Parallel()

	idx := &ProjectIndex{
		// "a" and "b" are targets themselves, "c" is external and "d" is
		// preserved.
		RenameCandidates: NewNameSet("a", "b", "long_name", "d"),
		ExternalSymbols:  NewNameSet("c"),
		Preserved:        NewNameSet("d"),
	}

	rm := BuildRenameMap(idx)
	want := map[string]string{"a": "e", "b": "f", "long_name": "g"}

	if diff := cmp.Diff(want, rm.Mapping()); diff != "" {
		t.Errorf("mapping mismatch (-want +got):\n%s", diff)
	}
}

func TestBuildRenameMap_SkipsReservedNames(t *testing.T) {
	t.Parallel()

	// Enough targets to run past the two-letter keywords "as", "if", "in",
	// "is" and "or".
	var names []string
	for i := 0; i < 500; i++ {
		names = append(names, "n"+string(rune('a'+i%26))+string(rune('a'+i/26)))
	}
	rm := BuildRenameMap(&ProjectIndex{RenameCandidates: NewNameSet(names...)})
	require.Equal(t, 500, rm.Len())

	seen := map[string]bool{}
	for _, orig := range rm.Names() {
		gen, ok := rm.Lookup(orig)
		require.True(t, ok)
		assert.NotContains(t, []string{"as", "if", "in", "is", "or", "id", "abs"}, gen)
		assert.False(t, seen[gen], "generated name %s issued twice", gen)
		seen[gen] = true

		back, ok := rm.Original(gen)
		require.True(t, ok)
		assert.Equal(t, orig, back)
	}
}

func TestRenameMap_Lookup(t *testing.T) {
	t.Parallel()

	rm := NewRenameMap(map[string]string{"run": "a", "__init__": "b"}, "run", "missing")

	gen, ok := rm.Lookup("run")
	assert.True(t, ok)
	assert.Equal(t, "a", gen)

	_, ok = rm.Lookup("__init__")
	assert.False(t, ok)

	_, ok = rm.Lookup("other")
	assert.False(t, ok)

	assert.True(t, rm.HasValue("a"))
	assert.True(t, rm.IsLikelyLocal("run"))
	assert.False(t, rm.IsLikelyLocal("missing"))
}

func TestRenameMap_Digest(t *testing.T) {
	t.Parallel()

	base := NewRenameMap(map[string]string{"run": "a", "main": "b"})
	same := NewRenameMap(map[string]string{"main": "b", "run": "a"})
	swapped := NewRenameMap(map[string]string{"run": "b", "main": "a"})
	flagged := NewRenameMap(map[string]string{"run": "a", "main": "b"}, "run")

	assert.Equal(t, base.Digest(), same.Digest())
	assert.NotEqual(t, base.Digest(), swapped.Digest())
	assert.NotEqual(t, base.Digest(), flagged.Digest())
}

func TestRenameMap_MappingIsACopy(t *testing.T) {
	t.Parallel()

	rm := NewRenameMap(map[string]string{"run": "a"})
	m := rm.Mapping()
	m["run"] = "z"

	gen, _ := rm.Lookup("run")
	assert.Equal(t, "a", gen)
}

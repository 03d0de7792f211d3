package obfuscation

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"testing/fstest"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/zskulcsar/code-duplication-scanner/internal/parser"
	"github.com/zskulcsar/code-duplication-scanner/internal/project"
	"github.com/zskulcsar/code-duplication-scanner/internal/store"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var sampleProject = map[string]string{
	"app/__init__.py": "from app.models import Greeter\n\n__all__ = [\"Greeter\", \"run\"]\n",
	"app/models.py": "import os\n" +
		"\n" +
		"class Greeter:\n" +
		"    def __init__(self, name):\n" +
		"        self.name = name\n" +
		"\n" +
		"    def hello(self, prefix):\n" +
		"        return f\"{prefix} {self.name} {os.sep}\"\n",
	"app/main.py": "from app.models import Greeter\n" +
		"\n" +
		"def run(value):\n" +
		"    greeter = Greeter(name=value)\n" +
		"    return greeter.hello(\"hi\")\n",
	"app/empty.py": "",
}

func writeProject(t *testing.T, files map[string]string) (string, []string) {
	t.Helper()
	root := t.TempDir()
	for rel, src := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
		require.NoError(t, os.WriteFile(path, []byte(src), 0o644))
	}
	paths, err := project.Discover(root, nil)
	require.NoError(t, err)
	return root, paths
}

func readProject(t *testing.T, root string, paths []string) map[string]string {
	t.Helper()
	out := make(map[string]string, len(paths))
	for _, p := range paths {
		data, err := os.ReadFile(p)
		require.NoError(t, err)
		rel, err := filepath.Rel(root, p)
		require.NoError(t, err)
		out[filepath.ToSlash(rel)] = string(data)
	}
	return out
}

func TestEngine_Transform(t *testing.T) {
	t.Parallel()

	root, paths := writeProject(t, sampleProject)
	e := NewEngine()

	sum, err := e.Transform(context.Background(), root, paths)
	require.NoError(t, err)

	assert.Equal(t, 4, sum.FilesDiscovered)
	assert.Equal(t, 4, sum.FilesProcessed)
	assert.Equal(t, 1, sum.FilesUnchanged)
	assert.Equal(t, 1, sum.SymbolsSkippedExternal)
	assert.Greater(t, sum.SymbolsDiscovered, 0)
	assert.Greater(t, sum.SymbolsRenamed, 0)
	assert.NotZero(t, sum.Digest)
	assert.Zero(t, sum.RunID)

	out := readProject(t, root, paths)
	for rel, src := range out {
		assert.NoError(t, parser.Check(context.Background(), []byte(src)), rel)
	}
	assert.NotContains(t, out["app/main.py"], "Greeter")
	assert.NotContains(t, out["app/models.py"], "class Greeter")
	assert.Contains(t, out["app/models.py"], "import os as ")
	assert.Contains(t, out["app/models.py"], "def __init__(")
	assert.Contains(t, out["app/models.py"], ".sep}")
	assert.Empty(t, out["app/empty.py"])
	// String contents are data, even when they match an identifier.
	assert.Contains(t, out["app/__init__.py"], "__all__ = [\"Greeter\", \"run\"]")
}

func TestEngine_TransformDeterministicAcrossWorkers(t *testing.T) {
	t.Parallel()

	files := map[string]string{}
	for k, v := range sampleProject {
		files[k] = v
	}
	for i := 0; i < 12; i++ {
		name := string(rune('a' + i))
		files["pkg/mod_"+name+".py"] = "from app.models import Greeter\n\n" +
			"class Item_" + name + ":\n" +
			"    field_" + name + ": int\n\n" +
			"def make_" + name + "(count):\n" +
			"    item = Item_" + name + "()\n" +
			"    item.field_" + name + " = count\n" +
			"    return Greeter(item).hello(count)\n"
	}

	serialRoot, serialPaths := writeProject(t, files)
	parallelRoot, parallelPaths := writeProject(t, files)

	serial, err := NewEngine(WithParallel(1)).Transform(context.Background(), serialRoot, serialPaths)
	require.NoError(t, err)
	parallel, err := NewEngine(WithParallel(4)).Transform(context.Background(), parallelRoot, parallelPaths)
	require.NoError(t, err)

	assert.Equal(t, serial.Digest, parallel.Digest)
	assert.Equal(t, serial.SymbolsRenamed, parallel.SymbolsRenamed)
	if diff := cmp.Diff(readProject(t, serialRoot, serialPaths), readProject(t, parallelRoot, parallelPaths)); diff != "" {
		t.Errorf("outputs differ between 1 and 4 workers (-serial +parallel):\n%s", diff)
	}
}

func TestEngine_TransformAccumulatesFailures(t *testing.T) {
	t.Parallel()

	files := map[string]string{
		"a.py":      "def first(value):\n    return value\n",
		"broken.py": "def (:\n",
		"z.py":      "def last(value):\n    return value\n",
	}
	root, paths := writeProject(t, files)

	sum, err := NewEngine().Transform(context.Background(), root, paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transform had 1 error(s)")
	assert.Contains(t, err.Error(), "broken.py")
	assert.ErrorIs(t, err, ErrParse)

	require.NotNil(t, sum)
	assert.Equal(t, 3, sum.FilesDiscovered)
	assert.Equal(t, 2, sum.FilesProcessed)

	out := readProject(t, root, paths)
	assert.NotContains(t, out["a.py"], "first")
	assert.NotContains(t, out["z.py"], "last")
	assert.Equal(t, files["broken.py"], out["broken.py"])
}

func TestEngine_TransformRecordsLedger(t *testing.T) {
	t.Parallel()

	s, err := store.NewStore(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	require.NoError(t, s.Migrate())
	t.Cleanup(func() { s.Close() })

	root, paths := writeProject(t, sampleProject)
	e := NewEngine(WithLedger(s), WithOrigin("/src/project"))

	sum, err := e.Transform(context.Background(), root, paths)
	require.NoError(t, err)
	require.NotZero(t, sum.RunID)

	run, err := s.RunByID(sum.RunID)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.Equal(t, "/src/project", run.InputRoot)
	assert.Equal(t, root, run.OutputRoot)
	assert.Equal(t, sum.SymbolsDiscovered, run.Symbols)
	assert.Equal(t, 4, run.Files)
	assert.Len(t, run.MapDigest, 16)

	mappings, err := s.Mappings(sum.RunID)
	require.NoError(t, err)
	require.Len(t, mappings, sum.SymbolsDiscovered)

	var greeter string
	for _, m := range mappings {
		if m.Original == "Greeter" {
			greeter = m.Generated
		}
	}
	require.NotEmpty(t, greeter)
	revealed, err := s.Reveal(sum.RunID, greeter)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{greeter: "Greeter"}, revealed)

	results, err := s.FileResults(sum.RunID)
	require.NoError(t, err)
	require.Len(t, results, 4)
	assert.Equal(t, "app/__init__.py", results[0].Path)
	for _, r := range results {
		assert.Empty(t, r.Error, r.Path)
		assert.Len(t, r.OutputHash, 64, r.Path)
	}
}

func TestEngine_PlanPreserve(t *testing.T) {
	t.Parallel()

	root, paths := writeProject(t, sampleProject)

	plan, err := NewEngine(WithPreserve("run", "hello")).Plan(context.Background(), root, paths)
	require.NoError(t, err)

	assert.False(t, plan.Map.HasKey("run"))
	assert.False(t, plan.Map.HasKey("hello"))
	assert.False(t, plan.Map.HasValue("run"))
	assert.True(t, plan.Map.HasKey("Greeter"))
}

func TestEngine_PlanBuiltinPolicy(t *testing.T) {
	t.Parallel()

	root, paths := writeProject(t, sampleProject)

	plan, err := NewEngine(WithPolicies("builtin:public_api")).Plan(context.Background(), root, paths)
	require.NoError(t, err)

	assert.True(t, plan.Index.Preserved.Has("Greeter"))
	assert.True(t, plan.Index.Preserved.Has("run"))
	assert.False(t, plan.Map.HasKey("Greeter"))
	assert.False(t, plan.Map.HasKey("run"))
	assert.True(t, plan.Map.HasKey("hello"))
}

func TestEngine_PlanPolicyFromFS(t *testing.T) {
	t.Parallel()

	fsys := fstest.MapFS{
		"keep_hello.risor": &fstest.MapFile{Data: []byte("preserve(\"hello\")\n")},
	}
	root, paths := writeProject(t, sampleProject)

	plan, err := NewEngine(WithScriptsFS(fsys), WithPolicies("builtin:keep_hello")).Plan(context.Background(), root, paths)
	require.NoError(t, err)
	assert.False(t, plan.Map.HasKey("hello"))
}

func TestEngine_PlanPolicyFromDisk(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "keep.risor"), []byte("preserve([\"value\", \"greeter\"])\n"), 0o644))
	root, paths := writeProject(t, sampleProject)

	plan, err := NewEngine(WithScriptsDir(dir), WithPolicies("keep.risor")).Plan(context.Background(), root, paths)
	require.NoError(t, err)
	assert.False(t, plan.Map.HasKey("value"))
	assert.False(t, plan.Map.HasKey("greeter"))
}

func TestEngine_PlanPolicyError(t *testing.T) {
	t.Parallel()

	root, paths := writeProject(t, sampleProject)

	_, err := NewEngine(WithPolicies("builtin:does_not_exist")).Plan(context.Background(), root, paths)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "policy builtin:does_not_exist")
}

func TestEngine_PlanLogsSkippedFiles(t *testing.T) {
	t.Parallel()

	core, logs := observer.New(zap.WarnLevel)
	root, paths := writeProject(t, map[string]string{
		"ok.py":     "x = 1\n",
		"broken.py": "class :\n",
	})

	plan, err := NewEngine(WithLogger(zap.New(core))).Plan(context.Background(), root, paths)
	require.NoError(t, err)
	require.Len(t, plan.Warnings, 1)
	assert.True(t, strings.HasSuffix(plan.Warnings[0].Path, "broken.py"))
	assert.Equal(t, 1, logs.FilterMessage("skipping file in index").Len())
}

func TestEngine_TransformCancelled(t *testing.T) {
	t.Parallel()

	root, paths := writeProject(t, sampleProject)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewEngine().Transform(ctx, root, paths)
	require.ErrorIs(t, err, context.Canceled)

	assert.Equal(t, sampleProject["app/main.py"], readProject(t, root, paths)["app/main.py"])
}

func TestEngine_TransformWithoutVerify(t *testing.T) {
	t.Parallel()

	root, paths := writeProject(t, map[string]string{"a.py": "def run(value):\n    return value\n"})

	sum, err := NewEngine(WithVerify(false)).Transform(context.Background(), root, paths)
	require.NoError(t, err)
	assert.Equal(t, 1, sum.FilesProcessed)
	assert.Equal(t, "def a(b):\n    return b\n", readProject(t, root, paths)["a.py"])
}

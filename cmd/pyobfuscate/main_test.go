package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(context.Background(), append(args, "--log-level=error"), &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// newProject creates an input directory with a .gitignore and the given
// files, plus the path of a not yet existing output directory.
func newProject(t *testing.T, files map[string]string) (string, string) {
	t.Helper()
	tmp := t.TempDir()
	input := filepath.Join(tmp, "input")
	writeFile(t, filepath.Join(input, ".gitignore"), "")
	for rel, content := range files {
		writeFile(t, filepath.Join(input, filepath.FromSlash(rel)), content)
	}
	return input, filepath.Join(tmp, "output")
}

func TestRun_RequiresInputAndOutput(t *testing.T) {
	t.Parallel()

	code, _, stderr := execute(t, "run")
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "--input and --output are required")
}

func TestRun_UnknownFlagIsUsageError(t *testing.T) {
	t.Parallel()

	code, _, _ := execute(t, "run", "--no-such-flag")
	assert.Equal(t, 2, code)
}

func TestRun_MissingInput(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()

	code, _, stderr := execute(t, "run", "--input", filepath.Join(tmp, "missing"), "--output", filepath.Join(tmp, "out"))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Input path does not exist")
}

func TestRun_MissingGitignore(t *testing.T) {
	t.Parallel()
	tmp := t.TempDir()
	input := filepath.Join(tmp, "input")
	require.NoError(t, os.MkdirAll(input, 0o755))

	code, _, stderr := execute(t, "run", "--input", input, "--output", filepath.Join(tmp, "out"))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, ".gitignore")
}

func TestRun_NonEmptyOutput(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, nil)
	writeFile(t, filepath.Join(output, "existing.txt"), "hello")

	code, _, stderr := execute(t, "run", "--input", input, "--output", output)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Output path must be empty")
}

func TestRun_OverlappingPaths(t *testing.T) {
	t.Parallel()
	input, _ := newProject(t, nil)

	code, _, stderr := execute(t, "run", "--input", input, "--output", filepath.Join(input, "out"))
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "must not overlap")
}

func TestRun_CopyExcludesGitAndIgnored(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		".git/config": "config",
		"keep.txt":    "keep",
		"drop.tmp":    "drop",
	})
	writeFile(t, filepath.Join(input, ".gitignore"), "*.tmp\n")

	code, stdout, stderr := execute(t, "run", "--input", input, "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	assert.NoDirExists(t, filepath.Join(output, ".git"))
	assert.FileExists(t, filepath.Join(output, "keep.txt"))
	assert.NoFileExists(t, filepath.Join(output, "drop.tmp"))
	assert.Contains(t, stdout, "paths_skipped_by_gitignore=1")
	assert.Contains(t, stdout, "paths_skipped_git_dir=1")
}

func TestRun_CopyRespectsNestedGitignore(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		"pkg/.gitignore": "*.log\n",
		"pkg/keep.py":    "x = 1\n",
		"pkg/drop.log":   "secret\n",
	})

	code, _, stderr := execute(t, "run", "--input", input, "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	assert.FileExists(t, filepath.Join(output, "pkg", "keep.py"))
	assert.NoFileExists(t, filepath.Join(output, "pkg", "drop.log"))
}

func TestRun_TransformSummary(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		"a.py":  "x = 1\n",
		"b.py":  "y = 2\n",
		"c.txt": "note\n",
	})

	code, stdout, stderr := execute(t, "run", "--input", input, "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	assert.Contains(t, stdout, "python_files_discovered=2")
	assert.Contains(t, stdout, "python_files_processed=2")
	assert.Contains(t, stdout, "python_files_unchanged=0")

	// The input is never modified.
	data, err := os.ReadFile(filepath.Join(input, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "x = 1\n", string(data))
	data, err = os.ReadFile(filepath.Join(output, "a.py"))
	require.NoError(t, err)
	assert.Equal(t, "a = 1\n", string(data))
}

func TestRun_TransformFailure(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		"a.py": "def (:\n",
		"b.py": "y = 2\n",
	})

	code, stdout, stderr := execute(t, "run", "--input", input, "--output", output)
	assert.Equal(t, 2, code)
	assert.Contains(t, stderr, "Transform failed")
	assert.Contains(t, stderr, "a.py")
	assert.FileExists(t, filepath.Join(output, "b.py"))
	assert.Contains(t, stdout, "transform:start")
	assert.NotContains(t, stdout, "status=success")
}

func TestRun_PhaseMarkersAndSummaryKeys(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{"a.py": "x = 1\n"})

	code, stdout, stderr := execute(t, "run", "--input", input, "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	markers := []string{
		"validation:start", "validation:done",
		"copy:start", "copy:done",
		"transform:start", "transform:done",
		"status=success",
	}
	last := -1
	for _, m := range markers {
		i := strings.Index(stdout, m)
		require.GreaterOrEqual(t, i, 0, "missing %s in:\n%s", m, stdout)
		assert.Greater(t, i, last, "%s out of order", m)
		last = i
	}
	for _, key := range []string{
		"files_copied=", "dirs_created=", "paths_skipped_by_gitignore=", "paths_skipped_git_dir=",
		"python_files_discovered=", "python_files_processed=", "python_files_unchanged=",
		"symbols_discovered=", "symbols_renamed=", "symbols_skipped_external=",
		"symbols_renamed_likely_local=", "dynamic_name_rewrites=", "elapsed_ms=",
	} {
		assert.Contains(t, stdout, key)
	}
}

func TestRun_ObfuscationCounters(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		"a.py": "import os\n" +
			"\n" +
			"class Box:\n" +
			"    def __init__(self, value):\n" +
			"        self.value = value\n" +
			"\n" +
			"def run(name):\n" +
			"    box = Box(name)\n" +
			"    return f'v={box.value} {os.sep}'\n",
	})

	code, stdout, stderr := execute(t, "run", "--input", input, "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	assert.Contains(t, stdout, "symbols_skipped_external=1")
	assert.Contains(t, stdout, "symbols_renamed_likely_local=")
	assert.Contains(t, stdout, "dynamic_name_rewrites=0")
	assert.NotContains(t, stdout, "symbols_renamed=0")

	data, err := os.ReadFile(filepath.Join(output, "a.py"))
	require.NoError(t, err)
	assert.NotContains(t, string(data), "Box")
	assert.Contains(t, string(data), "import os as ")
}

func TestRun_LikelyLocalDynamicRewrite(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		"a.py": "class Box:\n" +
			"    def __init__(self):\n" +
			"        self.value = 1\n" +
			"\n" +
			"def read(obj):\n" +
			"    return getattr(obj, \"value\")\n",
	})

	code, stdout, stderr := execute(t, "run", "--input", input, "--output", output)
	require.Equal(t, 0, code, stderr)
	assert.Empty(t, stderr)

	assert.Contains(t, stdout, "dynamic_name_rewrites=1")
	assert.NotContains(t, stdout, "symbols_renamed_likely_local=0")
}

func TestRun_PreserveFlag(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{"a.py": "def main(value):\n    return value\n"})

	code, _, stderr := execute(t, "run", "--input", input, "--output", output, "--preserve", "main")
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(output, "a.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "def main(")
}

func TestRun_PublicAPIPolicy(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		"lib.py": "__all__ = ['connect']\n\ndef connect(url):\n    return url\n\ndef helper():\n    pass\n",
	})

	code, _, stderr := execute(t, "run", "--input", input, "--output", output, "--policy", "builtin:public_api")
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(output, "lib.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "def connect(")
	assert.NotContains(t, string(data), "helper")
}

func TestRun_ConfigFileInInputRoot(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{
		".pyobfuscate.yaml": "preserve:\n  - main\nworkers: 2\n",
		"a.py":              "def main(value):\n    return value\n",
	})

	code, _, stderr := execute(t, "run", "--input", input, "--output", output)
	require.Equal(t, 0, code, stderr)

	data, err := os.ReadFile(filepath.Join(output, "a.py"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "def main(")
	assert.NotContains(t, string(data), "value")
}

func TestLedger_RecordsAndReveals(t *testing.T) {
	t.Parallel()
	input, output := newProject(t, map[string]string{"a.py": "def run(value):\n    return value\n"})
	ledger := filepath.Join(t.TempDir(), "ledger.db")

	code, stdout, stderr := execute(t, "run", "--input", input, "--output", output, "--ledger", ledger)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "run_id=1")

	code, stdout, stderr = execute(t, "ledger", "runs", "--ledger", ledger, "--format", "json")
	require.Equal(t, 0, code, stderr)
	var runs struct {
		Command string   `json:"command"`
		Results []CLIRun `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &runs))
	assert.Equal(t, "ledger runs", runs.Command)
	require.Len(t, runs.Results, 1)
	assert.Equal(t, 2, runs.Results[0].Symbols)
	assert.Equal(t, 1, runs.Results[0].Files)

	code, stdout, stderr = execute(t, "ledger", "reveal", "a", "b", "zz", "--ledger", ledger, "--format", "json")
	require.Equal(t, 0, code, stderr)
	var reveal struct {
		Results []CLIReveal `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &reveal))
	assert.Equal(t, []CLIReveal{
		{Generated: "a", Original: "run", Found: true},
		{Generated: "b", Original: "value", Found: true},
		{Generated: "zz", Found: false},
	}, reveal.Results)

	code, stdout, stderr = execute(t, "ledger", "show", "--ledger", ledger)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "Run 1")
	assert.Contains(t, stdout, "a.py")
}

func TestLedger_RequiresPath(t *testing.T) {
	t.Parallel()

	code, _, stderr := execute(t, "ledger", "runs")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "Error: no ledger configured")
}

func TestLedger_ShowUnknownRun(t *testing.T) {
	t.Parallel()
	ledger := filepath.Join(t.TempDir(), "ledger.db")

	code, _, stderr := execute(t, "ledger", "show", "7", "--ledger", ledger)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "run 7 not found")
}

func TestMap_Formats(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.py"), "import os\n\ndef run(value):\n    return os.path.join(value)\n")

	code, stdout, stderr := execute(t, "map", dir)
	require.Equal(t, 0, code, stderr)
	assert.Contains(t, stdout, "ORIGINAL")
	assert.Contains(t, stdout, "2 symbols from 1 files, 1 external")

	code, stdout, stderr = execute(t, "map", dir, "--format", "json")
	require.Equal(t, 0, code, stderr)
	var asJSON struct {
		Results CLIMap `json:"results"`
	}
	require.NoError(t, json.Unmarshal([]byte(stdout), &asJSON))
	assert.Equal(t, []CLIMapEntry{
		{Original: "run", Generated: "a"},
		{Original: "value", Generated: "b"},
	}, asJSON.Results.Entries)
	assert.Len(t, asJSON.Results.Digest, 16)

	code, stdout, stderr = execute(t, "map", dir, "--format", "yaml")
	require.Equal(t, 0, code, stderr)
	var asYAML struct {
		Results CLIMap `yaml:"results"`
	}
	require.NoError(t, yaml.Unmarshal([]byte(stdout), &asYAML))
	assert.Equal(t, asJSON.Results, asYAML.Results)
}

func TestMap_InvalidFormat(t *testing.T) {
	t.Parallel()

	code, _, stderr := execute(t, "map", t.TempDir(), "--format", "xml")
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "unknown format")
}

func TestMap_NotADirectory(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "file.py")
	writeFile(t, path, "x = 1\n")

	code, _, stderr := execute(t, "map", path)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr, "not a directory")
}

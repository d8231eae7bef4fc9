package shell

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/eniac111/plumbtest/internal/connection"
	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args modules.Args, check bool) map[string]any {
	t.Helper()
	res, err := ShellModule{}.Run(context.Background(), connection.NewLocal(), modules.Invocation{Module: "shell", Args: args, Check: check})
	require.NoError(t, err)
	return res
}

func TestShellRunsCommand(t *testing.T) {
	res := run(t, modules.Args{modules.RawParams: "echo hello"}, false)
	assert.Equal(t, "hello\n", res["stdout"])
	assert.Equal(t, 0, res["rc"])
	assert.Equal(t, true, res["changed"])
	assert.Equal(t, false, res["failed"])
}

func TestShellNonZeroExit(t *testing.T) {
	res := run(t, modules.Args{"cmd": "echo oops >&2; exit 4"}, false)
	assert.Equal(t, true, res["failed"])
	assert.Equal(t, 4, res["rc"])
	assert.Equal(t, "oops\n", res["stderr"])
}

func TestShellMissingCommand(t *testing.T) {
	res := run(t, modules.Args{}, false)
	assert.Equal(t, true, res["failed"])
}

func TestShellChdir(t *testing.T) {
	dir := t.TempDir()
	res := run(t, modules.Args{modules.RawParams: "pwd", "chdir": dir}, false)
	want, err := filepath.EvalSymlinks(dir)
	require.NoError(t, err)
	got, err := filepath.EvalSymlinks(strings.TrimSpace(res["stdout"].(string)))
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestShellCreatesAndRemoves(t *testing.T) {
	dir := t.TempDir()
	marker := filepath.Join(dir, "marker")
	require.NoError(t, os.WriteFile(marker, nil, 0o644))

	res := run(t, modules.Args{modules.RawParams: "exit 1", "creates": marker}, false)
	assert.Equal(t, false, res["changed"])
	assert.Equal(t, false, res["failed"])

	res = run(t, modules.Args{modules.RawParams: "exit 1", "removes": filepath.Join(dir, "missing")}, false)
	assert.Equal(t, false, res["changed"])
	assert.Equal(t, false, res["failed"])
}

func TestShellCheckMode(t *testing.T) {
	dir := t.TempDir()
	target := filepath.Join(dir, "created")
	res := run(t, modules.Args{modules.RawParams: "touch " + target}, true)
	assert.Equal(t, true, res["skipped"])
	assert.NoFileExists(t, target)
}

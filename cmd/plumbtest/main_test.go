package main

import (
	"bytes"
	"encoding/json"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"

	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func isolate(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("PLUMBTEST_CONFIG", "")
	return dir
}

func execute(t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func closedPort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())
	return port
}

func TestPing(t *testing.T) {
	isolate(t)
	code, out, _ := execute(t, "ping", "-i", "localhost,")
	require.Equal(t, exitOK, code)

	var r report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "pong", r.Contacted["localhost"]["ping"])
}

func TestPingUnreachable(t *testing.T) {
	dir := isolate(t)
	inv := filepath.Join(dir, "hosts.yml")
	require.NoError(t, os.WriteFile(inv, []byte(`
all:
  hosts:
    localhost:
    gone:
      address: 127.0.0.1
      port: `+strconv.Itoa(closedPort(t))+`
      user: nobody
      password: x
`), 0o644))

	code, out, _ := execute(t, "ping", "-i", inv, "--timeout", "5s")
	assert.Equal(t, exitUnreachable, code)

	var r report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Contains(t, r.Contacted, "localhost")
	assert.Contains(t, r.Dark, "gone")
}

func TestNoHostsMatched(t *testing.T) {
	isolate(t)
	code, _, stderr := execute(t, "ping", "-i", "localhost,", "-p", "db")
	assert.Equal(t, exitNoHosts, code)
	assert.Contains(t, stderr, `no hosts matched pattern "db"`)

	code, _, _ = execute(t, "hosts", "nothing", "-i", "localhost,")
	assert.Equal(t, exitNoHosts, code)
}

func TestMissingInventory(t *testing.T) {
	isolate(t)
	code, _, stderr := execute(t, "ping")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "inventory")
}

func TestHosts(t *testing.T) {
	isolate(t)
	code, out, _ := execute(t, "hosts", "-i", "web1,web2,db1", "web*")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "web1\nweb2\n", out)
}

func TestRunShellAndFailure(t *testing.T) {
	isolate(t)
	code, out, _ := execute(t, "run", "shell", "echo", "hi", "-i", "localhost,")
	require.Equal(t, exitOK, code)
	var r report
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	assert.Equal(t, "hi\n", r.Contacted["localhost"]["stdout"])

	code, _, stderr := execute(t, "run", "shell", "exit 3", "-i", "localhost,")
	assert.Equal(t, exitError, code)
	assert.Contains(t, stderr, "localhost")
}

func TestRunCheckMode(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "made")
	code, _, _ := execute(t, "run", "file", "path="+target, "state=directory", "--check", "-i", "localhost,")
	require.Equal(t, exitOK, code)
	assert.NoDirExists(t, target)
}

func TestPlay(t *testing.T) {
	dir := isolate(t)
	target := filepath.Join(dir, "motd")
	pb := filepath.Join(dir, "play.yml")
	require.NoError(t, os.WriteFile(pb, []byte(`
tasks:
  - name: write motd
    module: copy
    params:
      content: "hello\n"
      dest: `+target+`
  - name: read it back
    module: shell
    params:
      cmd: cat `+target+`
`), 0o644))

	code, out, stderr := execute(t, "play", pb, "-i", "localhost,")
	require.Equal(t, exitOK, code, stderr)
	assert.FileExists(t, target)

	dec := json.NewDecoder(bytes.NewBufferString(out))
	var first, second report
	require.NoError(t, dec.Decode(&first))
	require.NoError(t, dec.Decode(&second))
	assert.Equal(t, "write motd", first.Task)
	assert.Equal(t, "hello\n", second.Contacted["localhost"]["stdout"])
}

func TestVersion(t *testing.T) {
	isolate(t)
	code, out, _ := execute(t, "version", "--engine-version", "2.3.1")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "engine v2.3.1 (inventory binding v2)")
}

func TestParseModuleArgs(t *testing.T) {
	args := parseModuleArgs([]string{"path=/tmp/x", "state=directory"})
	assert.Equal(t, modules.Args{"path": "/tmp/x", "state": "directory"}, args)

	args = parseModuleArgs([]string{"echo a=b", "chdir=/tmp"})
	assert.Equal(t, modules.Args{modules.RawParams: "echo a=b", "chdir": "/tmp"}, args)

	args = parseModuleArgs([]string{"uptime"})
	assert.Equal(t, "uptime", args[modules.RawParams])
}

package ssh

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/eniac111/plumbtest/internal/sshtest"
	"github.com/eniac111/plumbtest/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func connect(t *testing.T, srv *sshtest.Server) *FS {
	t.Helper()
	host := types.HostFromVars("target", srv.Vars())
	client, err := Connect(context.Background(), host, ConnectOptions{Timeout: 5 * time.Second, SkipDefaults: true})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })

	stdout, stderr, rc, err := RunCommand(context.Background(), client, "echo hello; echo warn >&2; exit 7")
	require.NoError(t, err)
	assert.Equal(t, "hello\n", stdout)
	assert.Equal(t, "warn\n", stderr)
	assert.Equal(t, 7, rc)

	fsys, err := NewFS(client)
	require.NoError(t, err)
	t.Cleanup(func() { fsys.Close() })
	return fsys
}

func TestConnectAndRun(t *testing.T) {
	srv := sshtest.Start(t)
	connect(t, srv)
}

func TestFS(t *testing.T) {
	fsys := connect(t, sshtest.Start(t))
	dir := filepath.Join(t.TempDir(), "nested", "dir")

	require.NoError(t, fsys.MkdirAll(dir, 0o750))
	info, err := fsys.Lstat(dir)
	require.NoError(t, err)
	assert.True(t, info.IsDir())

	path := filepath.Join(dir, "file.txt")
	require.NoError(t, fsys.WriteFile(path, []byte("remote data"), 0o600))
	data, err := fsys.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "remote data", string(data))
	info, err = fsys.Lstat(path)
	require.NoError(t, err)
	assert.Equal(t, 0o600, int(info.Mode().Perm()))

	link := filepath.Join(dir, "link")
	require.NoError(t, fsys.Symlink(path, link))
	info, err = fsys.Lstat(link)
	require.NoError(t, err)
	assert.Equal(t, os.ModeSymlink, info.Mode().Type())

	mtime := time.Date(2021, 3, 4, 5, 6, 7, 0, time.UTC)
	require.NoError(t, fsys.Chtimes(path, mtime, mtime))
	info, err = fsys.Lstat(path)
	require.NoError(t, err)
	assert.True(t, mtime.Equal(info.ModTime()))

	require.NoError(t, fsys.RemoveAll(filepath.Dir(dir)))
	_, err = fsys.Lstat(dir)
	assert.Error(t, err)
}

func TestConnectWrongPassword(t *testing.T) {
	srv := sshtest.Start(t)
	host := types.HostFromVars("target", srv.Vars())
	host.Password = "wrong"
	_, err := Connect(context.Background(), host, ConnectOptions{Timeout: 5 * time.Second, SkipDefaults: true})
	assert.Error(t, err)
}

func TestConnectRefused(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port := l.Addr().(*net.TCPAddr).Port
	require.NoError(t, l.Close())

	host := types.Host{Name: "gone", Address: "127.0.0.1", Port: port, User: "x", Password: "y"}
	_, err = Connect(context.Background(), host, ConnectOptions{Timeout: time.Second, SkipDefaults: true})
	require.Error(t, err)
	assert.Contains(t, err.Error(), strconv.Itoa(port))
}

func TestConnectWithoutAuth(t *testing.T) {
	_, err := Connect(context.Background(), types.Host{Name: "x"}, ConnectOptions{SkipDefaults: true})
	assert.EqualError(t, err, "no authentication methods available")
}

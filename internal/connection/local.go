package connection

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"time"

	"github.com/eniac111/plumbtest/internal/modules"
)

// LocalConn runs commands on the controller itself.
type LocalConn struct{}

// NewLocal returns a connection to the local machine.
func NewLocal() *LocalConn { return &LocalConn{} }

// Exec runs cmd with /bin/sh.
func (LocalConn) Exec(ctx context.Context, cmd string) (modules.ExecResult, error) {
	c := exec.CommandContext(ctx, "/bin/sh", "-c", cmd)
	var outBuf, errBuf bytes.Buffer
	c.Stdout = &outBuf
	c.Stderr = &errBuf

	err := c.Run()
	res := modules.ExecResult{Stdout: outBuf.String(), Stderr: errBuf.String()}
	var exitErr *exec.ExitError
	switch {
	case ctx.Err() != nil:
		return res, ctx.Err()
	case errors.As(err, &exitErr):
		res.RC = exitErr.ExitCode()
		return res, nil
	case err != nil:
		return res, err
	}
	return res, nil
}

// FS returns the local file system.
func (LocalConn) FS() (modules.FS, error) { return localFS{}, nil }

// Close is a no-op.
func (LocalConn) Close() error { return nil }

type localFS struct{}

func (localFS) Lstat(name string) (os.FileInfo, error)       { return os.Lstat(name) }
func (localFS) MkdirAll(path string, perm os.FileMode) error { return os.MkdirAll(path, perm) }
func (localFS) RemoveAll(path string) error                  { return os.RemoveAll(path) }
func (localFS) Symlink(oldname, newname string) error        { return os.Symlink(oldname, newname) }
func (localFS) Link(oldname, newname string) error           { return os.Link(oldname, newname) }
func (localFS) ReadFile(name string) ([]byte, error)         { return os.ReadFile(name) }
func (localFS) Chmod(name string, mode os.FileMode) error    { return os.Chmod(name, mode) }
func (localFS) Chown(name string, uid, gid int) error        { return os.Chown(name, uid, gid) }

func (localFS) WriteFile(name string, data []byte, perm os.FileMode) error {
	if err := os.WriteFile(name, data, perm); err != nil {
		return err
	}
	return os.Chmod(name, perm)
}

func (localFS) Chtimes(name string, atime, mtime time.Time) error {
	return os.Chtimes(name, atime, mtime)
}

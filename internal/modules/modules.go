// Package modules defines what a remote module is and what it may use on
// the host it runs against.
package modules

import (
	"context"
	"io/fs"
	"os"
	"sort"
	"time"

	"github.com/eniac111/plumbtest/internal/types"
	"github.com/spf13/cast"
)

// RawParams is the argument key holding a module's free-form positional
// argument, e.g. the command line of the shell module.
const RawParams = "_raw_params"

// Args are the keyword arguments of one module call.
type Args map[string]any

// String returns the argument as a string, or "" when absent.
func (a Args) String(key string) string { return cast.ToString(a[key]) }

// Bool returns the argument as a bool, or false when absent.
func (a Args) Bool(key string) bool { return types.Truthy(a[key]) }

// ExecResult is the outcome of a command that ran to completion.
type ExecResult struct {
	Stdout string
	Stderr string
	RC     int
}

// FS is the file system of the target host.
type FS interface {
	Lstat(name string) (fs.FileInfo, error)
	MkdirAll(path string, perm os.FileMode) error
	RemoveAll(path string) error
	Symlink(oldname, newname string) error
	Link(oldname, newname string) error
	ReadFile(name string) ([]byte, error)
	WriteFile(name string, data []byte, perm os.FileMode) error
	Chmod(name string, mode os.FileMode) error
	Chown(name string, uid, gid int) error
	Chtimes(name string, atime, mtime time.Time) error
}

// Conn is an open connection to one host. Errors returned by its methods
// are transport failures; a command exiting non-zero is not an error.
type Conn interface {
	Exec(ctx context.Context, cmd string) (ExecResult, error)
	FS() (FS, error)
	Close() error
}

// Invocation describes one module call on one host.
type Invocation struct {
	Module string
	Args   Args
	Check  bool
	Vars   map[string]any
}

// Module runs on a host. A returned error means the host could not be
// talked to; module failures are reported in the result.
type Module interface {
	Run(ctx context.Context, conn Conn, inv Invocation) (types.Result, error)
}

// ModuleFunc adapts a function to Module.
type ModuleFunc func(ctx context.Context, conn Conn, inv Invocation) (types.Result, error)

// Run calls f.
func (f ModuleFunc) Run(ctx context.Context, conn Conn, inv Invocation) (types.Result, error) {
	return f(ctx, conn, inv)
}

// Registry maps module names to implementations.
type Registry struct {
	modules map[string]Module
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{modules: map[string]Module{}}
}

// Register adds or replaces the module called name.
func (r *Registry) Register(name string, m Module) {
	r.modules[name] = m
}

// Lookup returns the module called name.
func (r *Registry) Lookup(name string) (Module, bool) {
	m, ok := r.modules[name]
	return m, ok
}

// Names returns the registered module names, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.modules))
	for name := range r.modules {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

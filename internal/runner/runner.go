// Package runner is the execution engine: it runs one module against a set
// of hosts in parallel and splits the outcome into hosts that were contacted
// and hosts that could not be reached.
package runner

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eniac111/plumbtest/internal/connection"
	"github.com/eniac111/plumbtest/internal/logging"
	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
	"github.com/google/uuid"
	"github.com/spf13/cast"
	"golang.org/x/sync/errgroup"
)

// DefaultVersion is the engine API version reported when none is configured.
const DefaultVersion = "v2.5.0"

// DefaultForks bounds how many hosts are worked on at once.
const DefaultForks = 5

// Extra runner arguments understood by Run.
const (
	ArgCheck   = "check"
	ArgForks   = "forks"
	ArgTimeout = "timeout"
)

// ErrUnknownModule is returned when the requested module is not registered.
var ErrUnknownModule = errors.New("unknown module")

// Dialer opens a connection according to s.
type Dialer func(ctx context.Context, s connection.Settings, logger *log.Logger) (modules.Conn, error)

// Runner executes modules on hosts.
type Runner struct {
	version  string
	dial     Dialer
	registry *modules.Registry
	logger   *log.Logger
	forks    int
}

// Option configures a Runner.
type Option func(*Runner)

// WithVersion overrides the reported engine version.
func WithVersion(v string) Option {
	return func(r *Runner) {
		if v != "" {
			r.version = v
		}
	}
}

// WithDialer replaces how connections are opened.
func WithDialer(d Dialer) Option {
	return func(r *Runner) { r.dial = d }
}

// WithRegistry replaces the module registry.
func WithRegistry(reg *modules.Registry) Option {
	return func(r *Runner) { r.registry = reg }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(r *Runner) { r.logger = l }
}

// WithForks sets the default parallelism.
func WithForks(n int) Option {
	return func(r *Runner) {
		if n > 0 {
			r.forks = n
		}
	}
}

// New returns a runner with the built-in modules and real transports.
func New(opts ...Option) *Runner {
	r := &Runner{
		version: DefaultVersion,
		dial:    connection.Open,
		forks:   DefaultForks,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.registry == nil {
		r.registry = DefaultRegistry()
	}
	if r.logger == nil {
		r.logger = logging.For("runner")
	}
	return r
}

// Version returns the engine API version.
func (r *Runner) Version() string { return r.version }

// Registry returns the modules the runner knows.
func (r *Runner) Registry() *modules.Registry { return r.registry }

// Target is one host to run against, with its resolved variables.
type Target struct {
	Name string
	Vars map[string]any
}

// Request describes one module run.
type Request struct {
	Module     string
	Args       modules.Args
	Targets    []Target
	Connection connection.Defaults
	// Extra holds runner arguments passed through verbatim by the caller.
	Extra map[string]any
}

type settings struct {
	check   bool
	forks   int
	timeout time.Duration
}

func (r *Runner) settings(req Request) (settings, error) {
	s := settings{forks: r.forks, timeout: req.Connection.Timeout}
	if v, ok := req.Extra[ArgCheck]; ok {
		s.check = types.Truthy(v)
	}
	if v, ok := req.Extra[ArgForks]; ok {
		n, err := cast.ToIntE(v)
		if err != nil || n < 1 {
			return s, fmt.Errorf("invalid %s %v", ArgForks, v)
		}
		s.forks = n
	}
	if v, ok := req.Extra[ArgTimeout]; ok {
		d, err := parseTimeout(v)
		if err != nil {
			return s, fmt.Errorf("invalid %s %v: %w", ArgTimeout, v, err)
		}
		s.timeout = d
	}
	return s, nil
}

// parseTimeout accepts durations ("30s") and plain numbers of seconds.
func parseTimeout(v any) (time.Duration, error) {
	switch v := v.(type) {
	case time.Duration:
		return v, nil
	case string:
		if d, err := time.ParseDuration(v); err == nil {
			return d, nil
		}
	}
	secs, err := cast.ToFloat64E(v)
	if err != nil {
		return 0, err
	}
	return time.Duration(secs * float64(time.Second)), nil
}

// Run executes req. Every target ends up in exactly one of contacted or
// dark. The error is set only when nothing could be attempted.
func (r *Runner) Run(ctx context.Context, req Request) (contacted, dark types.Results, err error) {
	mod, ok := r.registry.Lookup(req.Module)
	if !ok {
		return nil, nil, fmt.Errorf("%w %q", ErrUnknownModule, req.Module)
	}
	s, err := r.settings(req)
	if err != nil {
		return nil, nil, err
	}
	defaults := req.Connection
	defaults.Timeout = s.timeout

	logger := r.logger.With("run_id", uuid.NewString(), "module", req.Module)
	logger.Debug("starting run", "hosts", len(req.Targets), "forks", s.forks, "check", s.check)

	contacted, dark = types.Results{}, types.Results{}
	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(s.forks)
	for _, t := range req.Targets {
		g.Go(func() error {
			res, reachErr := r.runHost(gctx, mod, req, t, defaults, s.check, logger)
			mu.Lock()
			defer mu.Unlock()
			if reachErr != nil {
				logger.Warn("host unreachable", "host", t.Name, "err", reachErr)
				dark[t.Name] = unreachable(reachErr)
				return nil
			}
			contacted[t.Name] = res
			return nil
		})
	}
	_ = g.Wait()
	if err := ctx.Err(); err != nil {
		return nil, nil, err
	}
	logger.Debug("run finished", "contacted", len(contacted), "dark", len(dark))
	return contacted, dark, nil
}

func (r *Runner) runHost(ctx context.Context, mod modules.Module, req Request, t Target, d connection.Defaults, check bool, logger *log.Logger) (types.Result, error) {
	s := connection.Resolve(t.Name, t.Vars, d)
	logger.Debug("connecting", "host", t.Name, "connection", s.Type, "addr", s.Host.DialAddress())
	conn, err := r.dial(ctx, s, logger)
	if err != nil {
		return nil, err
	}
	defer conn.Close()

	res, err := mod.Run(ctx, conn, modules.Invocation{
		Module: req.Module,
		Args:   maps.Clone(req.Args),
		Check:  check,
		Vars:   t.Vars,
	})
	if err != nil {
		return nil, err
	}
	if res == nil {
		res = types.Result{}
	}
	if _, ok := res[types.KeyChanged]; !ok {
		res[types.KeyChanged] = false
	}
	args := map[string]any(maps.Clone(req.Args))
	if args == nil {
		args = map[string]any{}
	}
	res[types.KeyInvocation] = map[string]any{
		types.KeyModuleName: req.Module,
		types.KeyModuleArgs: args,
	}
	return res, nil
}

func unreachable(err error) types.Result {
	return types.Result{
		types.KeyFailed:      true,
		types.KeyUnreachable: true,
		types.KeyChanged:     false,
		types.KeyMsg:         err.Error(),
	}
}

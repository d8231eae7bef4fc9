package hostmanager

import (
	"context"
	"fmt"
	"maps"

	"github.com/charmbracelet/log"
	"github.com/eniac111/plumbtest/internal/inventory"
	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/runner"
	"github.com/google/uuid"
	"github.com/spf13/cast"
)

// ExtraVarsArg is the runner argument holding variables that override
// every inventory variable.
const ExtraVarsArg = "extra_vars"

// Dispatcher runs modules against the hosts of one pattern. It keeps no
// state between calls.
type Dispatcher struct {
	opts   Options
	exec   Executor
	logger *log.Logger
}

type call struct {
	runnerArgs map[string]any
	freeForm   *string
	become     bool
	becomeUser string
}

// CallOption adjusts a single module call.
type CallOption func(*call)

// WithRunnerArgs adds engine arguments for this call. They override the
// manager's RunnerArgs.
func WithRunnerArgs(args map[string]any) CallOption {
	return func(c *call) { maps.Copy(c.runnerArgs, args) }
}

// Check runs the module in check mode.
func Check() CallOption {
	return func(c *call) { c.runnerArgs[runner.ArgCheck] = true }
}

// Become escalates privileges for this call, to user when it is not empty.
func Become(user string) CallOption {
	return func(c *call) {
		c.become = true
		c.becomeUser = user
	}
}

// FreeForm sets the module's positional argument, e.g. the command line of
// the shell module.
func FreeForm(s string) CallOption {
	return func(c *call) { c.freeForm = &s }
}

// HostPattern returns the pattern the dispatcher targets.
func (d *Dispatcher) HostPattern() string {
	if d.opts.HostPattern == "" {
		return inventory.AllGroup
	}
	return d.opts.HostPattern
}

// Inventory returns the inventory the pattern is resolved against.
func (d *Dispatcher) Inventory() *inventory.Manager { return d.opts.InventoryManager }

// Ping runs the ping module.
func (d *Dispatcher) Ping(ctx context.Context) (Results, error) {
	return d.Run(ctx, "ping", nil)
}

// Run executes module with args on every host the pattern selects and
// returns the contacted results. It fails with a *HostUnreachableError
// when any host was unreachable and with a *NoHostsMatchedError when no
// host was targeted.
func (d *Dispatcher) Run(ctx context.Context, module string, args map[string]any, opts ...CallOption) (Results, error) {
	c := &call{runnerArgs: maps.Clone(d.opts.RunnerArgs)}
	if c.runnerArgs == nil {
		c.runnerArgs = map[string]any{}
	}
	for _, o := range opts {
		o(c)
	}
	if _, ok := c.runnerArgs[runner.ArgForks]; !ok && d.opts.Forks > 0 {
		c.runnerArgs[runner.ArgForks] = d.opts.Forks
	}
	modArgs := modules.Args(maps.Clone(args))
	if c.freeForm != nil {
		if modArgs == nil {
			modArgs = modules.Args{}
		}
		modArgs[modules.RawParams] = *c.freeForm
	}

	pattern := d.HostPattern()
	targets, err := d.targets(pattern, c.runnerArgs)
	if err != nil {
		return nil, err
	}

	conn := d.opts.connectionDefaults()
	if c.become {
		conn.Become = true
		if c.becomeUser != "" {
			conn.BecomeUser = c.becomeUser
		}
	}

	logger := d.logger.With("dispatch_id", uuid.NewString())
	logger.Debug("dispatching", "module", module, "pattern", pattern, "hosts", len(targets))
	contacted, dark, err := d.exec.Run(ctx, runner.Request{
		Module:     module,
		Args:       modArgs,
		Targets:    targets,
		Connection: conn,
		Extra:      c.runnerArgs,
	})
	if err != nil {
		return nil, fmt.Errorf("run %s on %q: %w", module, pattern, err)
	}

	switch {
	case len(dark) > 0:
		logger.Debug("hosts unreachable", "dark", dark.Hosts())
		return nil, &HostUnreachableError{Pattern: pattern, Contacted: contacted, Dark: dark}
	case len(contacted) == 0:
		return nil, &NoHostsMatchedError{Pattern: pattern}
	}
	return contacted, nil
}

func (d *Dispatcher) targets(pattern string, runnerArgs map[string]any) ([]runner.Target, error) {
	hosts, err := d.opts.InventoryManager.ListHosts(pattern)
	if err != nil {
		return nil, fmt.Errorf("resolve host pattern %q: %w", pattern, err)
	}
	var extra map[string]any
	if v, ok := runnerArgs[ExtraVarsArg]; ok {
		if extra, err = cast.ToStringMapE(v); err != nil {
			return nil, fmt.Errorf("invalid %s: %w", ExtraVarsArg, err)
		}
	}

	targets := make([]runner.Target, 0, len(hosts))
	for _, host := range hosts {
		var vars map[string]any
		if vm := d.opts.VariableManager; vm != nil {
			if vars, err = vm.HostVars(host.Name); err != nil {
				return nil, fmt.Errorf("variables of %s: %w", host.Name, err)
			}
		} else {
			vars = host.AllVars()
		}
		maps.Copy(vars, extra)
		targets = append(targets, runner.Target{Name: host.Name, Vars: vars})
	}
	return targets, nil
}

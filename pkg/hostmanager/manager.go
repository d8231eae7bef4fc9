// Package hostmanager resolves host patterns against an inventory and
// dispatches modules to the matching hosts.
//
// A HostManager is built once per test scope. Group and Item look up a
// host, a group or any pattern and return a Dispatcher scoped to it;
// lookups that match nothing fail with a *ResolutionError. A Dispatcher
// runs a module on its hosts and returns the per-host results, or a
// *HostUnreachableError carrying both the contacted and the dark hosts,
// or a *NoHostsMatchedError when the pattern selected nobody.
package hostmanager

import (
	"context"
	"fmt"
	"strconv"

	"github.com/charmbracelet/log"
	"github.com/eniac111/plumbtest/internal/inventory"
	"github.com/eniac111/plumbtest/internal/logging"
	"github.com/eniac111/plumbtest/internal/runner"
	"github.com/eniac111/plumbtest/internal/types"
)

// Executor runs modules. *runner.Runner implements it.
type Executor interface {
	VersionSource
	Run(ctx context.Context, req runner.Request) (contacted, dark types.Results, err error)
}

// HostManager owns an inventory and resolves host patterns against it.
// It is not safe for concurrent use.
type HostManager struct {
	caps   Capabilities
	opts   Options
	exec   Executor
	logger *log.Logger
}

// Option configures a HostManager.
type Option func(*HostManager)

// WithExecutor sets the engine modules are dispatched to.
func WithExecutor(e Executor) Option {
	return func(h *HostManager) { h.exec = e }
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(h *HostManager) { h.logger = l }
}

// Open detects the engine capabilities and builds a HostManager for them.
// Without WithExecutor the built-in engine is used.
func Open(opts Options, options ...Option) (*HostManager, error) {
	h := &HostManager{}
	for _, o := range options {
		o(h)
	}
	exec := h.exec
	if exec == nil {
		exec = runner.New(runner.WithVersion(opts.EngineVersion), runner.WithForks(opts.Forks))
	}
	caps, err := Detect(exec)
	if err != nil {
		return nil, err
	}
	return New(caps, opts, append(options, WithExecutor(exec))...)
}

// New builds a HostManager using the inventory binding of caps.
func New(caps Capabilities, opts Options, options ...Option) (*HostManager, error) {
	if opts.Inventory == "" {
		return nil, &ConfigurationError{Option: "inventory"}
	}
	b, err := caps.binding()
	if err != nil {
		return nil, err
	}

	h := &HostManager{caps: caps, opts: opts.clone()}
	for _, o := range options {
		o(h)
	}
	if h.logger == nil {
		h.logger = logging.For("hostmanager")
	}
	if h.exec == nil {
		h.exec = runner.New(runner.WithVersion(caps.EngineVersion), runner.WithForks(opts.Forks))
	}

	if err := b.initializeInventory(&h.opts); err != nil {
		return nil, fmt.Errorf("initialize inventory %q: %w", opts.Inventory, err)
	}
	if h.opts.Limit != "" {
		if err := h.opts.InventoryManager.Subset(h.opts.Limit); err != nil {
			return nil, fmt.Errorf("apply limit %q: %w", h.opts.Limit, err)
		}
	}
	h.logger.Debug("inventory initialized",
		"inventory", opts.Inventory, "generation", caps.Generation, "hosts", h.Len())
	return h, nil
}

// Capabilities returns what the manager was built for.
func (h *HostManager) Capabilities() Capabilities { return h.caps }

// Options returns a copy of the manager's options.
func (h *HostManager) Options() Options { return h.opts.clone() }

// Inventory returns the resolved inventory.
func (h *HostManager) Inventory() *inventory.Manager { return h.opts.InventoryManager }

// HasMatchingInventory reports whether pattern selects at least one host
// or names an existing group. Inventory errors, such as a malformed
// pattern, count as no match.
func (h *HostManager) HasMatchingInventory(pattern string) bool {
	inv := h.opts.InventoryManager
	hosts, err := inv.ListHosts(pattern)
	if err != nil {
		h.logger.Debug("pattern does not resolve", "pattern", pattern, "err", err)
		return false
	}
	return len(hosts) > 0 || inv.HasGroup(pattern)
}

// Group returns a dispatcher for a host or group name.
func (h *HostManager) Group(name string) (*Dispatcher, error) {
	if !h.HasMatchingInventory(name) {
		return nil, &ResolutionError{Name: name, Access: AttributeAccess}
	}
	return h.dispatcher(name), nil
}

// Item returns a dispatcher for any host pattern.
func (h *HostManager) Item(pattern string) (*Dispatcher, error) {
	if !h.HasMatchingInventory(pattern) {
		return nil, &ResolutionError{Name: pattern, Access: KeyAccess}
	}
	return h.dispatcher(pattern), nil
}

// Slice returns a dispatcher for the range of all hosts between start and
// stop, both inclusive. A nil bound leaves that end open.
func (h *HostManager) Slice(start, stop *int) (*Dispatcher, error) {
	for _, b := range []*int{start, stop} {
		if b != nil && *b < 0 {
			return nil, fmt.Errorf("%w: %d", ErrNegativeSliceBound, *b)
		}
	}
	return h.Item(SlicePattern(start, stop))
}

// SlicePattern renders a range over all hosts, e.g. "all[1-3]" or "all[2-]".
func SlicePattern(start, stop *int) string {
	bound := func(p *int) string {
		if p == nil {
			return ""
		}
		return strconv.Itoa(*p)
	}
	return inventory.AllGroup + "[" + bound(start) + "-" + bound(stop) + "]"
}

// Keys returns the name of every host in inventory order.
func (h *HostManager) Keys() []string {
	hosts, err := h.opts.InventoryManager.ListHosts(inventory.AllGroup)
	if err != nil {
		return nil
	}
	names := make([]string, 0, len(hosts))
	for _, host := range hosts {
		names = append(names, host.Name)
	}
	return names
}

// Len returns the number of hosts in the inventory.
func (h *HostManager) Len() int { return len(h.Keys()) }

// Contains reports whether pattern matches the inventory.
func (h *HostManager) Contains(pattern string) bool { return h.HasMatchingInventory(pattern) }

// Module returns a dispatcher for the configured host pattern without
// checking that it matches anything.
func (h *HostManager) Module() *Dispatcher {
	return h.dispatcher(h.opts.HostPattern)
}

func (h *HostManager) dispatcher(pattern string) *Dispatcher {
	opts := h.opts.clone()
	opts.HostPattern = pattern
	return &Dispatcher{opts: opts, exec: h.exec, logger: h.logger}
}

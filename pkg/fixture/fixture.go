// Package fixture exposes host managers and module dispatchers to Go tests.
//
//	func TestWebServers(t *testing.T) {
//		web := fixture.Module(t, fixture.WithInventory("hosts.yml"), fixture.WithHostPattern("web"))
//		res, err := web.Run(t.Context(), "shell", nil, hostmanager.FreeForm("systemctl is-active nginx"))
//		require.NoError(t, err)
//		for host, r := range res {
//			assert.False(t, r.Failed(), host)
//		}
//	}
//
// Settings come from plumbtest.yaml, PLUMBTEST_* environment variables and
// the options given to each fixture, the latter winning.
package fixture

import (
	"errors"
	"maps"
	"testing"

	"github.com/eniac111/plumbtest/internal/config"
	"github.com/eniac111/plumbtest/internal/inventory"
	"github.com/eniac111/plumbtest/internal/logging"
	"github.com/eniac111/plumbtest/internal/modules/setup"
	"github.com/eniac111/plumbtest/pkg/hostmanager"
	"github.com/spf13/cast"
)

type settings struct {
	configFile string
	apply      []func(*hostmanager.Options)
	managerOps []hostmanager.Option
}

// Option adjusts one fixture.
type Option func(*settings)

func withOptions(fn func(*hostmanager.Options)) Option {
	return func(s *settings) { s.apply = append(s.apply, fn) }
}

// WithConfigFile reads settings from path instead of the default locations.
func WithConfigFile(path string) Option {
	return func(s *settings) { s.configFile = path }
}

// WithInventory sets the inventory source.
func WithInventory(inv string) Option {
	return withOptions(func(o *hostmanager.Options) { o.Inventory = inv })
}

// WithHostPattern sets the pattern Module targets.
func WithHostPattern(pattern string) Option {
	return withOptions(func(o *hostmanager.Options) { o.HostPattern = pattern })
}

// WithConnection sets the default connection type.
func WithConnection(conn string) Option {
	return withOptions(func(o *hostmanager.Options) { o.Connection = conn })
}

// WithBecome enables or disables privilege escalation.
func WithBecome(become bool) Option {
	return withOptions(func(o *hostmanager.Options) { o.Become = become })
}

// WithBecomeUser sets the user to become.
func WithBecomeUser(user string) Option {
	return withOptions(func(o *hostmanager.Options) { o.BecomeUser = user })
}

// WithLimit restricts the inventory.
func WithLimit(limit string) Option {
	return withOptions(func(o *hostmanager.Options) { o.Limit = limit })
}

// WithRunnerArgs adds engine arguments sent with every call.
func WithRunnerArgs(args map[string]any) Option {
	return withOptions(func(o *hostmanager.Options) {
		if o.RunnerArgs == nil {
			o.RunnerArgs = map[string]any{}
		}
		maps.Copy(o.RunnerArgs, args)
	})
}

// WithExecutor replaces the execution engine.
func WithExecutor(e hostmanager.Executor) Option {
	return func(s *settings) { s.managerOps = append(s.managerOps, hostmanager.WithExecutor(e)) }
}

// Options resolves the host manager options for a test.
func Options(t testing.TB, opts ...Option) hostmanager.Options {
	t.Helper()
	s := collect(opts)
	return s.options(t)
}

func collect(opts []Option) *settings {
	s := &settings{}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *settings) options(t testing.TB) hostmanager.Options {
	t.Helper()
	cfg, err := config.Load(config.LoadOptions{ConfigFile: s.configFile})
	if err != nil {
		t.Fatalf("plumbtest configuration: %v", err)
	}
	if err := logging.SetLevel(cfg.LogLevel); err != nil {
		t.Fatalf("plumbtest configuration: %v", err)
	}
	o := cfg.HostManagerOptions()
	for _, fn := range s.apply {
		fn(&o)
	}
	return o
}

// HostManager returns a host manager for the test's inventory. A missing
// or unreadable inventory fails the test.
func HostManager(t testing.TB, opts ...Option) *hostmanager.HostManager {
	t.Helper()
	s := collect(opts)
	h, err := hostmanager.Open(s.options(t), s.managerOps...)
	if err != nil {
		var cfgErr *hostmanager.ConfigurationError
		if errors.As(err, &cfgErr) {
			t.Fatalf("plumbtest: %v (set it in plumbtest.yaml, PLUMBTEST_INVENTORY or fixture.WithInventory)", err)
		}
		t.Fatalf("plumbtest: %v", err)
	}
	return h
}

// Module returns a dispatcher for the configured host pattern.
func Module(t testing.TB, opts ...Option) *hostmanager.Dispatcher {
	t.Helper()
	return HostManager(t, opts...).Module()
}

// Facts gathers facts from the hosts of the configured pattern. Hosts that
// cannot be reached are left out.
func Facts(t testing.TB, opts ...Option) map[string]map[string]any {
	t.Helper()
	res, err := Module(t, opts...).Run(t.Context(), "setup", nil)
	var unreachable *hostmanager.HostUnreachableError
	switch {
	case errors.As(err, &unreachable):
		res = unreachable.Contacted
	case err != nil:
		t.Fatalf("gather facts: %v", err)
	}

	facts := make(map[string]map[string]any, len(res))
	for host, r := range res {
		if r.Failed() {
			t.Logf("gather facts on %s: %s", host, r.Msg())
			continue
		}
		facts[host] = cast.ToStringMap(r[setup.FactsKey])
	}
	return facts
}

// EachHost runs fn as a subtest for every host in the inventory, with a
// dispatcher targeting only that host.
func EachHost(t *testing.T, fn func(t *testing.T, d *hostmanager.Dispatcher), opts ...Option) {
	t.Helper()
	h := HostManager(t, opts...)
	for _, name := range h.Keys() {
		t.Run(name, func(t *testing.T) {
			d, err := h.Group(name)
			if err != nil {
				t.Fatal(err)
			}
			fn(t, d)
		})
	}
}

// EachGroup runs fn as a subtest for every named group in the inventory.
// The implicit all and ungrouped groups are skipped.
func EachGroup(t *testing.T, fn func(t *testing.T, d *hostmanager.Dispatcher), opts ...Option) {
	t.Helper()
	h := HostManager(t, opts...)
	for _, name := range h.Inventory().GroupNames() {
		if name == inventory.AllGroup || name == inventory.UngroupedGroup {
			continue
		}
		t.Run(name, func(t *testing.T) {
			d, err := h.Group(name)
			if err != nil {
				t.Fatal(err)
			}
			fn(t, d)
		})
	}
}

package hostmanager

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/eniac111/plumbtest/internal/runner"
	"github.com/eniac111/plumbtest/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testInventory = `
all:
  hosts:
    localhost:
  children:
    web:
      vars:
        role: frontend
      hosts:
        web1:
        web2:
        web3:
    unreachable:
      hosts:
        dead1:
          address: 127.0.0.1
          port: 1
          user: nobody
          password: nothing
    empty: {}
`

type fakeExecutor struct {
	version string
	calls   []runner.Request
	dark    map[string]bool
}

func (f *fakeExecutor) Version() string { return f.version }

func (f *fakeExecutor) Run(_ context.Context, req runner.Request) (types.Results, types.Results, error) {
	f.calls = append(f.calls, req)
	contacted, dark := types.Results{}, types.Results{}
	for _, t := range req.Targets {
		if f.dark[t.Name] {
			dark[t.Name] = types.Result{"failed": true, "unreachable": true, "msg": "timed out"}
			continue
		}
		contacted[t.Name] = types.Result{
			"changed":    false,
			"invocation": map[string]any{"module_name": req.Module, "module_args": map[string]any(req.Args)},
		}
	}
	return contacted, dark, nil
}

func writeInventory(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "hosts.yml")
	require.NoError(t, os.WriteFile(path, []byte(testInventory), 0o644))
	return path
}

func newManager(t *testing.T, exec *fakeExecutor, opts Options) *HostManager {
	t.Helper()
	if opts.Inventory == "" {
		opts.Inventory = writeInventory(t)
	}
	h, err := Open(opts, WithExecutor(exec))
	require.NoError(t, err)
	return h
}

func targetNames(req runner.Request) []string {
	var names []string
	for _, t := range req.Targets {
		names = append(names, t.Name)
	}
	return names
}

func TestDetectCapabilities(t *testing.T) {
	tests := []struct {
		version string
		want    Generation
	}{
		{"1.9.4", GenerationV1},
		{"v1.9.6", GenerationV1},
		{"2.0.0", GenerationV2},
		{"2.3.9", GenerationV2},
		{"v2.4.0", GenerationV24},
		{"2.10.1", GenerationV24},
		{"v3.0.0", GenerationV24},
	}
	for _, tt := range tests {
		t.Run(tt.version, func(t *testing.T) {
			caps, err := DetectCapabilities(tt.version)
			require.NoError(t, err)
			assert.Equal(t, tt.want, caps.Generation)
		})
	}

	_, err := DetectCapabilities("not-a-version")
	assert.Error(t, err)
	_, err = DetectCapabilities("")
	assert.Error(t, err)
}

func TestOpenPropagatesDetectionError(t *testing.T) {
	_, err := Open(Options{Inventory: "localhost,"}, WithExecutor(&fakeExecutor{version: "dev"}))
	assert.ErrorContains(t, err, "invalid engine version")
}

func TestNewRequiresInventory(t *testing.T) {
	_, err := Open(Options{}, WithExecutor(&fakeExecutor{version: "2.5.0"}))
	var cfgErr *ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, "inventory", cfgErr.Option)
}

func TestNewMissingSource(t *testing.T) {
	_, err := Open(Options{Inventory: filepath.Join(t.TempDir(), "missing.yml")}, WithExecutor(&fakeExecutor{version: "2.5.0"}))
	assert.Error(t, err)
}

func TestGenerations(t *testing.T) {
	path := writeInventory(t)
	for _, version := range []string{"1.9.0", "2.2.0", "2.9.0"} {
		t.Run(version, func(t *testing.T) {
			exec := &fakeExecutor{version: version}
			h := newManager(t, exec, Options{Inventory: path})
			assert.Equal(t, []string{"localhost", "web1", "web2", "web3", "dead1"}, h.Keys())

			opts := h.Options()
			assert.NotNil(t, opts.InventoryManager)
			assert.NotNil(t, opts.VariableManager)
			if h.Capabilities().Generation == GenerationV1 {
				assert.Nil(t, opts.Loader)
			} else {
				assert.NotNil(t, opts.Loader)
			}

			d, err := h.Group("web1")
			require.NoError(t, err)
			_, err = d.Ping(context.Background())
			require.NoError(t, err)
			require.Len(t, exec.calls, 1)
			require.Len(t, exec.calls[0].Targets, 1)
			vars := exec.calls[0].Targets[0].Vars
			assert.Equal(t, "frontend", vars["role"])
			assert.Equal(t, "web1", vars["inventory_hostname"])
			assert.Equal(t, []string{"web"}, vars["group_names"])
		})
	}
}

func TestHasMatchingInventory(t *testing.T) {
	h := newManager(t, &fakeExecutor{version: "2.5.0"}, Options{})

	assert.True(t, h.HasMatchingInventory("web"))
	assert.True(t, h.HasMatchingInventory("unreachable"))
	assert.True(t, h.HasMatchingInventory("empty"))
	assert.True(t, h.HasMatchingInventory("web1"))
	assert.True(t, h.HasMatchingInventory("all:!web"))
	assert.False(t, h.HasMatchingInventory("nope"))
	assert.False(t, h.HasMatchingInventory("web[x]"))
	assert.False(t, h.HasMatchingInventory("~("))

	assert.True(t, h.Contains("localhost"))
	assert.False(t, h.Contains("db"))
}

func TestEveryKeyResolves(t *testing.T) {
	h := newManager(t, &fakeExecutor{version: "2.5.0"}, Options{Inventory: "::1,web1"})
	require.Equal(t, []string{"::1", "web1"}, h.Keys())
	for _, name := range h.Keys() {
		assert.True(t, h.Contains(name), name)
		d, err := h.Group(name)
		require.NoError(t, err, name)
		assert.Equal(t, name, d.HostPattern())
	}
}

func TestGroupAndItemResolution(t *testing.T) {
	h := newManager(t, &fakeExecutor{version: "2.5.0"}, Options{})

	d, err := h.Group("web")
	require.NoError(t, err)
	assert.Equal(t, "web", d.HostPattern())

	d, err = h.Item("web:&web[0-1]")
	require.NoError(t, err)
	assert.Equal(t, "web:&web[0-1]", d.HostPattern())

	_, err = h.Group("nope")
	var resErr *ResolutionError
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, AttributeAccess, resErr.Access)
	assert.ErrorIs(t, err, ErrUnresolvablePattern)

	_, err = h.Item("nope")
	require.ErrorAs(t, err, &resErr)
	assert.Equal(t, KeyAccess, resErr.Access)
	assert.ErrorIs(t, err, ErrUnresolvablePattern)
}

func TestSliceMatchesRangePattern(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0"}
	h := newManager(t, exec, Options{})
	ctx := context.Background()
	one, three := 1, 3

	d, err := h.Slice(&one, &three)
	require.NoError(t, err)
	assert.Equal(t, "all[1-3]", d.HostPattern())
	_, err = d.Ping(ctx)
	require.NoError(t, err)

	d, err = h.Item("all[1-3]")
	require.NoError(t, err)
	_, err = d.Ping(ctx)
	require.NoError(t, err)

	require.Len(t, exec.calls, 2)
	assert.Equal(t, []string{"web1", "web2", "web3"}, targetNames(exec.calls[0]))
	assert.Equal(t, targetNames(exec.calls[0]), targetNames(exec.calls[1]))

	minus := -1
	_, err = h.Slice(&minus, nil)
	assert.ErrorIs(t, err, ErrNegativeSliceBound)
	_, err = h.Slice(nil, &minus)
	assert.ErrorIs(t, err, ErrNegativeSliceBound)

	assert.Equal(t, "all[-3]", SlicePattern(nil, &three))
	assert.Equal(t, "all[1-]", SlicePattern(&one, nil))
	assert.Equal(t, "all[-]", SlicePattern(nil, nil))
}

func TestKeysAndLen(t *testing.T) {
	h := newManager(t, &fakeExecutor{version: "2.5.0"}, Options{})
	assert.ElementsMatch(t, h.Keys(), h.Keys())
	assert.Equal(t, 5, h.Len())

	limited := newManager(t, &fakeExecutor{version: "2.5.0"}, Options{Limit: "web"})
	assert.Equal(t, []string{"web1", "web2", "web3"}, limited.Keys())
	assert.True(t, limited.Contains("unreachable"))
}

func TestDispatchReturnsContacted(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0"}
	h := newManager(t, exec, Options{})

	d, err := h.Group("localhost")
	require.NoError(t, err)
	res, err := d.Ping(context.Background())
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ping", res["localhost"].ModuleName())
	assert.Len(t, exec.calls, 1)
}

func TestDispatchUnreachable(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0", dark: map[string]bool{"web2": true, "web3": true}}
	h := newManager(t, exec, Options{})

	d, err := h.Group("web")
	require.NoError(t, err)
	_, err = d.Run(context.Background(), "ping", nil)

	var unreachable *HostUnreachableError
	require.ErrorAs(t, err, &unreachable)
	contacted, dark := unreachable.Results()
	assert.Equal(t, []string{"web1"}, contacted.Hosts())
	assert.Equal(t, []string{"web2", "web3"}, dark.Hosts())
	assert.Equal(t, "web", unreachable.Pattern)
	assert.Len(t, exec.calls, 1)
}

func TestDispatchNoHostsMatched(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0"}
	h := newManager(t, exec, Options{HostPattern: "empty"})

	_, err := h.Module().Ping(context.Background())
	var noHosts *NoHostsMatchedError
	require.ErrorAs(t, err, &noHosts)
	assert.Equal(t, "empty", noHosts.Pattern)

	var unreachable *HostUnreachableError
	assert.False(t, errors.As(err, &unreachable))
	assert.Len(t, exec.calls, 1)

	d, err := h.Group("empty")
	require.NoError(t, err)
	_, err = d.Ping(context.Background())
	assert.ErrorAs(t, err, &noHosts)
}

func TestDispatchDefaultsToAll(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0"}
	h := newManager(t, exec, Options{})
	assert.Equal(t, "all", h.Module().HostPattern())

	_, err := h.Module().Ping(context.Background())
	require.NoError(t, err)
	assert.Len(t, exec.calls[0].Targets, 5)
}

func TestDispatchRequest(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0"}
	h := newManager(t, exec, Options{
		Connection: "local",
		Become:     true,
		BecomeUser: "postgres",
		Timeout:    7 * time.Second,
		Forks:      3,
		RunnerArgs: map[string]any{"check": false, ExtraVarsArg: map[string]any{"role": "override"}},
	})

	d, err := h.Group("web1")
	require.NoError(t, err)
	_, err = d.Run(context.Background(), "shell", map[string]any{"chdir": "/tmp"}, FreeForm("uptime"), Check())
	require.NoError(t, err)

	require.Len(t, exec.calls, 1)
	req := exec.calls[0]
	assert.Equal(t, "shell", req.Module)
	assert.Equal(t, "uptime", req.Args["_raw_params"])
	assert.Equal(t, "/tmp", req.Args["chdir"])
	assert.Equal(t, true, req.Extra["check"])
	assert.Equal(t, 3, req.Extra["forks"])
	assert.Equal(t, "local", req.Connection.Connection)
	assert.True(t, req.Connection.Become)
	assert.Equal(t, "postgres", req.Connection.BecomeUser)
	assert.Equal(t, 7*time.Second, req.Connection.Timeout)

	require.Len(t, req.Targets, 1)
	vars := req.Targets[0].Vars
	assert.Equal(t, "override", vars["role"])
	assert.Equal(t, "web1", vars["inventory_hostname"])

	// The manager's own runner args are not modified by a call.
	assert.Equal(t, false, h.Options().RunnerArgs["check"])
}

func TestDispatchBecomePerCall(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0"}
	h := newManager(t, exec, Options{BecomeUser: "root"})

	_, err := h.Module().Ping(context.Background())
	require.NoError(t, err)
	_, err = h.Module().Run(context.Background(), "ping", nil, Become("app"))
	require.NoError(t, err)

	require.Len(t, exec.calls, 2)
	assert.False(t, exec.calls[0].Connection.Become)
	assert.True(t, exec.calls[1].Connection.Become)
	assert.Equal(t, "app", exec.calls[1].Connection.BecomeUser)
}

func TestDispatchPatternError(t *testing.T) {
	exec := &fakeExecutor{version: "2.5.0"}
	h := newManager(t, exec, Options{HostPattern: "web[1"})
	_, err := h.Module().Ping(context.Background())
	assert.Error(t, err)
	assert.Empty(t, exec.calls)
}

func TestScenarioLocalhostAndUnreachable(t *testing.T) {
	path := filepath.Join(t.TempDir(), "hosts.yml")
	require.NoError(t, os.WriteFile(path, []byte(`
all:
  hosts:
    localhost:
    unreachable:
      address: 127.0.0.1
      port: 1
      user: nobody
      password: nothing
`), 0o644))

	h, err := Open(Options{Inventory: path, Timeout: 5 * time.Second})
	require.NoError(t, err)
	ctx := context.Background()

	_, err = h.Module().Ping(ctx)
	var unreachable *HostUnreachableError
	require.ErrorAs(t, err, &unreachable)
	require.Contains(t, unreachable.Contacted, "localhost")
	assert.Equal(t, "ping", unreachable.Contacted["localhost"].ModuleName())
	require.Contains(t, unreachable.Dark, "unreachable")
	assert.True(t, unreachable.Dark["unreachable"].Unreachable())

	d, err := h.Group("localhost")
	require.NoError(t, err)
	res, err := d.Ping(ctx)
	require.NoError(t, err)
	require.Len(t, res, 1)
	assert.Equal(t, "ping", res["localhost"].ModuleName())
}

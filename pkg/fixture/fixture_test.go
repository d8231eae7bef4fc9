package fixture

import (
	"os"
	"path/filepath"
	"sort"
	"sync"
	"testing"

	"github.com/eniac111/plumbtest/pkg/hostmanager"
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

func TestModuleLocalhost(t *testing.T) {
	isolate(t)
	d := Module(t, WithInventory("localhost,"), WithHostPattern("localhost"))

	res, err := d.Run(t.Context(), "shell", nil, hostmanager.FreeForm("echo fixture"))
	require.NoError(t, err)
	require.Contains(t, res, "localhost")
	assert.Equal(t, "fixture\n", res["localhost"]["stdout"])
	assert.Equal(t, "shell", res["localhost"].ModuleName())
}

func TestOptionsOverrideConfigFile(t *testing.T) {
	dir := isolate(t)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "plumbtest.yaml"), []byte(`
inventory: web1,web2
host_pattern: web1
become_user: admin
`), 0o644))

	o := Options(t, WithHostPattern("web2"), WithBecome(true), WithLimit("web*"), WithConnection("local"),
		WithRunnerArgs(map[string]any{"check": true}))
	assert.Equal(t, "web1,web2", o.Inventory)
	assert.Equal(t, "web2", o.HostPattern)
	assert.Equal(t, "admin", o.BecomeUser)
	assert.True(t, o.Become)
	assert.Equal(t, "web*", o.Limit)
	assert.Equal(t, "local", o.Connection)
	assert.Equal(t, true, o.RunnerArgs["check"])

	o = Options(t, WithBecomeUser("deploy"))
	assert.Equal(t, "deploy", o.BecomeUser)
}

func TestHostManagerFromConfigFile(t *testing.T) {
	dir := isolate(t)
	path := filepath.Join(dir, "custom.yaml")
	require.NoError(t, os.WriteFile(path, []byte("inventory: a,b,c\n"), 0o644))

	h := HostManager(t, WithConfigFile(path))
	assert.Equal(t, []string{"a", "b", "c"}, h.Keys())
}

func TestFacts(t *testing.T) {
	isolate(t)
	facts := Facts(t, WithInventory("localhost,"))
	require.Contains(t, facts, "localhost")
	assert.NotEmpty(t, facts["localhost"]["system"])
	assert.NotEmpty(t, facts["localhost"]["architecture"])
}

func TestEachHostAndGroup(t *testing.T) {
	dir := isolate(t)
	inv := filepath.Join(dir, "hosts.yml")
	require.NoError(t, os.WriteFile(inv, []byte(`
web:
  hosts:
    localhost:
      connection: local
    127.0.0.1:
      connection: local
db:
  hosts:
    db1:
      connection: local
`), 0o644))

	var mu sync.Mutex
	var hosts, groups []string
	EachHost(t, func(t *testing.T, d *hostmanager.Dispatcher) {
		mu.Lock()
		hosts = append(hosts, d.HostPattern())
		mu.Unlock()
	}, WithInventory(inv))
	EachGroup(t, func(t *testing.T, d *hostmanager.Dispatcher) {
		mu.Lock()
		groups = append(groups, d.HostPattern())
		mu.Unlock()
		res, err := d.Ping(t.Context())
		require.NoError(t, err)
		assert.NotEmpty(t, res)
	}, WithInventory(inv))

	assert.Equal(t, []string{"localhost", "127.0.0.1", "db1"}, hosts)
	sort.Strings(groups)
	assert.Equal(t, []string{"db", "web"}, groups)
}

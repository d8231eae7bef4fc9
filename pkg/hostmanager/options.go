package hostmanager

import (
	"maps"
	"time"

	"github.com/eniac111/plumbtest/internal/connection"
	"github.com/eniac111/plumbtest/internal/inventory"
	"github.com/eniac111/plumbtest/internal/types"
)

// Result is the response of one module run on one host.
type Result = types.Result

// Results maps host names to results.
type Results = types.Results

// Options configure a HostManager. Inventory is required.
type Options struct {
	// Inventory is a path, a comma separated list of paths, or an inline
	// host list such as "localhost,".
	Inventory string
	// HostPattern selects the hosts a dispatcher targets; empty means all.
	HostPattern string
	// Limit restricts every listing, as --limit does.
	Limit string

	Connection     string
	User           string
	Become         bool
	BecomeUser     string
	BecomeMethod   string
	PrivateKeyFile string
	KnownHosts     string
	Timeout        time.Duration
	Forks          int
	EngineVersion  string

	// RunnerArgs are passed to the engine verbatim on every call.
	RunnerArgs map[string]any

	// Set by inventory initialisation.
	Loader           *inventory.Loader
	InventoryManager *inventory.Manager
	VariableManager  *inventory.VariableManager
}

func (o Options) clone() Options {
	o.RunnerArgs = maps.Clone(o.RunnerArgs)
	return o
}

func (o Options) connectionDefaults() connection.Defaults {
	return connection.Defaults{
		Connection:     o.Connection,
		User:           o.User,
		PrivateKeyFile: o.PrivateKeyFile,
		KnownHosts:     o.KnownHosts,
		Timeout:        o.Timeout,
		Become:         o.Become,
		BecomeUser:     o.BecomeUser,
		BecomeMethod:   o.BecomeMethod,
	}
}

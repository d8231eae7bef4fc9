package types

import (
	"maps"
	"sort"
	"strings"

	"github.com/spf13/cast"
)

// Well-known inventory variables that drive how a host is contacted.
const (
	VarAddress      = "address"
	VarPort         = "port"
	VarUser         = "user"
	VarPassword     = "password"
	VarKeyPath      = "key_path"
	VarConnection   = "connection"
	VarKnownHosts   = "known_hosts"
	VarBecome       = "become"
	VarBecomeUser   = "become_user"
	VarBecomeMethod = "become_method"
)

// Inventory holds a flat list of hosts to manage.
type Inventory struct {
	Hosts []Host `yaml:"hosts"`
}

// Host represents one machine in the inventory.
type Host struct {
	Name       string         `yaml:"name"`
	Address    string         `yaml:"address,omitempty"`
	User       string         `yaml:"user,omitempty"`
	Password   string         `yaml:"password,omitempty"`
	Port       int            `yaml:"port,omitempty"`
	KeyPath    string         `yaml:"key_path,omitempty"` // Optional SSH key path
	Connection string         `yaml:"connection,omitempty"`
	Vars       map[string]any `yaml:"vars,omitempty"`
}

// HostFromVars builds a Host whose typed fields are taken from the
// well-known variables in vars. vars is kept as the host's variable set.
func HostFromVars(name string, vars map[string]any) Host {
	h := Host{Name: name, Vars: vars}
	if vars == nil {
		return h
	}
	h.Address = cast.ToString(vars[VarAddress])
	h.User = cast.ToString(vars[VarUser])
	h.Password = cast.ToString(vars[VarPassword])
	h.Port = cast.ToInt(vars[VarPort])
	h.KeyPath = cast.ToString(vars[VarKeyPath])
	h.Connection = cast.ToString(vars[VarConnection])
	return h
}

// Truthy converts an inventory or argument value to a bool. Besides what
// strconv.ParseBool accepts it understands yes/no, on/off and y/n.
func Truthy(v any) bool {
	if s, ok := v.(string); ok {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "yes", "y", "on":
			return true
		case "no", "n", "off", "":
			return false
		}
	}
	return cast.ToBool(v)
}

// AllVars returns the host's variables with the typed fields folded in.
func (h Host) AllVars() map[string]any {
	vars := make(map[string]any, len(h.Vars)+6)
	maps.Copy(vars, h.Vars)
	set := func(k string, v any, zero bool) {
		if !zero {
			vars[k] = v
		}
	}
	set(VarAddress, h.Address, h.Address == "")
	set(VarUser, h.User, h.User == "")
	set(VarPassword, h.Password, h.Password == "")
	set(VarPort, h.Port, h.Port == 0)
	set(VarKeyPath, h.KeyPath, h.KeyPath == "")
	set(VarConnection, h.Connection, h.Connection == "")
	return vars
}

// DialAddress returns the address used to reach the host.
func (h Host) DialAddress() string {
	if h.Address != "" {
		return h.Address
	}
	return h.Name
}

// Playbook holds a list of tasks.
type Playbook struct {
	Tasks []TaskDefinition `yaml:"tasks"`
}

// TaskDefinition describes a single task to run (similar to an Ansible task).
type TaskDefinition struct {
	Name       string                 `json:"name"   yaml:"name"`
	Module     string                 `json:"module" yaml:"module"`
	Params     map[string]interface{} `json:"params" yaml:"params"`
	Become     bool                   `json:"become" yaml:"become"`
	BecomeUser string                 `json:"become_user,omitempty" yaml:"become_user,omitempty"`
}

// Result is the structured response of one module run on one host.
// Module specific keys pass through untouched.
type Result map[string]any

// Keys every result may carry.
const (
	KeyFailed      = "failed"
	KeyChanged     = "changed"
	KeyUnreachable = "unreachable"
	KeySkipped     = "skipped"
	KeyMsg         = "msg"
	KeyInvocation  = "invocation"
	KeyModuleName  = "module_name"
	KeyModuleArgs  = "module_args"
)

// Failed reports whether the module reported a failure.
func (r Result) Failed() bool { return Truthy(r[KeyFailed]) }

// Changed reports whether the module changed anything on the host.
func (r Result) Changed() bool { return cast.ToBool(r[KeyChanged]) }

// Unreachable reports whether the host could not be contacted.
func (r Result) Unreachable() bool { return cast.ToBool(r[KeyUnreachable]) }

// Msg returns the human readable message, if any.
func (r Result) Msg() string { return cast.ToString(r[KeyMsg]) }

// ModuleName returns invocation.module_name.
func (r Result) ModuleName() string {
	inv, ok := r[KeyInvocation].(map[string]any)
	if !ok {
		return ""
	}
	return cast.ToString(inv[KeyModuleName])
}

// Fail marks the result failed with msg and returns it.
func (r Result) Fail(msg string) Result {
	r[KeyFailed] = true
	r[KeyMsg] = msg
	return r
}

// Results maps a host name to its result.
type Results map[string]Result

// Hosts returns the host names in sorted order.
func (rs Results) Hosts() []string {
	names := make([]string, 0, len(rs))
	for name := range rs {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Failed returns the subset of results whose module reported a failure.
func (rs Results) Failed() Results {
	out := Results{}
	for name, r := range rs {
		if r.Failed() {
			out[name] = r
		}
	}
	return out
}

package inventory

import (
	"fmt"
	"maps"
	"path/filepath"
	"sort"
)

// Magic variables set for every host.
const (
	VarInventoryHostname = "inventory_hostname"
	VarGroupNames        = "group_names"
)

// VariableManager computes the effective variables of a host.
type VariableManager struct {
	loader *Loader
	inv    *Manager
	extra  map[string]any
}

// NewVariableManager returns a variable manager reading group_vars and
// host_vars through loader. inv may be nil and set later.
func NewVariableManager(loader *Loader, inv *Manager) *VariableManager {
	return &VariableManager{loader: loader, inv: inv}
}

// SetInventory binds the inventory whose hosts are resolved.
func (vm *VariableManager) SetInventory(inv *Manager) { vm.inv = inv }

// SetExtraVars sets variables that override everything else.
func (vm *VariableManager) SetExtraVars(extra map[string]any) { vm.extra = maps.Clone(extra) }

// HostVars returns the variables of host, lowest precedence first:
// the all group, other groups by depth, the host itself, extra vars.
func (vm *VariableManager) HostVars(host string) (map[string]any, error) {
	if vm.inv == nil {
		return nil, fmt.Errorf("variable manager has no inventory")
	}
	h, ok := vm.inv.Host(host)
	if !ok {
		return nil, fmt.Errorf("unknown host %q", host)
	}

	vars := map[string]any{}
	groups := append([]string{AllGroup}, vm.inv.GroupsOf(host)...)
	depth := map[string]int{}
	for _, g := range groups {
		depth[g] = vm.depth(g, map[string]bool{})
	}
	sort.SliceStable(groups, func(i, j int) bool {
		if depth[groups[i]] != depth[groups[j]] {
			return depth[groups[i]] < depth[groups[j]]
		}
		return groups[i] < groups[j]
	})
	for _, name := range groups {
		g, _ := vm.inv.Group(name)
		maps.Copy(vars, g.Vars)
		if err := vm.mergeFiles(vars, "group_vars", name); err != nil {
			return nil, err
		}
	}
	maps.Copy(vars, h.AllVars())
	if err := vm.mergeFiles(vars, "host_vars", host); err != nil {
		return nil, err
	}
	maps.Copy(vars, vm.extra)

	vars[VarInventoryHostname] = host
	vars[VarGroupNames] = vm.inv.GroupsOf(host)
	return vars, nil
}

func (vm *VariableManager) mergeFiles(vars map[string]any, kind, name string) error {
	if vm.loader == nil {
		return nil
	}
	for _, dir := range vm.inv.dirs {
		found, err := vm.loader.LoadVars(filepath.Join(dir, kind), name)
		if err != nil {
			return err
		}
		maps.Copy(vars, found)
	}
	return nil
}

// depth is the length of the longest parent chain below the all group.
func (vm *VariableManager) depth(name string, visiting map[string]bool) int {
	if name == AllGroup || visiting[name] {
		return 0
	}
	visiting[name] = true
	defer delete(visiting, name)
	g, ok := vm.inv.Group(name)
	if !ok {
		return 0
	}
	best := 0
	for _, p := range g.Parents {
		if d := vm.depth(p, visiting); d > best {
			best = d
		}
	}
	return best + 1
}

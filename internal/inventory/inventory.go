// Package inventory resolves hosts, groups and host patterns from inventory
// sources, and computes the variables each host is contacted with.
package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/eniac111/plumbtest/internal/types"
)

// Built-in groups present in every inventory.
const (
	AllGroup       = "all"
	UngroupedGroup = "ungrouped"
)

var (
	// ErrPatternSyntax indicates a host pattern that cannot be parsed.
	ErrPatternSyntax = errors.New("invalid host pattern")
	// ErrSourceNotFound indicates an inventory source that is neither a
	// readable path nor an inline host list.
	ErrSourceNotFound = errors.New("inventory source not found")
)

// Group is a named set of hosts with shared variables.
type Group struct {
	Name     string
	Vars     map[string]any
	Hosts    []string // direct members, in inventory order
	Children []string
	Parents  []string
}

func (g *Group) addHost(name string) {
	for _, h := range g.Hosts {
		if h == name {
			return
		}
	}
	g.Hosts = append(g.Hosts, name)
}

// Manager is a resolved inventory. It is not safe for concurrent mutation.
type Manager struct {
	sources []string
	dirs    []string // directories searched for group_vars/ and host_vars/
	hosts   []*types.Host
	byName  map[string]*types.Host
	groups  map[string]*Group
	subset  map[string]bool
}

func newManager() *Manager {
	m := &Manager{
		byName: map[string]*types.Host{},
		groups: map[string]*Group{},
	}
	m.ensureGroup(AllGroup)
	m.ensureGroup(UngroupedGroup)
	return m
}

// NewHostList builds an inventory from a single source without a loader.
// It is the construction used by the oldest engine generation.
func NewHostList(source string) (*Manager, error) {
	m := newManager()
	if err := m.parseSource(nil, source); err != nil {
		return nil, err
	}
	m.finish()
	return m, nil
}

// NewInventory builds an inventory from a single source, reading files
// through loader, and registers it with vm when vm is not nil.
func NewInventory(loader *Loader, vm *VariableManager, source string) (*Manager, error) {
	m := newManager()
	if err := m.parseSource(loader, source); err != nil {
		return nil, err
	}
	m.finish()
	if vm != nil {
		vm.SetInventory(m)
	}
	return m, nil
}

// NewManager builds an inventory from any number of sources.
func NewManager(loader *Loader, sources ...string) (*Manager, error) {
	m := newManager()
	for _, src := range sources {
		if err := m.parseSource(loader, src); err != nil {
			return nil, err
		}
	}
	m.finish()
	return m, nil
}

// SplitSources turns a user supplied inventory string into sources: a path,
// a comma separated list of paths, or an inline host list.
func SplitSources(s string) []string {
	if _, err := os.Stat(s); err == nil || !strings.Contains(s, ",") {
		return []string{s}
	}
	var parts []string
	for _, p := range strings.Split(s, ",") {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			return []string{s}
		}
		parts = append(parts, p)
	}
	if len(parts) == 0 {
		return []string{s}
	}
	return parts
}

func (m *Manager) parseSource(loader *Loader, source string) error {
	info, err := os.Stat(source)
	switch {
	case err == nil && info.IsDir():
		m.sources = append(m.sources, source)
		if loader != nil {
			m.dirs = append(m.dirs, source)
		}
		entries, err := os.ReadDir(source)
		if err != nil {
			return fmt.Errorf("failed to read inventory directory: %w", err)
		}
		for _, e := range entries {
			ext := filepath.Ext(e.Name())
			if e.IsDir() || (ext != ".yml" && ext != ".yaml") {
				continue
			}
			if err := m.parseFile(loader, filepath.Join(source, e.Name())); err != nil {
				return err
			}
		}
		return nil
	case err == nil:
		m.sources = append(m.sources, source)
		if loader != nil {
			m.dirs = append(m.dirs, filepath.Dir(source))
		}
		return m.parseFile(loader, source)
	case errors.Is(err, fs.ErrNotExist) && strings.Contains(source, ","):
		m.sources = append(m.sources, source)
		m.parseHostList(source)
		return nil
	case errors.Is(err, fs.ErrNotExist):
		return fmt.Errorf("%w: %s", ErrSourceNotFound, source)
	default:
		return fmt.Errorf("failed to stat inventory source: %w", err)
	}
}

func (m *Manager) parseFile(loader *Loader, path string) error {
	root, err := loader.Document(path)
	if err != nil {
		return err
	}
	if err := m.parseDocument(root); err != nil {
		return fmt.Errorf("failed to parse inventory %s: %w", path, err)
	}
	return nil
}

func (m *Manager) ensureGroup(name string) *Group {
	g, ok := m.groups[name]
	if !ok {
		g = &Group{Name: name, Vars: map[string]any{}}
		m.groups[name] = g
	}
	return g
}

func (m *Manager) link(parent, child string) {
	p, c := m.ensureGroup(parent), m.ensureGroup(child)
	for _, existing := range p.Children {
		if existing == child {
			return
		}
	}
	p.Children = append(p.Children, child)
	c.Parents = append(c.Parents, parent)
}

func (m *Manager) addHost(name string, vars map[string]any) {
	if h, ok := m.byName[name]; ok {
		if h.Vars == nil {
			h.Vars = map[string]any{}
		}
		for k, v := range vars {
			h.Vars[k] = v
		}
		*h = types.HostFromVars(name, h.Vars)
		return
	}
	if vars == nil {
		vars = map[string]any{}
	}
	h := types.HostFromVars(name, vars)
	m.hosts = append(m.hosts, &h)
	m.byName[name] = &h
}

// finish derives the built-in group memberships once parsing is done.
func (m *Manager) finish() {
	all, ungrouped := m.groups[AllGroup], m.groups[UngroupedGroup]
	all.Hosts = nil
	for _, h := range m.hosts {
		all.Hosts = append(all.Hosts, h.Name)
		if len(m.GroupsOf(h.Name)) == 0 {
			ungrouped.addHost(h.Name)
		}
	}
	for name, g := range m.groups {
		if name == AllGroup || len(g.Parents) > 0 {
			continue
		}
		m.link(AllGroup, name)
	}
	sort.Strings(all.Children)
}

// Sources returns the sources the inventory was built from.
func (m *Manager) Sources() []string { return m.sources }

// Host returns the named host.
func (m *Manager) Host(name string) (*types.Host, bool) {
	h, ok := m.byName[name]
	return h, ok
}

// Group returns the named group.
func (m *Manager) Group(name string) (*Group, bool) {
	g, ok := m.groups[name]
	return g, ok
}

// HasGroup reports whether a group with that exact name exists.
func (m *Manager) HasGroup(name string) bool {
	_, ok := m.groups[name]
	return ok
}

// GroupNames returns every group name, sorted.
func (m *Manager) GroupNames() []string {
	names := make([]string, 0, len(m.groups))
	for name := range m.groups {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GroupsOf returns the groups the host belongs to directly or through a
// child group, excluding the built-in groups. The result is sorted.
func (m *Manager) GroupsOf(host string) []string {
	seen := map[string]bool{}
	var visit func(string)
	visit = func(name string) {
		if seen[name] || name == AllGroup {
			return
		}
		seen[name] = true
		for _, p := range m.groups[name].Parents {
			visit(p)
		}
	}
	for name, g := range m.groups {
		if name == AllGroup || name == UngroupedGroup {
			continue
		}
		for _, h := range g.Hosts {
			if h == host {
				visit(name)
			}
		}
	}
	out := make([]string, 0, len(seen))
	for name := range seen {
		if name != UngroupedGroup {
			out = append(out, name)
		}
	}
	sort.Strings(out)
	return out
}

// groupHosts returns the members of a group and of all its descendants,
// in inventory order.
func (m *Manager) groupHosts(name string) []*types.Host {
	if name == AllGroup {
		return m.hosts
	}
	member := map[string]bool{}
	seen := map[string]bool{}
	var visit func(string)
	visit = func(n string) {
		if seen[n] {
			return
		}
		seen[n] = true
		g := m.groups[n]
		for _, h := range g.Hosts {
			member[h] = true
		}
		for _, c := range g.Children {
			visit(c)
		}
	}
	visit(name)
	var out []*types.Host
	for _, h := range m.hosts {
		if member[h.Name] {
			out = append(out, h)
		}
	}
	return out
}

// Subset restricts every later listing to the hosts matching pattern.
// An empty pattern removes the restriction.
func (m *Manager) Subset(pattern string) error {
	if pattern == "" {
		m.subset = nil
		return nil
	}
	hosts, err := m.ListHosts(pattern)
	if err != nil {
		return err
	}
	m.subset = make(map[string]bool, len(hosts))
	for _, h := range hosts {
		m.subset[h.Name] = true
	}
	return nil
}

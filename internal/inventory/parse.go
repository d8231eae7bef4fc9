package inventory

import (
	"fmt"
	"strings"

	"github.com/eniac111/plumbtest/internal/types"
	"gopkg.in/yaml.v3"
)

// groupSpec is one group of the YAML group tree format:
//
//	all:
//	  vars: {user: deploy}
//	  hosts:
//	    localhost: {connection: local}
//	  children:
//	    web:
//	      hosts: {web1: {port: 2222}}
type groupSpec struct {
	Hosts    orderedHosts   `yaml:"hosts"`
	Vars     map[string]any `yaml:"vars"`
	Children orderedGroups  `yaml:"children"`
}

type hostEntry struct {
	Name string
	Vars map[string]any
}

// orderedHosts keeps the file order of a host mapping.
type orderedHosts []hostEntry

func (o *orderedHosts) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: hosts must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var vars map[string]any
		if err := n.Content[i+1].Decode(&vars); err != nil {
			return fmt.Errorf("host %s: %w", n.Content[i].Value, err)
		}
		*o = append(*o, hostEntry{Name: n.Content[i].Value, Vars: vars})
	}
	return nil
}

type namedGroup struct {
	Name string
	Spec groupSpec
}

// orderedGroups keeps the file order of a group mapping.
type orderedGroups []namedGroup

func (o *orderedGroups) UnmarshalYAML(n *yaml.Node) error {
	if n.Tag == "!!null" {
		return nil
	}
	if n.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: groups must be a mapping", n.Line)
	}
	for i := 0; i+1 < len(n.Content); i += 2 {
		var spec groupSpec
		if err := n.Content[i+1].Decode(&spec); err != nil {
			return fmt.Errorf("group %s: %w", n.Content[i].Value, err)
		}
		*o = append(*o, namedGroup{Name: n.Content[i].Value, Spec: spec})
	}
	return nil
}

// isHostList reports whether root is the flat `hosts:` list format.
func isHostList(root *yaml.Node) bool {
	if root.Kind != yaml.MappingNode {
		return false
	}
	for i := 0; i+1 < len(root.Content); i += 2 {
		if root.Content[i].Value == "hosts" && root.Content[i+1].Kind == yaml.SequenceNode {
			return true
		}
	}
	return false
}

// parseDocument adds the hosts and groups described by root to m.
func (m *Manager) parseDocument(root *yaml.Node) error {
	if root == nil {
		return nil
	}
	if isHostList(root) {
		var inv types.Inventory
		if err := root.Decode(&inv); err != nil {
			return err
		}
		for _, h := range inv.Hosts {
			if h.Name == "" {
				return fmt.Errorf("host entry without a name")
			}
			m.addHost(h.Name, h.AllVars())
		}
		return nil
	}
	var groups orderedGroups
	if err := root.Decode(&groups); err != nil {
		return err
	}
	for _, g := range groups {
		m.addGroupTree(g.Name, g.Spec, "")
	}
	return nil
}

func (m *Manager) addGroupTree(name string, spec groupSpec, parent string) {
	g := m.ensureGroup(name)
	if parent != "" && parent != AllGroup {
		m.link(parent, name)
	}
	for k, v := range spec.Vars {
		g.Vars[k] = v
	}
	for _, h := range spec.Hosts {
		m.addHost(h.Name, h.Vars)
		if name != AllGroup {
			g.addHost(h.Name)
		}
	}
	for _, child := range spec.Children {
		m.addGroupTree(child.Name, child.Spec, name)
	}
}

// parseHostList adds the hosts of an inline source such as "web1,web2,".
func (m *Manager) parseHostList(source string) {
	for _, name := range strings.Split(source, ",") {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		m.addHost(name, nil)
	}
}

package inventory

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// varsExtensions are tried in order when looking up group_vars/host_vars files.
var varsExtensions = []string{".yml", ".yaml", ""}

// Loader reads and caches the YAML documents an inventory is built from.
// It is not safe for concurrent use.
type Loader struct {
	cache map[string]*yaml.Node
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{cache: map[string]*yaml.Node{}}
}

// Document returns the parsed root node of the YAML file at path.
// An empty file yields a nil node.
func (l *Loader) Document(path string) (*yaml.Node, error) {
	if l != nil {
		if n, ok := l.cache[path]; ok {
			return n, nil
		}
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	var root *yaml.Node
	if doc.Kind == yaml.DocumentNode && len(doc.Content) > 0 {
		root = doc.Content[0]
	}
	if l != nil {
		l.cache[path] = root
	}
	return root, nil
}

// LoadVars reads dir/name{.yml,.yaml,} as a variable mapping.
// A missing file is not an error and yields nil.
func (l *Loader) LoadVars(dir, name string) (map[string]any, error) {
	for _, ext := range varsExtensions {
		path := filepath.Join(dir, name+ext)
		info, err := os.Stat(path)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		if info.IsDir() {
			continue
		}
		root, err := l.Document(path)
		if err != nil {
			return nil, err
		}
		if root == nil {
			return nil, nil
		}
		var vars map[string]any
		if err := root.Decode(&vars); err != nil {
			return nil, fmt.Errorf("failed to decode vars in %s: %w", path, err)
		}
		return vars, nil
	}
	return nil, nil
}

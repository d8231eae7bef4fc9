package inventory

import (
	"fmt"
	"path"
	"regexp"
	"strconv"
	"strings"

	"github.com/eniac111/plumbtest/internal/types"
)

var (
	subscriptRe = regexp.MustCompile(`^(.+)\[([^\[\]]*)\]$`)
	indexRe     = regexp.MustCompile(`^[0-9]+$`)
	rangeRe     = regexp.MustCompile(`^([0-9]*)[-:]([0-9]*)$`)
)

type termOp int

const (
	opUnion termOp = iota
	opIntersect
	opExclude
)

type term struct {
	op   termOp
	expr string
}

// ListHosts returns the hosts matching pattern. An empty pattern means all
// hosts. Names that match nothing are not an error.
func (m *Manager) ListHosts(pattern string) ([]*types.Host, error) {
	if strings.TrimSpace(pattern) == "" {
		pattern = AllGroup
	}
	terms, err := m.splitPattern(pattern)
	if err != nil {
		return nil, err
	}

	var (
		result []*types.Host
		seen   = map[string]bool{}
	)
	add := func(hosts []*types.Host) {
		for _, h := range hosts {
			if !seen[h.Name] {
				seen[h.Name] = true
				result = append(result, h)
			}
		}
	}
	if len(terms) > 0 && terms[0].op != opUnion {
		add(m.hosts)
	}
	for _, t := range terms {
		matched, err := m.matchTerm(t.expr)
		if err != nil {
			return nil, err
		}
		switch t.op {
		case opUnion:
			add(matched)
		case opIntersect:
			result = filterHosts(result, toSet(matched), true)
		case opExclude:
			result = filterHosts(result, toSet(matched), false)
		}
		seen = toSet(result)
	}

	if m.subset != nil {
		result = filterHosts(result, m.subset, true)
	}
	return result, nil
}

// splitPattern separates pattern into terms. A pattern naming a known host
// or group is a single term, so IPv6 addresses survive. Otherwise commas
// take precedence over colons; separators inside brackets are ignored.
func (m *Manager) splitPattern(pattern string) ([]term, error) {
	if name := strings.TrimSpace(pattern); strings.Contains(name, ":") {
		if _, ok := m.Host(name); ok || m.HasGroup(name) {
			return []term{{op: opUnion, expr: name}}, nil
		}
	}
	sep := ':'
	if strings.Contains(pattern, ",") {
		sep = ','
	}
	var (
		parts []string
		depth int
		start int
	)
	for i, r := range pattern {
		switch {
		case r == '[':
			depth++
		case r == ']':
			depth--
			if depth < 0 {
				return nil, fmt.Errorf("%w: unbalanced ']' in %q", ErrPatternSyntax, pattern)
			}
		case r == sep && depth == 0:
			parts = append(parts, pattern[start:i])
			start = i + 1
		}
	}
	if depth != 0 {
		return nil, fmt.Errorf("%w: unbalanced '[' in %q", ErrPatternSyntax, pattern)
	}
	parts = append(parts, pattern[start:])

	var terms []term
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		t := term{expr: p}
		switch p[0] {
		case '!':
			t.op, t.expr = opExclude, p[1:]
		case '&':
			t.op, t.expr = opIntersect, p[1:]
		}
		if t.expr == "" {
			return nil, fmt.Errorf("%w: empty term in %q", ErrPatternSyntax, pattern)
		}
		terms = append(terms, t)
	}
	return terms, nil
}

func (m *Manager) matchTerm(expr string) ([]*types.Host, error) {
	base, sub := expr, ""
	hasSub := false
	if strings.HasSuffix(expr, "]") && !strings.HasPrefix(expr, "~") {
		match := subscriptRe.FindStringSubmatch(expr)
		if match == nil {
			return nil, fmt.Errorf("%w: malformed subscript in %q", ErrPatternSyntax, expr)
		}
		base, sub, hasSub = match[1], match[2], true
	}

	hosts, err := m.matchBase(base)
	if err != nil {
		return nil, err
	}
	if !hasSub {
		return hosts, nil
	}
	return applySubscript(hosts, sub, expr)
}

func (m *Manager) matchBase(base string) ([]*types.Host, error) {
	if base == AllGroup || base == "*" {
		return m.hosts, nil
	}
	if strings.HasPrefix(base, "~") {
		re, err := regexp.Compile(base[1:])
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPatternSyntax, err)
		}
		return m.matchFunc(re.MatchString), nil
	}
	if strings.ContainsAny(base, "*?[") {
		if _, err := path.Match(base, ""); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrPatternSyntax, err)
		}
		return m.matchFunc(func(name string) bool {
			ok, _ := path.Match(base, name)
			return ok
		}), nil
	}
	if _, ok := m.groups[base]; ok {
		return m.groupHosts(base), nil
	}
	if h, ok := m.byName[base]; ok {
		return []*types.Host{h}, nil
	}
	return nil, nil
}

// matchFunc returns hosts of every group whose name matches, then hosts
// whose own name matches.
func (m *Manager) matchFunc(match func(string) bool) []*types.Host {
	set := map[string]bool{}
	for name := range m.groups {
		if match(name) {
			for _, h := range m.groupHosts(name) {
				set[h.Name] = true
			}
		}
	}
	for _, h := range m.hosts {
		if match(h.Name) {
			set[h.Name] = true
		}
	}
	var out []*types.Host
	for _, h := range m.hosts {
		if set[h.Name] {
			out = append(out, h)
		}
	}
	return out
}

// applySubscript selects hosts by index or inclusive range. Missing range
// bounds default to the first and last host.
func applySubscript(hosts []*types.Host, sub, expr string) ([]*types.Host, error) {
	if indexRe.MatchString(sub) {
		i, _ := strconv.Atoi(sub)
		if i >= len(hosts) {
			return nil, nil
		}
		return hosts[i : i+1], nil
	}
	match := rangeRe.FindStringSubmatch(sub)
	if match == nil {
		return nil, fmt.Errorf("%w: bad subscript %q in %q", ErrPatternSyntax, sub, expr)
	}
	if len(hosts) == 0 {
		return nil, nil
	}
	start, stop := 0, len(hosts)-1
	if match[1] != "" {
		start, _ = strconv.Atoi(match[1])
	}
	if match[2] != "" {
		stop, _ = strconv.Atoi(match[2])
	}
	if stop > len(hosts)-1 {
		stop = len(hosts) - 1
	}
	if start > stop {
		return nil, nil
	}
	return hosts[start : stop+1], nil
}

func toSet(hosts []*types.Host) map[string]bool {
	set := make(map[string]bool, len(hosts))
	for _, h := range hosts {
		set[h.Name] = true
	}
	return set
}

func filterHosts(hosts []*types.Host, set map[string]bool, keep bool) []*types.Host {
	var out []*types.Host
	for _, h := range hosts {
		if set[h.Name] == keep {
			out = append(out, h)
		}
	}
	return out
}

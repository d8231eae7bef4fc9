package hostmanager

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnresolvablePattern is wrapped by every ResolutionError.
var ErrUnresolvablePattern = errors.New("unresolvable host pattern")

// ErrNegativeSliceBound is returned by Slice for a bound below zero.
// Ranges count from the first host; there is no counting from the end.
var ErrNegativeSliceBound = errors.New("slice bounds must not be negative")

// ConfigurationError reports a required option that was not supplied.
type ConfigurationError struct {
	Option string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("missing required option %q", e.Option)
}

// NoHostsMatchedError is returned when a dispatch targets zero hosts.
type NoHostsMatchedError struct {
	Pattern string
}

func (e *NoHostsMatchedError) Error() string {
	return fmt.Sprintf("no hosts matched pattern %q", e.Pattern)
}

// HostUnreachableError is returned when at least one targeted host could
// not be contacted. Contacted holds the hosts that did respond.
type HostUnreachableError struct {
	Pattern   string
	Contacted Results
	Dark      Results
}

func (e *HostUnreachableError) Error() string {
	return fmt.Sprintf("%d of %d hosts unreachable for pattern %q: %s",
		len(e.Dark), len(e.Contacted)+len(e.Dark), e.Pattern, strings.Join(e.Dark.Hosts(), ", "))
}

// Results returns the contacted and dark results.
func (e *HostUnreachableError) Results() (contacted, dark Results) {
	return e.Contacted, e.Dark
}

// Access tells how a name was looked up.
type Access int

const (
	// AttributeAccess is a lookup by group or host name.
	AttributeAccess Access = iota
	// KeyAccess is a lookup by arbitrary pattern.
	KeyAccess
)

func (a Access) String() string {
	if a == KeyAccess {
		return "key"
	}
	return "attribute"
}

// ResolutionError reports a name or pattern that matches nothing in the
// inventory.
type ResolutionError struct {
	Name   string
	Access Access
}

func (e *ResolutionError) Error() string {
	if e.Access == KeyAccess {
		return fmt.Sprintf("no hosts match key %q", e.Name)
	}
	return fmt.Sprintf("no host or group named %q", e.Name)
}

func (e *ResolutionError) Unwrap() error { return ErrUnresolvablePattern }

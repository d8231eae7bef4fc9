package hostmanager

import (
	"fmt"
	"strings"

	"github.com/eniac111/plumbtest/internal/inventory"
	"golang.org/x/mod/semver"
)

// Generation identifies a set of inventory construction APIs.
type Generation int

const (
	// GenerationV1 builds a bare host list; no loader, no variable manager.
	GenerationV1 Generation = iota + 1
	// GenerationV2 builds a single-source inventory registered on a
	// variable manager.
	GenerationV2
	// GenerationV24 builds a multi-source inventory manager.
	GenerationV24
)

func (g Generation) String() string {
	switch g {
	case GenerationV1:
		return "v1"
	case GenerationV2:
		return "v2"
	case GenerationV24:
		return "v2.4"
	default:
		return fmt.Sprintf("Generation(%d)", int(g))
	}
}

// Capabilities is what was detected about the execution engine.
type Capabilities struct {
	EngineVersion string
	Generation    Generation
}

// VersionSource reports an engine version.
type VersionSource interface {
	Version() string
}

// Detect computes the capabilities of src.
func Detect(src VersionSource) (Capabilities, error) {
	return DetectCapabilities(src.Version())
}

// DetectCapabilities selects the binding generation for an engine version.
// Selection is by feature threshold, so later minor releases map to the
// newest generation they are compatible with.
func DetectCapabilities(version string) (Capabilities, error) {
	v := strings.TrimSpace(version)
	if v != "" && !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if !semver.IsValid(v) {
		return Capabilities{}, fmt.Errorf("invalid engine version %q", version)
	}

	caps := Capabilities{EngineVersion: v}
	switch {
	case semver.Compare(v, "v2.4.0") >= 0:
		caps.Generation = GenerationV24
	case semver.Compare(v, "v2.0.0") >= 0:
		caps.Generation = GenerationV2
	default:
		caps.Generation = GenerationV1
	}
	return caps, nil
}

// binding builds the inventory and variable state for one generation.
type binding interface {
	initializeInventory(o *Options) error
}

func (c Capabilities) binding() (binding, error) {
	switch c.Generation {
	case GenerationV1:
		return hostListBinding{}, nil
	case GenerationV2:
		return inventoryBinding{}, nil
	case GenerationV24:
		return managerBinding{}, nil
	default:
		return nil, fmt.Errorf("unsupported binding generation %s", c.Generation)
	}
}

type hostListBinding struct{}

func (hostListBinding) initializeInventory(o *Options) error {
	inv, err := inventory.NewHostList(o.Inventory)
	if err != nil {
		return err
	}
	o.Loader = nil
	o.InventoryManager = inv
	// Group vars still resolve through the tree; there are no vars files.
	o.VariableManager = inventory.NewVariableManager(nil, inv)
	return nil
}

type inventoryBinding struct{}

func (inventoryBinding) initializeInventory(o *Options) error {
	loader := inventory.NewLoader()
	vm := inventory.NewVariableManager(loader, nil)
	inv, err := inventory.NewInventory(loader, vm, o.Inventory)
	if err != nil {
		return err
	}
	o.Loader = loader
	o.VariableManager = vm
	o.InventoryManager = inv
	return nil
}

type managerBinding struct{}

func (managerBinding) initializeInventory(o *Options) error {
	loader := inventory.NewLoader()
	inv, err := inventory.NewManager(loader, inventory.SplitSources(o.Inventory)...)
	if err != nil {
		return err
	}
	o.Loader = loader
	o.InventoryManager = inv
	o.VariableManager = inventory.NewVariableManager(loader, inv)
	return nil
}

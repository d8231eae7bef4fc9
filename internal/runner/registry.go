package runner

import (
	"github.com/eniac111/plumbtest/internal/modules"
	copymodule "github.com/eniac111/plumbtest/internal/modules/copy"
	"github.com/eniac111/plumbtest/internal/modules/file"
	"github.com/eniac111/plumbtest/internal/modules/ping"
	"github.com/eniac111/plumbtest/internal/modules/setup"
	"github.com/eniac111/plumbtest/internal/modules/shell"
)

// DefaultRegistry returns a registry with every built-in module.
func DefaultRegistry() *modules.Registry {
	reg := modules.NewRegistry()
	reg.Register("ping", ping.PingModule{})
	reg.Register("shell", shell.ShellModule{})
	reg.Register("command", shell.ShellModule{})
	reg.Register("file", file.FileModule{})
	reg.Register("copy", copymodule.CopyModule{})
	reg.Register("setup", setup.SetupModule{})
	return reg
}

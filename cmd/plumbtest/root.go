package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"

	"github.com/eniac111/plumbtest/internal/config"
	"github.com/eniac111/plumbtest/internal/logging"
	"github.com/eniac111/plumbtest/pkg/hostmanager"
	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitOK          = 0
	exitError       = 1
	exitUnreachable = 2
	exitNoHosts     = 3
)

var version = "dev"

// errHostsFailed is returned when a module reported failure on a host.
var errHostsFailed = errors.New("module failed on one or more hosts")

type app struct {
	stdout     io.Writer
	stderr     io.Writer
	configFile string
	check      bool
	cfg        *config.Config
}

func run(args []string, stdout, stderr io.Writer) int {
	a := &app{stdout: stdout, stderr: stderr}
	root := a.rootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	switch code {
	case exitOK:
	case exitError:
		fmt.Fprintln(stderr, "Error:", err)
	default:
		fmt.Fprintln(stderr, err)
	}
	return code
}

func exitCode(err error) int {
	var (
		unreachable *hostmanager.HostUnreachableError
		noHosts     *hostmanager.NoHostsMatchedError
	)
	switch {
	case err == nil:
		return exitOK
	case errors.As(err, &unreachable):
		return exitUnreachable
	case errors.As(err, &noHosts):
		return exitNoHosts
	default:
		return exitError
	}
}

func (a *app) rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "plumbtest",
		Short:         "Run modules against inventory hosts and check the results",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(config.LoadOptions{ConfigFile: a.configFile, Flags: cmd.Flags()})
			if err != nil {
				return err
			}
			logging.SetOutput(a.stderr)
			if err := logging.SetLevel(cfg.LogLevel); err != nil {
				return fmt.Errorf("log_level: %w", err)
			}
			a.cfg = cfg
			return nil
		},
	}

	defaults := config.DefaultConfig()
	pf := root.PersistentFlags()
	pf.StringVar(&a.configFile, "config", "", "config file (default ./plumbtest.yaml)")
	pf.StringP("inventory", "i", "", "inventory source: path, comma separated paths or host list")
	pf.StringP("host-pattern", "p", defaults.HostPattern, "hosts to target")
	pf.StringP("limit", "l", "", "further limit the selected hosts")
	pf.StringP("connection", "c", "", "connection type (local or ssh)")
	pf.StringP("user", "u", "", "remote user")
	pf.BoolP("become", "b", false, "run operations with become")
	pf.String("become-user", defaults.BecomeUser, "user to become")
	pf.String("become-method", defaults.BecomeMethod, "privilege escalation method (sudo, su, doas)")
	pf.String("private-key-file", "", "SSH private key file")
	pf.String("known-hosts", "", "known_hosts file used to verify host keys")
	pf.Duration("timeout", defaults.Timeout, "connection timeout")
	pf.IntP("forks", "f", defaults.Forks, "number of hosts worked on in parallel")
	pf.String("engine-version", "", "engine API version used to pick the inventory binding")
	pf.String("log-level", defaults.LogLevel, "log level (debug, info, warn, error)")

	root.AddCommand(a.hostsCmd(), a.pingCmd(), a.runCmd(), a.playCmd(), a.versionCmd())
	return root
}

func (a *app) hostManager() (*hostmanager.HostManager, error) {
	return hostmanager.Open(a.cfg.HostManagerOptions())
}

func (a *app) runnerArgs() map[string]any {
	if !a.check {
		return nil
	}
	return map[string]any{"check": true}
}

func (a *app) printJSON(v any) error {
	enc := json.NewEncoder(a.stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

type report struct {
	Task      string              `json:"task,omitempty"`
	Contacted hostmanager.Results `json:"contacted"`
	Dark      hostmanager.Results `json:"dark,omitempty"`
}

// printResults writes the outcome of one dispatch and returns the error the
// command should end with.
func (a *app) printResults(task string, res hostmanager.Results, err error) error {
	r := report{Task: task, Contacted: res}
	var unreachable *hostmanager.HostUnreachableError
	switch {
	case errors.As(err, &unreachable):
		r.Contacted, r.Dark = unreachable.Results()
	case err != nil:
		return err
	}
	if perr := a.printJSON(r); perr != nil {
		return perr
	}
	if err != nil {
		return err
	}
	if len(res.Failed()) > 0 {
		return fmt.Errorf("%w: %v", errHostsFailed, res.Failed().Hosts())
	}
	return nil
}

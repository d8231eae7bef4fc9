package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
	"github.com/eniac111/plumbtest/pkg/hostmanager"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func (a *app) hostsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "hosts [PATTERN]",
		Short: "List the hosts a pattern selects",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hostManager()
			if err != nil {
				return err
			}
			pattern := a.cfg.HostPattern
			if len(args) == 1 {
				pattern = args[0]
			}
			hosts, err := h.Inventory().ListHosts(pattern)
			if err != nil {
				return err
			}
			if len(hosts) == 0 {
				return &hostmanager.NoHostsMatchedError{Pattern: pattern}
			}
			for _, host := range hosts {
				fmt.Fprintln(a.stdout, host.Name)
			}
			return nil
		},
	}
}

func (a *app) pingCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "ping",
		Short: "Check that the selected hosts can be reached",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			h, err := a.hostManager()
			if err != nil {
				return err
			}
			res, err := h.Module().Ping(cmd.Context())
			return a.printResults("", res, err)
		},
	}
}

func (a *app) runCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run MODULE [key=value ...] [free form]",
		Short: "Run a module on the selected hosts",
		Example: `  plumbtest run shell "uptime" -i hosts.yml -p web
  plumbtest run file path=/tmp/x state=directory --check`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			h, err := a.hostManager()
			if err != nil {
				return err
			}
			modArgs := parseModuleArgs(args[1:])
			res, err := h.Module().Run(cmd.Context(), args[0], modArgs, hostmanager.WithRunnerArgs(a.runnerArgs()))
			return a.printResults("", res, err)
		},
	}
	cmd.Flags().BoolVar(&a.check, "check", false, "report changes without making them")
	return cmd
}

func (a *app) playCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "play PLAYBOOK",
		Short: "Run the tasks of a playbook in order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			pbData, err := os.ReadFile(args[0])
			if err != nil {
				return fmt.Errorf("failed to read playbook: %w", err)
			}
			var pb types.Playbook
			if err := yaml.Unmarshal(pbData, &pb); err != nil {
				return fmt.Errorf("failed to parse playbook: %w", err)
			}

			h, err := a.hostManager()
			if err != nil {
				return err
			}
			for i, task := range pb.Tasks {
				name := task.Name
				if name == "" {
					name = fmt.Sprintf("%d-%s", i, task.Module)
				}
				opts := []hostmanager.CallOption{hostmanager.WithRunnerArgs(a.runnerArgs())}
				if task.Become {
					opts = append(opts, hostmanager.Become(task.BecomeUser))
				}
				res, err := h.Module().Run(cmd.Context(), task.Module, task.Params, opts...)
				if err := a.printResults(name, res, err); err != nil {
					return fmt.Errorf("task %q: %w", name, err)
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&a.check, "check", false, "report changes without making them")
	return cmd
}

func (a *app) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			caps, err := hostmanager.DetectCapabilities(a.cfg.EngineVersion)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.stdout, "plumbtest %s\nengine %s (inventory binding %s)\n", version, caps.EngineVersion, caps.Generation)
			return nil
		},
	}
}

// parseModuleArgs turns key=value words into module arguments. Other words
// form the free-form argument.
func parseModuleArgs(words []string) modules.Args {
	args := modules.Args{}
	var free []string
	for _, w := range words {
		k, v, ok := strings.Cut(w, "=")
		if !ok || k == "" || strings.ContainsAny(k, " \t") {
			free = append(free, w)
			continue
		}
		args[k] = v
	}
	if len(free) > 0 {
		args[modules.RawParams] = strings.Join(free, " ")
	}
	return args
}

package commands

import (
	"fmt"

	"github.com/leapstack-labs/leapprofile/internal/cli/config"
	"github.com/leapstack-labs/leapprofile/internal/cli/output"
	"github.com/leapstack-labs/leapprofile/pkg/assistant"
	"github.com/leapstack-labs/leapprofile/pkg/core"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// NewConfigCommand creates the config command.
func NewConfigCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Show CLI and profiler configurations",
	}
	cmd.AddCommand(newConfigShowCommand(), newConfigAssistantCommand())
	return cmd
}

func newConfigShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the effective CLI configuration",
		Long: `Print the configuration after defaults, leapprofile.yaml, LEAPPROFILE_
environment variables and flags have been applied. Passwords are omitted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cc := NewCommandContext(cmd)
			if file := config.GetConfigFileUsed(); file != "" {
				_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "# config file: %s\n", file)
			}
			return writeYAML(cc.Renderer, cc.Cfg)
		},
	}
}

func newConfigAssistantCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "assistant [type]",
		Short: "Show the profiler configuration of a data assistant",
		Long: `Print the rules, builders and variables a data assistant runs, as a
profiler configuration. The output is a valid --profiler-config file.`,
		Example: `  leapprofile config assistant volume > profilers/volume.yaml`,
		Args:    cobra.MaximumNArgs(1),
		ValidArgsFunction: func(_ *cobra.Command, _ []string, _ string) ([]string, cobra.ShellCompDirective) {
			return assistant.NewRegistry().Types(), cobra.ShellCompDirectiveNoFileComp
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cc := NewCommandContext(cmd)
			assistantType := "volume"
			if len(args) == 1 {
				assistantType = args[0]
			}
			reg := assistant.NewRegistry()
			def, ok := reg.Get(assistantType)
			if !ok {
				return fmt.Errorf("%w %q (known: %v)", core.ErrUnknownAssistant, assistantType, reg.Types())
			}
			pc := def.Config(def.RegisteredName)
			if cc.Renderer.EffectiveMode() == output.ModeJSON {
				return cc.Renderer.JSON(pc.ToJSONDict())
			}
			return writeYAML(cc.Renderer, pc)
		},
	}
}

func writeYAML(r *output.Renderer, v any) error {
	enc := yaml.NewEncoder(r.Writer())
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("failed to render YAML: %w", err)
	}
	return enc.Close()
}

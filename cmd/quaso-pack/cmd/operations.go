package cmd

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/oshokin/quaso-pack/internal/app"
	"github.com/oshokin/quaso-pack/internal/config"
	"github.com/oshokin/quaso-pack/internal/ops"
)

// shorthands assigns one-letter flags to common parameters.
var shorthands = map[string]string{
	app.ParamTemplate: "t",
	app.ParamPlatform: "p",
}

// attachOperations adds one subcommand per registered operation. The tree is
// built from a registry over the default settings; the real settings are
// loaded when a command runs.
func attachOperations(root *cobra.Command) {
	for _, op := range app.New(config.Default()).Registry().Operations() {
		root.AddCommand(operationCommand(op))
	}
}

// operationCommand maps an operation onto a cobra command with a flag per parameter.
func operationCommand(op ops.Operation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   op.Name,
		Short: op.Usage,
		Args:  cobra.NoArgs,
	}

	for _, p := range op.Params {
		if def, err := strconv.ParseBool(p.Default); err == nil {
			cmd.Flags().BoolP(p.Name, shorthands[p.Name], def, p.Usage)

			continue
		}

		cmd.Flags().StringP(p.Name, shorthands[p.Name], p.Default, p.Usage)
	}

	cmd.RunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		// Only explicitly set flags are passed; the registry fills in defaults.
		args := ops.Args{}

		for _, p := range op.Params {
			flag := cmd.Flags().Lookup(p.Name)
			if flag != nil && flag.Changed {
				args[p.Name] = flag.Value.String()
			}
		}

		if err = app.New(cfg, app.WithOutput(cmd.OutOrStdout())).Invoke(cmd.Context(), op.Name, args); err != nil {
			return fmt.Errorf("%s: %w", op.Name, err)
		}

		return nil
	}

	return cmd
}

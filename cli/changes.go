package cli

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/options"
)

func newChangesCommand(opts *options.StratumOptions) *cli.Command {
	return &cli.Command{
		Name:  "changes",
		Usage: "Resolve which layers changed between two git revisions",
		Flags: []cli.Flag{
			baseFlag(opts),
			headFlag(opts),
		},
		Action: func(cliCtx *cli.Context) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			cs, err := resolveChanges(cliCtx.Context, opts.Logger, opts, cfg)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(opts.Writer)
			enc.SetIndent("", "  ")

			if err := enc.Encode(cs); err != nil {
				return errors.WithStackTrace(err)
			}

			return nil
		},
	}
}

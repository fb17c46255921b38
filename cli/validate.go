package cli

import (
	"github.com/urfave/cli/v2"

	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/internal/preflight"
	"github.com/stratum-ci/stratum/options"
)

func newValidateCommand(opts *options.StratumOptions) *cli.Command {
	var (
		checkBackend     bool
		bootstrapBackend bool
		skipCredentials  bool
	)

	return &cli.Command{
		Name:  "validate",
		Usage: "Check configuration, layer layout, tool version and credentials",
		Flags: []cli.Flag{
			environmentFlag(opts),
			&cli.BoolFlag{
				Name:        "backend",
				Usage:       "Also verify the remote state storage account and containers",
				Destination: &checkBackend,
			},
			&cli.BoolFlag{
				Name:        "bootstrap-backend",
				Usage:       "Create missing state containers instead of reporting them",
				Destination: &bootstrapBackend,
			},
			&cli.BoolFlag{
				Name:        "skip-credentials",
				Usage:       "Skip the Azure credential environment check",
				Destination: &skipCredentials,
			},
		},
		Action: func(cliCtx *cli.Context) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			pfOpts := &preflight.Options{
				Config:          cfg,
				WorkingDir:      opts.WorkingDir,
				TFPath:          opts.TFPath,
				SkipCredentials: skipCredentials,
			}

			if opts.Environment != matrix.SelectorAll {
				pfOpts.Environments = []string{opts.Environment}
			}

			if err := preflight.Check(cliCtx.Context, opts.Logger, pfOpts); err != nil {
				return err
			}

			if checkBackend || bootstrapBackend {
				if err := preflight.CheckBackend(cliCtx.Context, opts.Logger, pfOpts, bootstrapBackend); err != nil {
					return err
				}
			}

			opts.Logger.Infof("Configuration is valid")

			return nil
		},
	}
}

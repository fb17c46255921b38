package cli

import (
	"encoding/json"

	"github.com/urfave/cli/v2"

	"github.com/stratum-ci/stratum/internal/changeset"
	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/internal/matrix"
	"github.com/stratum-ci/stratum/options"
)

func newMatrixCommand(opts *options.StratumOptions) *cli.Command {
	var operation string

	return &cli.Command{
		Name:  "matrix",
		Usage: "Emit the work items a run would execute, as a JSON matrix",
		Flags: []cli.Flag{
			baseFlag(opts),
			headFlag(opts),
			environmentFlag(opts),
			layerFlag(opts),
			skipChangeDetectionFlag(opts),
			&cli.StringFlag{
				Name:        "operation",
				Aliases:     []string{"o"},
				Usage:       "Operation to emit: plan, apply or destroy",
				Value:       string(matrix.OperationPlan),
				Destination: &operation,
				EnvVars:     []string{"STRATUM_OPERATION"},
			},
		},
		Action: func(cliCtx *cli.Context) error {
			op, err := matrix.ParseOperation(operation)
			if err != nil {
				return err
			}

			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			var cs *changeset.ChangeSet

			// A destroy run tears down everything selected, so the emitted
			// matrix must not be narrowed by the change set either.
			if op != matrix.OperationDestroy && !opts.SkipChangeDetection && opts.Layer == matrix.SelectorAll {
				if cs, err = resolveChanges(cliCtx.Context, opts.Logger, opts, cfg); err != nil {
					return err
				}
			}

			items, err := matrix.NewBuilder(cfg).Build(matrix.Request{
				Changes:     cs,
				Environment: opts.Environment,
				Layer:       opts.Layer,
				Operation:   op,
			})
			if err != nil {
				return err
			}

			// The include wrapper is the shape CI matrix strategies consume.
			payload := struct {
				Include []matrix.WorkItem `json:"include"`
			}{Include: items}

			enc := json.NewEncoder(opts.Writer)
			enc.SetIndent("", "  ")

			if err := enc.Encode(payload); err != nil {
				return errors.WithStackTrace(err)
			}

			return nil
		},
	}
}

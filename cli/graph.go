package cli

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/urfave/cli/v2"

	"github.com/stratum-ci/stratum/internal/errors"
	"github.com/stratum-ci/stratum/options"
)

func newGraphCommand(opts *options.StratumOptions) *cli.Command {
	var asJSON bool

	return &cli.Command{
		Name:  "graph",
		Usage: "Show the layer dependency graph in execution order",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "json",
				Usage:       "Emit the graph as JSON",
				Destination: &asJSON,
			},
		},
		Action: func(cliCtx *cli.Context) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}

			order := cfg.Graph.TopologicalOrder()

			if asJSON {
				type node struct {
					Name         string   `json:"name"`
					Path         string   `json:"path"`
					Dependencies []string `json:"dependencies,omitempty"`
				}

				nodes := make([]node, 0, len(order))

				for _, name := range order {
					lyr, err := cfg.Graph.Layer(name)
					if err != nil {
						return err
					}

					nodes = append(nodes, node{
						Name:         lyr.Name,
						Path:         lyr.Path,
						Dependencies: lyr.Dependencies,
					})
				}

				enc := json.NewEncoder(opts.Writer)
				enc.SetIndent("", "  ")

				if err := enc.Encode(nodes); err != nil {
					return errors.WithStackTrace(err)
				}

				return nil
			}

			for i, name := range order {
				lyr, err := cfg.Graph.Layer(name)
				if err != nil {
					return err
				}

				line := fmt.Sprintf("%d. %s", i+1, name)
				if len(lyr.Dependencies) > 0 {
					line += " (after " + strings.Join(lyr.Dependencies, ", ") + ")"
				}

				if _, err := fmt.Fprintln(opts.Writer, line); err != nil {
					return errors.WithStackTrace(err)
				}
			}

			return nil
		},
	}
}

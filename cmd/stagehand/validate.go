package main

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/alexisbeaulieu97/stagehand/internal/config"
	"github.com/alexisbeaulieu97/stagehand/internal/transform"
)

func newValidateCmd() *cobra.Command {
	var (
		configPath string
		sel        transform.Selection
	)

	cmd := &cobra.Command{
		Use:   "validate",
		Short: "Check a job definition and print the run order",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := requireFile("config file", configPath)
			if err != nil {
				return err
			}
			cfg, err := config.ParseConfig(path)
			if err != nil {
				return err
			}
			tr, err := transform.New(cfg, transform.Options{Selection: sel, BaseDir: filepath.Dir(path)})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s is valid (%d datasets, %d stages)\n", cfg.Name, len(cfg.Datasets), len(cfg.Stages))
			fmt.Fprint(out, tr.Plan().String())
			return nil
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to job definition")
	cmd.Flags().StringSliceVar(&sel.Stages, "stages", nil, "Plan only these stages")
	cmd.Flags().StringSliceVar(&sel.Outputs, "outputs", nil, "Plan only what these output datasets need")
	cmd.MarkFlagRequired("config") //nolint:errcheck

	return cmd
}

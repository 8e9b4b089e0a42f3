package cli

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
)

//go:embed scaffold/assetgrid.hcl
var starterPipeline []byte

func newScaffoldCmd(opts *options) *cobra.Command {
	var force bool
	cmd := &cobra.Command{
		Use:   "scaffold",
		Short: "Write a starter pipeline file",
		Long: "Write a starter assetgrid.hcl into the project directory. It builds\n" +
			"styles, scripts, images and sprites from src/ into dist/ and vendors\n" +
			"bower libraries.",
		Args: usageArgs(cobra.NoArgs),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := opts.cfg.PipelinePath()
			if _, err := os.Stat(path); err == nil && !force {
				return usageError(fmt.Errorf("%s already exists, use --force to overwrite", path))
			} else if err != nil && !errors.Is(err, os.ErrNotExist) {
				return toExitError(err)
			}
			if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
				return toExitError(err)
			}
			if err := os.WriteFile(path, starterPipeline, 0o644); err != nil {
				return toExitError(fmt.Errorf("failed to write pipeline: %w", err))
			}
			printf(cmd, "Wrote %s\n", path)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&force, "force", "f", false, "Overwrite an existing pipeline file.")
	return cmd
}

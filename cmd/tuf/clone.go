package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cmdCloneTemplate = usageTemplate{
	Use:   "clone",
	Short: "Mirrors a remote repository's full metadata tree and targets into the trust dir.",
	Long: "Verifies the remote repository exactly like `update`, then also " +
		"fetches every delegated targets document named in snapshot.json's " +
		"meta map and every target body the top-level targets role " +
		"references, producing a complete local copy.",
}

type cloneCommander struct {
	configGetter func() *viper.Viper
	skipTargets  bool
}

func (c *cloneCommander) GetCommand() *cobra.Command {
	cmd := cmdCloneTemplate.ToCommand(c.clone)
	cmd.Flags().BoolVar(&c.skipTargets, "metadata-only", false, "Skip fetching target bodies")
	return cmd
}

func (c *cloneCommander) clone(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("clone takes no arguments, pass --trust-dir instead")
	}
	config := c.configGetter()
	trustDir := config.GetString("trust_dir")
	metadataURL := config.GetString("metadata_url")
	targetsURL := config.GetString("targets_url")
	if targetsURL == "" {
		targetsURL = metadataURL
	}

	repository, err := mirrorMetadataTree(trustDir, metadataURL)
	if err != nil {
		return fmt.Errorf("mirroring metadata: %w", err)
	}

	if !c.skipTargets {
		if err := mirrorTargetBodies(trustDir, targetsURL, repository); err != nil {
			return fmt.Errorf("mirroring targets: %w", err)
		}
	}

	cmd.Printf("Cloned repository into %s\n", trustDir)
	return nil
}

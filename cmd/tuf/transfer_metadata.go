package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cmdTransferMetadataTemplate = usageTemplate{
	Use:   "transfer-metadata <source> <dest-dir>",
	Short: "Verifies a repository's metadata tree and re-publishes it at dest-dir.",
	Long: "Loads and verifies source (a metadata URL or local directory) " +
		"exactly like `clone`'s metadata phase, then writes the verified " +
		"tree under dest-dir/metadata — useful for moving a repository " +
		"produced on an offline signing host onto its public mirror " +
		"without re-signing anything.",
}

type transferMetadataCommander struct {
	configGetter func() *viper.Viper
}

func (t *transferMetadataCommander) GetCommand() *cobra.Command {
	return cmdTransferMetadataTemplate.ToCommand(t.transfer)
}

func (t *transferMetadataCommander) transfer(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: tuf transfer-metadata <source> <dest-dir>")
	}
	source, destDir := args[0], args[1]

	repository, err := mirrorMetadataTree(destDir, source)
	if err != nil {
		return fmt.Errorf("transferring metadata: %w", err)
	}

	repo := repository.Repo()
	cmd.Printf("Transferred metadata from %s to %s (targets v%d)\n", source, destDir, repo.Snapshot.Snapshot.Meta["targets.json"].Version)
	return nil
}

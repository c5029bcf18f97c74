package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tufctl/tuf/tuf/data"
)

var cmdUpdateTemplate = usageTemplate{
	Use:   "update",
	Short: "Refreshes the local trust cache from the remote repository.",
	Long: "Runs the full root/timestamp/snapshot/targets verification " +
		"sequence against --metadata-url and overwrites the trust dir's " +
		"cached metadata with the newly verified documents. Fails closed: " +
		"a verification error leaves the existing cache untouched.",
}

type updateCommander struct {
	configGetter func() *viper.Viper
}

func (u *updateCommander) GetCommand() *cobra.Command {
	return cmdUpdateTemplate.ToCommand(u.update)
}

func (u *updateCommander) update(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("update takes no arguments")
	}
	config := u.configGetter()
	trustDir := config.GetString("trust_dir")

	repository, err := loadRemoteRepository(trustDir, config.GetString("metadata_url"), config.GetString("targets_url"))
	if err != nil {
		return fmt.Errorf("verifying remote repository: %w", err)
	}
	repo := repository.Repo()

	if err := cacheVerifiedRepo(trustDir, repo); err != nil {
		return fmt.Errorf("caching verified metadata: %w", err)
	}

	cmd.Printf("root v%d, timestamp v%d, snapshot v%d, targets v%d\n",
		repo.Root.Root.Version, repo.Timestamp.Timestamp.Version,
		repo.Snapshot.Snapshot.Version, repo.Targets[data.CanonicalTargetsRole].Targets.Version)
	return nil
}

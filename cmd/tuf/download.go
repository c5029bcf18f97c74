package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var cmdDownloadTemplate = usageTemplate{
	Use:   "download <target-path> [dest]",
	Short: "Verifies and downloads a single target artifact.",
	Long: "Loads and verifies the repository's trust chain from " +
		"--metadata-url, resolves target-path through the delegation tree, " +
		"fetches it from --targets-url, and writes it to dest (or the " +
		"current directory, using the target's base name, if dest is omitted).",
}

type downloadCommander struct {
	configGetter func() *viper.Viper
}

func (d *downloadCommander) GetCommand() *cobra.Command {
	return cmdDownloadTemplate.ToCommand(d.download)
}

func (d *downloadCommander) download(cmd *cobra.Command, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: tuf download <target-path> [dest]")
	}
	targetPath := args[0]
	dest := filepath.Base(targetPath)
	if len(args) == 2 {
		dest = args[1]
	}

	config := d.configGetter()
	trustDir := config.GetString("trust_dir")

	repository, err := loadRemoteRepository(trustDir, config.GetString("metadata_url"), config.GetString("targets_url"))
	if err != nil {
		return fmt.Errorf("loading repository: %w", err)
	}

	rc, err := repository.ReadTarget(targetPath)
	if err != nil {
		return fmt.Errorf("reading target %s: %w", targetPath, err)
	}
	defer rc.Close()

	out, err := os.Create(dest)
	if err != nil {
		return fmt.Errorf("creating %s: %w", dest, err)
	}
	if _, err := io.Copy(out, rc); err != nil {
		out.Close()
		os.Remove(dest)
		return fmt.Errorf("writing %s: %w", dest, err)
	}
	if err := out.Close(); err != nil {
		return err
	}

	if err := cacheVerifiedRepo(trustDir, repository.Repo()); err != nil {
		log.Warnf("caching verified metadata: %v", err)
	}

	cmd.Printf("Downloaded %s -> %s\n", targetPath, dest)
	return nil
}

package main

import (
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	trustDir    string
	metadataURL string
	targetsURL  string
	logLevel    string

	mainViper = viper.New()
)

func configGetter() *viper.Viper {
	mainViper.SetDefault("trust_dir", trustDir)
	mainViper.SetDefault("metadata_url", metadataURL)
	mainViper.SetDefault("targets_url", targetsURL)
	return mainViper
}

func setupLogging() {
	if os.Getenv("BACKTRACE") != "" {
		log.SetLevel(log.DebugLevel)
		return
	}
	lvl, err := log.ParseLevel(logLevel)
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func main() {
	cobra.OnInitialize(setupLogging)

	root := &cobra.Command{
		Use:   "tuf",
		Short: "tuf is a toolkit and CLI implementing The Update Framework v1.0.0",
		Long: "tuf loads, verifies, mutates, and publishes TUF-compliant metadata " +
			"repositories: create new repos, download and verify targets, update an " +
			"existing repo's trust state, clone a repo's metadata tree, and manage " +
			"root/delegation key ceremonies.",
	}

	home, _ := os.UserHomeDir()
	root.PersistentFlags().StringVar(&trustDir, "trust-dir", home+"/.tuf", "Directory to store trust data")
	root.PersistentFlags().StringVar(&metadataURL, "metadata-url", "", "Base URL (or file path) for repository metadata")
	root.PersistentFlags().StringVar(&targetsURL, "targets-url", "", "Base URL (or file path) for target artifacts")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Logging level: debug, info, warn, error")

	root.AddCommand((&createCommander{configGetter: configGetter}).GetCommand())
	root.AddCommand((&downloadCommander{configGetter: configGetter}).GetCommand())
	root.AddCommand((&updateCommander{configGetter: configGetter}).GetCommand())
	root.AddCommand((&cloneCommander{configGetter: configGetter}).GetCommand())
	root.AddCommand((&transferMetadataCommander{configGetter: configGetter}).GetCommand())
	root.AddCommand((&rootKeyCommander{configGetter: configGetter}).GetCommand())
	root.AddCommand((&delegationCommander{configGetter: configGetter}).GetCommand())

	if err := root.Execute(); err != nil {
		fatalf("%v", err)
	}
}

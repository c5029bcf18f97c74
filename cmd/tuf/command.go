package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// usageTemplate and cobraRunE mirror the teacher's cmd/notary/keys.go
// helper of the same name: a declarative Use/Short/Long triple plus a
// run function that is allowed to return an error, installed as cobra's
// error-returning RunE callback.
type usageTemplate struct {
	Use   string
	Short string
	Long  string
}

type cobraRunE func(cmd *cobra.Command, args []string) error

func (u usageTemplate) ToCommand(run cobraRunE) *cobra.Command {
	c := &cobra.Command{
		Use:   u.Use,
		Short: u.Short,
		Long:  u.Long,
	}
	if run != nil {
		c.RunE = func(cmd *cobra.Command, args []string) error {
			if err := run(cmd, args); err != nil {
				cmd.SilenceUsage = true
				return err
			}
			return nil
		}
	}
	return c
}

// fatalf prints a formatted error to stderr and exits 1, matching the
// teacher's BACKTRACE-aware fatal path.
func fatalf(format string, args ...interface{}) {
	if os.Getenv("BACKTRACE") != "" {
		log.SetLevel(log.DebugLevel)
		log.Errorf(format, args...)
	} else {
		fmt.Fprintf(os.Stderr, format+"\n", args...)
	}
	os.Exit(1)
}

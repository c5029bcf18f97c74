package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
)

var cmdCreateTemplate = usageTemplate{
	Use:   "create",
	Short: "Initializes a fresh repository under the trust directory.",
	Long: "Generates one Ed25519 signing key per top-level role (root, " +
		"targets, snapshot, timestamp), builds version-1 documents for all " +
		"four, signs them, and publishes the result under --trust-dir.",
}

type createCommander struct {
	configGetter func() *viper.Viper

	threshold          int
	consistentSnapshot bool
	expires            string
}

func (c *createCommander) GetCommand() *cobra.Command {
	cmd := cmdCreateTemplate.ToCommand(c.create)
	cmd.Flags().IntVar(&c.threshold, "threshold", 1, "Signing threshold for every top-level role")
	cmd.Flags().BoolVar(&c.consistentSnapshot, "consistent-snapshot", true, "Enable consistent-snapshot mode")
	cmd.Flags().StringVar(&c.expires, "expires", "", "Expiration timestamp (RFC3339) for every role; defaults to one year from now")
	return cmd
}

func (c *createCommander) create(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("create takes no arguments, pass --trust-dir instead")
	}
	config := c.configGetter()
	trustDir := config.GetString("trust_dir")

	expires, err := parseExpiry(c.expires)
	if err != nil {
		return fmt.Errorf("parsing --expires: %w", err)
	}

	ks, err := openKeyStore(trustDir)
	if err != nil {
		return err
	}

	roleKeys := make(map[string]*data.Key, len(data.BaseRoles))
	for _, role := range data.BaseRoles {
		k, err := ks.Create(role, data.KeyTypeEd25519)
		if err != nil {
			return fmt.Errorf("generating %s key: %w", role, err)
		}
		roleKeys[role] = k
	}

	repo := tuf.NewRepo(ks)
	repo.Root = &tuf.RootFile{Root: tuf.NewRootSigned(expires, c.consistentSnapshot), State: tuf.StateDirty}
	repo.Timestamp = &tuf.TimestampFile{Timestamp: tuf.NewTimestampSigned(expires), State: tuf.StateDirty}
	repo.Snapshot = &tuf.SnapshotFile{Snapshot: tuf.NewSnapshotSigned(expires), State: tuf.StateDirty}
	repo.Targets = map[string]*tuf.TargetsFile{
		data.CanonicalTargetsRole: {
			Targets: tuf.NewTargetsSigned(expires),
			Name:    data.CanonicalTargetsRole,
			State:   tuf.StateDirty,
		},
	}

	editor := tuf.NewRepositoryEditor(repo)
	for _, role := range data.BaseRoles {
		editor.AddKey(role, []*data.Key{roleKeys[role]}).SetThreshold(role, c.threshold)
	}
	if err := editor.Err(); err != nil {
		return err
	}

	signKeys := map[string][]*data.Key{
		data.CanonicalRootRole:      {roleKeys[data.CanonicalRootRole]},
		data.CanonicalTargetsRole:   {roleKeys[data.CanonicalTargetsRole]},
		data.CanonicalSnapshotRole:  {roleKeys[data.CanonicalSnapshotRole]},
		data.CanonicalTimestampRole: {roleKeys[data.CanonicalTimestampRole]},
	}
	if err := editor.Sign(signKeys); err != nil {
		return fmt.Errorf("signing new repository: %w", err)
	}

	w := tuf.NewWriter(trustDir)
	if err := w.WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing new repository: %w", err)
	}

	cmd.Printf("Created repository at %s (consistent_snapshot=%v, threshold=%d)\n", trustDir, c.consistentSnapshot, c.threshold)
	for _, role := range data.BaseRoles {
		cmd.Printf("  %s key: %s\n", role, roleKeys[role].ID())
	}
	return nil
}

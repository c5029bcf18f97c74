package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
)

var cmdDelegationTemplate = usageTemplate{
	Use:   "delegation",
	Short: "Manages delegated targets roles.",
	Long:  "Subcommands to list, create, and mutate delegated targets roles anywhere in the delegation tree.",
}

var cmdDelegationListTemplate = usageTemplate{
	Use:   "list [parent-role]",
	Short: "Lists the delegations declared directly under parent-role (default targets).",
}

var cmdDelegationCreateTemplate = usageTemplate{
	Use:   "create <name> <key-id> [--parent role] [--paths glob,glob] [--path-hash-prefixes hex,hex] [--threshold n] [--terminating]",
	Short: "Creates a new delegated role under --parent (default targets).",
}

var cmdDelegationAddTemplate = usageTemplate{
	Use:   "add <parent-role> <name> <key-id> [flags]",
	Short: "Adds a delegation entry under an explicit parent role.",
	Long:  "Equivalent to `delegation create` but names the parent role positionally instead of via --parent.",
}

var cmdDelegationRemoveTemplate = usageTemplate{
	Use:   "remove <parent-role> <name>",
	Short: "Removes a delegation entry.",
}

var cmdDelegationAddKeyTemplate = usageTemplate{
	Use:   "add-key <parent-role> <name> <key-id>",
	Short: "Authorizes an additional key for an existing delegated role.",
}

var cmdDelegationRemoveKeyTemplate = usageTemplate{
	Use:   "remove-key <parent-role> <name> <key-id>",
	Short: "Revokes a key's authorization for an existing delegated role.",
}

type delegationCommander struct {
	configGetter func() *viper.Viper

	parent           string
	paths            string
	pathHashPrefixes string
	threshold        int
	terminating      bool
	recursive        bool
}

func (d *delegationCommander) GetCommand() *cobra.Command {
	cmd := cmdDelegationTemplate.ToCommand(nil)
	cmd.AddCommand(cmdDelegationListTemplate.ToCommand(d.list))

	create := cmdDelegationCreateTemplate.ToCommand(d.create)
	create.Flags().StringVar(&d.parent, "parent", data.CanonicalTargetsRole, "Parent role to delegate from")
	create.Flags().StringVar(&d.paths, "paths", "", "Comma-separated path glob patterns")
	create.Flags().StringVar(&d.pathHashPrefixes, "path-hash-prefixes", "", "Comma-separated hex path-hash prefixes")
	create.Flags().IntVar(&d.threshold, "threshold", 1, "Signing threshold for the new role")
	create.Flags().BoolVar(&d.terminating, "terminating", false, "Mark the delegation terminating")
	cmd.AddCommand(create)

	add := cmdDelegationAddTemplate.ToCommand(d.add)
	add.Flags().StringVar(&d.paths, "paths", "", "Comma-separated path glob patterns")
	add.Flags().StringVar(&d.pathHashPrefixes, "path-hash-prefixes", "", "Comma-separated hex path-hash prefixes")
	add.Flags().IntVar(&d.threshold, "threshold", 1, "Signing threshold for the new role")
	add.Flags().BoolVar(&d.terminating, "terminating", false, "Mark the delegation terminating")
	cmd.AddCommand(add)

	remove := cmdDelegationRemoveTemplate.ToCommand(d.remove)
	remove.Flags().BoolVar(&d.recursive, "recursive", false, "Also remove every descendant of name")
	cmd.AddCommand(remove)

	cmd.AddCommand(cmdDelegationAddKeyTemplate.ToCommand(d.addKey))
	cmd.AddCommand(cmdDelegationRemoveKeyTemplate.ToCommand(d.removeKey))
	return cmd
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func (d *delegationCommander) list(cmd *cobra.Command, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("usage: tuf delegation list [parent-role]")
	}
	role := data.CanonicalTargetsRole
	if len(args) == 1 {
		role = args[0]
	}

	config := d.configGetter()
	repository, err := loadLocalRepository(config.GetString("trust_dir"))
	if err != nil {
		return err
	}
	repo := repository.Repo()
	draft, ok := repo.Targets[role]
	if !ok {
		return fmt.Errorf("role %q is not loaded", role)
	}
	if draft.Targets.Delegations == nil || len(draft.Targets.Delegations.Roles) == 0 {
		cmd.Printf("%s has no delegations\n", role)
		return nil
	}
	for _, entry := range draft.Targets.Delegations.Roles {
		cmd.Printf("%s  threshold=%d  terminating=%v  keys=%v  paths=%v  path_hash_prefixes=%v\n",
			entry.Name, entry.Threshold, entry.Terminating, entry.KeyIDs, entry.Paths, entry.PathHashPrefixes)
	}
	return nil
}

func (d *delegationCommander) create(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: tuf delegation create <name> <key-id> [flags]")
	}
	return d.addRole(cmd, d.parent, args[0], args[1])
}

func (d *delegationCommander) add(cmd *cobra.Command, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: tuf delegation add <parent-role> <name> <key-id> [flags]")
	}
	return d.addRole(cmd, args[0], args[1], args[2])
}

func (d *delegationCommander) addRole(cmd *cobra.Command, parent, name, keyID string) error {
	config := d.configGetter()
	trustDir := config.GetString("trust_dir")
	ks, err := openKeyStore(trustDir)
	if err != nil {
		return err
	}
	key := ks.GetKey(keyID)
	if key == nil {
		return fmt.Errorf("no such key %q in the local keystore (generate it with `tuf root gen-ed25519-key %s` first)", keyID, name)
	}

	repository, err := loadLocalRepository(trustDir)
	if err != nil {
		return err
	}
	repo := repository.Repo()
	repo.CryptoService = ks

	parentDraft, ok := repo.Targets[parent]
	if !ok {
		return fmt.Errorf("parent role %q is not loaded", parent)
	}
	child := &tuf.TargetsFile{
		Targets: tuf.NewTargetsSigned(parentDraft.Targets.Expires),
		State:   tuf.StateDirty,
	}

	editor := tuf.NewRepositoryEditor(repo)
	te := editor.ChangeDelegatedTargets(parent)
	te.AddRole(name, []*data.Key{key}, d.threshold, splitCSV(d.paths), splitCSV(d.pathHashPrefixes), child)
	if err := te.Err(); err != nil {
		return err
	}
	if d.terminating {
		for _, entry := range parentDraft.Targets.Delegations.Roles {
			if entry.Name == name {
				entry.Terminating = true
			}
		}
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	cmd.Printf("Delegated %q from %s to key %s\n", name, parent, keyID)
	return nil
}

func (d *delegationCommander) remove(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: tuf delegation remove <parent-role> <name>")
	}
	parent, name := args[0], args[1]

	config := d.configGetter()
	trustDir := config.GetString("trust_dir")
	ks, err := openKeyStore(trustDir)
	if err != nil {
		return err
	}
	repository, err := loadLocalRepository(trustDir)
	if err != nil {
		return err
	}
	repo := repository.Repo()
	repo.CryptoService = ks

	editor := tuf.NewRepositoryEditor(repo)
	te := editor.ChangeDelegatedTargets(parent)
	te.RemoveRole(name, d.recursive)
	if err := te.Err(); err != nil {
		return err
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	cmd.Printf("Removed delegation %q from %s\n", name, parent)
	return nil
}

func (d *delegationCommander) addKey(cmd *cobra.Command, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: tuf delegation add-key <parent-role> <name> <key-id>")
	}
	parent, name, keyID := args[0], args[1], args[2]

	config := d.configGetter()
	trustDir := config.GetString("trust_dir")
	ks, err := openKeyStore(trustDir)
	if err != nil {
		return err
	}
	key := ks.GetKey(keyID)
	if key == nil {
		return fmt.Errorf("no such key %q in the local keystore", keyID)
	}
	repository, err := loadLocalRepository(trustDir)
	if err != nil {
		return err
	}
	repo := repository.Repo()
	repo.CryptoService = ks

	editor := tuf.NewRepositoryEditor(repo)
	te := editor.ChangeDelegatedTargets(parent)
	te.AddKey([]*data.Key{key}, name)
	if err := te.Err(); err != nil {
		return err
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	cmd.Printf("Authorized %s for delegation %q\n", keyID, name)
	return nil
}

func (d *delegationCommander) removeKey(cmd *cobra.Command, args []string) error {
	if len(args) != 3 {
		return fmt.Errorf("usage: tuf delegation remove-key <parent-role> <name> <key-id>")
	}
	parent, name, keyID := args[0], args[1], args[2]

	config := d.configGetter()
	trustDir := config.GetString("trust_dir")
	ks, err := openKeyStore(trustDir)
	if err != nil {
		return err
	}
	repository, err := loadLocalRepository(trustDir)
	if err != nil {
		return err
	}
	repo := repository.Repo()
	repo.CryptoService = ks

	editor := tuf.NewRepositoryEditor(repo)
	te := editor.ChangeDelegatedTargets(parent)
	te.RemoveKey(keyID, name)
	if err := te.Err(); err != nil {
		return err
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	cmd.Printf("Revoked %s from delegation %q\n", keyID, name)
	return nil
}

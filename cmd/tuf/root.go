package main

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tufctl/tuf/tuf"
	"github.com/tufctl/tuf/tuf/data"
)

var cmdRootTemplate = usageTemplate{
	Use:   "root",
	Short: "Manages the root role and its signing keys.",
	Long:  "Subcommands for the root key ceremony: generate keys, bootstrap a bare root.json, authorize or revoke keys, change thresholds, re-sign, and adjust expirations.",
}

var cmdRootCreateTemplate = usageTemplate{
	Use:   "create",
	Short: "Bootstraps a bare, self-signed root.json.",
	Long:  "Generates one root signing key and publishes a version-1 root.json signed by it, without creating targets/snapshot/timestamp (use the top-level `create` command for a full repository in one step).",
}

var cmdRootGenRSATemplate = usageTemplate{
	Use:   "gen-rsa-key [role]",
	Short: "Generates a new RSA key, defaulting to the root role.",
}

var cmdRootGenEd25519Template = usageTemplate{
	Use:   "gen-ed25519-key [role]",
	Short: "Generates a new Ed25519 key, defaulting to the root role.",
}

var cmdRootGenECDSATemplate = usageTemplate{
	Use:   "gen-ecdsa-key [role]",
	Short: "Generates a new ECDSA P-256 key, defaulting to the root role.",
}

var cmdRootAddKeyTemplate = usageTemplate{
	Use:   "add-key <key-id> [role]",
	Short: "Authorizes an existing keystore key for role (default root).",
}

var cmdRootSetThresholdTemplate = usageTemplate{
	Use:   "set-threshold <role> <n>",
	Short: "Sets role's signing threshold.",
}

var cmdRootSignTemplate = usageTemplate{
	Use:   "sign",
	Short: "Re-signs root with every root key the local keystore holds.",
}

var cmdRootExpireTemplate = usageTemplate{
	Use:   "expire <role> <RFC3339-timestamp>",
	Short: "Sets role's expiration timestamp and re-signs it.",
}

type rootKeyCommander struct {
	configGetter func() *viper.Viper

	threshold          int
	consistentSnapshot bool
	expires            string
}

func (r *rootKeyCommander) GetCommand() *cobra.Command {
	cmd := cmdRootTemplate.ToCommand(nil)

	create := cmdRootCreateTemplate.ToCommand(r.create)
	create.Flags().IntVar(&r.threshold, "threshold", 1, "Root signing threshold")
	create.Flags().BoolVar(&r.consistentSnapshot, "consistent-snapshot", true, "Enable consistent-snapshot mode")
	create.Flags().StringVar(&r.expires, "expires", "", "Root expiration (RFC3339), defaults to one year from now")
	cmd.AddCommand(create)

	cmd.AddCommand(cmdRootGenRSATemplate.ToCommand(r.genKey(data.KeyTypeRSA)))
	cmd.AddCommand(cmdRootGenEd25519Template.ToCommand(r.genKey(data.KeyTypeEd25519)))
	cmd.AddCommand(cmdRootGenECDSATemplate.ToCommand(r.genKey(data.KeyTypeECDSA)))
	cmd.AddCommand(cmdRootAddKeyTemplate.ToCommand(r.addKey))
	cmd.AddCommand(cmdRootSetThresholdTemplate.ToCommand(r.setThreshold))
	cmd.AddCommand(cmdRootSignTemplate.ToCommand(r.sign))
	cmd.AddCommand(cmdRootExpireTemplate.ToCommand(r.expire))
	return cmd
}

func (r *rootKeyCommander) create(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("root create takes no arguments")
	}
	config := r.configGetter()
	trustDir := config.GetString("trust_dir")

	expires, err := parseExpiry(r.expires)
	if err != nil {
		return fmt.Errorf("parsing --expires: %w", err)
	}

	ks, err := openKeyStore(trustDir)
	if err != nil {
		return err
	}
	key, err := ks.Create(data.CanonicalRootRole, data.KeyTypeEd25519)
	if err != nil {
		return fmt.Errorf("generating root key: %w", err)
	}

	repo := tuf.NewRepo(ks)
	repo.Root = &tuf.RootFile{Root: tuf.NewRootSigned(expires, r.consistentSnapshot), State: tuf.StateDirty}

	editor := tuf.NewRepositoryEditor(repo)
	editor.AddKey(data.CanonicalRootRole, []*data.Key{key}).SetThreshold(data.CanonicalRootRole, r.threshold)
	if err := editor.Err(); err != nil {
		return err
	}
	if err := editor.Sign(map[string][]*data.Key{data.CanonicalRootRole: {key}}); err != nil {
		return fmt.Errorf("signing root: %w", err)
	}

	w := tuf.NewWriter(trustDir)
	if err := w.WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing root: %w", err)
	}

	cmd.Printf("Created root.json signed by %s (threshold %d)\n", key.ID(), r.threshold)
	return nil
}

func (r *rootKeyCommander) genKey(algorithm string) cobraRunE {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) > 1 {
			return fmt.Errorf("at most one argument (role) expected")
		}
		role := data.CanonicalRootRole
		if len(args) == 1 {
			role = args[0]
		}
		config := r.configGetter()
		ks, err := openKeyStore(config.GetString("trust_dir"))
		if err != nil {
			return err
		}
		key, err := ks.Create(role, algorithm)
		if err != nil {
			return fmt.Errorf("generating %s key for %s: %w", algorithm, role, err)
		}
		cmd.Printf("Generated %s key for role %s: %s\n", algorithm, role, key.ID())
		return nil
	}
}

func (r *rootKeyCommander) addKey(cmd *cobra.Command, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return fmt.Errorf("usage: tuf root add-key <key-id> [role]")
	}
	keyID := args[0]
	role := data.CanonicalRootRole
	if len(args) == 2 {
		role = args[1]
	}

	config := r.configGetter()
	trustDir := config.GetString("trust_dir")
	ks, err := openKeyStore(trustDir)
	if err != nil {
		return err
	}
	key := ks.GetKey(keyID)
	if key == nil {
		return fmt.Errorf("no such key %q in the local keystore (generate it first)", keyID)
	}

	repository, err := loadLocalRepository(trustDir)
	if err != nil {
		return err
	}
	repo := repository.Repo()
	repo.CryptoService = ks

	editor := tuf.NewRepositoryEditor(repo)
	editor.AddKey(role, []*data.Key{key})
	if err := editor.Err(); err != nil {
		return err
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing root: %w", err)
	}

	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing root: %w", err)
	}
	cmd.Printf("Authorized %s for role %s\n", keyID, role)
	return nil
}

func (r *rootKeyCommander) setThreshold(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: tuf root set-threshold <role> <n>")
	}
	role := args[0]
	n, err := strconv.Atoi(args[1])
	if err != nil {
		return fmt.Errorf("invalid threshold %q: %w", args[1], err)
	}

	config := r.configGetter()
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
	editor.SetThreshold(role, n)
	if err := editor.Err(); err != nil {
		return err
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing root: %w", err)
	}
	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing root: %w", err)
	}
	cmd.Printf("Set %s threshold to %d\n", role, n)
	return nil
}

func (r *rootKeyCommander) sign(cmd *cobra.Command, args []string) error {
	if len(args) > 0 {
		return fmt.Errorf("root sign takes no arguments")
	}
	config := r.configGetter()
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
	editor.RootExpires(repo.Root.Root.Expires)
	if err := editor.Err(); err != nil {
		return err
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing root: %w", err)
	}
	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing root: %w", err)
	}
	cmd.Printf("Re-signed root at version %d\n", repo.Root.Root.Version)
	return nil
}

func (r *rootKeyCommander) expire(cmd *cobra.Command, args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: tuf root expire <role> <RFC3339-timestamp>")
	}
	role := args[0]
	t, err := parseExpiry(args[1])
	if err != nil {
		return fmt.Errorf("parsing timestamp: %w", err)
	}

	config := r.configGetter()
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
	switch role {
	case data.CanonicalRootRole:
		editor.RootExpires(t)
	case data.CanonicalSnapshotRole:
		editor.SnapshotExpires(t)
	case data.CanonicalTimestampRole:
		editor.TimestampExpires(t)
	default:
		te := editor.ChangeDelegatedTargets(role)
		te.Expires(t)
		if err := te.Err(); err != nil {
			return err
		}
	}
	if err := editor.Err(); err != nil {
		return err
	}
	if err := editor.Sign(allRoleKeys(ks)); err != nil {
		return fmt.Errorf("signing: %w", err)
	}
	if err := tuf.NewWriter(trustDir).WriteRepo(repo); err != nil {
		return fmt.Errorf("publishing: %w", err)
	}
	cmd.Printf("Set %s expiration to %s\n", role, t.Format("2006-01-02T15:04:05Z07:00"))
	return nil
}

package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"docvault/internal/app"
	"docvault/internal/config"
	"docvault/internal/keys"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer a.Close().
func newApp(cmd *cobra.Command) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(cmd.Context(), cfg)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(os.Stdin.Fd()))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	return string(pass), nil
}

// unlockIfNeeded prompts for the keystore passphrase when the configured
// key provider requires one for decryption.
func unlockIfNeeded(a *app.App) error {
	if !a.NeedsPassphrase() {
		return nil
	}
	pass, err := promptPassphrase("Keystore passphrase: ")
	if err != nil {
		return err
	}
	if err := a.Unlock(pass); err != nil {
		return fmt.Errorf("unlocking keystore: %w", err)
	}
	return nil
}

var rootCmd = &cobra.Command{
	Use:   "docvault",
	Short: "Encrypted document storage service",
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg := config.NewConfig(defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Base Dir: %s\n", defaults["base_dir"])
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Base Dir:   %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Listen:     %s\n", cfg.Server.Addr)
		fmt.Printf("Storage:    %s\n", cfg.Storage.Type)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Keys:       %s\n", cfg.Keys.Type)
		fmt.Printf("Retention:  %d day(s)\n", cfg.Retention.RetentionDays)
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage the encryption keystore",
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize the keystore with a passphrase",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}
		if cfg.Keys.Type != "local" && cfg.Keys.Type != "" {
			return fmt.Errorf("keystore init only applies to key provider type %q, config has %q", "local", cfg.Keys.Type)
		}

		provider := keys.NewLocalProvider(cfg.Keys.KeyDir)
		if provider.IsConfigured() {
			return fmt.Errorf("keystore already initialized at %s", cfg.Keys.KeyDir)
		}

		pass, err := promptPassphrase("New keystore passphrase: ")
		if err != nil {
			return err
		}
		confirm, err := promptPassphrase("Confirm passphrase: ")
		if err != nil {
			return err
		}
		if pass != confirm {
			return fmt.Errorf("passphrases do not match")
		}

		if err := provider.Setup(pass); err != nil {
			return fmt.Errorf("initializing keystore: %w", err)
		}

		fmt.Printf("Keystore initialized at %s\n", cfg.Keys.KeyDir)
		return nil
	},
}

// serve command
var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and retention sweep",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		return a.Serve(ctx)
	},
}

// upload command
var uploadCmd = &cobra.Command{
	Use:   "upload OWNER TYPE FILE",
	Short: "Encrypt and store a document as a new version",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		rec, err := a.Upload(cmd.Context(), args[0], args[1], args[2])
		if err != nil {
			return fmt.Errorf("upload failed: %w", err)
		}

		fmt.Printf("Stored %s version %d\n", rec.DocumentType, rec.Version)
		fmt.Printf("ID:       %s\n", rec.ID)
		fmt.Printf("Checksum: %s\n", rec.Checksum)
		return nil
	},
}

// get command
var getCmd = &cobra.Command{
	Use:   "get ID",
	Short: "Decrypt and print a document version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		_, content, err := a.Retrieve(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("retrieve failed: %w", err)
		}

		return writeContent(output, content)
	},
}

// current command
var currentCmd = &cobra.Command{
	Use:   "current OWNER TYPE",
	Short: "Decrypt and print the current version for an owner",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := unlockIfNeeded(a); err != nil {
			return err
		}

		_, content, err := a.RetrieveCurrent(cmd.Context(), args[0], args[1])
		if err != nil {
			return fmt.Errorf("retrieve failed: %w", err)
		}

		return writeContent(output, content)
	},
}

func writeContent(output string, content []byte) error {
	if output == "" || output == "-" {
		_, err := os.Stdout.Write(content)
		return err
	}
	if err := os.WriteFile(output, content, 0600); err != nil {
		return fmt.Errorf("writing %s: %w", output, err)
	}
	fmt.Fprintf(os.Stderr, "Wrote %d byte(s) to %s\n", len(content), output)
	return nil
}

// delete command
var deleteCmd = &cobra.Command{
	Use:   "delete ID",
	Short: "Soft-delete a document version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Delete(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("delete failed: %w", err)
		}

		fmt.Printf("Deleted %s\n", args[0])
		return nil
	},
}

// versions command
var versionsCmd = &cobra.Command{
	Use:   "versions OWNER TYPE",
	Short: "List the version history for an owner's document type",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		recs, err := a.Versions(cmd.Context(), args[0], args[1])
		if err != nil {
			return err
		}

		if len(recs) == 0 {
			fmt.Println("No versions found.")
			return nil
		}

		for _, rec := range recs {
			fmt.Printf("v%-4d %-13s %s  %s  ocr:%s  %d byte(s)\n",
				rec.Version,
				rec.Status,
				rec.ID,
				rec.UploadedAt.Format("2006-01-02 15:04:05"),
				rec.OCRStatus,
				rec.SizeBytes,
			)
		}
		return nil
	},
}

// sweep command
var sweepCmd = &cobra.Command{
	Use:   "sweep",
	Short: "Run one retention sweep pass",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		purged, err := a.Sweep(cmd.Context())
		if err != nil {
			return fmt.Errorf("sweep failed: %w", err)
		}

		fmt.Printf("Purged %d version(s)\n", purged)
		return nil
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)
	keysCmd.AddCommand(keysInitCmd)

	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(uploadCmd)
	rootCmd.AddCommand(getCmd)
	getCmd.Flags().StringP("output", "o", "", "Write content to a file instead of stdout")
	rootCmd.AddCommand(currentCmd)
	currentCmd.Flags().StringP("output", "o", "", "Write content to a file instead of stdout")
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(versionsCmd)
	rootCmd.AddCommand(sweepCmd)
}

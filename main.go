package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/atotto/clipboard"
	"github.com/spf13/cobra"

	"hermitcrab/config"
	"hermitcrab/kernel"
	"hermitcrab/mcp"
	"hermitcrab/pscale"
	"hermitcrab/relay"
	"hermitcrab/storage"
	"hermitcrab/ui"
)

var dataDir string

func main() {
	rootCmd := &cobra.Command{
		Use:   "hermitcrab",
		Short: "A kernel that writes its own interface",
		Long: `hermitcrab boots a language model into a self-written interface.

With no subcommand it opens the terminal shell on the data directory,
restoring the last interface or booting a fresh one.`,
		SilenceUsage: true,
		RunE:         runShell,
	}
	rootCmd.PersistentFlags().StringVar(&dataDir, "data-dir", "", "data directory (default from settings or HERMITCRAB_DATA_DIR)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "relay",
		Short: "Run the completion and fetch relay",
		Args:  cobra.NoArgs,
		RunE:  runRelay,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "mcp",
		Short: "Serve the kernel tools over MCP stdio",
		Args:  cobra.NoArgs,
		RunE:  runMCP,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "export [path]",
		Short: "Export the conversation as JSON",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runExport,
	})

	keyCmd := &cobra.Command{
		Use:   "key",
		Short: "Manage the stored Anthropic API key",
	}
	keyCmd.AddCommand(&cobra.Command{
		Use:   "set [key]",
		Short: "Store a key (read from stdin when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE:  runKeySet,
	})
	keyCmd.AddCommand(&cobra.Command{
		Use:   "clear",
		Short: "Remove the stored key",
		Args:  cobra.NoArgs,
		RunE:  runKeyClear,
	})
	rootCmd.AddCommand(keyCmd)

	rootCmd.AddCommand(&cobra.Command{
		Use:   "reboot",
		Short: "Discard the persisted interface so the next start boots fresh",
		Args:  cobra.NoArgs,
		RunE:  runReboot,
	})

	rootCmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("hermitcrab %s\n", kernel.Version)
		},
	})

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadConfig() (*config.Config, error) {
	var (
		cfg *config.Config
		err error
	)
	if dataDir != "" {
		cfg, err = config.LoadFrom(config.ExpandPath(dataDir))
	} else {
		cfg, err = config.Load()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	config.InitDebugLog(cfg.DataDir())
	return cfg, nil
}

func loadCredentials(cfg *config.Config) (*config.CredentialStore, error) {
	store := config.NewCredentialStoreFromConfig(cfg)
	if pass := os.Getenv("HERMITCRAB_SSH_PASSPHRASE"); pass != "" {
		store.SetPassphrase(pass)
	}
	if err := store.Load(cfg.DataDir()); err != nil {
		return nil, fmt.Errorf("failed to load credentials: %w", err)
	}
	return store, nil
}

// apiKey prefers the environment over the credential store. The local
// backend runs without one.
func apiKey(cfg *config.Config) (string, error) {
	if key := strings.TrimSpace(os.Getenv("ANTHROPIC_API_KEY")); key != "" {
		return key, nil
	}
	store, err := loadCredentials(cfg)
	if err != nil {
		return "", err
	}
	key := store.APIKey()
	if key == "" && cfg.Backend == config.BackendClaude {
		return "", errors.New("no API key: run `hermitcrab key set` or export ANTHROPIC_API_KEY")
	}
	return key, nil
}

func openRuntime(cfg *config.Config) (*kernel.Runtime, error) {
	key, err := apiKey(cfg)
	if err != nil {
		return nil, err
	}
	rt, err := kernel.Open(cfg, key)
	if err != nil {
		return nil, fmt.Errorf("failed to open kernel: %w", err)
	}
	return rt, nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runShell(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	rt, err := openRuntime(cfg)
	if err != nil {
		if merr := ui.ShowError("hermitcrab cannot start", err.Error()); merr != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		return nil
	}
	defer func() {
		if cerr := rt.Close(); cerr != nil && config.DebugLog != nil {
			config.DebugLog.Printf("[Main] close: %v", cerr)
		}
	}()

	ctx, cancel := signalContext()
	defer cancel()

	var chat ui.Conversation
	if c := rt.Chat(); c != nil {
		chat = c
	}
	return ui.Run(ctx, rt.Kernel, chat, ui.Options{
		Version:   kernel.Version,
		ExportDir: cfg.UI.ExportDir,
		Clipboard: clipboard.WriteAll,
	})
}

func runRelay(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()

	srv := relay.New(relay.OptionsFromConfig(cfg.Relay))
	fmt.Fprintf(os.Stderr, "relay listening on %s\n", cfg.Relay.Listen)
	return srv.ListenAndServe(ctx, cfg.Relay.Listen)
}

func runMCP(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	rt, err := openRuntime(cfg)
	if err != nil {
		return err
	}
	defer rt.Close()

	srv, err := mcp.NewServer(rt.Executor(), kernel.Version)
	if err != nil {
		return err
	}
	ctx, cancel := signalContext()
	defer cancel()
	return srv.Serve(ctx, os.Stdin, os.Stdout, config.DebugLog)
}

func runExport(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	kv, err := storage.OpenSQLiteKV(config.DatabasePath(cfg.DataDir()))
	if err != nil {
		return err
	}
	defer kv.Close()

	history, err := storage.LoadHistory(kv, cfg.Budgets.HistoryWindow)
	if err != nil {
		return err
	}
	path := storage.GenerateExportPath(cfg.UI.ExportDir)
	if len(args) == 1 {
		path = config.ExpandPath(args[0])
	}
	if err := history.ExportToJSON(path); err != nil {
		return fmt.Errorf("failed to export: %w", err)
	}
	fmt.Printf("exported %d messages to %s\n", len(history.Messages), path)
	return nil
}

func runKeySet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := loadCredentials(cfg)
	if err != nil {
		return err
	}

	var key string
	if len(args) == 1 {
		key = args[0]
	} else {
		fmt.Fprint(os.Stderr, "Anthropic API key: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("failed to read key: %w", err)
		}
		key = line
	}

	if err := store.Set(config.CredentialAnthropic, key); err != nil {
		return err
	}
	if err := store.Save(cfg.DataDir()); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Printf("key stored (%s)\n", store.Method())
	return nil
}

func runKeyClear(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	store, err := loadCredentials(cfg)
	if err != nil {
		return err
	}
	if err := store.Delete(config.CredentialAnthropic); err != nil {
		return err
	}
	if err := store.Save(cfg.DataDir()); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}
	fmt.Println("key cleared")
	return nil
}

func runReboot(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	lock := storage.NewInstanceLock(cfg.DataDir())
	running, pid, err := lock.Check()
	if err != nil {
		return err
	}
	if running {
		return fmt.Errorf("hermitcrab is running (pid %d); use /reboot in the shell instead", pid)
	}

	kv, err := storage.OpenSQLiteKV(config.DatabasePath(cfg.DataDir()))
	if err != nil {
		return err
	}
	defer kv.Close()

	if _, err := pscale.New(kv).Delete(pscale.CoordInterface); err != nil {
		return fmt.Errorf("failed to clear interface: %w", err)
	}
	fmt.Println("interface cleared; the next start boots fresh")
	return nil
}

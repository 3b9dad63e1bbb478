// radgate is a DICOM routing and compliance gateway: it tracks study
// transfers per route, stages anonymized studies for human review, indexes
// local and remote archives, and enforces storage retention.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/radgate/radgate/internal/config"
	"github.com/radgate/radgate/internal/storage/sqlite"
	"github.com/radgate/radgate/internal/telemetry"
)

var (
	configDir  string
	jsonOutput bool

	cfg   *config.Config
	store *sqlite.Store

	// Signal-aware context for graceful cancellation
	rootCtx    context.Context
	rootCancel context.CancelFunc
)

var rootCmd = &cobra.Command{
	Use:   "radgate",
	Short: "radgate - DICOM routing and compliance gateway",
	Long: `Routes DICOM studies from modalities to their destinations, stages
anonymized studies for compliance review, and keeps a searchable index of
everything that passed through.`,
	Run: func(cmd *cobra.Command, args []string) {
		if v, _ := cmd.Flags().GetBool("version"); v {
			fmt.Printf("radgate version %s (%s)\n", Version, Build)
			return
		}
		_ = cmd.Help()
	},
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		rootCtx, rootCancel = signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

		if v := viper.GetString("config-dir"); configDir == defaultConfigDir() && v != "" {
			configDir = v
		}

		loaded, err := config.Load(configDir)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
		if loaded == nil {
			loaded = config.DefaultConfig()
		}
		cfg = loaded

		if err := telemetry.Init(rootCtx, "radgate", Version); err != nil {
			fmt.Fprintf(os.Stderr, "Warning: telemetry init failed: %v\n", err)
		}
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if store != nil {
			_ = store.Close()
			store = nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		telemetry.Shutdown(ctx)
		cancel()
		if rootCancel != nil {
			rootCancel()
		}
	},
}

func defaultConfigDir() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.radgate"
	}
	return ".radgate"
}

// openStore opens the index database, exiting on failure. Commands that
// touch the index call this at the top of their Run.
func openStore() *sqlite.Store {
	if store != nil {
		return store
	}
	s, err := sqlite.New(rootCtx, cfg.DatabasePath(configDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: open index database: %v\n", err)
		os.Exit(1)
	}
	store = s
	return store
}

func loadRoutes() []config.Route {
	routes, err := config.LoadRoutes(cfg.RoutesPath(configDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
	return routes
}

func outputJSON(v interface{}) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		fmt.Fprintf(os.Stderr, "Error: encoding JSON: %v\n", err)
		os.Exit(1)
	}
}

func fatalf(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configDir, "config-dir", defaultConfigDir(), "Directory holding radgate.json and routes.yaml")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "Output in JSON format")
	rootCmd.Flags().Bool("version", false, "Print version and exit")

	viper.SetEnvPrefix("RADGATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	_ = viper.BindPFlag("config-dir", rootCmd.PersistentFlags().Lookup("config-dir"))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

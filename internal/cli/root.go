package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/ashvattha/ashvattha/internal/model"
	"github.com/ashvattha/ashvattha/internal/store"
	"github.com/ashvattha/ashvattha/internal/store/postgres"
)

var (
	cfgFile string
	verbose bool
	dbURL   string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "ashvattha",
	Short: "Ashvattha - lineage graph resolution engine",
	Long: `Ashvattha grows a lineage graph from ambiguous parentage facts.

Research workers pull persons off a priority queue, consult external
fact sources (Wikidata, Wikipedia infoboxes, optionally an LLM), score
confidence for each claimed parent link, and keep competing hypotheses
side by side until one earns primary standing. Unconnected roots live
in genesis blocks that dissolve into the main graph once their parent
link is confident enough.

Run "ashvattha add" to seed a person, "ashvattha agent" to research the
queue, and "ashvattha serve" to browse the graph over HTTP.`,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("ashvattha v0.3.0")
	},
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: $HOME/.ashvattha/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "postgres connection string (empty runs the in-memory store)")

	_ = viper.BindPFlag("verbose", rootCmd.PersistentFlags().Lookup("verbose"))

	rootCmd.AddCommand(versionCmd)
}

// initConfig reads in config file and ENV variables
func initConfig() {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err != nil {
			fmt.Fprintf(os.Stderr, "Error finding home directory: %v\n", err)
			return
		}
		viper.AddConfigPath(home + "/.ashvattha")
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
	}

	// Read in environment variables that match ASHVATTHA_*
	viper.SetEnvPrefix("ASHVATTHA")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err == nil && verbose {
		fmt.Fprintf(os.Stderr, "Using config file: %s\n", viper.ConfigFileUsed())
	}
}

// loadConfig resolves the effective configuration: defaults, then the
// config file, then environment variables, then flags.
func loadConfig() (*model.Config, error) {
	cfg := model.DefaultConfig()
	if err := viper.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if v := os.Getenv("ASHVATTHA_DATABASE_URL"); v != "" {
		cfg.Database.URL = v
	}
	if v := os.Getenv("ASHVATTHA_HTTP_ADDR"); v != "" {
		cfg.HTTP.Addr = v
	}
	if v := os.Getenv("OPENAI_API_KEY"); v != "" && cfg.Source.LLM.APIKey == "" {
		cfg.Source.LLM.APIKey = v
	}
	if dbURL != "" {
		cfg.Database.URL = dbURL
	}
	return cfg, nil
}

// buildLogger returns the process logger. Verbose mode switches to the
// human-readable development encoder at debug level.
func buildLogger() (*zap.Logger, error) {
	if verbose {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}

// openStore selects the backend: postgres when a URL is configured
// (running pending migrations first), the in-memory store otherwise.
func openStore(ctx context.Context, cfg *model.Config, log *zap.Logger) (store.Store, func(), error) {
	if cfg.Database.URL == "" {
		log.Info("using in-memory store; state is lost on exit")
		m := store.NewMemory()
		return m, func() { _ = m.Close() }, nil
	}

	if err := postgres.Migrate(cfg.Database.URL); err != nil {
		return nil, nil, fmt.Errorf("migrate database: %w", err)
	}
	pg, err := postgres.Open(ctx, cfg.Database.URL, cfg.Database.MaxConns)
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	return pg, func() { _ = pg.Close() }, nil
}

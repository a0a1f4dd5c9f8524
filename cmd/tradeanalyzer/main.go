// tradeanalyzer is an interactive CLI for bilateral trade statistics,
// answering ranked partner and time-series questions from either a local
// harmonized bulk dataset or the UN Comtrade API.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/config"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/criteria"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/logger"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/model"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/prompt"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/providers"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/providers/bulk"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/providers/comtrade"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/reference"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/report"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/store"
	"github.com/Moamen-Abdelkawy/InternationalTradeAnalyzer/internal/store/sqlite"
)

// Build-time variables (set via -ldflags).
var (
	version = "dev"
	commit  = "unknown"
)

var cfg *config.Config

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "tradeanalyzer",
	Short: "Interactive bilateral trade statistics analyzer",
	Long: `tradeanalyzer answers bilateral trade questions interactively:
which partners matter most for a reporter and product set, or how a
single partner relationship evolved over time. Data comes from a local
harmonized bulk dataset or the UN Comtrade API.`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		configFile, _ := cmd.Flags().GetString("config")
		loaded, err := config.Load(configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if level, _ := cmd.Flags().GetString("log-level"); level != "" {
			loaded.LogLevel = level
		}
		logger.Init(loaded.LogLevel)
		cfg = loaded
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "config file path (YAML, optional)")
	rootCmd.PersistentFlags().String("log-level", "", "log level override (debug, info, warn, error)")

	rootCmd.AddCommand(versionCmd)
	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(resolveCmd)
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("tradeanalyzer %s (%s)\n", version, commit)
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Start an interactive analysis session",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := reference.LoadCSV(cfg.CountryCodes, cfg.ProductCodes)
		if err != nil {
			return fmt.Errorf("failed to load reference data: %w", err)
		}

		credentials, err := config.LoadCredentials(cfg.CredentialsFile)
		if err != nil {
			return fmt.Errorf("failed to load API credentials: %w", err)
		}

		bulkProvider, err := bulk.New(bulk.Config{
			Dir:         cfg.DatasetDir,
			FilePattern: cfg.BulkFilePattern,
		}, catalog)
		if err != nil {
			return err
		}
		remoteProvider, err := comtrade.New(comtrade.Config{
			BaseURL:         cfg.API.BaseURL,
			APIKeyPrimary:   credentials.PrimaryKey,
			APIKeySecondary: credentials.SecondaryKey,
			MaxRecords:      cfg.API.MaxRecords,
			Timeout:         cfg.API.Timeout(),
		})
		if err != nil {
			return err
		}

		emitter, err := report.NewEmitter(cfg.OutputDir)
		if err != nil {
			return err
		}

		archive, err := openArchive(cfg.ArchiveDB)
		if err != nil {
			return fmt.Errorf("failed to open archive database: %w", err)
		}
		defer archive.Close()

		builder := criteria.NewBuilder(catalog, criteria.Coverage{
			MinYear: cfg.Bulk.MinYear,
			MaxYear: cfg.Bulk.MaxYear,
		})
		session := prompt.NewSession(
			os.Stdin,
			os.Stdout,
			builder,
			catalog,
			map[model.Source]providers.RowProvider{
				model.SourceBulk:   bulkProvider,
				model.SourceRemote: remoteProvider,
			},
			emitter,
			archive,
		)
		return session.Run(cmd.Context())
	},
}

var resolveCmd = &cobra.Command{
	Use:   "resolve [country]",
	Short: "Resolve a country name or code against the reference catalog",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog, err := reference.LoadCSV(cfg.CountryCodes, cfg.ProductCodes)
		if err != nil {
			return fmt.Errorf("failed to load reference data: %w", err)
		}
		match, err := catalog.ResolveCountry(args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\t%s (%.2f)\n", match.Code, match.Name, match.MatchType, match.Confidence)
		return nil
	},
}

func openArchive(path string) (store.Store, error) {
	if path == "" {
		return &store.NopStore{}, nil
	}
	logger.L.Info("archiving results", "db", path)
	return sqlite.New(path)
}

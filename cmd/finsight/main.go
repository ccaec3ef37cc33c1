package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"finsight/internal/capability"
	"finsight/internal/config"
	"finsight/internal/logging"
	"finsight/internal/memory"
	"finsight/internal/workflow"
)

var (
	cfgPath   string
	verbose   bool
	outputDir string
)

var rootCmd = &cobra.Command{
	Use:   "finsight",
	Short: "finsight - multi-agent annual report analysis",
	Long: `finsight analyzes parsed annual reports with a team of cooperating
agents: a task decomposer, per-section agents with specialized sub-agents,
a shared knowledge graph, and a final report generator.

Point it at a directory containing the parsed document (markdown or JSON)
and it produces a structured analysis summary, a knowledge graph export,
and resumable checkpoints.`,
	SilenceUsage: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return logging.Init(logging.Options{
			Level:   cfg.Logging.Level,
			File:    cfg.Logging.File,
			Verbose: verbose,
		})
	},
}

var analyzeCmd = &cobra.Command{
	Use:   "analyze",
	Short: "Run the full analysis pipeline over the parsed document",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		longTerm, err := memory.OpenLongTerm(cfg.Storage.MemoryDatabase)
		if err != nil {
			return fmt.Errorf("open long-term memory: %w", err)
		}
		defer longTerm.Close()

		orch := workflow.New(cfg, longTerm, capability.Defaults())
		r, err := orch.ProcessDocument(ctx)
		if err != nil {
			return err
		}

		fmt.Println(r.ExecutiveSummary)
		fmt.Printf("\nResults written to %s\n", cfg.Storage.OutputDir)
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Regenerate the final report from the current state",
	Long: `Rebuilds the analysis summary from the saved knowledge graph and the
most recent run state without reprocessing document chunks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		orch := workflow.New(cfg, nil, capability.Defaults())
		if err := orch.Graph().Load(); err != nil {
			return fmt.Errorf("load knowledge graph: %w", err)
		}
		r, err := orch.GenerateReport()
		if err != nil {
			return err
		}

		fmt.Println(r.ExecutiveSummary)
		return nil
	},
}

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show knowledge graph statistics from the last run",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		orch := workflow.New(cfg, nil, capability.Defaults())
		if err := orch.Graph().Load(); err != nil {
			return fmt.Errorf("load knowledge graph: %w", err)
		}

		stats := orch.Graph().SummaryStats()
		fmt.Printf("Entities:      %d\n", stats.TotalEntities)
		fmt.Printf("Relationships: %d\n", stats.TotalRelationships)
		fmt.Printf("Avg degree:    %.2f\n", stats.AvgDegree)
		fmt.Printf("Components:    %d\n", stats.ConnectedComponents)
		fmt.Printf("Density:       %.4f\n", stats.Density)
		for entityType, count := range stats.EntityTypes {
			fmt.Printf("  %s: %d\n", entityType, count)
		}
		return nil
	},
}

func loadConfig() (config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return config.Config{}, err
	}
	if outputDir != "" {
		cfg.Storage.OutputDir = outputDir
	}
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return *cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "path to config file (YAML)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")
	rootCmd.PersistentFlags().StringVarP(&outputDir, "output", "o", "", "override output directory")

	rootCmd.AddCommand(analyzeCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(statsCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

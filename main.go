package main

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

// Color definitions for terminal output
var (
	successColor = color.New(color.FgGreen, color.Bold)
	errorColor   = color.New(color.FgRed, color.Bold)
	infoColor    = color.New(color.FgCyan)
	warningColor = color.New(color.FgYellow)
	headerColor  = color.New(color.FgMagenta, color.Bold)
)

func main() {
	log.SetFlags(log.LstdFlags)

	var modeFlag string
	var backlogFlag string
	var historicalFlag string
	var outputFlag string
	var scheduleFlag string
	var limitFlag int

	var rootCmd = &cobra.Command{
		Use:   "investbot",
		Short: "Evaluate user-story quality with the INVEST checklist and estimate effort",
		Long: `investbot reads user stories (single stories or Azure DevOps CSV exports),
scores each one against the six INVEST criteria, and produces two effort
estimates: one from an external language model and one from a linear
regression trained on historical stories.

Evaluation runs in two modes:
- rules: deterministic Spanish-text heuristics, no network required (default)
- external: an LM Studio or Anthropic model evaluates each story, with
  automatic fallback to rules when the model is unreachable`,
	}

	rootCmd.PersistentFlags().StringVarP(&modeFlag, "mode", "m", "", "Evaluation mode: rules or external (overrides config and INVEST_MODE)")

	var evaluateCmd = &cobra.Command{
		Use:   "evaluate [historia]",
		Short: "Evaluate a single user story",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigWithMode(modeFlag)
			return runEvaluate(cfg, args[0])
		},
	}

	var processCmd = &cobra.Command{
		Use:   "process",
		Short: "Evaluate a backlog CSV and export results",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigWithMode(modeFlag)
			if backlogFlag != "" {
				cfg.BacklogPath = backlogFlag
			}
			if historicalFlag != "" {
				cfg.HistoricalPath = historicalFlag
			}
			if outputFlag != "" {
				cfg.OutputPath = outputFlag
			}
			if cfg.BacklogPath == "" {
				return fmt.Errorf("no backlog file: pass --input or set backlog_path")
			}
			return runProcess(cfg)
		},
	}
	processCmd.Flags().StringVarP(&backlogFlag, "input", "i", "", "Backlog CSV file (required unless backlog_path is configured)")
	processCmd.Flags().StringVar(&historicalFlag, "historical", "", "Historical stories CSV for model training and examples")
	processCmd.Flags().StringVarP(&outputFlag, "output", "o", "", "Results CSV path")

	var trainCmd = &cobra.Command{
		Use:   "train",
		Short: "Train the regression estimator from historical stories",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigWithMode(modeFlag)
			if historicalFlag != "" {
				cfg.HistoricalPath = historicalFlag
			}
			if cfg.HistoricalPath == "" {
				return fmt.Errorf("no historical file: pass --historical or set historical_path")
			}
			return runTrain(cfg)
		},
	}
	trainCmd.Flags().StringVar(&historicalFlag, "historical", "", "Historical stories CSV (required unless historical_path is configured)")

	var summaryCmd = &cobra.Command{
		Use:   "summary",
		Short: "Show recent runs and the latest run's sprint rollups",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigWithMode(modeFlag)
			return runSummary(cfg, limitFlag)
		},
	}
	summaryCmd.Flags().IntVarP(&limitFlag, "limit", "n", 10, "Number of runs to show")

	var watchCmd = &cobra.Command{
		Use:   "watch",
		Short: "Re-run backlog evaluation on a cron schedule",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := loadConfigWithMode(modeFlag)
			if scheduleFlag != "" {
				cfg.WatchSchedule = scheduleFlag
			}
			if backlogFlag != "" {
				cfg.BacklogPath = backlogFlag
			}
			if !StartWatchScheduler(cfg, func() error { return runProcess(cfg) }) {
				return fmt.Errorf("scheduler did not start")
			}
			select {}
		},
	}
	watchCmd.Flags().StringVar(&scheduleFlag, "schedule", "", "Cron expression (overrides watch_schedule)")
	watchCmd.Flags().StringVarP(&backlogFlag, "input", "i", "", "Backlog CSV file to re-evaluate")

	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(processCmd)
	rootCmd.AddCommand(trainCmd)
	rootCmd.AddCommand(summaryCmd)
	rootCmd.AddCommand(watchCmd)

	if err := rootCmd.Execute(); err != nil {
		errorColor.Println("Error:", err)
		os.Exit(1)
	}
}

func loadConfigWithMode(modeFlag string) Config {
	cfg := LoadConfig()
	if modeFlag != "" {
		cfg.Mode = NormalizeMode(modeFlag)
	}
	return cfg
}

// loadHistorical reads the configured historical CSV, tolerating an
// unset path. A set-but-unreadable path is an error: silently training
// on nothing would be worse than failing.
func loadHistorical(cfg Config) ([]HistoricalStory, error) {
	if cfg.HistoricalPath == "" {
		return nil, nil
	}
	rows, err := LoadHistorical(cfg.HistoricalPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", cfg.HistoricalPath, err)
	}
	log.Printf("Loaded %d historical stories from %s", len(rows), cfg.HistoricalPath)
	return rows, nil
}

// buildEstimator restores a previously trained model from the database
// when one exists, otherwise trains from the historical rows if enough
// are available. Either way callers get a usable estimator: without a
// model it answers with the heuristic.
func buildEstimator(db *sql.DB, historical []HistoricalStory) *TimeEstimator {
	estimator := NewTimeEstimator()

	blob, err := LoadModelState(db)
	if err != nil {
		log.Printf("Error loading model state: %v", err)
	} else if blob != nil {
		if err := estimator.RestoreState(blob); err != nil {
			log.Printf("Stored model state unusable: %v", err)
		} else {
			log.Printf("Restored trained regression model")
		}
	}

	if !estimator.Trained() && len(historical) > 0 {
		metrics, err := estimator.Train(historical)
		if err != nil {
			log.Printf("Training skipped: %v", err)
		} else {
			log.Printf("Trained regression model on %d stories (test MAE %.2f)", metrics.TrainingSamples, metrics.TestMAE)
			if blob, err := estimator.MarshalState(); err == nil {
				if err := SaveModelState(db, blob); err != nil {
					log.Printf("Error saving model state: %v", err)
				}
			}
		}
	}
	return estimator
}

func buildAgent(cfg Config, historical []HistoricalStory) *Agent {
	if cfg.Mode != ModeExternal {
		return NewAgent(ModeRules, nil)
	}
	return NewAgent(ModeExternal, NewModelClient(cfg, historical))
}

func runEvaluate(cfg Config, storyText string) error {
	db, err := InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	historical, err := loadHistorical(cfg)
	if err != nil {
		return err
	}

	agent := buildAgent(cfg, historical)
	pipeline := NewPipeline(agent, buildEstimator(db, historical))
	result := pipeline.ProcessStory(context.Background(), Story{Text: storyText})

	printStoryResult(result)
	return nil
}

func runProcess(cfg Config) error {
	started := time.Now()

	stories, err := LoadBacklog(cfg.BacklogPath)
	if err != nil {
		return fmt.Errorf("loading %s: %w", cfg.BacklogPath, err)
	}
	infoColor.Printf("Loaded %d stories from %s\n", len(stories), cfg.BacklogPath)

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	historical, err := loadHistorical(cfg)
	if err != nil {
		return err
	}

	agent := buildAgent(cfg, historical)
	pipeline := NewPipeline(agent, buildEstimator(db, historical))

	results := pipeline.ProcessBacklog(context.Background(), stories)
	summaries := SummarizeSprints(results)

	if err := ExportResults(results, cfg.OutputPath); err != nil {
		return fmt.Errorf("exporting results: %w", err)
	}
	successColor.Printf("Exported %d results to %s\n", len(results), cfg.OutputPath)

	runID, err := InsertRun(db, PipelineRun{
		StartedAt: started,
		Mode:      agent.Mode(),
		Stories:   len(results),
		Backlog:   cfg.BacklogPath,
	})
	if err != nil {
		log.Printf("Error recording run: %v", err)
	} else if n, err := InsertStoryResults(db, runID, results); err != nil {
		log.Printf("Error recording story results: %v", err)
	} else {
		log.Printf("Recorded run %d with %d story results", runID, n)
	}

	fmt.Println()
	headerColor.Println("Resumen por sprint")
	fmt.Println(FormatSprintSummaries(summaries))

	NewNotifier(cfg).PostRunSummary(results, summaries)
	return nil
}

func runTrain(cfg Config) error {
	historical, err := loadHistorical(cfg)
	if err != nil {
		return err
	}

	estimator := NewTimeEstimator()
	metrics, err := estimator.Train(historical)
	if err != nil {
		return fmt.Errorf("training: %w", err)
	}

	db, err := InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	blob, err := estimator.MarshalState()
	if err != nil {
		return err
	}
	if err := SaveModelState(db, blob); err != nil {
		return fmt.Errorf("saving model state: %w", err)
	}

	successColor.Printf("Model trained on %d stories\n", metrics.TrainingSamples)
	fmt.Printf("  MAE    train %.2f / test %.2f horas\n", metrics.TrainMAE, metrics.TestMAE)
	fmt.Printf("  R²     train %.3f / test %.3f\n", metrics.TrainR2, metrics.TestR2)
	fmt.Printf("  Intercepto %.2f\n", metrics.Intercept)
	for _, name := range featureNames {
		fmt.Printf("  Coef %-18s %.3f\n", name, metrics.Coefficients[name])
	}
	return nil
}

func runSummary(cfg Config, limit int) error {
	db, err := InitDB(cfg.DBPath)
	if err != nil {
		return err
	}
	defer db.Close()

	runs, err := ListRuns(db, limit)
	if err != nil {
		return err
	}
	if len(runs) == 0 {
		infoColor.Println("No runs recorded yet")
		return nil
	}

	headerColor.Println("Recent runs")
	for _, run := range runs {
		fmt.Printf("  #%d  %s  mode=%s  %d historias  %s\n",
			run.ID, run.StartedAt.Format("2006-01-02 15:04"), run.Mode, run.Stories, run.Backlog)
	}

	latest := runs[0]
	results, err := LoadStoryResults(db, latest.ID)
	if err != nil {
		return err
	}
	if len(results) == 0 {
		return nil
	}

	headerColor.Printf("\nResumen del run #%d\n", latest.ID)
	fmt.Println(FormatSprintSummaries(SummarizeSprints(results)))

	records := make([]EvaluationRecord, len(results))
	for i, r := range results {
		records[i] = EvaluationRecord{
			ID: r.ID, Text: r.Text, Verdicts: r.Verdicts,
			Suggestions: r.Suggestions, Mode: r.Mode,
		}
	}
	stats, err := NewAgent(ModeRules, nil).Summarize(records)
	if err != nil {
		return err
	}
	headerColor.Println("\nCriterios INVEST")
	for _, c := range CriteriaOrder {
		fmt.Printf("  %-13s %d/%d (%.1f%%)\n",
			c, stats.CriteriaPassCounts[c], stats.TotalStories, stats.CriteriaPercents[c])
	}
	fmt.Printf("  Historias totalmente conformes: %d (%.1f%%)\n",
		stats.FullyCompliant, stats.CompliantPercent)
	return nil
}

func printStoryResult(result StoryResult) {
	headerColor.Printf("Historia %s\n", result.ID)
	fmt.Printf("  %s\n\n", result.Text)

	for _, c := range CriteriaOrder {
		if result.Verdicts[c] {
			successColor.Printf("  ✓ %s\n", c)
		} else {
			errorColor.Printf("  ✗ %s\n", c)
		}
	}

	fmt.Println()
	fmt.Printf("  Score INVEST : %.2f (%s)\n", result.InvestScore, result.Quality)
	fmt.Printf("  Estimación   : %.1f horas (%s)\n", result.External.Hours, result.External.Source)
	fmt.Printf("  Regresión    : %.1f horas (%s)\n", result.Regression.Hours, result.Regression.Source)
	fmt.Printf("  Diferencia   : %.1f horas\n", result.EstimateDiff)
	fmt.Printf("  Modo         : %s\n", result.Mode)

	if len(result.Suggestions) > 0 {
		fmt.Println()
		warningColor.Println("  Sugerencias:")
		for _, s := range result.Suggestions {
			fmt.Printf("   - %s\n", s)
		}
	}

	fmt.Printf("\n  Rol detectado: %s\n", ExtractUserRole(result.Text))
}

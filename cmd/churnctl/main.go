// Command churnctl validates, scans and simulates customer data from the
// terminal using the same model artifacts as the server.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/aysenursarun/ChurnGuard-AI/internal/config"
	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/model"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
)

var version = "dev"

// errRejected is returned when a dataset fails validation. The report has
// already been printed, so main only sets the exit code.
var errRejected = errors.New("dataset rejected")

var (
	headerColor = color.New(color.FgCyan, color.Bold)
	okColor     = color.New(color.FgGreen)
	warnColor   = color.New(color.FgYellow)
	errColor    = color.New(color.FgRed, color.Bold)
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "churnctl",
		Short:         "Churn scoring toolkit",
		Long:          `churnctl checks customer CSVs, scores them against the churn model and runs retention what-ifs`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			if noColor, _ := cmd.Flags().GetBool("no-color"); noColor {
				color.NoColor = true
			}
		},
	}

	root.PersistentFlags().String("model", "", "model artifact path (default $MODEL_PATH or churn_model.json)")
	root.PersistentFlags().String("features", "", "feature schema path; empty uses the schema inside the model")
	root.PersistentFlags().Bool("no-color", false, "disable colored output")

	root.AddCommand(newValidateCmd())
	root.AddCommand(newScanCmd())
	root.AddCommand(newSimulateCmd())
	return root
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		if !errors.Is(err, errRejected) {
			errColor.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

// loadEngine resolves the artifact paths from flags, falling back to the
// server's environment configuration.
func loadEngine(cmd *cobra.Command) (*scoring.Engine, error) {
	modelPath, err := cmd.Flags().GetString("model")
	if err != nil {
		return nil, fmt.Errorf("failed to get model flag: %w", err)
	}
	featuresPath, err := cmd.Flags().GetString("features")
	if err != nil {
		return nil, fmt.Errorf("failed to get features flag: %w", err)
	}

	if modelPath == "" || featuresPath == "" {
		cfg, err := config.FromEnv()
		if err != nil {
			return nil, err
		}
		if modelPath == "" {
			modelPath = cfg.ModelPath
		}
		if featuresPath == "" {
			featuresPath = cfg.FeaturesPath
		}
	}

	artifacts, err := model.Load(modelPath, featuresPath)
	if err != nil {
		return nil, err
	}
	return scoring.NewEngine(artifacts), nil
}

// loadDataset reads and validates a CSV, printing every problem found.
func loadDataset(cmd *cobra.Command, path string) (*dataset.Table, dataset.Report, error) {
	table, err := dataset.ReadCSVFile(path)
	if err != nil {
		return nil, dataset.Report{}, err
	}

	report := dataset.Validate(table, dataset.RequiredColumns)
	printReport(cmd, path, table, report)
	if report.Fatal() {
		return nil, report, errRejected
	}
	return table, report, nil
}

func printReport(cmd *cobra.Command, path string, table *dataset.Table, report dataset.Report) {
	out := cmd.OutOrStdout()
	headerColor.Fprintf(out, "%s: %d rows, %d columns\n", path, table.Len(), len(table.Columns()))

	for _, p := range report.Problems {
		c := warnColor
		if p.Severity == dataset.SeverityFatal {
			c = errColor
		}
		c.Fprintf(out, "  [%s] %s\n", p.Severity, p.Message)
	}

	if report.Fatal() {
		errColor.Fprintln(out, "rejected")
		return
	}
	okColor.Fprintln(out, "accepted")
}

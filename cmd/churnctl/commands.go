package main

import (
	"fmt"
	"math"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/aysenursarun/ChurnGuard-AI/internal/analytics"
	"github.com/aysenursarun/ChurnGuard-AI/internal/dataset"
	"github.com/aysenursarun/ChurnGuard-AI/internal/report"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
)

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate file.csv",
		Short: "Check a customer CSV against the required schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, _, err := loadDataset(cmd, args[0])
			return err
		},
	}
}

func newScanCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scan file.csv",
		Short: "Score every customer and list those at risk",
		Args:  cobra.ExactArgs(1),
		RunE:  runScan,
	}
	cmd.Flags().String("out", "", "write the risk report CSV to this path")
	cmd.Flags().Int("top", 10, "number of at-risk customers to print; 0 prints all")
	return cmd
}

func runScan(cmd *cobra.Command, args []string) error {
	outPath, err := cmd.Flags().GetString("out")
	if err != nil {
		return fmt.Errorf("failed to get out flag: %w", err)
	}
	top, err := cmd.Flags().GetInt("top")
	if err != nil {
		return fmt.Errorf("failed to get top flag: %w", err)
	}

	// The model and the dataset are independent; load them side by side
	var (
		engine *scoring.Engine
		table  *dataset.Table
		g      errgroup.Group
	)
	g.Go(func() error {
		var err error
		engine, err = loadEngine(cmd)
		return err
	})
	g.Go(func() error {
		var err error
		table, _, err = loadDataset(cmd, args[0])
		return err
	})
	if err := g.Wait(); err != nil {
		return err
	}

	scan, err := engine.ScanTable(table)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	atRisk := scan.AtRisk(report.RiskThreshold)
	headerColor.Fprintf(out, "scored %d, at risk %d, skipped %d\n", len(scan.Scores), len(atRisk), len(scan.Failures))
	for _, f := range scan.Failures {
		warnColor.Fprintf(out, "  skipped: %v\n", f)
	}

	shown := atRisk
	if top > 0 && len(shown) > top {
		shown = shown[:top]
	}
	if len(shown) > 0 {
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ROW\tCUSTOMER\tRISK")
		for _, s := range shown {
			fmt.Fprintf(tw, "%d\t%s\t%.1f%%\n", s.Row+1, s.CustomerID, s.Probability*100)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if outPath == "" {
		return nil
	}
	f, err := os.Create(outPath)
	if err != nil {
		return fmt.Errorf("failed to create report: %w", err)
	}
	defer f.Close()

	if err := report.Write(f, report.Build(table, scan)); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	okColor.Fprintf(out, "report written to %s\n", outPath)
	return nil
}

func newSimulateCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "simulate",
		Short: "Score one customer and the preset retention offers",
		Args:  cobra.NoArgs,
		RunE:  runSimulate,
	}
	cmd.Flags().Float64("tenure", 1, "months with the company")
	cmd.Flags().Float64("charges", 70, "monthly charge")
	cmd.Flags().String("contract", "Month-to-month", "contract type")
	cmd.Flags().String("internet", "Fiber optic", "internet service")
	cmd.Flags().String("tech-support", "No", "tech support subscription")
	cmd.Flags().String("payment", "Electronic check", "payment method")
	return cmd
}

func runSimulate(cmd *cobra.Command, _ []string) error {
	flags := cmd.Flags()
	tenure, err := flags.GetFloat64("tenure")
	if err != nil {
		return fmt.Errorf("failed to get tenure flag: %w", err)
	}
	charges, err := flags.GetFloat64("charges")
	if err != nil {
		return fmt.Errorf("failed to get charges flag: %w", err)
	}

	values := map[string]string{}
	for flag, column := range map[string]string{
		"contract":     dataset.ColContract,
		"internet":     dataset.ColInternetService,
		"tech-support": dataset.ColTechSupport,
		"payment":      dataset.ColPaymentMethod,
	} {
		v, err := flags.GetString(flag)
		if err != nil {
			return fmt.Errorf("failed to get %s flag: %w", flag, err)
		}
		values[column] = v
	}

	if !validAmount(tenure) || !validAmount(charges) {
		return fmt.Errorf("tenure and charges must be finite and not negative")
	}

	engine, err := loadEngine(cmd)
	if err != nil {
		return err
	}

	values[dataset.ColTenure] = dataset.FormatFloat(tenure)
	values[dataset.ColMonthlyCharges] = dataset.FormatFloat(charges)
	record := dataset.NewRecord(values)

	sim, err := engine.Simulate(record)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	verdict, c := "stays", okColor
	if sim.Baseline.Churn {
		verdict, c = "churns", errColor
	}
	headerColor.Fprint(out, "baseline: ")
	c.Fprintf(out, "%.1f%% (%s)\n", sim.Baseline.Probability*100, verdict)

	for _, sc := range sim.Scenarios {
		fmt.Fprintf(out, "  %-18s %5.1f%%  %+.1f pts", sc.Name, sc.Result.Probability*100, sc.Delta*100)
		if sc.NewPrice > 0 {
			fmt.Fprintf(out, "  new price $%.2f", sc.NewPrice)
		}
		fmt.Fprintln(out)
	}

	insight := analytics.CustomerInsight(dataset.CustomerFromRecord(record),
		sim.Baseline.Probability, sim.Baseline.Churn, analytics.DefaultBaseline)
	fmt.Fprintf(out, "segment %s, priority %s, CLV $%.2f\n", insight.Segment, insight.Priority, insight.CLV)
	return nil
}

// validAmount rejects negatives, NaN and infinities.
func validAmount(v float64) bool {
	return v >= 0 && !math.IsInf(v, 1)
}

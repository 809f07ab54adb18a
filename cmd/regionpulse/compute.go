package main

import (
	"encoding/json"
	"errors"

	"github.com/spf13/cobra"

	"github.com/bilal/regionpulse/internal/aggregator"
	"github.com/bilal/regionpulse/internal/telemetry"
)

type computeOptions struct {
	datasetPath string
	regions     []string
	threshold   float64
	all         bool
	pretty      bool
}

func newComputeCmd() *cobra.Command {
	opts := &computeOptions{}

	cmd := &cobra.Command{
		Use:   "compute",
		Short: "Compute region statistics once and print the JSON report",
		Example: "  regionpulse compute --dataset telemetry.json --regions us,eu --threshold 180\n" +
			"  regionpulse compute --dataset telemetry.json --all",
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runCompute(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.datasetPath, "dataset", "d", "telemetry.json", "Path to the telemetry JSON array")
	cmd.Flags().StringSliceVarP(&opts.regions, "regions", "r", nil, "Comma-separated regions to report on")
	cmd.Flags().Float64VarP(&opts.threshold, "threshold", "t", aggregator.DefaultThresholdMs, "Latency threshold in ms; records strictly above it are breaches")
	cmd.Flags().BoolVar(&opts.all, "all", false, "Report on every region present in the dataset")
	cmd.Flags().BoolVar(&opts.pretty, "pretty", false, "Indent the JSON output")
	return cmd
}

func runCompute(cmd *cobra.Command, opts *computeOptions) error {
	if opts.all && len(opts.regions) > 0 {
		return errors.New("--all and --regions are mutually exclusive")
	}

	ds, err := telemetry.Load(opts.datasetPath)
	if err != nil {
		return err
	}

	regions := opts.regions
	if opts.all {
		regions = ds.Regions()
	}

	report := aggregator.Compute(ds, regions, opts.threshold)

	enc := json.NewEncoder(cmd.OutOrStdout())
	if opts.pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(report)
}

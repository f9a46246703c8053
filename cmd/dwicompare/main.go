package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"

	"dwicompare/pkg/compare"
	"dwicompare/pkg/config"
	"dwicompare/pkg/nrrd"
	"dwicompare/pkg/visualization"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// run executes one comparison and returns the process exit status
func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("dwicompare", flag.ContinueOnError)
	fs.SetOutput(stdout)
	inputVolume1 := fs.String("inputVolume1", "", "Reference DWI volume (NRRD)")
	inputVolume2 := fs.String("inputVolume2", "", "Converted DWI volume to check (NRRD)")
	configPath := fs.String("config", "dwicompare.yaml", "YAML configuration file")
	diffDir := fs.String("diff-dir", "", "Directory to save difference slices (overrides config)")
	verbose := fs.Bool("verbose", false, "Print progress and pixel statistics")
	if err := fs.Parse(args); err != nil {
		return 1
	}

	if *inputVolume1 == "" || *inputVolume2 == "" {
		fs.Usage()
		return 1
	}

	logger := log.New(stdout, "dwicompare: ", 0)

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		logger.Printf("Failed to load configuration: %v", err)
		return 1
	}
	if *diffDir != "" {
		cfg.Output.DiffDir = *diffDir
	}
	if *verbose {
		cfg.Output.Verbose = true
	}

	progress := func(format string, v ...interface{}) {
		if cfg.Output.Verbose {
			fmt.Fprintf(stdout, format+"\n", v...)
		}
	}

	progress("Loading %s...", *inputVolume1)
	first, err := nrrd.Load(*inputVolume1)
	if err != nil {
		logger.Printf("exception caught: %v", err)
		return 1
	}
	progress("Loading %s...", *inputVolume2)
	second, err := nrrd.Load(*inputVolume2)
	if err != nil {
		logger.Printf("exception caught: %v", err)
		return 1
	}

	progress("Comparing %s volumes with %d components per voxel...", first.Component, first.Components)
	report, err := compare.Run(first, second, cfg.CompareTolerances())
	if report != nil {
		for _, line := range report.Diagnostics {
			fmt.Fprintln(stdout, line)
		}
	}

	var fatal *compare.FatalError
	switch {
	case errors.As(err, &fatal):
		fmt.Fprintln(stdout, fatal)
	case err != nil:
		fmt.Fprintln(stdout, err)
		return 1
	}

	if report.Pixels.Mismatched > 0 {
		progress("Pixel statistics: %d voxels differ, mean |diff| %.6g, max |diff| %.6g",
			report.Pixels.Mismatched, report.Pixels.MeanAbsDiff, report.Pixels.MaxAbsDiff)

		if cfg.Output.DiffDir != "" {
			size := first.Geometry.Region.Size
			viewer := visualization.NewViewer(report.Pixels.DiffMap, size[0], size[1], size[2])
			written, err := viewer.SaveSliceSequence("z", cfg.Output.DiffDir)
			if err != nil {
				logger.Printf("Warning: Failed to save difference slices: %v", err)
			} else {
				progress("Saved %d difference slices to %s", written, cfg.Output.DiffDir)
			}
		}
	}

	if !report.Passed() {
		return 1
	}
	progress("Volumes match.")
	return 0
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasjlepore/trackernorm/pipeline"
)

func main() {
	var (
		inPath    = flag.String("in", "", "Path to input .fit, .tcx or .csv file")
		outDir    = flag.String("out", "", "Output directory")
		format    = flag.String("format", "json", "Sample format: json|csv|parquet")
		overwrite = flag.Bool("overwrite", true, "Allow writing into non-empty output directories")
	)
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s --in session.fit --out outdir [--format json|csv|parquet]\n", filepath.Base(os.Args[0]))
		flag.PrintDefaults()
	}
	flag.Parse()

	if strings.TrimSpace(*inPath) == "" && flag.NArg() == 1 {
		*inPath = flag.Arg(0)
	}
	if strings.TrimSpace(*inPath) == "" {
		flag.Usage()
		os.Exit(2)
	}
	if strings.TrimSpace(*outDir) == "" {
		base := strings.TrimSuffix(filepath.Base(*inPath), filepath.Ext(*inPath))
		*outDir = filepath.Join(".", "exports", base)
	}

	result, err := pipeline.Run(pipeline.Options{
		InputPath: *inPath,
		OutDir:    *outDir,
		Format:    *format,
		Overwrite: *overwrite,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "trackernorm failed: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("trackernorm complete\n")
	fmt.Printf("Source type:   %s\n", result.SourceType)
	fmt.Printf("Output dir:    %s\n", result.OutputDir)
	fmt.Printf("summary.json:  %s\n", result.SummaryPath)
	fmt.Printf("samples:       %s (%d rows)\n", result.SamplesPath, result.SampleCount)

	s := result.Summary
	if s.TotalDistanceKm != nil {
		fmt.Printf("distance:      %.2f km\n", *s.TotalDistanceKm)
	}
	if s.TotalDurationSecs != nil {
		fmt.Printf("duration:      %.2f s\n", *s.TotalDurationSecs)
	}
	if s.AvgHeartRate != nil && s.MaxHeartRate != nil {
		fmt.Printf("heart rate:    avg %d / max %d bpm\n", *s.AvgHeartRate, *s.MaxHeartRate)
	}
}

package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/lucasjlepore/trackernorm/fitdecode"
)

func main() {
	var (
		outPath = flag.String("out", "", "Write messages as JSONL to this file (default stdout)")
		strict  = flag.Bool("strict", false, "Fail on header or file CRC mismatch")
	)

	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "Usage: %s [flags] <path-to-fit-file>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	inputPath := flag.Arg(0)
	data, err := os.ReadFile(inputPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read failed: %v\n", err)
		os.Exit(1)
	}

	decode := fitdecode.Parse
	if *strict {
		decode = fitdecode.Decode
	}
	file, err := decode(data)
	if err != nil {
		fmt.Fprintf(os.Stderr, "decode failed: %v\n", err)
		os.Exit(1)
	}

	lines, err := fitdecode.MarshalJSONL(file.Messages)
	if err != nil {
		fmt.Fprintf(os.Stderr, "encode failed: %v\n", err)
		os.Exit(1)
	}

	report := os.Stdout
	if strings.TrimSpace(*outPath) == "" {
		report = os.Stderr
		if _, err := os.Stdout.Write(lines); err != nil {
			os.Exit(1)
		}
	} else {
		if err := os.MkdirAll(filepath.Dir(*outPath), 0o755); err != nil {
			fmt.Fprintf(os.Stderr, "create output dir: %v\n", err)
			os.Exit(1)
		}
		if err := os.WriteFile(*outPath, lines, 0o644); err != nil {
			fmt.Fprintf(os.Stderr, "write failed: %v\n", err)
			os.Exit(1)
		}
		fmt.Fprintf(report, "Messages:   %s\n", *outPath)
	}

	fmt.Fprintf(report, "Header:     v%d profile %d, %d data bytes\n", file.Header.ProtocolVersion, file.Header.ProfileVersion, file.Header.DataSize)
	fmt.Fprintf(report, "Records:    %d (%d definitions, %d data messages)\n", len(file.Select(fitdecode.MesgRecord)), file.DefinitionCount, len(file.Messages))
	fmt.Fprintf(report, "Sessions:   %d  Laps: %d  Events: %d\n", len(file.Select(fitdecode.MesgSession)), len(file.Select(fitdecode.MesgLap)), len(file.Select(fitdecode.MesgEvent)))
	fmt.Fprintf(report, "CRC valid:  header=%t file=%t intact=%t\n", file.HeaderCRC.Valid, file.FileCRC.Valid, file.Intact())
	if file.LeftoverBytes > 0 {
		fmt.Fprintf(report, "warning:    %d trailing bytes after data section\n", file.LeftoverBytes)
	}
}

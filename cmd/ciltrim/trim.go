package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/fatih/color"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/invoke"
	"ciltrim/internal/output"
	"ciltrim/internal/trim"
)

func cmdTrim(args []string) error {
	fs := flag.NewFlagSet("trim", flag.ExitOnError)
	image := fs.String("image", "", "path to the assembly image")
	stats := fs.String("stats", "", "invocation statistics JSON")
	assembly := fs.String("assembly", "", "assembly name within the statistics")
	level := fs.String("level", "s0", "trim granularity: s0 (class) or s1 (method)")
	deep := fs.Bool("deep", false, "run the transitive reference closure")
	out := fs.String("out", "", "output path (default <image>.<level>[.d])")
	report := fs.String("report", "", "write JSON report to path")
	countOnly := fs.Bool("count-only", false, "measure without mutating")
	strict := fs.Bool("strict", false, "fail on first structural error")
	maxSteps := fs.Int("max-steps", 0, "IL scan loop cap")
	maxPasses := fs.Int("max-passes", 0, "deep closure pass cap")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" {
		return fmt.Errorf("--image is required")
	}
	if *stats == "" {
		return fmt.Errorf("--stats is required")
	}
	if *assembly == "" {
		return fmt.Errorf("--assembly is required")
	}

	var lv trim.Level
	switch *level {
	case "s0":
		lv = trim.LevelClass
	case "s1":
		lv = trim.LevelMethod
	default:
		return fmt.Errorf("--level must be s0 or s1, got %q", *level)
	}

	opts := cilfmt.Options{
		Mode:      cilfmt.ModeBestEffort,
		MaxSteps:  *maxSteps,
		MaxPasses: *maxPasses,
	}
	if *strict {
		opts.Mode = cilfmt.ModeStrict
	}

	set, err := invoke.LoadStatsFile(*stats, *assembly)
	if err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "invoked methods: %d\n", set.Len())

	data, err := os.ReadFile(*image)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	run, err := trim.NewRun(data, set, opts)
	if err != nil {
		return err
	}
	run.CountOnly = *countOnly
	if err := run.Execute(lv, *deep); err != nil {
		return err
	}
	rep := run.Report(lv, *deep)

	printSummary(rep, *countOnly)

	if *report != "" {
		if err := output.WriteTrimReport(*report, rep); err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "wrote %s\n", *report)
	}

	if *countOnly {
		return nil
	}
	dest := *out
	if dest == "" {
		dest = *image + "." + *level
		if *deep {
			dest += ".d"
		}
	}
	if err := output.WriteImage(dest, run.File.Bytes()); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d bytes)\n", dest, run.File.Size())
	return nil
}

func printSummary(rep *trim.Report, countOnly bool) {
	bold := color.New(color.Bold)
	green := color.New(color.FgGreen)
	red := color.New(color.FgRed)
	yellow := color.New(color.FgYellow)

	bold.Printf("trim %s", rep.Level)
	if rep.Deep {
		bold.Printf(" +deep")
	}
	if countOnly {
		yellow.Printf("  (count-only)")
	}
	fmt.Println()

	fmt.Printf("  image:           %d bytes\n", rep.ImageSize)
	green.Printf("  types kept:      %d\n", rep.Stats.TypesKept)
	red.Printf("  types trimmed:   %d\n", rep.Stats.TypesTrimmed)
	green.Printf("  methods kept:    %d\n", rep.Stats.MethodsKept)
	red.Printf("  methods trimmed: %d\n", rep.Stats.MethodsTrimmed)
	fmt.Printf("  method bodies:   %d bytes\n", rep.Stats.MethodBodies)
	fmt.Printf("  signatures:      %d bytes\n", rep.Stats.Signatures)
	fmt.Printf("  row payloads:    %d bytes\n", rep.Stats.RowPayloads)
	fmt.Printf("  strings:         %d bytes\n", rep.Stats.Strings)
	if rep.Deep {
		fmt.Printf("  blobs:           %d bytes\n", rep.Stats.Blobs)
		fmt.Printf("  user strings:    %d bytes\n", rep.Stats.UserStrings)
	}
	if countOnly {
		yellow.Printf("  would clear:     %d bytes\n", rep.Stats.Remaining)
	} else {
		bold.Printf("  cleared:         %d bytes\n", rep.Stats.Cleared)
	}
	if len(rep.Diags) > 0 {
		yellow.Printf("  diagnostics:     %d\n", len(rep.Diags))
	}
}

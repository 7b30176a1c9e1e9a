package main

import (
	"flag"
	"fmt"
	"os"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/invoke"
	"ciltrim/internal/output"
	"ciltrim/internal/refgraph"
	"ciltrim/internal/trim"
)

func cmdGraph(args []string) error {
	fs := flag.NewFlagSet("graph", flag.ExitOnError)
	image := fs.String("image", "", "path to the assembly image")
	stats := fs.String("stats", "", "invocation statistics JSON")
	assembly := fs.String("assembly", "", "assembly name within the statistics")
	level := fs.String("level", "s0", "trim granularity: s0 or s1")
	out := fs.String("out", "refgraph.dot", "output DOT path")
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

	set, err := invoke.LoadStatsFile(*stats, *assembly)
	if err != nil {
		return err
	}

	data, err := os.ReadFile(*image)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}

	// The reference graph is the deep closure's edge list; run the
	// closure in counting mode so the image is left untouched.
	opts := cilfmt.Options{Mode: cilfmt.ModeBestEffort, MaxPasses: *maxPasses}
	run, err := trim.NewRun(data, set, opts)
	if err != nil {
		return err
	}
	run.CountOnly = true
	run.CaptureEdges = true
	if err := run.Execute(lv, true); err != nil {
		return err
	}

	g := refgraph.Build(run.Meta, run.Edges)
	if err := output.WriteGraphDOT(*out, g, "ciltrim reference graph"); err != nil {
		return err
	}
	fmt.Fprintf(os.Stderr, "wrote %s (%d nodes, %d edges)\n", *out, len(g.Nodes), len(g.Edges))
	return nil
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/metadata"
	"ciltrim/internal/pefile"
)

func cmdScan(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)
	image := fs.String("image", "", "path to the assembly image")
	strict := fs.Bool("strict", false, "fail on first structural error")
	jsonOut := fs.Bool("json", false, "output as JSON")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" {
		return fmt.Errorf("--image is required")
	}

	opts := cilfmt.Options{Mode: cilfmt.ModeBestEffort}
	if *strict {
		opts.Mode = cilfmt.ModeStrict
	}

	f, err := pefile.Open(*image)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	fmt.Fprintf(os.Stderr, "PE: %d bytes, %d sections\n", f.Size(), len(f.Sections))

	md, err := metadata.Parse(f, opts)
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			Image  *pefile.File      `json:"image"`
			Tables map[string]uint32 `json:"tables"`
		}{Image: f, Tables: tableCounts(md)})
	}

	fmt.Println("Sections:")
	for _, s := range f.Sections {
		fmt.Printf("  %-8s VA=0x%08x VSize=0x%08x RawOff=0x%08x RawSize=0x%08x\n",
			s.Name, s.VirtualAddress, s.VirtualSize, s.RawOffset, s.RawSize)
	}

	fmt.Printf("\nCLI Header:\n")
	fmt.Printf("  Runtime:     %d.%d\n", f.CLI.MajorRuntime, f.CLI.MinorRuntime)
	fmt.Printf("  Metadata:    RVA=0x%08x Size=%d\n", f.CLI.MetadataRVA, f.CLI.MetadataSize)
	fmt.Printf("  EntryPoint:  0x%08x\n", f.CLI.EntryPointToken)
	fmt.Printf("  Version:     %s\n", f.Version)

	fmt.Printf("\nStreams:\n")
	for _, sh := range f.Streams {
		fmt.Printf("  %-10s Off=0x%08x Size=%d\n", sh.Name, sh.Offset, sh.Size)
	}

	fmt.Printf("\nTables (HeapSizes=%#x):\n", md.Layout.HeapSizes)
	for id := 0; id < metadata.NumTables; id++ {
		if md.Layout.Rows[id] == 0 {
			continue
		}
		fmt.Printf("  %-24s %6d rows x %2d bytes\n",
			metadata.TableName(id), md.Layout.Rows[id], md.Layout.RowSize(id))
	}

	if len(md.Diags) > 0 {
		fmt.Printf("\nDiagnostics: %d\n", len(md.Diags))
		for _, d := range md.Diags {
			fmt.Printf("  %s\n", d)
		}
	}
	return nil
}

func tableCounts(md *metadata.Meta) map[string]uint32 {
	counts := make(map[string]uint32)
	for id := 0; id < metadata.NumTables; id++ {
		if md.Layout.Rows[id] > 0 {
			counts[metadata.TableName(id)] = md.Layout.Rows[id]
		}
	}
	return counts
}

package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strconv"
	"unicode/utf16"

	"ciltrim/internal/cilfmt"
	"ciltrim/internal/metadata"
	"ciltrim/internal/pefile"
)

func cmdStrings(args []string) error {
	fs := flag.NewFlagSet("strings", flag.ExitOnError)
	image := fs.String("image", "", "path to the assembly image")
	heap := fs.String("heap", "strings", "which heap: strings or us")
	maxLen := fs.Int("max-len", 120, "max display length per string (0 = unlimited)")
	jsonOut := fs.Bool("json", false, "output as JSON lines")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if *image == "" {
		return fmt.Errorf("--image is required")
	}

	f, err := pefile.Open(*image)
	if err != nil {
		return fmt.Errorf("open: %w", err)
	}
	md, err := metadata.Parse(f, cilfmt.Options{Mode: cilfmt.ModeBestEffort})
	if err != nil {
		return fmt.Errorf("metadata: %w", err)
	}

	type entry struct {
		Offset uint32 `json:"offset"`
		Length uint32 `json:"length"`
		Text   string `json:"text"`
	}
	var entries []entry

	switch *heap {
	case "strings":
		md.Strings.ForEachString(func(off, length uint32) {
			entries = append(entries, entry{off, length, md.Strings.String(off)})
		})
	case "us":
		md.US.ForEachBlob(func(off uint32, hdr, n int) {
			data := md.US.BlobData(off)
			entries = append(entries, entry{off, uint32(n), decodeUTF16(data)})
		})
	default:
		return fmt.Errorf("--heap must be strings or us, got %q", *heap)
	}

	if *jsonOut {
		enc := json.NewEncoder(os.Stdout)
		for _, e := range entries {
			if err := enc.Encode(e); err != nil {
				return err
			}
		}
		return nil
	}

	for _, e := range entries {
		text := strconv.Quote(e.Text)
		if *maxLen > 0 && len(text) > *maxLen {
			text = text[:*maxLen-3] + "..."
		}
		fmt.Printf("0x%06x %5d  %s\n", e.Offset, e.Length, text)
	}
	fmt.Fprintf(os.Stderr, "%d entries\n", len(entries))
	return nil
}

// decodeUTF16 renders a #US entry's UTF-16LE payload. The trailing
// flag byte of odd-length entries is dropped.
func decodeUTF16(data []byte) string {
	n := len(data) &^ 1
	u16 := make([]uint16, 0, n/2)
	for i := 0; i+1 < n; i += 2 {
		u16 = append(u16, uint16(data[i])|uint16(data[i+1])<<8)
	}
	return string(utf16.Decode(u16))
}

package main

import (
	"fmt"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "scan":
		err = cmdScan(os.Args[2:])
	case "trim":
		err = cmdTrim(os.Args[2:])
	case "graph":
		err = cmdGraph(os.Args[2:])
	case "strings":
		err = cmdStrings(os.Args[2:])
	case "help", "-h", "--help":
		usage()
		os.Exit(0)
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", os.Args[1])
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `ciltrim — CLI assembly reachability trimmer

Overwrites unreachable metadata and IL with zero bytes, preserving
every offset, row count, and index. The output is byte-for-byte
identical to the input outside the cleared ranges.

Usage:
  ciltrim scan    --image <path> [--json]            Print image structure
  ciltrim trim    --image <path> --stats <path> --assembly <name>
                  [--level s0|s1] [--deep] [--out <path>]  Trim unreachable payload
  ciltrim graph   --image <path> --stats <path> --assembly <name>
                  --out <path>                         Export reference graph DOT
  ciltrim strings --image <path> [--heap strings|us]   Dump heap entries

Flags:
  --image <path>     Path to the input assembly image
  --stats <path>     Invocation statistics JSON
  --assembly <name>  Assembly name within the statistics (case-insensitive)
  --level <s0|s1>    Trim granularity: class (s0) or method (s1)
  --deep             Run the transitive reference closure
  --out <path>       Output path (default <image>.<level>[.d])
  --count-only       Measure what would be cleared, mutate nothing
  --strict           Fail on first structural error
  --max-steps <n>    IL scan loop cap
  --max-passes <n>   Deep closure pass cap
`)
}

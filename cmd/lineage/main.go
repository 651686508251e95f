// Command lineage builds, inspects and serves cell-lineage track files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
)

const version = "0.3.0"

// errUsage marks errors that should be followed by the command help.
var errUsage = errors.New("usage")

func main() {
	flag.Usage = func() { printUsage(os.Stderr) }
	flag.Parse()

	if flag.NArg() < 1 {
		printUsage(os.Stderr)
		os.Exit(1)
	}

	if err := run(flag.Arg(0), flag.Args()[1:], os.Stdout); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		if errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "%v\n\n", err)
			printUsage(os.Stderr)
			os.Exit(2)
		}
		log.Fatalf("lineage %s: %v", flag.Arg(0), err)
	}
}

func run(command string, args []string, out io.Writer) error {
	switch command {
	case "ingest":
		return handleIngest(args, out)
	case "summary":
		return handleSummary(args, out)
	case "links":
		return handleLinks(args, out)
	case "trace":
		return handleTrace(args, out)
	case "autolink":
		return handleAutoLink(args, out)
	case "plot":
		return handlePlot(args, out)
	case "report":
		return handleReport(args, out)
	case "save":
		return handleSave(args, out)
	case "load":
		return handleLoad(args, out)
	case "snapshots":
		return handleSnapshots(args, out)
	case "serve":
		return handleServe(args, out)
	case "version":
		fmt.Fprintf(out, "lineage version %s\n", version)
		return nil
	case "help":
		printUsage(out)
		return nil
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, command)
	}
}

func printUsage(w io.Writer) {
	fmt.Fprint(w, `lineage - cell lineage track files

Usage: lineage <command> [options]

Commands:
  ingest     Build a track file from JSON cells and candidate edges
  summary    Print per-frame cell, vertex and edge counts
  links      List orphan and multi-linked cells of a frame
  trace      Print the lineage trails of selected cells
  autolink   Link unresolved candidate edges by optimal assignment
  plot       Render the trails of selected cells to an image
  report     Write an HTML report of lineage events per frame
  save       Store a track file as a snapshot in a database
  load       Restore a snapshot from a database to a track file
  snapshots  List the snapshots in a database
  serve      Serve a track file over HTTP
  version    Show the lineage version
  help       Show this help message

Common Flags:
  --map <file>      Track file (default: lineage.cltm)
  --config <file>   Tuning config JSON (missing file means defaults)
  --debug           Log per-operation detail

Examples:
  lineage ingest --in frames.json --map run1.cltm --autolink
  lineage trace --map run1.cltm --frame 0 --cells 4,7 --ghost 10
  lineage serve --map run1.cltm --db lineage.db --listen :8080
`)
}

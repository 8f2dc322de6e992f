// Command mumble-log is a tool for viewing and analyzing protocol log files.
//
// Log files are written by mumble-client when it runs with the
// -protocol-log flag.
//
// Usage:
//
//	mumble-log <command> [flags] <file.mlog>
//
// Commands:
//
//	view     View log file in human-readable format
//	export   Export log file to JSONL or CSV format
//	filter   Filter log file and write to new file
//	stats    Show statistics about the log file
//
// Examples:
//
//	# View all events
//	mumble-log view client.mlog
//
//	# View only outgoing frames of type Ping
//	mumble-log view --direction out --type ping client.mlog
//
//	# Filter by connection and save to new file
//	mumble-log filter --conn-id abc12345-... -o filtered.mlog client.mlog
//
//	# Show statistics
//	mumble-log stats client.mlog
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/mumble-protocol/mumble-go/cmd/mumble-log/commands"
)

const usage = `mumble-log - protocol log analyzer

Usage:
  mumble-log <command> [flags] <file.mlog>

Commands:
  view     View log file in human-readable format
  export   Export log file to JSONL or CSV format
  filter   Filter log file and write to new file
  stats    Show statistics about the log file

Use "mumble-log <command> -help" for more information about a command.
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	case "view":
		runView(args)
	case "export":
		runExport(args)
	case "filter":
		runFilter(args)
	case "stats":
		runStats(args)
	case "-h", "-help", "--help", "help":
		fmt.Print(usage)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", cmd)
		fmt.Fprint(os.Stderr, usage)
		os.Exit(1)
	}
}

// selection registers the flags shared by view and filter.
type selection struct {
	connID    *string
	timeStart *string
	timeEnd   *string
	layer     *string
	direction *string
	category  *string
	msgType   *string
}

func addSelectionFlags(fs *flag.FlagSet) selection {
	return selection{
		connID:    fs.String("conn-id", "", "Filter by connection ID"),
		timeStart: fs.String("time-start", "", "Filter by start time (RFC3339)"),
		timeEnd:   fs.String("time-end", "", "Filter by end time (RFC3339)"),
		layer:     fs.String("layer", "", "Filter by layer (transport, session)"),
		direction: fs.String("direction", "", "Filter by direction (in, out)"),
		category:  fs.String("category", "", "Filter by category (message, control, state, error)"),
		msgType:   fs.String("type", "", "Filter frames by message type (version, authenticate, ping)"),
	}
}

func (s selection) options() commands.FilterOptions {
	return commands.FilterOptions{
		ConnID:      *s.connID,
		TimeStart:   *s.timeStart,
		TimeEnd:     *s.timeEnd,
		Layer:       *s.layer,
		Direction:   *s.direction,
		Category:    *s.category,
		MessageType: *s.msgType,
	}
}

func parseArgs(fs *flag.FlagSet, args []string) string {
	if err := fs.Parse(args); err != nil {
		os.Exit(1)
	}
	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Error: log file path required")
		fs.Usage()
		os.Exit(1)
	}
	return fs.Arg(0)
}

func usageFor(fs *flag.FlagSet, name, summary string) {
	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "mumble-log %s - %s\n\nUsage:\n  mumble-log %s [flags] <file.mlog>\n\nFlags:\n", name, summary, name)
		fs.PrintDefaults()
	}
}

func fail(err error) {
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}

func runView(args []string) {
	fs := flag.NewFlagSet("view", flag.ExitOnError)
	usageFor(fs, "view", "View log file in human-readable format")
	sel := addSelectionFlags(fs)
	path := parseArgs(fs, args)

	filter, err := commands.BuildFilter(sel.options())
	if err != nil {
		fail(err)
	}
	if err := commands.RunView(path, filter, os.Stdout); err != nil {
		fail(err)
	}
}

func runExport(args []string) {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	usageFor(fs, "export", "Export log file to JSONL or CSV format")
	format := fs.String("format", "jsonl", "Output format (jsonl, csv)")
	output := fs.String("o", "", "Output file (default: stdout)")
	path := parseArgs(fs, args)

	if err := commands.RunExport(path, *format, *output); err != nil {
		fail(err)
	}
}

func runFilter(args []string) {
	fs := flag.NewFlagSet("filter", flag.ExitOnError)
	usageFor(fs, "filter", "Filter log file and write to new file")
	output := fs.String("o", "", "Output file (required)")
	sel := addSelectionFlags(fs)
	path := parseArgs(fs, args)

	if *output == "" {
		fmt.Fprintln(os.Stderr, "Error: output file (-o) required")
		fs.Usage()
		os.Exit(1)
	}

	opts := sel.options()
	opts.Output = *output
	if err := commands.RunFilter(path, opts, os.Stdout); err != nil {
		fail(err)
	}
}

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	usageFor(fs, "stats", "Show statistics about the log file")
	path := parseArgs(fs, args)

	if err := commands.RunStats(path, os.Stdout); err != nil {
		fail(err)
	}
}

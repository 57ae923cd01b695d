// snippetctl is the command line editor for the snippet collection.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"snippetd/internal/config"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// cli carries what every command needs.
type cli struct {
	cfg    *config.Config
	stdout io.Writer
	stderr io.Writer
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("snippetctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to config file")
	fs.Usage = func() { usage(stderr) }
	if err := fs.Parse(args); err != nil {
		return 2
	}

	if fs.NArg() < 1 {
		usage(stderr)
		return 1
	}

	cmd, rest := fs.Arg(0), fs.Args()[1:]
	if cmd == "help" {
		usage(stdout)
		return 0
	}

	cfg, created, err := config.LoadOrCreate(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "Error loading config: %v\n", err)
		return 1
	}
	if created {
		fmt.Fprintf(stderr, "Created default config at %s\n", config.ResolveConfigPath(*configPath))
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stderr, "Invalid config: %v\n", err)
		return 1
	}
	c := &cli{cfg: cfg, stdout: stdout, stderr: stderr}

	switch cmd {
	case "add":
		if len(rest) != 2 {
			fmt.Fprintln(stderr, "Usage: snippetctl add <code> <text>")
			return 1
		}
		err = c.cmdAdd(rest[0], rest[1])
	case "edit":
		if len(rest) != 3 {
			fmt.Fprintln(stderr, "Usage: snippetctl edit <id> <code> <text>")
			return 1
		}
		err = c.cmdEdit(rest[0], rest[1], rest[2])
	case "list":
		term := ""
		if len(rest) > 0 {
			term = rest[0]
		}
		err = c.cmdList(term)
	case "show":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Usage: snippetctl show <id>")
			return 1
		}
		err = c.cmdShow(rest[0])
	case "delete":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Usage: snippetctl delete <id>")
			return 1
		}
		err = c.cmdDelete(rest[0])
	case "try":
		tfs := flag.NewFlagSet("try", flag.ContinueOnError)
		tfs.SetOutput(stderr)
		rich := tfs.Bool("rich", false, "type into a rich document instead of a text area")
		if err := tfs.Parse(rest); err != nil {
			return 2
		}
		if tfs.NArg() != 1 {
			fmt.Fprintln(stderr, "Usage: snippetctl try [-rich] <text>")
			return 1
		}
		err = c.cmdTry(tfs.Arg(0), *rich)
	case "stats":
		err = c.cmdStats()
	case "migrate":
		if len(rest) != 1 {
			fmt.Fprintln(stderr, "Usage: snippetctl migrate status|up|rollback")
			return 1
		}
		err = c.cmdMigrate(rest[0])
	default:
		fmt.Fprintf(stderr, "Unknown command: %s\n", cmd)
		usage(stderr)
		return 1
	}

	if err != nil {
		fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}
	return 0
}

func usage(w io.Writer) {
	fmt.Fprintln(w, `snippetctl - Manage snippetd snippets

Usage: snippetctl [options] <command> [args]

Commands:
  add <code> <text>        Add a snippet
  edit <id> <code> <text>  Replace a snippet's code and text
  list [term]              List snippets, optionally filtered
  show <id>                Show one snippet
  delete <id>              Delete a snippet
  try [-rich] <text>       Type text into a scratch field and show the result
  stats                    Print the daemon's metrics
  migrate status|up|rollback
                           Inspect or change the database schema version
  help                     Show this help message

An <id> may be shortened to any unique prefix.

Options:
  -config <path>  Path to config file (created with defaults if missing)`)
}

// littleapp - chat orchestration service entry point.
package main

import (
	"flag"
	"fmt"
	"io"
	"os"

	"github.com/Bezhuang/my-little-app/internal/version"
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

// command is a subcommand body. It returns the process exit code.
type command func(args []string, out io.Writer) int

var commands = map[string]command{
	"serve":    runServe,
	"migrate":  runMigrate,
	"mcp":      runMCP,
	"token":    runToken,
	"hash-key": runHashKey,
	"version":  runVersion,
}

func run(args []string, out io.Writer) int {
	if len(args) > 0 {
		if cmd, ok := commands[args[0]]; ok {
			return cmd(args[1:], out)
		}
	}

	fs := flag.NewFlagSet("littleapp", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	showVersion := fs.Bool("version", false, "Show version information")
	showHelp := fs.Bool("help", false, "Show help")

	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() > 0 {
		fmt.Fprintf(out, "unknown command %q\n\n", fs.Arg(0)) //nolint:errcheck
		printHelp(out)
		return 2
	}

	if *showVersion {
		return runVersion(nil, out)
	}

	if *showHelp {
		printHelp(out)
		return 0
	}

	// Default: print version
	return runVersion(nil, out)
}

func runVersion(_ []string, out io.Writer) int {
	fmt.Fprintln(out, version.String()) //nolint:errcheck
	return 0
}

func printHelp(out io.Writer) {
	helpText := `littleapp - LLM chat orchestration service

Usage:
  littleapp <command> [options]

Commands:
  serve        Start the HTTP server
  migrate      Apply database migrations
  mcp          Serve the chat tools over MCP (stdio)
  token        Mint a bearer token for a user id
  hash-key     Print the bcrypt hash of an admin key
  version      Show version information

Options:
  --version    Show version information
  --help       Show this help message

Configuration is read from LITTLEAPP_* environment variables; JWT_SECRET
signs bearer tokens.

Examples:
  littleapp migrate
  littleapp serve
  littleapp token --user 42 --name alice
  littleapp mcp --search`
	fmt.Fprintln(out, helpText) //nolint:errcheck
}

// armor converts bytes to dictionary words and back from the command line,
// and publishes dictionaries to the relay's store.
package main

import (
	"errors"
	"fmt"
	"os"

	"word_armor/internal/utils/log"

	"github.com/spf13/pflag"
)

type command struct {
	name    string
	summary string
	run     func(args []string) error
}

var commands = []command{
	{"don", "encode stdin into fragments, one per line", runDon},
	{"doff", "decode fragments read from stdin, one per line", runDoff},
	{"permute", "print the permutation for a seed and date", runPermute},
	{"import-dictionary", "store a word list in mongo under a version", runImportDictionary},
}

func main() {
	if err := run(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	if len(args) == 0 || args[0] == "-h" || args[0] == "--help" || args[0] == "help" {
		printUsage()
		return nil
	}

	if err := log.Configure(log.ProfileRuntime, "warn"); err != nil {
		return err
	}
	defer log.Sync()

	for _, c := range commands {
		if c.name == args[0] {
			return c.run(args[1:])
		}
	}
	printUsage()
	return fmt.Errorf("unknown command %q", args[0])
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: armor <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-18s %s\n", c.name, c.summary)
	}
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Run \"armor <command> --help\" for the flags of a command.")
}

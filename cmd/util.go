package cmd

import (
	"io"
	"os"
	"regexp"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"golang.org/x/term"

	"thoreinstein.com/shist/pkg/errors"
)

// negativeArg matches arguments such as -1 or -4:-2 that are selectors,
// not flags.
var negativeArg = regexp.MustCompile(`^-[0-9]`)

const argEscape = "\x00"

// parseSelectorArgs parses flags from args while keeping negative
// selectors positional. Global flags are accepted and applied.
func parseSelectorArgs(cmd *cobra.Command, fs *pflag.FlagSet, args []string) ([]string, bool, error) {
	var help, verboseFlag bool
	var configFlag string
	fs.BoolVarP(&help, "help", "h", false, "help for "+cmd.Name())
	fs.BoolVarP(&verboseFlag, "verbose", "v", false, "verbose output")
	fs.StringVarP(&configFlag, "config", "C", "", "config file")
	fs.SetOutput(io.Discard)

	escaped := make([]string, len(args))
	for i, a := range args {
		if negativeArg.MatchString(a) {
			a = argEscape + a
		}
		escaped[i] = a
	}
	if err := fs.Parse(escaped); err != nil {
		return nil, false, errors.Wrap(err, cmd.CommandPath())
	}
	if verboseFlag {
		verbose = true
	}

	rest := fs.Args()
	for i, a := range rest {
		rest[i] = strings.TrimPrefix(a, argEscape)
	}
	return rest, help, nil
}

// here labels where a session was started.
func here() string {
	host, _ := os.Hostname()
	tty := os.Getenv("TTY")
	if tty == "" {
		return host
	}
	return host + ":" + tty
}

// terminalWidth returns the width to truncate output lines to, or 0 when
// out is not an interactive terminal.
func terminalWidth(out io.Writer) int {
	f, ok := out.(*os.File)
	if !ok || !term.IsTerminal(int(f.Fd())) {
		return 0
	}
	width, _, err := term.GetSize(int(f.Fd()))
	if err != nil {
		return 0
	}
	return width
}

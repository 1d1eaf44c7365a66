package ui

import (
	"bytes"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	"thoreinstein.com/shist/pkg/errors"
	"thoreinstein.com/shist/pkg/history"
)

var (
	// ErrCancelled is returned when the user cancels the selection
	ErrCancelled = errors.New("selection cancelled")
	// ErrNoCommands is returned when there is nothing to select from
	ErrNoCommands = errors.New("no commands to select from")
)

// SelectCommand prompts the user to pick one of matches using fzf, newest
// at the top.
func SelectCommand(matches []history.Match) (*history.Match, error) {
	if len(matches) == 0 {
		return nil, ErrNoCommands
	}

	fzfPath, err := exec.LookPath("fzf")
	if err != nil {
		return nil, errors.Wrap(err, "fzf not found in PATH")
	}

	// #nosec G204 - fzf binary is looked up in PATH, no user-controlled arguments are passed directly
	cmd := exec.Command(fzfPath,
		"--height=40%",
		"--layout=reverse",
		"--delimiter=\t",
		"--with-nth=2..",
		"--no-sort",
		"--cycle",
	)
	cmd.Stdin = selectionInput(matches)
	cmd.Stderr = os.Stderr // fzf draws its UI on stderr
	var output bytes.Buffer
	cmd.Stdout = &output

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		// fzf exits 130 on ESC, Ctrl-C and Ctrl-G
		if errors.As(err, &exitErr) && exitErr.ExitCode() == 130 {
			return nil, ErrCancelled
		}
		return nil, errors.Wrap(err, "fzf failed")
	}

	return parseSelection(matches, output.String())
}

// selectionInput lists matches newest first as "position<TAB>command",
// with embedded newlines flattened so each command is one fzf line.
func selectionInput(matches []history.Match) *bytes.Buffer {
	var input bytes.Buffer
	for i := len(matches) - 1; i >= 0; i-- {
		line := strings.ReplaceAll(matches[i].Record.Input, "\n", " ")
		fmt.Fprintf(&input, "%d\t%s\n", i, line)
	}
	return &input
}

// parseSelection maps fzf's output line back to its match.
func parseSelection(matches []history.Match, output string) (*history.Match, error) {
	line := strings.TrimSpace(output)
	if line == "" {
		return nil, ErrCancelled
	}

	pos, _, ok := strings.Cut(line, "\t")
	if !ok {
		return nil, errors.Newf("invalid selection output: %q", line)
	}
	i, err := strconv.Atoi(pos)
	if err != nil || i < 0 || i >= len(matches) {
		return nil, errors.Newf("invalid selection output: %q", line)
	}
	return &matches[i], nil
}

package ui

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"thoreinstein.com/shist/pkg/errors"
	"thoreinstein.com/shist/pkg/history"
)

func testMatches() []history.Match {
	inputs := []string{"ls", "for x in a b\ndo echo $x\ndone", "git status"}
	matches := make([]history.Match, len(inputs))
	for i, in := range inputs {
		matches[i] = history.Match{
			Session: "s1",
			Entry:   history.Entry{Index: i, Record: history.Record{Input: in}},
		}
	}
	return matches
}

func TestSelectCommand_Empty(t *testing.T) {
	_, err := SelectCommand(nil)
	assert.True(t, errors.Is(err, ErrNoCommands))
}

func TestSelectionInput(t *testing.T) {
	got := selectionInput(testMatches()).String()
	assert.Equal(t, "2\tgit status\n1\tfor x in a b do echo $x done\n0\tls\n", got)
}

func TestParseSelection(t *testing.T) {
	matches := testMatches()

	m, err := parseSelection(matches, "1\tfor x in a b do echo $x done\n")
	require.NoError(t, err)
	assert.Equal(t, 1, m.Index)
	assert.Contains(t, m.Record.Input, "\n")

	_, err = parseSelection(matches, "\n")
	assert.True(t, errors.Is(err, ErrCancelled))

	for _, bad := range []string{"no tab here", "x\tls", "7\tls", "-1\tls"} {
		_, err = parseSelection(matches, bad)
		assert.Error(t, err, bad)
	}
}

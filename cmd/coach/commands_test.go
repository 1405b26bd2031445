package main

import (
	"bufio"
	"bytes"
	"strings"
	"testing"

	"dealer_coach_backend/internal/coaching/approval"
	"dealer_coach_backend/internal/coaching/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newConsole(input string) (*console, *bytes.Buffer) {
	out := &bytes.Buffer{}
	return &console{in: bufio.NewReader(strings.NewReader(input)), out: out, operator: "op"}, out
}

func TestParseActions(t *testing.T) {
	c, _ := newConsole("")

	req, ok, err := c.parse("a")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, string(approval.ActionApprove), req.Type)

	req, ok, _ = c.parse("r friendly")
	assert.True(t, ok)
	assert.Equal(t, string(approval.ActionRegenerate), req.Type)
	assert.Equal(t, "friendly", req.Style)

	req, ok, _ = c.parse("g low medium")
	assert.True(t, ok)
	assert.Equal(t, []string{"low", "medium"}, req.Levels)

	_, ok, _ = c.parse("q")
	assert.False(t, ok)
}

func TestParseEditReadsUntilDot(t *testing.T) {
	c, _ := newConsole("Hello team\nKeep going\n.\nignored\n")
	req, ok, err := c.parse("e")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, string(approval.ActionEdit), req.Type)
	assert.Equal(t, "Hello team\nKeep going", req.Text)
}

func TestParseSelection(t *testing.T) {
	ids, err := parseSelection("1, 3 4")
	require.NoError(t, err)
	assert.Equal(t, []int{1, 3, 4}, ids)

	ids, err = parseSelection("")
	require.NoError(t, err)
	assert.Empty(t, ids)

	_, err = parseSelection("1,x")
	assert.Error(t, err)
	_, err = parseSelection("0")
	assert.Error(t, err)
}

func TestRenderResultsCountsFailures(t *testing.T) {
	var buf bytes.Buffer
	renderResults(&buf, []domain.DispatchResult{
		{Recipient: "D100", Success: true},
		{Recipient: "D101", Level: domain.LevelLow, Detail: "timeout"},
	})
	out := buf.String()
	assert.Contains(t, out, "D101")
	assert.Contains(t, out, "timeout")
	assert.Contains(t, strings.ToLower(out), "1 failed")
}

package main

import (
	"bytes"
	"testing"
	"time"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/cardscope/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"run", "identify", "describe", "export", "runs", "catalog", "serve"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "cardscope", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
	assert.True(t, rootCmd.SilenceUsage)
}

func TestRunCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "products", "characteristics"} {
		require.NotNil(t, runCmd.Flags().Lookup(name), "run command should have --%s flag", name)
	}
	assert.Equal(t, "0", runCmd.Flags().Lookup("user").DefValue)
}

func TestIdentifyCommands_RequireFlags(t *testing.T) {
	url := identifyCmd.Flags().Lookup("url")
	require.NotNil(t, url)
	assert.Equal(t, []string{"true"}, url.Annotations[cobra.BashCompOneRequiredFlag])

	name := describeCmd.Flags().Lookup("name")
	require.NotNil(t, name)
	assert.Equal(t, []string{"true"}, name.Annotations[cobra.BashCompOneRequiredFlag])
}

func TestServeCommand_Flags(t *testing.T) {
	flag := serveCmd.Flags().Lookup("port")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestExportCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "products", "characteristics", "dir"} {
		require.NotNil(t, exportCmd.Flags().Lookup(name), "export command should have --%s flag", name)
	}
}

func TestCatalogCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range catalogCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"add-bank", "add-product", "add-characteristic", "seed"} {
		assert.True(t, names[name], "expected catalog subcommand %q not found", name)
	}
}

func TestRunsCommand_Flags(t *testing.T) {
	for _, name := range []string{"user", "status", "limit"} {
		require.NotNil(t, runsCmd.Flags().Lookup(name), "runs command should have --%s flag", name)
	}
	assert.Equal(t, "20", runsCmd.Flags().Lookup("limit").DefValue)

	require.Len(t, runsCmd.Commands(), 1)
	assert.Equal(t, "show", runsCmd.Commands()[0].Name())
}

func TestPrintRunLog(t *testing.T) {
	var buf bytes.Buffer
	printRunLog(&buf, &model.RunLog{ID: 4, Tag: "abc", Status: model.RunStatusOK, TokensUsed: 120, Message: "extracted 2 of 2 products, 120 tokens"})

	out := buf.String()
	assert.Contains(t, out, "run 4 (abc)")
	assert.Contains(t, out, "status:  ok")
	assert.Contains(t, out, "tokens:  120")
	assert.Contains(t, out, "message: extracted 2 of 2 products")
}

func TestPrintRunLog_NoMessage(t *testing.T) {
	var buf bytes.Buffer
	printRunLog(&buf, &model.RunLog{ID: 1, Status: model.RunStatusNew})
	assert.NotContains(t, buf.String(), "message:")
}

func TestFormatRunsList(t *testing.T) {
	var buf bytes.Buffer
	formatRunsList(&buf, []model.RunLog{
		{ID: 2, Status: model.RunStatusError, TokensUsed: 10, Message: "context canceled", UpdatedAt: time.Now()},
		{ID: 1, Status: model.RunStatusOK, TokensUsed: 300, UpdatedAt: time.Now()},
	})

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 3)
	assert.Contains(t, string(lines[0]), "STATUS")
	assert.Contains(t, string(lines[1]), "error")
	assert.Contains(t, string(lines[1]), "context canceled")
	assert.Contains(t, string(lines[2]), "300")
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "абвг...", truncate("абвгдежзий", 7))
}

package cmd

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-interviewer/internal/types"
)

func TestRootCommand(t *testing.T) {
	names := map[string]bool{}
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["serve"])
	assert.True(t, names["ingest"])
	assert.True(t, names["chat"])
	assert.True(t, names["init-config"])

	flag := rootCmd.PersistentFlags().Lookup("config")
	require.NotNil(t, flag)
	assert.Equal(t, "c", flag.Shorthand)
}

func TestIngestFlags(t *testing.T) {
	require.NoError(t, ingestCmd.ParseFlags([]string{"--source", "muse", "-p", "4"}))
	assert.Equal(t, "muse", ingestSource)
	assert.Equal(t, 4, ingestPage)
}

func TestPrintSummary(t *testing.T) {
	var buf bytes.Buffer
	printSummary(&buf, &types.InterviewSummary{
		Summary:    "Solid backend engineer.",
		Strengths:  []string{"Go"},
		Weaknesses: []string{"SQL tuning"},
	})
	out := buf.String()
	assert.Contains(t, out, "Solid backend engineer.")
	assert.Contains(t, out, "  + Go")
	assert.Contains(t, out, "  - SQL tuning")

	buf.Reset()
	printSummary(&buf, &types.InterviewSummary{Summary: "Short."})
	assert.NotContains(t, buf.String(), "Strengths")
}

func TestInitConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	var out bytes.Buffer
	initConfigCmd.SetOut(&out)

	require.NoError(t, initConfigCmd.RunE(initConfigCmd, []string{path}))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(data), "max_questions: 5")
	assert.Contains(t, out.String(), path)

	// 已存在的文件不覆盖
	assert.Error(t, initConfigCmd.RunE(initConfigCmd, []string{path}))
}

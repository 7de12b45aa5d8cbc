package main

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/amruthm-ignitec/mtf-backend/internal/model"
)

func TestRootCommand_HasSubcommands(t *testing.T) {
	cmds := rootCmd.Commands()

	names := make(map[string]bool)
	for _, c := range cmds {
		names[c.Name()] = true
	}

	expected := []string{"migrate", "process", "worker", "donor", "predict", "approve", "anchors"}
	for _, name := range expected {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestRootCommand_Metadata(t *testing.T) {
	assert.Equal(t, "mtf-backend", rootCmd.Use)
	assert.NotEmpty(t, rootCmd.Short)
	assert.NotEmpty(t, rootCmd.Long)
}

func TestProcessCommand_Flags(t *testing.T) {
	flag := processCmd.Flags().Lookup("donor")
	require.NotNil(t, flag, "process command should have --donor flag")

	timeout := processCmd.Flags().Lookup("timeout")
	require.NotNil(t, timeout, "process command should have --timeout flag")
	assert.Equal(t, "15m0s", timeout.DefValue)
}

func TestWorkerCommand_Flags(t *testing.T) {
	flag := workerCmd.Flags().Lookup("document")
	require.NotNil(t, flag, "worker command should have --document flag")
}

func TestPredictCommand_Flags(t *testing.T) {
	flag := predictCmd.Flags().Lookup("threshold")
	require.NotNil(t, flag, "predict command should have --threshold flag")
	assert.Equal(t, "0", flag.DefValue)
}

func TestApproveCommand_Flags(t *testing.T) {
	flag := approveCmd.Flags().Lookup("outcome")
	require.NotNil(t, flag, "approve command should have --outcome flag")
}

func TestAnchorsCommand_HasImport(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range anchorsCmd.Commands() {
		names[c.Name()] = true
	}
	assert.True(t, names["import"])

	flag := anchorsImportCmd.Flags().Lookup("json")
	require.NotNil(t, flag, "anchors import should have --json flag")
}

func TestAnchorImportRow_Parse(t *testing.T) {
	data := `[{
		"donor_id": "MTF-001",
		"outcome": "accepted",
		"parameter_snapshot": {"age": 54, "gender": "M"},
		"embedding": [0.1, 0.2]
	}]`

	var rows []anchorImportRow
	require.NoError(t, json.Unmarshal([]byte(data), &rows))
	require.Len(t, rows, 1)
	assert.Equal(t, model.OutcomeAccepted, rows[0].Outcome)
	assert.Equal(t, 54, *rows[0].Snapshot.Age)
	assert.Len(t, rows[0].Embedding, 2)
}

package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInspectText(t *testing.T) {
	path := balanceFixture(t, t.TempDir())

	out, err := execute(t, "inspect", path)
	require.NoError(t, err)

	assert.Contains(t, out, "Store: balance")
	assert.Contains(t, out, "Current universe: main")
	assert.Contains(t, out, "Value: 20")
	assert.Contains(t, out, "Events: 4")
	assert.Contains(t, out, "* main")
	assert.Contains(t, out, "draft  from main at balance-0002")
	assert.NotContains(t, out, "Events:\n", "events are listed only with --events")
}

func TestInspectTextWithEvents(t *testing.T) {
	path := balanceFixture(t, t.TempDir())

	out, err := execute(t, "inspect", path, "--events")
	require.NoError(t, err)

	assert.Contains(t, out, "\nEvents:\n")
	assert.Contains(t, out, "balance-0004")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "fork")
}

func TestInspectJSON(t *testing.T) {
	path := balanceFixture(t, t.TempDir())

	out, err := execute(t, "inspect", path, "--format", "json")
	require.NoError(t, err)

	var resp struct {
		Status string        `json:"status"`
		Data   InspectResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "balance", resp.Data.StoreKey)
	assert.Equal(t, "main", resp.Data.CurrentUniverse)
	assert.EqualValues(t, 20, resp.Data.Value)
	assert.Len(t, resp.Data.Branches, 2)
	require.Len(t, resp.Data.Events, 4)
	assert.Equal(t, "draft", resp.Data.Events[2].Universe)
	assert.Equal(t, []string{"balance-0002"}, resp.Data.Events[2].ParentIDs)
}

func TestInspectMissingFile(t *testing.T) {
	out, err := execute(t, "inspect", filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, ErrCodeInvalidInput)
}

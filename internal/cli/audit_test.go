package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/causal/internal/causal"
	"github.com/roach88/causal/internal/rules"
)

const balanceRules = "testdata/rules/balance.yaml"

// overdrawnFixture writes a "balance" history whose head is -5.
func overdrawnFixture(t *testing.T, dir string) string {
	t.Helper()
	s := newFixtureStore("balance", 0)
	s.SetWithMeta(10, causal.Meta{ObserverID: "alice"})
	s.SetWithMeta(-5, causal.Meta{ObserverID: "alice"})
	return writeStore(t, dir, s)
}

func auditJSON(t *testing.T, args ...string) (CLIResponse, AuditResult, error) {
	t.Helper()
	out, err := execute(t, append([]string{"audit", "--format", "json"}, args...)...)

	var resp CLIResponse
	require.NoError(t, json.Unmarshal([]byte(out), &resp), out)
	var result AuditResult
	data, merr := json.Marshal(resp.Data)
	require.NoError(t, merr)
	require.NoError(t, json.Unmarshal(data, &result))
	return resp, result, err
}

func storeSummary(t *testing.T, r AuditResult, key string) StoreSummary {
	t.Helper()
	for _, s := range r.Stores {
		if s.Key == key {
			return s
		}
	}
	require.Failf(t, "store missing", "no summary for %s", key)
	return StoreSummary{}
}

func TestAuditRepairsAndReacts(t *testing.T) {
	dir := t.TempDir()
	history := overdrawnFixture(t, dir)
	outDir := filepath.Join(dir, "out")

	resp, result, err := auditJSON(t, balanceRules, history, "--create-missing", "--out", outDir)
	require.NoError(t, err)
	assert.Equal(t, "ok", resp.Status)

	assert.Equal(t, "balance", result.RuleSet)
	assert.Equal(t, 1, result.Counts["violation"])
	assert.Equal(t, 1, result.Counts["repair"])
	assert.GreaterOrEqual(t, result.Counts["reaction"], 1)
	assert.Zero(t, result.Counts["audit-error"])

	balance := storeSummary(t, result, "balance")
	assert.EqualValues(t, 0, balance.Value)
	assert.Equal(t, 1, balance.Added)
	assert.Equal(t, filepath.Join(outDir, "balance.json"), balance.Written)

	ledger := storeSummary(t, result, "ledger")
	require.IsType(t, []any{}, ledger.Value)
	assert.Contains(t, ledger.Value, float64(0))

	// The written history carries the repair event.
	s, err := loadHistory(balance.Written)
	require.NoError(t, err)
	latest, ok := s.Latest()
	require.True(t, ok)
	assert.Equal(t, causal.KindRepair, latest.Kind)
	assert.Equal(t, "law:non-negative", latest.ObserverID)
}

func TestAuditMissingReactionTargetFails(t *testing.T) {
	history := overdrawnFixture(t, t.TempDir())

	resp, result, err := auditJSON(t, balanceRules, history)
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
	assert.Equal(t, "error", resp.Status)
	require.NotNil(t, resp.Error)
	assert.Equal(t, ErrCodeAuditFailed, resp.Error.Code)
	assert.GreaterOrEqual(t, result.Counts["reaction-error"], 1)
}

func TestAuditWithoutRepair(t *testing.T) {
	history := overdrawnFixture(t, t.TempDir())

	_, result, err := auditJSON(t, balanceRules, history, "--create-missing", "--auto-repair=false")
	require.NoError(t, err, "violations alone do not fail the audit")
	assert.Equal(t, 1, result.Counts["violation"])
	assert.EqualValues(t, -5, storeSummary(t, result, "balance").Value)
	assert.Zero(t, storeSummary(t, result, "balance").Added)

	_, _, err = auditJSON(t, balanceRules, history, "--create-missing", "--auto-repair=false", "--strict")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))
}

func TestAuditText(t *testing.T) {
	history := overdrawnFixture(t, t.TempDir())

	out, err := execute(t, "audit", balanceRules, history, "--create-missing")
	require.NoError(t, err)
	assert.Contains(t, out, "Rule-set: balance")
	assert.Contains(t, out, "warn  violation")
	assert.Contains(t, out, "balance/non-negative")
	assert.Contains(t, out, "✓ Audit passed")
}

func TestAuditMetrics(t *testing.T) {
	t.Setenv("CAUSAL_METRICS_ENABLED", "true")
	history := overdrawnFixture(t, t.TempDir())

	_, result, err := auditJSON(t, balanceRules, history, "--create-missing")
	require.NoError(t, err)
	require.NotEmpty(t, result.Metrics)

	var repairs int64
	for _, m := range result.Metrics {
		if m.Type == "repair" && m.Store == "balance" {
			repairs += m.Count
		}
	}
	assert.EqualValues(t, 1, repairs)
}

func TestAuditCommandErrors(t *testing.T) {
	history := overdrawnFixture(t, t.TempDir())

	_, err := execute(t, "audit", "testdata/rules/invalid.yaml", history)
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))

	_, err = execute(t, "audit", balanceRules, filepath.Join(t.TempDir(), "missing.json"))
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
}

func TestReferencedStores(t *testing.T) {
	_, reg, err := rules.LoadAndCompile(balanceRules)
	require.NoError(t, err)
	assert.Equal(t, []string{"balance", "ledger"}, referencedStores(reg))
}

func TestAuditFingerprintMatchesValidate(t *testing.T) {
	history := overdrawnFixture(t, t.TempDir())
	_, audited, err := auditJSON(t, balanceRules, history, "--create-missing")
	require.NoError(t, err)

	out, err := execute(t, "validate", balanceRules, "--format", "json")
	require.NoError(t, err)
	var resp struct {
		Data ValidationResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	assert.Len(t, audited.Fingerprint, 64)
	assert.Equal(t, resp.Data.Fingerprint, audited.Fingerprint)
}

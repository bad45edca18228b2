package observability

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Groups []struct {
		Name  string `yaml:"name"`
		Rules []struct {
			Alert       string            `yaml:"alert"`
			Expr        string            `yaml:"expr"`
			For         string            `yaml:"for"`
			Labels      map[string]string `yaml:"labels"`
			Annotations map[string]string `yaml:"annotations"`
		} `yaml:"rules"`
	} `yaml:"groups"`
}

// The shipped rules must only reference series this package or jobmetrics
// actually exports.
func TestLedgerAlertRules(t *testing.T) {
	raw, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "ledger.yml"))
	require.NoError(t, err)

	var file ruleFile
	require.NoError(t, yaml.Unmarshal(raw, &file))
	require.Len(t, file.Groups, 1)
	require.Equal(t, "ledger", file.Groups[0].Name)

	want := map[string]struct{ severity, anchor, series string }{
		"PostingFailureRate":    {"critical", "posting-failures", "ledgercore_postings_total"},
		"SequenceCollisions":    {"warning", "sequence-collisions", "ledgercore_sequence_collisions_total"},
		"LedgerIntegrityBreach": {"critical", "unbalanced-entries", "ledgercore_ledger_anomalies_total"},
		"StockBalanceDrift":     {"warning", "stock-drift", "ledgercore_ledger_anomalies_total"},
	}
	rules := file.Groups[0].Rules
	require.Len(t, rules, len(want))

	for _, rule := range rules {
		t.Run(rule.Alert, func(t *testing.T) {
			exp, ok := want[rule.Alert]
			require.True(t, ok, "unexpected rule")
			require.Equal(t, exp.severity, rule.Labels["severity"])
			require.Equal(t, "docs/runbook-ledger.md#"+exp.anchor, rule.Annotations["runbook"])
			require.NotEmpty(t, rule.Annotations["summary"])
			require.NotEmpty(t, rule.Annotations["description"])
			require.NotEmpty(t, rule.For)
			require.True(t, strings.Contains(rule.Expr, exp.series), rule.Expr)
		})
	}
}

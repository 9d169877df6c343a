package observability_test

import (
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/slotwise/portal/internal/gate"
	"github.com/slotwise/portal/internal/observability"
	"github.com/slotwise/portal/internal/session"
	"github.com/slotwise/portal/internal/theme"
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

var (
	selectorRe = regexp.MustCompile(`(portal_[a-z_]+)(?:\{([^}]*)\})?`)
	matcherRe  = regexp.MustCompile(`(\w+)\s*=\s*"([^"]*)"`)
)

// emittedLabels feeds every label value the session store, gates and theme
// cascade report through the metrics, then reads back metric -> label -> values.
func emittedLabels(t *testing.T) map[string]map[string]map[string]bool {
	t.Helper()
	m := observability.NewMetrics()
	for _, outcome := range session.RefreshOutcomes {
		m.ObserveRefresh(outcome)
	}
	for _, g := range []string{gate.GateAuth, gate.GateRole} {
		for _, d := range gate.Decisions {
			m.ObserveGate(g, d.String())
		}
	}
	for _, kind := range theme.Transitions {
		m.ObserveTheme(kind)
	}

	gatherer, ok := m.Registerer().(prometheus.Gatherer)
	require.True(t, ok, "metrics registry must be gatherable")
	families, err := gatherer.Gather()
	require.NoError(t, err)

	out := make(map[string]map[string]map[string]bool)
	for _, fam := range families {
		labels := make(map[string]map[string]bool)
		for _, metric := range fam.GetMetric() {
			for _, pair := range metric.GetLabel() {
				if labels[pair.GetName()] == nil {
					labels[pair.GetName()] = make(map[string]bool)
				}
				labels[pair.GetName()][pair.GetValue()] = true
			}
		}
		out[fam.GetName()] = labels
	}
	return out
}

func runbookAnchors(t *testing.T) map[string]bool {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("..", "..", "docs", "runbook-portal.md"))
	require.NoError(t, err)
	anchors := make(map[string]bool)
	for _, line := range strings.Split(string(data), "\n") {
		if heading, ok := strings.CutPrefix(line, "## "); ok {
			anchors[strings.ReplaceAll(strings.ToLower(strings.TrimSpace(heading)), " ", "-")] = true
		}
	}
	return anchors
}

func TestAlertRulesQueryEmittedSeries(t *testing.T) {
	data, err := os.ReadFile(filepath.Join("..", "..", "deploy", "prometheus", "alerts", "portal.yml"))
	require.NoError(t, err)
	var rules ruleFile
	require.NoError(t, yaml.Unmarshal(data, &rules))
	require.Len(t, rules.Groups, 1)
	require.NotEmpty(t, rules.Groups[0].Rules)

	emitted := emittedLabels(t)
	anchors := runbookAnchors(t)

	for _, rule := range rules.Groups[0].Rules {
		t.Run(rule.Alert, func(t *testing.T) {
			assert.Contains(t, []string{"warning", "critical"}, rule.Labels["severity"])
			assert.NotEmpty(t, rule.For)
			assert.NotEmpty(t, rule.Annotations["summary"])

			page, anchor, found := strings.Cut(rule.Annotations["runbook"], "#")
			require.True(t, found, "runbook must link a section")
			assert.Equal(t, "docs/runbook-portal.md", page)
			assert.True(t, anchors[anchor], "runbook section %q missing", anchor)

			selectors := selectorRe.FindAllStringSubmatch(rule.Expr, -1)
			require.NotEmpty(t, selectors, "expression queries no portal metric")
			for _, sel := range selectors {
				labels, registered := emitted[sel[1]]
				require.True(t, registered, "%s is not registered by NewMetrics", sel[1])
				for _, matcher := range matcherRe.FindAllStringSubmatch(sel[2], -1) {
					name, value := matcher[1], matcher[2]
					require.Contains(t, labels, name, "%s has no %s label", sel[1], name)
					assert.True(t, labels[name][value], "%s{%s=%q} is never emitted", sel[1], name, value)
				}
			}
		})
	}
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestSortingMetricsExportsCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := New(reg)

	m.BagCreated("SEP", "IN")
	m.BagCreated("SEP", "IN")
	m.BagProcessed(true)
	m.WizardCommit("ok")
	m.ObserveHTTP("GET", "/api/v1/bags", 0, 20*time.Millisecond)

	mfs, err := reg.Gather()
	require.NoError(t, err)

	require.Equal(t, float64(2), counterValue(t, mfs, "sorting_bags_created_total", "socket", "SEP"))
	require.Equal(t, float64(1), counterValue(t, mfs, "sorting_bags_processed_total", "trigger", "auto"))
	require.Equal(t, float64(1), counterValue(t, mfs, "sorting_wizard_commits_total", "result", "ok"))
	require.Equal(t, float64(1), counterValue(t, mfs, "sorting_http_requests_total", "code", "200"))
}

func TestSortingMetrics_NilSafe(t *testing.T) {
	var m *Sorting
	m.BagCreated("SEP", "IN")
	m.CatalogCache(true)
	m.ObserveHTTP("GET", "/", 500, time.Millisecond)

	empty := New(nil)
	empty.SortedBagSaved("shipped")
}

func counterValue(t *testing.T, mfs []*dto.MetricFamily, name, label, value string) float64 {
	t.Helper()
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			for _, lp := range metric.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return metric.GetCounter().GetValue()
				}
			}
		}
	}
	t.Fatalf("metric %s{%s=%q} not found", name, label, value)
	return 0
}

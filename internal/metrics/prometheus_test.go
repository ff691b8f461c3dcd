package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetReturnsSameRegistry(t *testing.T) {
	assert.Same(t, Get(), Get())
}

func TestRecordQueryAndDump(t *testing.T) {
	r := newRegistry()
	r.RecordQuery("edge1", true, 7, 0.001)
	r.RecordQuery("edge1", false, 2, 0.002)
	r.ParseErrors.WithLabelValues("rule").Inc()
	r.FactsLoads.WithLabelValues("ok").Inc()

	out, err := r.Dump()
	require.NoError(t, err)

	assert.Contains(t, out, `tsim_queries_total{router="edge1",verdict="allowed"} 1`)
	assert.Contains(t, out, `tsim_queries_total{router="edge1",verdict="denied"} 1`)
	assert.Contains(t, out, "tsim_rules_tested_total 9")
	assert.Contains(t, out, `tsim_parse_errors_total{kind="rule"} 1`)
	assert.Contains(t, out, `tsim_facts_loads_total{status="ok"} 1`)
	assert.True(t, strings.Contains(out, "tsim_eval_duration_seconds"))
}

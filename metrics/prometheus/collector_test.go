package prometheus

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hupe1980/semkv"
	"github.com/hupe1980/semkv/blobstore"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func counterValue(f *dto.MetricFamily, op, status string) float64 {
	for _, m := range f.GetMetric() {
		labels := map[string]string{}
		for _, l := range m.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		if labels["op"] == op && labels["status"] == status {
			return m.GetCounter().GetValue()
		}
	}
	return 0
}

func TestCollector(t *testing.T) {
	ctx := context.Background()
	reg := prometheus.NewRegistry()
	mc, err := New(reg, "semkv")
	require.NoError(t, err)

	kv, err := semkv.Open(ctx, semkv.Remote(blobstore.NewMemoryStore()),
		semkv.WithDimension(2), semkv.WithMetricsCollector(mc))
	require.NoError(t, err)
	defer kv.Close()

	require.NoError(t, kv.Put(ctx, "a", []float32{0, 0}, nil))
	require.NoError(t, kv.Put(ctx, "b", []float32{1, 0}, nil))
	require.Error(t, kv.Remove(ctx, "missing"))
	_, err = kv.Search(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	_, err = kv.SearchRange(ctx, []float32{0, 0}, 1)
	require.NoError(t, err)
	require.NoError(t, kv.Commit(ctx))

	require.NoError(t, reg.Register(NewStatsCollector(kv, "semkv")))
	families := gather(t, reg)

	ops := families["semkv_operations_total"]
	require.NotNil(t, ops)
	assert.Equal(t, 2.0, counterValue(ops, "put", "success"))
	assert.Equal(t, 1.0, counterValue(ops, "remove", "error"))
	assert.Equal(t, 1.0, counterValue(ops, "search", "success"))
	assert.Equal(t, 1.0, counterValue(ops, "search_range", "success"))
	assert.Equal(t, 1.0, counterValue(ops, "commit", "success"))

	assert.Positive(t, families["semkv_commit_bytes_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 2.0, families["semkv_live_keys"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 1.0, families["semkv_checkpoint_version"].GetMetric()[0].GetGauge().GetValue())
}

func TestNewRejectsDuplicateRegistration(t *testing.T) {
	reg := prometheus.NewRegistry()
	_, err := New(reg, "semkv")
	require.NoError(t, err)
	_, err = New(reg, "semkv")
	assert.Error(t, err)
}

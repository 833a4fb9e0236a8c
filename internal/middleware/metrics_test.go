package middleware

import (
	"context"
	"errors"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"

	"dataplane-backend/internal/pipeline"
)

func TestMetricsCountsOperations(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()
	rc := pipeline.NewRequestContext("orders", pipeline.OpFindMany)

	m.After(ctx, rc, &pipeline.Response{Data: "x"})
	m.After(ctx, rc, &pipeline.Response{Err: errors.New("503")})
	m.OnError(ctx, rc, errors.New("boom"))

	ok := testutil.ToFloat64(m.ops.WithLabelValues("orders", "findMany", "ok"))
	failed := testutil.ToFloat64(m.ops.WithLabelValues("orders", "findMany", "error"))
	if ok != 1 || failed != 2 {
		t.Fatalf("ops ok=%v error=%v, want 1 and 2", ok, failed)
	}
}

func TestMetricsCountsCacheTraffic(t *testing.T) {
	m := NewMetrics(prometheus.NewRegistry())
	ctx := context.Background()

	rc := pipeline.NewRequestContext("orders", pipeline.OpFindMany)
	rc.Meta.CacheChecked = true
	m.After(ctx, rc, &pipeline.Response{Data: "x"})
	m.After(ctx, rc, &pipeline.Response{Data: "x", Meta: pipeline.ResponseMeta{CacheHit: true}})

	if got := testutil.ToFloat64(m.cacheMisses); got != 1 {
		t.Fatalf("misses = %v", got)
	}
	if got := testutil.ToFloat64(m.cacheHits); got != 1 {
		t.Fatalf("hits = %v", got)
	}
}

package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()
}

func TestObserveInferenceLabelsStatus(t *testing.T) {
	before := testutil.CollectAndCount(InferenceDuration)

	ObserveInference("detect", "http", 20*time.Millisecond, nil)
	ObserveInference("recognize", "trocr", 5*time.Millisecond, errors.New("boom"))

	if got := testutil.CollectAndCount(InferenceDuration); got < before+2 {
		t.Fatalf("series = %d, want at least %d", got, before+2)
	}
}

func TestRecordCacheLookup(t *testing.T) {
	RecordCacheLookup(true)
	RecordCacheLookup(true)
	RecordCacheLookup(false)

	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("hit")); got < 2 {
		t.Fatalf("hits = %v, want >= 2", got)
	}
	if got := testutil.ToFloat64(CacheLookups.WithLabelValues("miss")); got < 1 {
		t.Fatalf("misses = %v, want >= 1", got)
	}
}

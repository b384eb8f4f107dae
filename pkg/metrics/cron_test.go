package metrics

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
)

func TestCronJobMetricsExportsCountersAndHistogram(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := NewCronJobMetrics(reg)
	job := "generation-sync"
	metrics.Observe(job, 250*time.Millisecond, nil, false)
	metrics.Observe(job, 10*time.Millisecond, errors.New("boom"), false)
	metrics.Observe(job, 0, nil, true)

	if got := testutil.ToFloat64(metrics.runs.WithLabelValues(job, "success")); got != 1 {
		t.Fatalf("expected success=1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues(job, "failure")); got != 1 {
		t.Fatalf("expected failure=1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.runs.WithLabelValues(job, "skipped")); got != 1 {
		t.Fatalf("expected skipped=1, got %f", got)
	}
	if got := testutil.ToFloat64(metrics.lastSuccess.WithLabelValues(job)); got <= 0 {
		t.Fatalf("expected last success timestamp, got %f", got)
	}

	mfs, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather metrics: %v", err)
	}
	if got, err := fetchHistogramCount(mfs, "cron_job_duration_seconds", "job", job); err != nil {
		t.Fatalf("fetch duration: %v", err)
	} else if got != 2 {
		t.Fatalf("expected 2 duration samples, got %d", got)
	}
}

func TestNilRegistererIsNoop(t *testing.T) {
	NewCronJobMetrics(nil).Observe("job", time.Second, nil, false)
	var m *DomainMetrics
	m.GenerationStarted("asmr_video", OutcomeSuccess)
	NewDomainMetrics(nil).CreditGrant("webhook", OutcomeSuccess)
	m.OutboxDeadLetters("credits_purchased", 3)
}

func TestDomainMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDomainMetrics(reg)

	m.GenerationStarted("asmr_video", OutcomeSuccess)
	m.GenerationStarted("asmr_video", OutcomeSuccess)
	m.BackendCall("kie", "createTask", OutcomeRateLimited)
	m.CreditGrant("webhook", OutcomeDuplicate)
	m.GenerationSynced("", "completed")

	if got := testutil.ToFloat64(m.generationStarts.WithLabelValues("asmr_video", OutcomeSuccess)); got != 2 {
		t.Fatalf("expected 2 starts, got %f", got)
	}
	if got := testutil.ToFloat64(m.backendCalls.WithLabelValues("kie", "createTask", OutcomeRateLimited)); got != 1 {
		t.Fatalf("expected 1 rate limited call, got %f", got)
	}
	if got := testutil.ToFloat64(m.creditGrants.WithLabelValues("webhook", OutcomeDuplicate)); got != 1 {
		t.Fatalf("expected 1 duplicate grant, got %f", got)
	}
	if got := testutil.ToFloat64(m.generationSyncs.WithLabelValues("unknown", "completed")); got != 1 {
		t.Fatalf("expected empty backend normalized to unknown, got %f", got)
	}
}

func TestOutboxDeadLettersGaugeTracksLatestTotal(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewDomainMetrics(reg)

	m.OutboxDeadLetters("credits_purchased", 4)
	m.OutboxDeadLetters("credits_purchased", 1)

	if got := testutil.ToFloat64(m.deadLetters.WithLabelValues("credits_purchased")); got != 1 {
		t.Fatalf("expected gauge to hold latest total 1, got %f", got)
	}
}

func fetchHistogramCount(mfs []*dto.MetricFamily, name, label, value string) (uint64, error) {
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			if matchesLabel(metric.GetLabel(), label, value) {
				return metric.GetHistogram().GetSampleCount(), nil
			}
		}
	}
	return 0, fmt.Errorf("histogram %q missing label %s=%s", name, label, value)
}

func matchesLabel(labels []*dto.LabelPair, name, value string) bool {
	for _, label := range labels {
		if label.GetName() == name && label.GetValue() == value {
			return true
		}
	}
	return false
}

package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
)

func gather(t *testing.T, reg *prometheus.Registry) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func TestCollectorRecords(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New(reg)

	c.RecordProcessingTime("decide", 3*time.Millisecond)
	c.RecordProcessingTime("decide", time.Millisecond)
	c.RecordError("read_metadata", "decode")
	c.RecordStatus("ok")
	c.RecordStatus("ok")
	c.RecordStatus("declined")
	c.RecordThroughput(1500)
	c.RecordMemory(4096)

	fams := gather(t, reg)

	steps := fams["image_transcoder_step_duration_seconds"]
	if steps == nil {
		t.Fatal("step duration histogram not registered")
	}
	if got := steps.GetMetric()[0].GetHistogram().GetSampleCount(); got != 2 {
		t.Errorf("step samples: got %d, want 2", got)
	}

	results := fams["image_transcoder_results_total"]
	if results == nil {
		t.Fatal("results counter not registered")
	}
	byStatus := map[string]float64{}
	for _, m := range results.GetMetric() {
		byStatus[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	if byStatus["ok"] != 2 || byStatus["declined"] != 1 {
		t.Errorf("results: got %v", byStatus)
	}

	if got := fams["image_transcoder_output_bytes_total"].GetMetric()[0].GetCounter().GetValue(); got != 1500 {
		t.Errorf("output bytes: got %v, want 1500", got)
	}
	if got := fams["image_transcoder_step_errors_total"].GetMetric()[0].GetCounter().GetValue(); got != 1 {
		t.Errorf("errors: got %v, want 1", got)
	}
}

func TestTwoCollectorsOnSeparateRegistries(t *testing.T) {
	defer func() {
		if r := recover(); r != nil {
			t.Fatalf("registration panicked: %v", r)
		}
	}()
	New(prometheus.NewRegistry())
	New(prometheus.NewRegistry())
}

package generation

import (
	"context"
	"errors"
	"testing"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"

	"inkwell/api/internal/observe"
)

func TestInstrumentedRecordsOutcome(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })
	metrics, err := observe.NewMetrics(mp)
	if err != nil {
		t.Fatalf("NewMetrics: %v", err)
	}

	g := NewInstrumented(&Mock{Err: errors.New("boom")}, metrics, "openai")
	if _, err := g.Generate(context.Background(), Request{Mode: ModeIdeas}); err == nil {
		t.Fatal("expected error")
	}

	var rm metricdata.ResourceMetrics
	if err := reader.Collect(context.Background(), &rm); err != nil {
		t.Fatalf("Collect: %v", err)
	}
	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "inkwell.generation.errors" {
				continue
			}
			sum := m.Data.(metricdata.Sum[int64])
			if len(sum.DataPoints) == 1 && sum.DataPoints[0].Value == 1 {
				found = true
			}
		}
	}
	if !found {
		t.Fatal("generation error not recorded")
	}
}

package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"

	"github.com/tbourn/go-booking-backend/internal/config"
)

func tracingConfig(enabled, insecure bool) config.OTELConfig {
	return config.OTELConfig{
		Enabled:     enabled,
		Insecure:    insecure,
		Endpoint:    "localhost:4317",
		ServiceName: "booking-bot-test",
		SampleRatio: 1.0,
	}
}

// restoreGlobals snapshots the process-wide provider and propagator so tests
// can mutate them freely.
func restoreGlobals(t *testing.T) {
	t.Helper()
	tp, prop := otel.GetTracerProvider(), otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(tp)
		otel.SetTextMapPropagator(prop)
	})
}

func TestSetup_DisabledIsNoOp(t *testing.T) {
	restoreGlobals(t)
	before := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), tracingConfig(false, true), "v0")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	if otel.GetTracerProvider() != before {
		t.Error("disabled setup must not replace the tracer provider")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Errorf("no-op shutdown: %v", err)
	}
}

func TestSetup_InstallsProvider(t *testing.T) {
	for _, insecure := range []bool{true, false} {
		t.Run(map[bool]string{true: "insecure", false: "tls"}[insecure], func(t *testing.T) {
			restoreGlobals(t)

			shutdown, err := Setup(context.Background(), tracingConfig(true, insecure), "v1.2.3")
			if err != nil {
				t.Fatalf("Setup: %v", err)
			}
			defer func() { _ = shutdown(context.Background()) }()

			if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
				t.Fatalf("provider = %T; want *sdktrace.TracerProvider", otel.GetTracerProvider())
			}
			_, span := otel.Tracer("setup-test").Start(context.Background(), "span")
			span.End()
		})
	}
}

func TestSetup_CancelledContextStillSucceeds(t *testing.T) {
	restoreGlobals(t)

	// Exporter construction is lazy; it must not fail on a dead context.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	shutdown, err := Setup(ctx, tracingConfig(true, true), "v0")
	if err != nil {
		t.Fatalf("Setup with cancelled ctx: %v", err)
	}
	_ = shutdown(context.Background())
}

func TestSetup_ErrorsLeaveGlobalsUntouched(t *testing.T) {
	cases := []struct {
		name      string
		breakSeam func()
	}{
		{
			name: "exporter",
			breakSeam: func() {
				newExporter = func(context.Context, otlptrace.Client) (*otlptrace.Exporter, error) {
					return nil, errors.New("exporter down")
				}
			},
		},
		{
			name: "resource",
			breakSeam: func() {
				newResource = func(context.Context, string, string) (*resource.Resource, error) {
					return nil, errors.New("resource down")
				}
			},
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			restoreGlobals(t)
			origExp, origRes := newExporter, newResource
			t.Cleanup(func() { newExporter, newResource = origExp, origRes })
			c.breakSeam()

			before, beforeProp := otel.GetTracerProvider(), otel.GetTextMapPropagator()
			if _, err := Setup(context.Background(), tracingConfig(true, true), "v0"); err == nil {
				t.Fatal("expected error")
			}
			if otel.GetTracerProvider() != before {
				t.Error("tracer provider changed on failed setup")
			}
			if otel.GetTextMapPropagator() != beforeProp {
				t.Error("propagator changed on failed setup")
			}
		})
	}
}

func TestSetup_ShutdownCompletes(t *testing.T) {
	restoreGlobals(t)

	shutdown, err := Setup(context.Background(), tracingConfig(true, true), "v1")
	if err != nil {
		t.Fatalf("Setup: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Errorf("shutdown: %v", err)
	}
}

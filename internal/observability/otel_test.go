package observability

import (
	"context"
	"errors"
	"testing"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/tbourn/go-meter-backend/internal/config"
)

func TestSetupOTel_DisabledIsNoop(t *testing.T) {
	shutdown, err := SetupOTel(context.Background(), config.OTELConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("SetupOTel: %v", err)
	}
	if shutdown == nil {
		t.Fatalf("expected non-nil shutdown func")
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("noop shutdown: %v", err)
	}
}

func TestSetupOTel_ExporterError(t *testing.T) {
	origExp := newOTLPExporterFn
	defer func() { newOTLPExporterFn = origExp }()

	wantErr := errors.New("exporter boom")
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, wantErr
	}

	_, err := SetupOTel(context.Background(), config.OTELConfig{
		Enabled:  true,
		Endpoint: "localhost:4317",
		Insecure: true,
	}, "test")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected exporter error, got %v", err)
	}
}

func TestSetupOTel_ResourceError(t *testing.T) {
	origExp := newOTLPExporterFn
	origRes := newServiceResourceFn
	defer func() {
		newOTLPExporterFn = origExp
		newServiceResourceFn = origRes
	}()

	// Exporter succeeds without touching the network.
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return &otlptrace.Exporter{}, nil
	}
	wantErr := errors.New("resource boom")
	newServiceResourceFn = func(ctx context.Context, serviceName, version string) (*resource.Resource, error) {
		return nil, wantErr
	}

	_, err := SetupOTel(context.Background(), config.OTELConfig{
		Enabled:  true,
		Endpoint: "localhost:4317",
		Insecure: true,
	}, "test")
	if !errors.Is(err, wantErr) {
		t.Fatalf("expected resource error, got %v", err)
	}
}

func TestSetupOTel_ClientOptionsRespectInsecureFlag(t *testing.T) {
	origClient := newOTLPClient
	origExp := newOTLPExporterFn
	defer func() {
		newOTLPClient = origClient
		newOTLPExporterFn = origExp
	}()

	var gotOpts int
	newOTLPClient = func(opts ...otlptracegrpc.Option) otlptrace.Client {
		gotOpts = len(opts)
		return origClient(opts...)
	}
	newOTLPExporterFn = func(ctx context.Context, client otlptrace.Client) (*otlptrace.Exporter, error) {
		return nil, errors.New("stop here") // short-circuit before any dialing
	}

	_, _ = SetupOTel(context.Background(), config.OTELConfig{
		Enabled:  true,
		Endpoint: "collector:4317",
		Insecure: false,
	}, "test")
	if gotOpts != 2 {
		t.Fatalf("expected endpoint + TLS credential options, got %d", gotOpts)
	}

	_, _ = SetupOTel(context.Background(), config.OTELConfig{
		Enabled:  true,
		Endpoint: "collector:4317",
		Insecure: true,
	}, "test")
	if gotOpts != 2 {
		t.Fatalf("expected endpoint + insecure options, got %d", gotOpts)
	}
}

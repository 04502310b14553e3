package telemetry

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		cfg     Config
		wantErr error
	}{
		{
			name:    "missing service name",
			cfg:     Config{ServiceVersion: "1.0.0", SampleRate: 1.0},
			wantErr: ErrMissingServiceName,
		},
		{
			name:    "missing service version",
			cfg:     Config{ServiceName: "bulletin-api", SampleRate: 1.0},
			wantErr: ErrMissingServiceVersion,
		},
		{
			name:    "negative sample rate",
			cfg:     Config{ServiceName: "bulletin-api", ServiceVersion: "1.0.0", SampleRate: -0.1},
			wantErr: ErrInvalidSampleRate,
		},
		{
			name:    "sample rate above one",
			cfg:     Config{ServiceName: "bulletin-api", ServiceVersion: "1.0.0", SampleRate: 1.1},
			wantErr: ErrInvalidSampleRate,
		},
		{
			name: "valid config",
			cfg:  Config{ServiceName: "bulletin-api", ServiceVersion: "1.0.0", Environment: "test", SampleRate: 0.5},
		},
		{
			name: "zero sample rate is valid",
			cfg:  Config{ServiceName: "bulletin-api", ServiceVersion: "1.0.0", SampleRate: 0.0},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Errorf("expected no error, got %v", err)
				}
				return
			}
			if !errors.Is(err, ErrInvalidConfig) {
				t.Errorf("expected ErrInvalidConfig, got %v", err)
			}
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestInitialize(t *testing.T) {
	shutdown := func(t *testing.T, tel *Telemetry) {
		t.Helper()
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tel.Shutdown(ctx); err != nil {
			t.Errorf("shutdown failed: %v", err)
		}
	}

	t.Run("returns error when config is invalid", func(t *testing.T) {
		tel, err := Initialize(context.Background(), Config{ServiceVersion: "1.0.0"})
		if err == nil {
			t.Fatal("expected error, got nil")
		}
		if tel != nil {
			t.Error("expected nil telemetry, got non-nil")
		}
	})

	tests := []struct {
		name          string
		enableTracing bool
		enableMetrics bool
	}{
		{"tracing only", true, false},
		{"metrics only", false, true},
		{"tracing and metrics", true, true},
		{"neither", false, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Config{
				ServiceName:    "bulletin-api",
				ServiceVersion: "1.0.0",
				Environment:    "test",
				EnableTracing:  tt.enableTracing,
				EnableMetrics:  tt.enableMetrics,
				SampleRate:     1.0,
			}

			tel, err := Initialize(context.Background(), cfg,
				WithTraceExporter(NewNoopTraceExporter()),
				WithMetricExporter(NewNoopMetricExporter()),
			)
			if err != nil {
				t.Fatalf("expected no error, got %v", err)
			}
			defer shutdown(t, tel)

			if (tel.TracerProvider() != nil) != tt.enableTracing {
				t.Errorf("tracer provider presence = %v, want %v", tel.TracerProvider() != nil, tt.enableTracing)
			}
			if (tel.MeterProvider() != nil) != tt.enableMetrics {
				t.Errorf("meter provider presence = %v, want %v", tel.MeterProvider() != nil, tt.enableMetrics)
			}
		})
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name     string
		rate     float64
		wantDesc string
	}{
		{"zero rate samples nothing", 0.0, "AlwaysOffSampler"},
		{"negative rate samples nothing", -0.1, "AlwaysOffSampler"},
		{"full rate samples everything", 1.0, "AlwaysOnSampler"},
		{"above one samples everything", 1.5, "AlwaysOnSampler"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sampler := createSampler(tt.rate)
			if sampler == nil {
				t.Fatal("expected sampler, got nil")
			}
			if sampler.Description() != tt.wantDesc {
				t.Errorf("expected %s, got %s", tt.wantDesc, sampler.Description())
			}
		})
	}

	t.Run("fractional rate returns a sampler", func(t *testing.T) {
		if createSampler(0.5) == nil {
			t.Error("expected sampler, got nil")
		}
	})
}

func TestShutdownWithoutProviders(t *testing.T) {
	tel := &Telemetry{}
	if err := tel.Shutdown(context.Background()); err != nil {
		t.Errorf("expected no error, got %v", err)
	}
}

package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/metric"
	sdklog "go.opentelemetry.io/otel/sdk/log"

	"github.com/fyrsmithlabs/skatepedia/internal/config"
)

func TestFromSettings(t *testing.T) {
	cfg := FromSettings(config.TelemetryConfig{
		Enabled:      true,
		Endpoint:     "127.0.0.1:4318",
		Protocol:     "http/protobuf",
		Insecure:     true,
		SamplingRate: 0.5,
	}, "1.2.3")

	require.NoError(t, cfg.Validate())
	assert.Equal(t, "1.2.3", cfg.ServiceVersion)
	assert.Equal(t, "skatepedia", cfg.ServiceName)
	assert.Equal(t, 0.5, cfg.SamplingRate)
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"disabled is always valid", func(c *Config) { c.Endpoint = "" }, false},
		{"enabled local", func(c *Config) { c.Enabled = true }, false},
		{"ipv6 loopback", func(c *Config) { c.Enabled = true; c.Endpoint = "[::1]:4317" }, false},
		{"insecure remote", func(c *Config) { c.Enabled = true; c.Endpoint = "otel.example.com:4317" }, true},
		{"secure remote", func(c *Config) {
			c.Enabled = true
			c.Endpoint = "otel.example.com:4317"
			c.Insecure = false
		}, false},
		{"bad protocol", func(c *Config) { c.Enabled = true; c.Protocol = "udp" }, true},
		{"bad rate", func(c *Config) { c.Enabled = true; c.SamplingRate = 2 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefaultConfig()
			tt.mutate(cfg)
			if tt.wantErr {
				assert.Error(t, cfg.Validate())
			} else {
				assert.NoError(t, cfg.Validate())
			}
		})
	}
}

func TestNew_Disabled(t *testing.T) {
	tel, err := New(context.Background(), NewDefaultConfig())
	require.NoError(t, err)

	degraded, _ := tel.Degraded()
	assert.False(t, degraded)
	assert.NotNil(t, tel.Tracer("test"))
	assert.NotNil(t, tel.Meter("test"))
	assert.Nil(t, tel.LoggerProvider(), "no log export while disabled")

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	assert.NoError(t, tel.Shutdown(ctx))
}

func TestTestTelemetry_RecordsSpansAndMetrics(t *testing.T) {
	tel := NewTestTelemetry()
	ctx := context.Background()

	_, span := tel.Tracer("skatepedia/test").Start(ctx, "posts.create")
	span.SetAttributes(attribute.String("post.id", "p1"))
	span.End()

	counter, err := tel.Meter("skatepedia/test").Int64Counter("posts_created_total")
	require.NoError(t, err)
	counter.Add(ctx, 2, metric.WithAttributes(attribute.String("result", "ok")))
	counter.Add(ctx, 1, metric.WithAttributes(attribute.String("result", "error")))

	tel.AssertSpanExists(t, "posts.create")
	tel.AssertSpanAttribute(t, "posts.create", "post.id", "p1")
	assert.Equal(t, int64(3), tel.Sum(t, "posts_created_total"))
	assert.Equal(t, int64(2), tel.Sum(t, "posts_created_total", attribute.String("result", "ok")))
}

func TestNew_EnabledInstallsLogProvider(t *testing.T) {
	for _, protocol := range []string{"grpc", "http/protobuf"} {
		t.Run(protocol, func(t *testing.T) {
			cfg := NewDefaultConfig()
			cfg.Enabled = true
			cfg.Protocol = protocol
			cfg.Endpoint = "127.0.0.1:1"

			tel, err := New(context.Background(), cfg)
			require.NoError(t, err)

			degraded, problems := tel.Degraded()
			require.False(t, degraded, "%v", problems)
			assert.IsType(t, &sdklog.LoggerProvider{}, tel.LoggerProvider())

			// Nothing listens on the endpoint, so flushing may fail.
			ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
			defer cancel()
			_ = tel.Shutdown(ctx)
		})
	}
}

func TestTestTelemetry_RecordsLogs(t *testing.T) {
	tel := NewTestTelemetry()

	var rec log.Record
	rec.SetBody(log.StringValue("screen opened"))
	rec.SetSeverity(log.SeverityInfo)
	tel.LoggerProvider().Logger("skatepedia/test").Emit(context.Background(), rec)

	records := tel.LogRecords()
	require.Len(t, records, 1)
	assert.Equal(t, "screen opened", records[0].Body().AsString())
	assert.Equal(t, log.SeverityInfo, records[0].Severity())
}

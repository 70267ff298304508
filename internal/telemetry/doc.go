// Package telemetry wires the OpenTelemetry SDK for skatepedia.
//
// Traces and metrics are exported over OTLP (gRPC or HTTP). Telemetry is off
// by default; when disabled, Tracer and Meter return the global no-op
// implementations, so instrumented code never has to check.
//
//	tel, err := telemetry.New(ctx, telemetry.FromSettings(cfg.Telemetry, version))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Tests use NewTestTelemetry, which records spans and metrics in memory.
package telemetry

// Package telemetry sets up OpenTelemetry tracing and metrics for
// sessionparse.
//
// Spans are exported over OTLP (gRPC by default, or http/protobuf) to a
// collector. Exporter failures never stop parsing: the instance is marked
// degraded and falls back to the global no-op providers.
//
//	tel, err := telemetry.New(ctx, cfg.Telemetry, telemetry.WithLogger(logger))
//	if err != nil {
//	    return err
//	}
//	defer tel.Shutdown(context.Background())
//
// Configuration:
//
//	telemetry:
//	  enabled: true
//	  endpoint: "localhost:4317"
//	  protocol: "grpc"
//	  sampling:
//	    rate: 0.25
//	  metrics:
//	    enabled: true
//	    export_interval: 15s
package telemetry

// Package telemetry provides observability for configuration runs.
//
// It combines structured logging (zerolog), tracing (OpenTelemetry),
// metrics (Prometheus) and an in-process event publisher:
//
//	cfg := telemetry.DefaultConfig()
//	tel, err := telemetry.NewTelemetry(cfg)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer tel.Shutdown(context.Background())
//
//	ctx = tel.WithContext(ctx)
//	op := telemetry.StartOperation(ctx, "search.run")
//	defer op.End(err)
//
// Metrics implements configspace.Observer, so rejection and exhaustion
// counts of sampling and neighbor generation can be exported with
// configspace.WithObserver(tel.Metrics).
//
// # Metrics
//
//   - samples_total, rejections_total{operation}, exhaustions_total{operation}
//   - evaluations_total{status}, evaluation_duration_seconds{status}
//   - incumbent_cost, active_searches, policy_vetoes_total
//   - errors_by_class_total{class}, errors_by_code_total{code}
//
// # Events
//
// search.started, search.evaluation, search.incumbent, search.completed,
// search.failed and policy.veto events are delivered to subscribers in
// publication order.
package telemetry

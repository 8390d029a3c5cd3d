// Package component provides the lifecycle infrastructure shared by
// feedline's long-running parts: the stream consumer, the health
// collector, the NATS output, and the metrics server.
//
// # Overview
//
// Components follow a unified lifecycle:
//
//	Initialize() error                  // Setup/create only, NO context
//	Start(ctx context.Context) error    // Start with context passed through
//	Stop(timeout time.Duration) error   // Stop with timeout for graceful shutdown
//
// The Manager registers components explicitly (no init() self-registration),
// starts them in registration order, and stops them in reverse. Each
// component runs under its own named child context owned by the Manager,
// so shutdown can cancel components individually before calling Stop.
//
// # Usage
//
//	mgr := component.NewManager(logger)
//	if err := mgr.Register(consumer); err != nil { ... }
//	if err := mgr.Register(collector); err != nil { ... }
//
//	if err := mgr.Initialize(); err != nil { ... }
//	if err := mgr.Start(ctx); err != nil { ... }
//	defer mgr.Stop(10 * time.Second)
//
// A component that fails during Start rolls back the ones already
// running, in reverse order, before the error is returned.
//
// # Health and Flow Reporting
//
// Components may additionally implement HealthReporter and FlowReporter.
// The Manager aggregates HealthReporter results for the health endpoint;
// the health package converts them into sanitized health statuses.
package component

/*
Package metrics provides Prometheus metrics collection and exposition
for the vault engine.

Metrics mirror the engine's internal Metrics cell (spec.md §3.2,
§4.8): vault counts by status, aggregate storage bytes, invite
issue/claim/expiry counters, upload chunk counters, payment
verification counters, and maintenance sweep duration. Collector polls
a Snapshot function supplied by the host process — it never imports
the storage layer directly, so this package stays a leaf dependency.

	┌──────────────── METRICS SYSTEM ────────────────┐
	│  Collector.Start()                              │
	│    - polls Snapshot() every interval            │
	│    - pushes into package-level gauges           │
	│  HealthChecker                                  │
	│    - RegisterComponent / UpdateComponent        │
	│    - GetHealth / GetReadiness                   │
	│  HTTP handlers                                  │
	│    - /metrics  -> Handler()                     │
	│    - /health   -> HealthHandler()               │
	│    - /ready    -> ReadyHandler()                │
	│    - /live     -> LivenessHandler()             │
	└──────────────────────────────────────────────────┘
*/
package metrics

// Package agent contains the model-centric conversational agent and the
// worker fan-out used by the orchestration engine. The package focuses on
// two concerns:
//
//  1. The tool-call loop (Agent.Respond): system prompt + bounded history +
//     rendered user turn go to the backend; capability requests are validated,
//     dispatched through the agent's registry and fed back until the model
//     produces a terminal answer.
//  2. Concurrent task execution (RunParallel): one fresh worker per task,
//     join barrier, per-task failure isolation, results in submission order.
//
// Design principles:
//   - Explicit wiring: backends, registries and loggers are passed in, there
//     is no global agent creator
//   - Isolation: every agent owns its history; workers are never reused
//   - Observability: dotted log events, Prometheus metrics and OpenTelemetry
//     spans around model calls, capability calls and fan-outs
package agent

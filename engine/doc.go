// Package engine implements the multi-agent orchestration layer.
//
// An Engine takes a question through a text-driven state machine:
//
//	ANALYZE -> CONFIRM_NEEDED                      (manager asks the user to confirm)
//	ANALYZE -> UNPARSED                            (no marker found)
//	ANALYZE -> DISPATCH -> EXECUTE -> [REVIEW] -> DELIVER -> DONE
//
// The manager agent answers the analysis, review and delivery prompts. Its
// analysis is classified by a Classifier (MarkerClassifier by default) after
// reasoning blocks are stripped. Task lists are executed either by a
// scheduler agent whose capabilities fan tasks out to fresh workers
// (DispatchScheduler) or by the engine itself (DispatchDirect).
//
// # Agents
//
// Agents are minted by an injected Factory. Creator is the default
// implementation; it binds per-role backends, the host capability sets of
// the executor package and the role prompts embedded under prompts/ (or
// loaded from a directory with LoadPrompts).
//
// # Failure semantics
//
//   - Task failures are isolated per task and surface as TASK_FAILED entries
//   - A scheduler failure marks every parsed task failed and the run goes on
//   - Manager failures abort the run with *core.SessionStageError; the engine
//     stays usable
//
// # Observability
//
// Stage transitions are logged as "engine.stage", counted by the Prometheus
// metrics of the telemetry package, traced with OpenTelemetry spans and
// reported to registered callbacks.
package engine

// Package executor provides the capability sets bound to agent roles: host
// script execution for workers (general and cluster flavoured), task fan-out
// for the scheduler and a bridge that exposes MCP server tools as
// capabilities.
package executor

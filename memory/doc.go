// Package memory holds the bounded conversation History owned by each agent
// (and by the orchestration engine). A History retains the most recent
// messages up to its configured capacity; appending beyond the capacity
// evicts the oldest messages first.
package memory

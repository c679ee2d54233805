// Package memory provides in-memory implementations of the driven ports:
// a relational Store with transactions and lifecycle signals, the
// SignalBus that delivers those signals, a TaskQueue and a ConfigStore.
// They back the service tests and ephemeral runs.
package memory

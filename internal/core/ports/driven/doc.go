// Package driven defines the interfaces that core calls OUT to infrastructure.
//
// These are the "driven" or "secondary" ports in hexagonal architecture.
// Core services depend on these interfaces, and infrastructure adapters
// implement them.
//
// # Required Interfaces
//
//   - EntityStore: Reads relational entities (query/filter/exclude/order/slice/count)
//   - SignalBus: Relational store lifecycle notifications
//   - Committer: Runs work after the enclosing transaction commits
//   - SearchBackend: Bulk writes, index and alias management, search
//   - ConfigStore: Application configuration
//
// # Optional Interfaces
//
// These are only needed by the deferred signal processor:
//
//   - TaskQueue / TaskSource: Reliable at-least-once background work
//   - EntitySerializer: Portable form of deleted entities
//
// # Import Rules
//
//   - Can Import: domain package only
//   - Cannot Import: Any adapter package
package driven

// Package services implements the driving port interfaces.
// Services contain the core business logic and orchestrate
// calls to driven ports (adapters).
//
// The DocumentRegistry is the centre of the package: documents are
// registered against it at startup, signal processors route store
// lifecycle events through it, and the management, index and search
// services read it to act on the backend.
package services

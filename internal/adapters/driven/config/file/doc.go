// Package file provides the TOML configuration store and a watcher that
// reloads it when the file changes on disk.
package file

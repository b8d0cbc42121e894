// Package events provides in-process domain events. Handlers run
// synchronously after the change they describe has been committed; their
// failures are logged and never undo that change.
package events

// Package store defines the persistence interfaces for projects, tasks and
// users, the sentinel errors implementations return, and the transaction
// helper services use to group writes.
package store

// Package service contains the application use cases. It coordinates the
// stores, the project cache, the job queue and domain events so that the
// API layer only deals with inputs, outputs and sentinel errors.
//
// Key components:
//
//   - ProjectService owns the cache-aside read path for projects and
//     triggers background provisioning when a project is created.
//   - TaskService manages project tasks and keeps the project cache fresh.
//   - UserService registers users and reads their profiles.
//
// Errors returned by services are either sentinels from this package,
// domain validation errors, or *ServiceError values wrapping
// ErrStoreUnavailable. Cache failures never reach callers.
package service

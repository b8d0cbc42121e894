// Package domain contains the core business entities of the project
// management API: projects, their tasks, and the users who own them.
// It is independent of any storage or delivery mechanism.
package domain

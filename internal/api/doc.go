// Package api adapts HTTP requests to the project, task and user services:
// it decodes and validates input, enforces project ownership and maps
// service errors to status codes without leaking internal details.
package api

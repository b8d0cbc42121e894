// Package notify sends user-facing email notifications.
//
// Senders never return delivery errors to callers: a notification that
// cannot be sent is logged and dropped.
package notify

// Package notifications delivers download alerts to ntfy.
//
// Failures that point at operator action (expired cookies, engine breakage)
// are the main audience; successful downloads are announced only when
// notifications.notify_completed is set. Without a configured topic the
// service is a no-op, so callers never need to nil-check it.
package notifications

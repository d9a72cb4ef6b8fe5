// Package notify delivers recovery codes out-of-band. The SMTP sender is
// the stock implementation; anything satisfying the engine's
// NotificationSender interface can replace it.
package notify

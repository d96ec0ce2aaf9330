// Package notifications pushes batch results to an ntfy topic.
//
// Faults and emergency stops are always sent; passing batches only when
// notify_pass is set. Without a topic NewService returns a no-op, so callers
// never check whether notifications are configured.
package notifications

// Package notifier delivers notifications to the desktop on behalf of the
// dispatcher.
//
// Delivery is synchronous: the caller learns whether the notification
// reached the notification server. Between the caller and the server sit a
// token-bucket rate limit, retries with jittered exponential backoff, and a
// short de-duplication window. Record deliveries are de-duplicated by
// record id, other messages by their rendered text.
//
// The service remembers which server id belongs to which notification
// record, so an action invoked on a delivered notification can be traced
// back.
package notifier

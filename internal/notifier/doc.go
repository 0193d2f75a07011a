// Package notifier delivers alert text to the configured alert chat.
//
// Delivery is synchronous so the caller learns whether the alert went out:
// a token bucket limits the send rate, failed sends are retried with jittered
// exponential backoff, and the final failure is wrapped in alert.ErrDelivery.
// A short in-memory history of sent alerts backs the display command.
package notifier

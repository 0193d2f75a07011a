// Package scheduler drives the alert poll.
//
// A Poller owns a robfig/cron instance with a single entry that checks the
// alert store. It runs only while the store has pending events: Ensure starts
// it, and a tick that finds the store empty stops it.
package scheduler

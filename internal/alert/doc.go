// Package alert is the event scheduling core of the bot.
//
// A Store owns a set of Events, each with a repeat cadence in whole days and
// a next-fire time. The store always knows which event is due next and the
// instant its lead-time alert should go out. A poll loop (see
// internal/task/scheduler) calls CheckNextEvent on a coarse interval; when the
// alert instant has passed the due event is rendered, delivered through a
// Notifier, then advanced (recurring) or retired (one-shot).
//
// The package does no I/O of its own. Persistence goes through Snapshot and
// Restore, delivery through the Notifier interface, and time through Clock.
package alert

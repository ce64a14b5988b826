/*
Package events provides the in-memory broadcast bus between the Version
Store's committed writes and the two consumers that need to know about
them immediately: watch streams in pkg/api and the controller's
event-driven dispatch in pkg/controller.

The bus is bounded and best-effort. Every Publish fans out to all current
Subscribers without blocking; a subscriber whose channel is full is
dropped and its channel closed rather than slowing down the writer that
published the event. Callers that need a gap-free history fall back to
pkg/version's HistoryOf/ListCommits, which is the durable source of truth
the bus is only a fast path in front of.
*/
package events

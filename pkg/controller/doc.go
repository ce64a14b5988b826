/*
Package controller implements the reconciliation loop: the event-driven
dispatch over pkg/events, the periodic full sweep that recovers from
missed events, and the Node health sweep, all driving resource.Pod and
resource.Node objects through pkg/version directly (it is, like pkg/api,
a consumer of VS, not a client of the HTTP surface).

Handlers are required to be idempotent — the same event or sweep pass may
run the same Pod through EnsureZone/TerminateZone more than once, and the
external zone.Runtime collaborator is expected to tolerate that.
*/
package controller

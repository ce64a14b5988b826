/*
Package log provides structured logging for Reddwarf using zerolog.

Call Init once at startup with the desired Level and output format, then
use the package-level Logger or one of the With* helpers to get a child
logger scoped to a component (WithComponent) or a resource (WithResource):

	log.Init(log.Config{Level: log.InfoLevel, JSONOutput: true})
	log.WithComponent("controller").Info().Str("key", key.String()).Msg("reconciling")

JSON output is meant for production (one log line per event, machine
parseable); console output renders human-readable lines for local
development.
*/
package log

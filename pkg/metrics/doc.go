/*
Package metrics defines and registers Reddwarf's Prometheus metrics: commit
throughput and conflicts from pkg/version, active watch subscribers and API
latency from pkg/api, and reconciliation cycle cost from pkg/controller.

Handler exposes the registered metrics for scraping; Collector periodically
samples the gauges that aren't updated inline by the components that own
them (subscriber counts, Pod phase distribution, Node readiness).
*/
package metrics

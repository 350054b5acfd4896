// Package health runs named checks concurrently and serves the aggregate
// over HTTP. The readiness report is unhealthy while the broker connection
// is down.
package health

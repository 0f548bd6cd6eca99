// Package prometheus exposes engine metrics through
// github.com/prometheus/client_golang. Use [Register] with an existing
// registry, or [Handler] for a standalone scrape endpoint.
package prometheus

// Package metrics declares the Prometheus collectors exported by hearth-server
// on /metrics. Collectors are package-level and registered with the default
// registry at init.
package metrics

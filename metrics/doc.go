// Package metrics holds the Prometheus collectors of the signer daemon and
// the server that exposes them.
package metrics

// Package clients provides a Go client for the signer daemon HTTP API.
package clients

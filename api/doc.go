/*
Package api defines the HTTP surface of the signer daemon: request and
response types, route paths and server configuration. The clients
subpackage contains a Go client for it.

# Endpoints

	GET  /api/v1/public_key   {"algorithm":"ed25519","public_key":"<hex>"}
	POST /api/v1/sign         raw message body -> {"algorithm":"ed25519","signature":"<hex>"}
	GET  /api/v1/attestation  {"type":"sgx-sim","public_key":"<hex>","report_data":"<hex>","quote":"<hex>"}

Errors are returned as {"error":"...","code":"..."}. A daemon that has not
loaded a key answers 409 with code "key_not_set"; a daemon whose enclave has
stopped answers 503.

# Health

	GET /livez    always 200 while the process serves
	GET /readyz   200 unless drained
	GET /drain    mark not ready
	GET /undrain  mark ready again
*/
package api

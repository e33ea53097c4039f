// Package httpserver serves a signer over HTTP.
//
// Handler exposes the public key, signing and attestation endpoints described
// in package api on top of any interfaces.Signer, usually a
// signer.Controller. Server wraps it with request logging, health and drain
// endpoints, optional pprof, and a separate metrics listener.
//
//	handler := httpserver.NewHandler(controller, attestation, log)
//	srv, err := httpserver.New(&api.HTTPServerConfig{ListenAddr: ":8080", Log: log}, handler)
//	srv.RunInBackground()
//	defer srv.Shutdown()
package httpserver

// Package server hosts the Fiber HTTP surface: request-ID middleware, the
// readiness gate that holds traffic until the current generation is activated,
// and the shared upstream http.Client plumbing reused by the network fetcher.
// Proxy and diagnostics handlers are injected by main so this package keeps no
// dependency on cache strategy code.
package server

// Package network performs the real upstream fetches behind the strategies.
// Every response is materialized exactly once into an immutable cache.Payload:
// the body is read to completion and closed here, so callers can hand
// independent copies to both the client and a store without sharing a stream.
// Only transport-level failures become errors; non-2xx statuses come back as
// ordinary payloads for the caller to judge.
package network

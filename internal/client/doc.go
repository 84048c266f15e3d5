// Package client is the embeddable SDK side of sessionpulse. It issues and
// persists an anonymous identity, keeps the matching server session alive via
// a heartbeat, and wraps the HTTP API.
package client

// Package app provides the application service layer.
//
// Orchestrates use cases: session tracking, action recording, active-session
// queries, idle-session cleanup. Sits between HTTP handlers and the session
// repository. Depends on domain interfaces, not concrete implementations.
package app

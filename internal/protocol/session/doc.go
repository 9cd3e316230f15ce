// Package session owns the package send/receive lifecycle.
//
// Ownership boundary:
// - Send and the endpoint shapes it accepts
// - Stream write queue, read loop and completion callbacks
// - request/response correlation (Promises, Client)
// - transport security and retry/backoff primitives
package session

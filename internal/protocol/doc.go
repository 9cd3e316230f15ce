// Package protocol owns the message type contract shared by every
// transport.
//
// Ownership boundary:
// - message type tables and names
// - message type to HTTP status mapping
// - frame/ holds package framing, session/ the send/receive lifecycle
//   and schema/ request payload shapes
package protocol

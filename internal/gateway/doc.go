// Package gateway dispatches inbound WebSocket events to the identity,
// presence and message components and writes their replies.
//
// Failures are logged and never reported to the client: a failed request
// is observed as no response. Unknown events are logged and ignored.
package gateway

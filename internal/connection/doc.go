// Package connection implements the server side of the WebSocket transport.
//
// The Hub:
//   - Upgrades HTTP requests and assigns each connection a session ID
//   - Runs one read loop and one write loop per connection
//   - Delivers frames to a single session or broadcasts to all of them
//
// Every connection owns a bounded outbound queue. Enqueueing never blocks:
// when a queue is full the frame is dropped or the connection is closed,
// depending on the overflow policy, so one slow client cannot stall others.
package connection

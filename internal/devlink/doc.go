// Package devlink maintains the single multiplexed WebSocket connection
// to the device-control server.
//
// Three cooperating pieces share the connection:
//
//   - Link owns the socket, the read loop, and the reconnect supervisor.
//   - Correlator pairs outgoing requests with their eventual responses by
//     correlation id, completing each exactly once (resolve, timeout, or
//     connection loss).
//   - Router forwards unsolicited preview frames to at most one
//     subscriber, dropping frames when nobody is attached.
//
// The read loop classifies every inbound message by shape: type=="frame"
// goes to the Router, a known request_id resolves its pending request,
// anything else goes to a diagnostic listener list.
//
// # Failure behaviour
//
// Connection loss fails every pending request with ErrConnectionLost,
// tells the session notifier to release its slots, and starts a fixed
// interval reconnect supervisor that retries until the link is up or the
// link is closed. Send while disconnected attempts one reconnect and then
// returns ErrNotConnected without blocking.
//
// # Usage
//
//	correlator := devlink.NewCorrelator(logger)
//	router := devlink.NewRouter(logger)
//	link := devlink.New(devlink.Config{URL: "ws://camera-host:8000/ws"}, correlator, router, logger)
//	link.Connect(ctx)
//
//	resp, err := link.Send(ctx, "list_cameras", nil)
package devlink

// Package api provides the HTTP and WebSocket frontend of the bridge.
//
// Frontend clients connect over a single WebSocket and exchange JSON
// action messages. The Gateway dispatches each message: validation and
// ping are answered locally, device commands pass through the device
// link, capture sequences run asynchronously with progress pushed back
// to the owning client, and capture-set queries hit the media store.
// Preview frames are fanned out to whichever client holds the stream
// slot.
//
// A small REST surface (/api/v1/health, /api/v1/stats) exposes service
// status for dashboards and probes.
//
// Wire shape:
//
//	request:  {"action": "...", "payload": {...}, "request_id": "..."}
//	response: {"action": "...", "success": true, "data": {...}, "request_id": "..."}
//
// Every request produces exactly one response envelope carrying the
// caller's request id, validation failures included.
package api

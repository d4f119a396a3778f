// Package session arbitrates the bridge's two capacity-one resources:
// the preview stream subscriber slot and the sequence run slot.
//
// Acquisition is all-or-nothing and never steals: a second concurrent
// claim is rejected while the first holder is left untouched. Release
// paths cover normal completion, client disconnect (with a best-effort
// stop_stream to the device), and device link loss (where stop commands
// are skipped because the link is already down).
package session

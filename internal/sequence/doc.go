// Package sequence executes multi-step light/capture runs against the
// device server.
//
// A run walks an ordered list of lights: switch the light on, wait for it
// to settle, capture an image, persist it, switch the light off. A failing
// device command aborts the remaining steps but never escapes as a fault;
// the run terminates with status Failed and the device's error text.
//
// Whatever terminates the loop, a mandatory cleanup phase switches every
// light in the run's universe off, including lights never reached. Images
// already written are kept, not rolled back.
package sequence

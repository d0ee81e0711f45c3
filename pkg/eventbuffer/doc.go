// Package eventbuffer coalesces bursts of "something changed" signals into a
// single invocation of an action.
//
// A Buffer is created with a fixed delay, a Mode and an action:
//   - Extend: the action runs delay after the last request of a burst. A steady
//     stream of requests postpones it indefinitely.
//   - Throttle: requests that arrive while a wait is pending are dropped, so the
//     action runs at most once per delay under continuous load.
//
// Request never blocks and is safe from any goroutine. The action runs on a
// timer goroutine and never concurrently with itself.
package eventbuffer

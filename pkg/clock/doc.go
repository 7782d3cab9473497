// Package clock holds the time utilities shared by the lifecycle engine:
// a swappable Clock, deadline-bounded waits and exponential backoff with
// jitter.
package clock

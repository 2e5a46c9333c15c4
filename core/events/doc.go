// Package events defines the solver events emitted on the event bus.
//
// SearchEvent reports search start, incumbent improvements and termination.
package events

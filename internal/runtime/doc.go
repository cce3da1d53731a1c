// Package runtime wires the event store, resilience guard, authorizer,
// metrics, and config into one injectable object for a single delivery
// process.
package runtime

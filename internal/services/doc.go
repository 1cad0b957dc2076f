// Package services defines the error taxonomy and context plumbing shared by
// every external adapter the pipeline talks to.
//
// Adapters wrap failures with one of the sentinel markers so the controller
// can classify them without knowing transport details: transient failures are
// retried with backoff, permanent failures terminate the stage, and
// resource-unavailable failures park deep scoring until an operator re-runs
// it. Context helpers carry record and stage identity so adapter logs line up
// with controller logs.
package services

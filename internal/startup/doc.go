// Package startup decides whether a launch must provision its databases and
// runs that work off the caller's goroutine.
//
// VersionGate compares the persisted version marker with the running
// version code. The marker is written only after a pass succeeds, so a
// crash or failure mid-pass makes the next launch try again.
//
// Task runs the gate exactly once per launch in the background. Callers
// that need the databases (the bridge routes) check Ready or block on Wait.
// A failed pass leaves the task in StateFailed, from which Retry starts
// another attempt without restarting the process.
package startup

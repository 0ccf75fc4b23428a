// Package lifecycle implements the demo container lifecycle: building a
// demo's image, launching it, reclaiming the previous instance before a
// redeploy, and reconciling persisted state with what the runtime daemon
// actually runs.
//
// All collaborators (runtime daemon, repository, port allocator, log store)
// are injected through the interfaces in package ports. The components do
// not retry; a failed unit of work is reported to the caller, and the
// persisted status is the only user-visible outcome of a deployment.
package lifecycle

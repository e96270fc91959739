// Package work holds the built-in job.Work kinds: directory and file
// operations under a work root, and HTTP GET probes.
//
// Every kind resolves its paths relative to Env.Root and refuses paths that
// would escape it. Failures are returned as errors to the job; permanent ones
// (bad arguments) are wrapped with job.NoRetry.
package work

// Package scheduler runs a dependency graph of jobs to completion.
//
// The scheduler is a single-goroutine, cooperative round-robin loop:
//   - ready jobs (all prerequisites gone from the graph) are admitted into a
//     bounded pool, earliest StartAt first
//   - each turn pops the front job, steps it once and re-queues it at the back
//     unless it finished or failed
//   - a success removes the job from the graph, which unblocks its dependents
//   - a failure is retried while tries remain; otherwise the job and its whole
//     transitive-dependent closure are removed and reported failed
//
// Work itself runs asynchronously (see package job); the loop only polls it.
// An interrupted run persists the names of finished jobs to a checkpoint so
// the next run can skip them.
package scheduler

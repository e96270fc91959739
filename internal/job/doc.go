// Package job implements the per-job execution state machine.
//
// A Job is advanced by repeated, non-blocking Step calls:
//   - before StartAt the step is a no-op (OutcomeNotYetRunnable)
//   - the first step past the gate records the actual start instant
//   - a step past StartedAt+Timeout fails the job (cooperative timeout)
//   - NotStarted -> Running launches exactly one asynchronous attempt of Work
//   - later steps poll the attempt and report InProgress, Finished or Failed
//
// Retry and failure-cascade policy lives in the scheduler; Job only exposes
// Retry (grant another attempt) and Abandon (cancel in-flight work).
package job

package service

// Package service turns a validated configuration into supervised automation
// runs and publishes a summary of every finished run.
//
// Overview
// A Service owns one runner.Runner and a set of summary sinks. Triggers
// arrive on an internal channel: manual mode fires exactly one on entry,
// timer mode fires on a gocron schedule. Every trigger executes one full
// Run (which internally retries spawning the tool) with a fresh saltinel
// token and then publishes the resulting Summary.
//
// Data flow:
//
//   Service                 runner.Runner            sinks
//      |                         |                     |
//   trigger ---> execute ------->| Run(ctx, saltinel)  |
//      |                         | spawn/observe/retry |
//      |<------- Status ---------|                     |
//      | Summary ------------------------------------->| Publish
//
// Invariants:
//   - At most one run at a time; triggers arriving mid-run are dropped.
//   - Every execute publishes exactly one Summary, success or not.
//   - Manual mode returns after the first run; timer mode only on ctx
//     cancellation.
//
// internal/service/service_test.go shows how the pieces are wired together.

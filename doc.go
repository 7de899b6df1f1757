// Package flowline provides a durable DAG workflow engine for multi-step
// agent tasks. A workflow is declared as a set of steps with dependencies,
// optional run conditions over prior step outcomes, and per-step timeout
// and retry policy. The engine validates the graph, runs independent steps
// concurrently, checkpoints state after every step transition, and can
// resume an interrupted run without re-invoking completed steps.
//
// Flowline is designed as a library, not a service. Construct an engine
// with a store and an agent registry, then drive runs through it:
//
//	agents := agent.NewRegistry()
//	agents.Register("reviewer", reviewAgent)
//
//	eng := engine.New(memory.New(), agents,
//	    engine.WithMaxConcurrentSteps(5),
//	)
//	result, err := eng.Execute(ctx, def)
//
// # Architecture
//
// The engine is split into small subsystem packages: graph (DAG validation
// and topological layering), cond (the boolean condition mini-language),
// agent (the invoker capability and per-step runner), engine (the
// scheduler), and store backends (memory, file, redis, postgres) behind
// the workflow.Store interface.
//
// All entity IDs use TypeID — type-prefixed, K-sortable, UUIDv7-based
// identifiers.
package flowline

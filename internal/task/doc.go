// Package task defines the task batch data model and the batch parser.
//
// A batch is a sequence of blocks:
//
//	---TASK---
//	id: build
//	backend: codex
//	dependencies: setup, lint
//	---CONTENT---
//	Implement the build step.
//
// [Parse] turns such text into [Spec] values in input order. Specs are immutable
// once parsed; execution state lives in [Result], whose status moves through
// PENDING, RUNNING and exactly one terminal state via [Result.Transition].
package task

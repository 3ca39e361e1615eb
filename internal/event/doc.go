// Package event provides a pub-sub event bus for run lifecycle notifications.
//
// The executor and the progress relay publish events without knowing who
// consumes them; the CLI subscribes to turn them into log lines, and tests
// subscribe to observe ordering.
//
// # Main Types
//
//   - [Event]: Interface that all events must implement, providing EventType() and Timestamp()
//   - [Bus]: Synchronous pub-sub event dispatcher with thread-safe operations
//   - [Publisher]: The publishing half of [Bus], accepted by producers
//   - [Handler]: Function type for event handlers (func(Event))
//   - [Matcher]: Subscription filter; see [OfType] and [ForTask]
//   - [TaskEvent]: Events that belong to one task
//
// # Event Types
//
// Layer lifecycle:
//   - [LayerStartedEvent] ("layer.started")
//   - [LayerCompletedEvent] ("layer.completed")
//
// Task lifecycle:
//   - [TaskStartedEvent] ("task.started")
//   - [TaskCompletedEvent] ("task.completed")
//   - [TaskSkippedEvent] ("task.skipped")
//   - [TaskProgressEvent] ("task.progress")
//
// # Thread Safety
//
// The [Bus] type is safe for concurrent use. Tasks of a layer publish from
// their own goroutines, so handlers must be safe for concurrent calls.
// Handlers are called synchronously and protected against panics; a
// panicking handler will not prevent other handlers from being called.
//
// # Basic Usage
//
//	bus := event.NewBus()
//
//	bus.Subscribe(event.TypeTaskCompleted, func(e event.Event) {
//	    done := e.(event.TaskCompletedEvent)
//	    fmt.Println(done.TaskID, done.Status)
//	})
//
//	bus.SubscribeTask("build", func(e event.Event) {
//	    fmt.Println("build:", e.EventType())
//	})
//
//	bus.SubscribeAll(func(e event.Event) {
//	    fmt.Println(e.EventType(), e.Timestamp())
//	})
package event

// Package batch coalesces consecutive delivery-ready events into batches
// under a size/time budget, cutting per-item overhead for chatty streams.
//
// The Batcher is plain state owned by a single stream generator: the
// generator calls Add/Flush and races Deadline against its dequeue, so no
// internal goroutine or locking is needed. Designated immediate event
// types never join a batch; any pending batch is flushed first and the
// immediate event is emitted alone, preserving relative order.
package batch

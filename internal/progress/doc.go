// Package progress carries session progress from the pipeline to pluggable
// sinks. Emitters never block: the Hub buffers events on a channel, batches
// them on a background goroutine and fans each batch out to its sinks.
package progress

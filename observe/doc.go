// Package observe provides observability primitives for resilience
// pipelines.
//
// It is a pure instrumentation library: no execution, no transport, no I/O
// beyond exporter setup. Consumers wire the observer into their pipelines
// via Middleware and PipelineSink.
package observe

// Package monitor samples stream flow counters on a fixed interval and
// derives coarse health from them.
//
// A Collector reads a Source (normally a stream.Consumer) twice a second,
// computes trailing throughput, mean decode latency, queue fill, and
// decode success ratio, and grades the result against Thresholds as
// healthy, warning, or critical. Samples are exported as Prometheus
// gauges and kept as Latest for the health endpoint.
//
// The collector is purely observational. It never pauses, rewinds, or
// otherwise steers the pipeline it watches; crossing a threshold changes
// what is reported, not what the stream does.
package monitor

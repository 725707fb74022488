// Package progress implements the in-process event pipeline between fetch
// workers and observers. Workers emit Events through a non-blocking Hub, which
// batches them and fans them out to Sinks (structured logs, Prometheus).
package progress

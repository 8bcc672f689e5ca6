// Package server hosts the two network surfaces of the proxy: the raw TCP
// listener that feeds client bytes into the orchestrator one connection at a
// time, and the optional Fiber diagnostics app that exposes counters and cache
// lookups under /-/. Keep exports narrow and accept explicit dependencies so
// the CLI and tests can inject fakes.
package server

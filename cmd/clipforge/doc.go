// Package main hosts the Clipforge CLI entrypoint and command graph.
//
// The Cobra-based command tree covers the daemon and worker processes,
// on-demand compilation runs, recipe and schedule management, run and job
// inspection, acquisition cache maintenance, and configuration scaffolding.
// It centralizes configuration resolution and logging setup so subcommands
// can focus on user experience instead of wiring.
package main

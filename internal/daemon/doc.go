// Package daemon wires the long-running control plane: the worker RPC
// gateway, the due-task scanner, and the acquisition cache eviction loop,
// guarded by a filesystem lock so only one instance runs per host.
package daemon

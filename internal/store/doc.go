// Package store persists clipforge state in a single SQLite database:
// recipes, schedules, runs, clips, media, dispatched jobs, worker pool
// membership, and per-owner quota tiers with the render usage ledger. The
// jobs table doubles as the dispatch queue so workers never need database
// access of their own.
package store

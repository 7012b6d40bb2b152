// Package coordinator drives a single compilation run from source listing
// through acquisition dispatch to the final encode job. It owns run and clip
// rows in the store; the actual downloading and encoding happens elsewhere,
// on whichever worker claims the dispatched jobs.
package coordinator

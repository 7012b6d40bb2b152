// Package acquire implements clip acquisition on workers: the reuse lookup,
// the short-lived content-addressed disk cache, and the quota-bounded
// download path.
package acquire

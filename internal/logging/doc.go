// Package logging provides slog construction and shared structured field
// conventions for all clipforge components.
package logging

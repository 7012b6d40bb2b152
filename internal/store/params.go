package store

import (
	"encoding/json"
	"fmt"
	"strings"
)

// SourceKind tags the recipe source union.
type SourceKind string

const (
	SourceTwitch  SourceKind = "twitch"
	SourceLibrary SourceKind = "library"
)

// SourceParams is a tagged union over supported clip sources. Unknown kinds
// are preserved on load but rejected explicitly at use sites; they are never
// silently coerced into a supported variant.
type SourceParams struct {
	Kind    SourceKind    `json:"kind"`
	Twitch  *TwitchSource `json:"twitch,omitempty"`
	Library *LibraryRef   `json:"library,omitempty"`
}

// TwitchSource lists top clips for a channel over a trailing window.
type TwitchSource struct {
	Channel    string `json:"channel"`
	WindowDays int    `json:"window_days"`
}

// LibraryRef compiles from the owner's previously produced clips instead of a
// live platform listing.
type LibraryRef struct{}

// Validate rejects malformed or unsupported source definitions.
func (p SourceParams) Validate() error {
	switch p.Kind {
	case SourceTwitch:
		if p.Twitch == nil || strings.TrimSpace(p.Twitch.Channel) == "" {
			return fmt.Errorf("source %q requires a channel", p.Kind)
		}
		return nil
	case SourceLibrary:
		return nil
	case "":
		return fmt.Errorf("source kind is required")
	default:
		return fmt.Errorf("unsupported source kind %q", p.Kind)
	}
}

// OutputSettings describe the encoded compilation artifact.
type OutputSettings struct {
	Width     int    `json:"width"`
	Height    int    `json:"height"`
	FPS       int    `json:"fps"`
	Container string `json:"container"`
}

// DefaultOutputSettings match the platform's standard compilation profile.
func DefaultOutputSettings() OutputSettings {
	return OutputSettings{Width: 1920, Height: 1080, FPS: 30, Container: "mp4"}
}

func marshalSource(p SourceParams) (string, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshal source params: %w", err)
	}
	return string(data), nil
}

func unmarshalSource(raw string) (SourceParams, error) {
	var p SourceParams
	if strings.TrimSpace(raw) == "" {
		return p, fmt.Errorf("empty source params")
	}
	if err := json.Unmarshal([]byte(raw), &p); err != nil {
		return p, fmt.Errorf("parse source params: %w", err)
	}
	return p, nil
}

func marshalOutput(o OutputSettings) (string, error) {
	data, err := json.Marshal(o)
	if err != nil {
		return "", fmt.Errorf("marshal output settings: %w", err)
	}
	return string(data), nil
}

func unmarshalOutput(raw string) (OutputSettings, error) {
	if strings.TrimSpace(raw) == "" {
		return DefaultOutputSettings(), nil
	}
	var o OutputSettings
	if err := json.Unmarshal([]byte(raw), &o); err != nil {
		return o, fmt.Errorf("parse output settings: %w", err)
	}
	return o, nil
}

func joinTags(tags []string) string {
	cleaned := make([]string, 0, len(tags))
	for _, tag := range tags {
		if trimmed := strings.TrimSpace(tag); trimmed != "" {
			cleaned = append(cleaned, trimmed)
		}
	}
	return strings.Join(cleaned, ",")
}

func splitTags(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	tags := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			tags = append(tags, trimmed)
		}
	}
	return tags
}

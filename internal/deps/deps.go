// Package deps verifies the external tools the execution workers shell out
// to. Checks run at worker startup so a missing binary surfaces immediately
// instead of at the first claimed job.
package deps

import (
	"fmt"
	"os/exec"
	"strings"

	"clipforge/internal/config"
)

// Requirement defines one external binary a worker relies on.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status reports the availability of a requirement.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// WorkerRequirements lists the binaries an execution worker needs, resolved
// from configuration.
func WorkerRequirements(cfg *config.Config) []Requirement {
	return []Requirement{
		{
			Name:        "downloader",
			Command:     cfg.Acquire.DownloaderBinary,
			Description: "fetches source clips",
		},
		{
			Name:        "ffmpeg",
			Command:     cfg.Encode.FFmpegBinary,
			Description: "stitches clips into compilations",
		},
		{
			Name:        "ffprobe",
			Command:     cfg.Encode.FFprobeBinary,
			Description: "probes media durations",
			Optional:    true,
		},
	}
}

// CheckBinaries evaluates the requirements against PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, 0, len(requirements))
	for _, req := range requirements {
		command := strings.TrimSpace(req.Command)
		status := Status{Requirement: req}
		status.Command = command
		switch {
		case command == "":
			status.Detail = "command not configured"
		default:
			if _, err := exec.LookPath(command); err != nil {
				status.Detail = fmt.Sprintf("binary %q not found", command)
			} else {
				status.Available = true
			}
		}
		results = append(results, status)
	}
	return results
}

// Missing filters the statuses down to unavailable required binaries.
func Missing(statuses []Status) []Status {
	var missing []Status
	for _, status := range statuses {
		if !status.Available && !status.Optional {
			missing = append(missing, status)
		}
	}
	return missing
}

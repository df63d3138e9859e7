package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement is an external binary the caption pipeline shells out to.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
}

// Status is the outcome of checking one Requirement. Detail explains a
// failure, or holds the resolved executable path on success.
type Status struct {
	Requirement
	Available bool
	Detail    string
}

// CheckBinaries resolves each requirement's command on PATH.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		results[i] = lookup(req)
	}
	return results
}

func lookup(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	resolved, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("%q not found on PATH", req.Command)
		return status
	}
	status.Available = true
	status.Detail = resolved
	return status
}

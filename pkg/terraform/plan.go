package terraform

import (
	"bufio"
	"encoding/json"
	"fmt"
	"strings"
)

// PlanSummary aggregates a plan's proposed changes. Drifted lists
// resources whose live state no longer matches the recorded state.
type PlanSummary struct {
	Create  int
	Update  int
	Delete  int
	Replace int
	Changes []PlannedChange
	Drifted []string
}

// PlannedChange is one resource-level action from the plan.
type PlannedChange struct {
	Address string
	Action  string
}

// HasChanges reports whether applying would do anything.
func (s *PlanSummary) HasChanges() bool {
	return s.Create+s.Update+s.Delete+s.Replace > 0
}

// String renders the operator-facing one-line summary.
func (s *PlanSummary) String() string {
	return fmt.Sprintf("%d to create, %d to update, %d to replace, %d to delete",
		s.Create, s.Update, s.Replace, s.Delete)
}

// tfLogLine is the subset of terraform's machine-readable UI stream the
// runner cares about.
type tfLogLine struct {
	Level      string        `json:"@level"`
	Message    string        `json:"@message"`
	Type       string        `json:"type"`
	Change     *tfChange     `json:"change,omitempty"`
	Hook       *tfHook       `json:"hook,omitempty"`
	Diagnostic *tfDiagnostic `json:"diagnostic,omitempty"`
}

type tfChange struct {
	Resource tfResourceAddr `json:"resource"`
	Action   string         `json:"action"`
}

type tfHook struct {
	Resource tfResourceAddr `json:"resource"`
	Action   string         `json:"action"`
}

type tfResourceAddr struct {
	Addr string `json:"addr"`
}

type tfDiagnostic struct {
	Severity string `json:"severity"`
	Summary  string `json:"summary"`
	Detail   string `json:"detail"`
}

// parsePlanStream walks the line-delimited JSON from `plan -json`,
// counting planned changes and collecting drift. Unparseable lines are
// ignored; the stream interleaves human-oriented text in some failure
// modes.
func parsePlanStream(out string) *PlanSummary {
	summary := &PlanSummary{}
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var entry tfLogLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		switch entry.Type {
		case "planned_change":
			if entry.Change == nil {
				continue
			}
			action := entry.Change.Action
			switch action {
			case "create":
				summary.Create++
			case "update":
				summary.Update++
			case "delete":
				summary.Delete++
			case "replace":
				summary.Replace++
			default:
				continue
			}
			summary.Changes = append(summary.Changes, PlannedChange{
				Address: entry.Change.Resource.Addr,
				Action:  action,
			})
		case "resource_drift":
			if entry.Change != nil && entry.Change.Resource.Addr != "" {
				summary.Drifted = append(summary.Drifted, entry.Change.Resource.Addr)
			}
		}
	}
	return summary
}

// parseAppliedAddresses collects resources an apply actually changed
// before failing, from `apply -json` output.
func parseAppliedAddresses(out string) []string {
	var applied []string
	seen := make(map[string]bool)
	scanner := bufio.NewScanner(strings.NewReader(out))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || !strings.HasPrefix(line, "{") {
			continue
		}
		var entry tfLogLine
		if err := json.Unmarshal([]byte(line), &entry); err != nil {
			continue
		}
		if entry.Type != "apply_complete" || entry.Hook == nil {
			continue
		}
		addr := entry.Hook.Resource.Addr
		if addr != "" && !seen[addr] {
			seen[addr] = true
			applied = append(applied, addr)
		}
	}
	return applied
}

// ABOUTME: Scored health report over the openclaw config plus targeted auto-fixes.
// ABOUTME: Issues are deduplicated by id; ok means a score of 80 or better.

package doctor

import (
	"encoding/json"
	"os"

	"github.com/tailscale/hujson"

	"github.com/YHlorra/clawpal/internal/config"
)

// Issue ids. The id doubles as the auto-fix selector.
const (
	IssueSyntax     = "json.syntax"
	IssueAgents     = "field.agents"
	IssuePort       = "field.port"
	IssuePermission = "permission.config"
)

// Issue is one detected config problem.
type Issue struct {
	ID          string `json:"id"`
	Code        string `json:"code"`
	Severity    string `json:"severity"`
	Message     string `json:"message"`
	AutoFixable bool   `json:"autoFixable"`
	FixHint     string `json:"fixHint,omitempty"`
}

// Report is the outcome of one doctor run.
type Report struct {
	OK     bool    `json:"ok"`
	Score  int     `json:"score"`
	Issues []Issue `json:"issues"`
}

// Run checks the config at p and returns the scored report.
func Run(p config.Paths) Report {
	var issues []Issue
	score := 100

	text, err := os.ReadFile(p.ConfigPath)
	if err != nil {
		text = []byte(config.DefaultOpenClawConfig)
	}
	if _, err := hujson.Standardize(text); err != nil {
		issues = append(issues, Issue{
			ID:          IssueSyntax,
			Code:        "json.syntax",
			Severity:    "error",
			Message:     "Invalid JSON syntax",
			AutoFixable: true,
			FixHint:     "Try removing trailing commas and unmatched quotes",
		})
		score -= 40
	}

	cfg := config.ReadOpenClawConfig(p)
	if _, ok := cfg["agents"]; !ok {
		issues = append(issues, Issue{
			ID:          IssueAgents,
			Code:        "required.field",
			Severity:    "warn",
			Message:     "Missing agents field; recommend initializing defaults",
			AutoFixable: true,
			FixHint:     "Add agents.defaults with safe minimal values",
		})
		score -= 10
	}

	if port, ok := gatewayPort(cfg); ok && (port < 1 || port > 65535) {
		issues = append(issues, Issue{
			ID:       IssuePort,
			Code:     "invalid.port",
			Severity: "error",
			Message:  "Gateway port is invalid",
		})
		score -= 20
	}

	if !configWritable(p.ConfigPath) {
		issues = append(issues, Issue{
			ID:       IssuePermission,
			Code:     "fs.permission",
			Severity: "error",
			Message:  "Config file is readonly or inaccessible",
			FixHint:  "Grant write permission then retry",
		})
		score -= 20
	}

	issues = dedupIssues(issues)
	if score < 0 {
		score = 0
	}
	return Report{OK: score >= 80, Score: score, Issues: issues}
}

// ApplyFixes repairs the selected auto-fixable issues in place and returns
// the ids actually fixed.
func ApplyFixes(p config.Paths, issueIDs []string) ([]string, error) {
	selected := make(map[string]bool, len(issueIDs))
	for _, id := range issueIDs {
		selected[id] = true
	}

	var cfg map[string]any
	if err := config.ReadJSON(p.ConfigPath, &cfg); err != nil || cfg == nil {
		cfg = map[string]any{}
	}

	var fixed []string

	if selected[IssueSyntax] {
		// Rewriting the file from the parsed (or empty) tree normalizes any
		// tolerated syntax into strict JSON.
		if len(cfg) == 0 {
			cfg = map[string]any{"agents": map[string]any{"defaults": map[string]any{"model": "gpt-4o"}}}
		}
		fixed = append(fixed, IssueSyntax)
	}

	if selected[IssueAgents] {
		if _, ok := cfg["agents"]; !ok {
			cfg["agents"] = map[string]any{"defaults": map[string]any{"model": "gpt-4o"}}
			fixed = append(fixed, IssueAgents)
		}
	}

	if selected[IssuePort] {
		gateway, _ := cfg["gateway"].(map[string]any)
		if gateway == nil {
			gateway = map[string]any{}
		}
		gateway["port"] = 8080
		cfg["gateway"] = gateway
		fixed = append(fixed, IssuePort)
	}

	if len(fixed) == 0 {
		return nil, nil
	}
	if err := config.WriteJSON(p.ConfigPath, cfg); err != nil {
		return nil, err
	}
	return fixed, nil
}

// gatewayPort digs gateway.port out of the generic config map.
func gatewayPort(cfg map[string]any) (int, bool) {
	gateway, ok := cfg["gateway"].(map[string]any)
	if !ok {
		return 0, false
	}
	switch v := gateway["port"].(type) {
	case float64:
		return int(v), true
	case json.Number:
		n, err := v.Int64()
		return int(n), err == nil
	default:
		return 0, false
	}
}

// configWritable reports whether the config file exists and is writable.
func configWritable(path string) bool {
	info, err := os.Stat(path)
	if err != nil {
		return false
	}
	return info.Mode().Perm()&0o200 != 0
}

func dedupIssues(issues []Issue) []Issue {
	seen := make(map[string]bool, len(issues))
	out := issues[:0]
	for _, issue := range issues {
		if seen[issue.ID] {
			continue
		}
		seen[issue.ID] = true
		out = append(out, issue)
	}
	return out
}

package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"holmes/internal/domain"
	"holmes/internal/infra/catalog"
	"holmes/internal/infra/telemetry"
	"holmes/internal/infra/toolsets"
)

const tableErrorWidth = 80

type toolsetView struct {
	Name    string                 `json:"name"`
	Type    domain.ToolsetType     `json:"type"`
	Enabled bool                   `json:"enabled"`
	Status  domain.ToolsetStatus   `json:"status"`
	Error   string                 `json:"error,omitempty"`
	Path    string                 `json:"path,omitempty"`
	Tools   []string               `json:"tools"`
	Config  map[string]any         `json:"config,omitempty"`
	Remote  *domain.RemoteEndpoint `json:"remote,omitempty"`
}

func viewsOf(items []domain.Toolset) []toolsetView {
	out := make([]toolsetView, 0, len(items))
	for _, toolset := range items {
		tools := make([]string, 0, len(toolset.Tools))
		for _, tool := range toolset.Tools {
			tools = append(tools, tool.Name)
		}
		view := toolsetView{
			Name:    toolset.Name,
			Type:    toolset.Type,
			Enabled: toolset.Enabled,
			Status:  toolset.Status,
			Error:   toolset.Error,
			Path:    toolset.Path,
			Tools:   tools,
			Config:  telemetry.RedactConfig(toolset.Config),
		}
		if toolset.Remote != nil {
			view.Remote = &domain.RemoteEndpoint{
				URL:     toolset.Remote.URL,
				Headers: telemetry.RedactHeaders(toolset.Remote.Headers),
			}
		}
		if len(view.Config) == 0 {
			view.Config = nil
		}
		out = append(out, view)
	}
	return out
}

func writeJSON(w io.Writer, value any) error {
	data, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

func printToolsets(w io.Writer, items []domain.Toolset, issues []catalog.Issue, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, map[string]any{
			"toolsets": viewsOf(items),
			"issues":   nonNilIssues(issues),
		})
	}
	if err := writeToolsetTable(w, items); err != nil {
		return err
	}
	return writeIssues(w, issues)
}

func printRefresh(w io.Writer, report toolsets.RefreshReport, items []domain.Toolset, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, map[string]any{
			"report":   report,
			"toolsets": viewsOf(items),
		})
	}
	fmt.Fprintf(w, "outcome=%s evaluated=%d adopted=%d\n", report.Outcome, len(report.Evaluated), len(report.Adopted))
	return writeToolsetTable(w, items)
}

func printValidation(w io.Writer, result catalog.Result, jsonOutput bool) error {
	if jsonOutput {
		return writeJSON(w, map[string]any{
			"toolsets": viewsOf(derefToolsets(result.Toolsets)),
			"issues":   nonNilIssues(result.Issues),
		})
	}
	fmt.Fprintf(w, "toolsets=%d issues=%d\n", len(result.Toolsets), len(result.Issues))
	return writeIssues(w, result.Issues)
}

func writeToolsetTable(w io.Writer, items []domain.Toolset) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tTYPE\tENABLED\tSTATUS\tTOOLS\tERROR")
	for _, view := range viewsOf(items) {
		fmt.Fprintf(tw, "%s\t%s\t%t\t%s\t%d\t%s\n",
			view.Name, view.Type, view.Enabled, view.Status, len(view.Tools),
			telemetry.TruncateString(oneLine(view.Error), tableErrorWidth))
	}
	return tw.Flush()
}

func writeIssues(w io.Writer, issues []catalog.Issue) error {
	for _, issue := range issues {
		location := issue.Toolset
		if issue.Path != "" {
			location = strings.TrimSpace(location + " " + issue.Path)
		}
		if _, err := fmt.Fprintf(w, "issue: %s [%s] %s\n", location, issue.Code, oneLine(issue.Message)); err != nil {
			return err
		}
	}
	return nil
}

func derefToolsets(items []*domain.Toolset) []domain.Toolset {
	out := make([]domain.Toolset, 0, len(items))
	for _, toolset := range items {
		out = append(out, *toolset)
	}
	return out
}

func nonNilIssues(issues []catalog.Issue) []catalog.Issue {
	if issues == nil {
		return []catalog.Issue{}
	}
	return issues
}

func oneLine(value string) string {
	return strings.Join(strings.Fields(value), " ")
}

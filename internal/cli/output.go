package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"gopkg.in/yaml.v3"

	"mcpgateway/internal/api"
	"mcpgateway/internal/client"
	pkgstrings "mcpgateway/pkg/strings"
)

// OutputFormat selects how responses are rendered.
type OutputFormat string

const (
	OutputFormatTable OutputFormat = "table"
	OutputFormatWide  OutputFormat = "wide"
	OutputFormatJSON  OutputFormat = "json"
	OutputFormatYAML  OutputFormat = "yaml"
)

// ValidateOutputFormat parses s, case-insensitively.
func ValidateOutputFormat(s string) (OutputFormat, error) {
	switch f := OutputFormat(strings.ToLower(s)); f {
	case OutputFormatTable, OutputFormatWide, OutputFormatJSON, OutputFormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unsupported output format %q (valid: table, wide, json, yaml)", s)
}

// descLengthWide is the description budget in wide tables.
const descLengthWide = 100

// Printer renders API responses.
type Printer struct {
	out       io.Writer
	format    OutputFormat
	noHeaders bool
	color     bool
}

// NewPrinter creates a printer. An invalid format falls back to table.
func NewPrinter(out io.Writer, format string, noHeaders, color bool) *Printer {
	f, err := ValidateOutputFormat(format)
	if err != nil {
		f = OutputFormatTable
	}
	return &Printer{out: out, format: f, noHeaders: noHeaders, color: color}
}

func (p *Printer) wide() bool { return p.format == OutputFormatWide }

// structured handles json and yaml output. It reports false for table
// formats so callers fall through to their table rendering.
func (p *Printer) structured(v interface{}) (bool, error) {
	switch p.format {
	case OutputFormatJSON:
		return true, p.outputJSON(v)
	case OutputFormatYAML:
		return true, p.outputYAML(v)
	}
	return false, nil
}

func (p *Printer) outputJSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format as JSON: %w", err)
	}
	_, err = fmt.Fprintln(p.out, string(data))
	return err
}

// outputYAML goes through JSON first so the field names match the API's
// json tags.
func (p *Printer) outputYAML(v interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("failed to format as YAML: %w", err)
	}
	var generic interface{}
	if err := json.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("failed to format as YAML: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return fmt.Errorf("failed to format as YAML: %w", err)
	}
	_, err = p.out.Write(out)
	return err
}

func (p *Printer) newTable(headers ...interface{}) table.Writer {
	t := table.NewWriter()
	t.SetOutputMirror(p.out)
	style := table.StyleDefault
	style.Options.DrawBorder = false
	style.Options.SeparateColumns = false
	style.Options.SeparateHeader = false
	style.Options.SeparateRows = false
	style.Box.PaddingLeft = ""
	style.Box.PaddingRight = "   "
	style.Format.Header = text.FormatUpper
	t.SetStyle(style)
	if !p.noHeaders {
		t.AppendHeader(table.Row(headers))
	}
	return t
}

func (p *Printer) status(s api.ServerStatus) string {
	if !p.color {
		return string(s)
	}
	switch s {
	case api.StatusConnected:
		return text.FgGreen.Sprint(s)
	case api.StatusDegraded, api.StatusConnecting:
		return text.FgYellow.Sprint(s)
	case api.StatusError:
		return text.FgRed.Sprint(s)
	}
	return text.FgHiBlack.Sprint(s)
}

func (p *Printer) health(s api.HealthStatus) string {
	if !p.color {
		return string(s)
	}
	switch s {
	case api.HealthHealthy:
		return text.FgGreen.Sprint(s)
	case api.HealthDegraded:
		return text.FgYellow.Sprint(s)
	}
	return text.FgRed.Sprint(s)
}

// Servers prints a server list.
func (p *Printer) Servers(list *api.ServerList) error {
	if ok, err := p.structured(list); ok {
		return err
	}
	if len(list.Servers) == 0 {
		return p.message("No servers registered")
	}
	headers := []interface{}{"Name", "ID", "Transport", "Status", "Tools", "Last Health Check"}
	if p.wide() {
		headers = append(headers, "Endpoint", "Auto Connect", "Failures", "Error")
	}
	t := p.newTable(headers...)
	for _, s := range list.Servers {
		row := table.Row{s.Name, s.ID, s.TransportType, p.status(s.Status), s.ToolCount, age(s.LastHealthCheck)}
		if p.wide() {
			row = append(row,
				s.ConnectionConfig.Endpoint(s.TransportType),
				strconv.FormatBool(s.AutoConnect),
				s.ConsecutiveHealthFailures,
				pkgstrings.Truncate(s.ErrorMessage, descLengthWide))
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

// Server prints one server as a field/value table.
func (p *Printer) Server(rec *api.ServerRecord) error {
	if ok, err := p.structured(rec); ok {
		return err
	}
	t := p.newTable("Field", "Value")
	t.AppendRows([]table.Row{
		{"Name", rec.Name},
		{"ID", rec.ID},
		{"Transport", rec.TransportType},
		{"Endpoint", rec.ConnectionConfig.Endpoint(rec.TransportType)},
		{"Status", p.status(rec.Status)},
		{"Tools", rec.ToolCount},
		{"Auto Connect", rec.AutoConnect},
		{"Registered", formatTime(&rec.RegisteredAt)},
		{"Connected", formatTime(rec.ConnectedAt)},
		{"Last Health Check", formatTime(rec.LastHealthCheck)},
		{"Health Failures", rec.ConsecutiveHealthFailures},
	})
	if rec.HealthCheckURL != "" {
		t.AppendRow(table.Row{"Health URL", rec.HealthCheckURL})
	}
	if rec.ErrorMessage != "" {
		t.AppendRow(table.Row{"Error", rec.ErrorMessage})
	}
	t.Render()
	return nil
}

// Tools prints the tools of one server.
func (p *Printer) Tools(list *api.ToolList) error {
	if ok, err := p.structured(list); ok {
		return err
	}
	if len(list.Tools) == 0 {
		return p.message("No tools found")
	}
	headers := []interface{}{"Name", "Description"}
	if p.wide() {
		headers = append(headers, "Original Name", "Skills", "Updated")
	}
	t := p.newTable(headers...)
	for _, tool := range sortedTools(list.Tools) {
		t.AppendRow(p.toolRow(tool))
	}
	t.Render()
	return nil
}

func (p *Printer) toolRow(tool *api.ToolRecord) table.Row {
	desc := pkgstrings.Truncate(tool.Description, pkgstrings.DefaultDescriptionMaxLen)
	if p.wide() {
		desc = pkgstrings.Truncate(tool.Description, descLengthWide)
	}
	row := table.Row{tool.NamespacedName, desc}
	if p.wide() {
		row = append(row, tool.OriginalName, strings.Join(tool.SkillIDs, ","), formatTime(&tool.UpdatedAt))
	}
	return row
}

// SearchResults prints search results in relevance order.
func (p *Printer) SearchResults(res *api.SearchResponse) error {
	if ok, err := p.structured(res); ok {
		return err
	}
	if len(res.Results) == 0 {
		return p.message("No matching tools")
	}
	headers := []interface{}{"Name", "Server", "Status", "Description"}
	if p.wide() {
		headers = append(headers, "Server ID", "Skills")
	}
	t := p.newTable(headers...)
	for _, r := range res.Results {
		server, serverID, status := "(local)", "", ""
		if r.SourceServer != nil {
			server, serverID, status = r.SourceServer.Name, r.SourceServer.ID, p.status(r.SourceServer.Status)
		}
		desc := pkgstrings.Truncate(r.Description, pkgstrings.DefaultDescriptionMaxLen)
		if p.wide() {
			desc = pkgstrings.Truncate(r.Description, descLengthWide)
		}
		row := table.Row{r.NamespacedName, server, status, desc}
		if p.wide() {
			row = append(row, serverID, strings.Join(r.SkillIDs, ","))
		}
		t.AppendRow(row)
	}
	t.Render()
	return nil
}

// CallResult prints the content of a tool call. Text items are printed
// as-is; other content types as JSON.
func (p *Printer) CallResult(res *client.CallResult) error {
	if ok, err := p.structured(res); ok {
		return err
	}
	for _, raw := range res.Content {
		var item struct {
			Type string `json:"type"`
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &item); err == nil && item.Type == "text" {
			if _, err := fmt.Fprintln(p.out, item.Text); err != nil {
				return err
			}
			continue
		}
		if _, err := fmt.Fprintln(p.out, string(raw)); err != nil {
			return err
		}
	}
	if p.wide() {
		m := res.Metadata
		_, err := fmt.Fprintf(p.out, "\nrouted to %s (%s) as %q via %s in %.1fms\n",
			m.RoutedTo, m.ServerID, m.OriginalToolName, m.Strategy, m.TotalTimeMs)
		if err != nil {
			return err
		}
	}
	if res.Metadata.Warning != "" {
		if _, err := fmt.Fprintf(p.out, "warning: %s\n", res.Metadata.Warning); err != nil {
			return err
		}
	}
	if res.IsError {
		return fmt.Errorf("tool %s returned an error", res.Metadata.OriginalToolName)
	}
	return nil
}

// State prints the aggregator snapshot.
func (p *Printer) State(state *api.AggregatorState) error {
	if ok, err := p.structured(state); ok {
		return err
	}
	summary := p.newTable("Metric", "Value")
	summary.AppendRows([]table.Row{
		{"Servers", state.TotalServers},
		{"Tools", state.TotalTools},
		{"External Tools", state.ExternalTools},
		{"Available Tools", state.AvailableTools},
		{"Classified Tools", state.ClassifiedTools},
		{"Active Sessions", state.ActiveSessions},
		{"Inflight Calls", state.InflightCalls},
		{"Pending Classifications", state.PendingClassify},
	})
	for _, s := range api.AllStatuses {
		if n := state.ServersByStatus[s]; n > 0 {
			summary.AppendRow(table.Row{"Servers " + string(s), n})
		}
	}
	summary.Render()

	if len(state.Servers) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(p.out); err != nil {
		return err
	}
	t := p.newTable("Name", "ID", "Status", "Tools", "Error")
	for _, s := range state.Servers {
		t.AppendRow(table.Row{s.Name, s.ID, p.status(s.Status), s.ToolCount, pkgstrings.Truncate(s.ErrorMessage, pkgstrings.DefaultDescriptionMaxLen)})
	}
	t.Render()
	return nil
}

// Health prints the health report.
func (p *Printer) Health(report *api.HealthReport) error {
	if ok, err := p.structured(report); ok {
		return err
	}
	t := p.newTable("Field", "Value")
	t.AppendRows([]table.Row{
		{"Status", p.health(report.Status)},
		{"Servers", report.TotalServers},
		{"Available", report.AvailableServers},
	})
	if len(report.DegradedServers) > 0 {
		t.AppendRow(table.Row{"Degraded", strings.Join(report.DegradedServers, ", ")})
	}
	if len(report.ErroredServers) > 0 {
		t.AppendRow(table.Row{"Errored", strings.Join(report.ErroredServers, ", ")})
	}
	t.AppendRow(table.Row{"Checked", formatTime(&report.CheckedAt)})
	t.Render()
	return nil
}

// Refresh prints the result of a tool refresh.
func (p *Printer) Refresh(res *api.RefreshResult) error {
	if ok, err := p.structured(res); ok {
		return err
	}
	return p.message(fmt.Sprintf("Refreshed %s: %d tools (%d added, %d updated, %d removed, %d unchanged)",
		res.ServerID, res.ToolCount, res.Added, res.Updated, res.Removed, res.Unchanged))
}

// Removed prints a confirmation for a deleted server.
func (p *Printer) Removed(ref string) error {
	if ok, err := p.structured(map[string]string{"removed": ref}); ok {
		return err
	}
	return p.message(fmt.Sprintf("Server %s removed", ref))
}

func (p *Printer) message(msg string) error {
	_, err := fmt.Fprintln(p.out, msg)
	return err
}

func sortedTools(tools []*api.ToolRecord) []*api.ToolRecord {
	out := make([]*api.ToolRecord, len(tools))
	copy(out, tools)
	sort.SliceStable(out, func(i, j int) bool { return out[i].NamespacedName < out[j].NamespacedName })
	return out
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return t.Local().Format(time.RFC3339)
}

// age renders how long ago t was, kubectl style.
func age(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	d := time.Since(*t)
	switch {
	case d < time.Minute:
		return fmt.Sprintf("%ds ago", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	}
	return fmt.Sprintf("%dd ago", int(d.Hours()/24))
}

package tui

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abdidvp/layerfix/internal/domain"
)

// ── warm palette ──
var (
	accent    = lipgloss.Color("#D97706") // amber
	fg        = lipgloss.Color("#E8E6E3") // warm light gray
	dim       = lipgloss.Color("#6B7280") // muted gray
	faint     = lipgloss.Color("#3F3F46") // very dim
	success   = lipgloss.Color("#22C55E") // green
	danger    = lipgloss.Color("#EF4444") // red
	warning   = lipgloss.Color("#F59E0B") // amber-yellow
	info      = lipgloss.Color("#8B949E") // soft blue-gray
	skipColor = lipgloss.Color("#4B5563") // dark gray
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(accent).
			Align(lipgloss.Center)

	boxStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(accent).
			Padding(1, 4).
			Align(lipgloss.Center).
			Width(68)

	layerColors = map[domain.Layer]lipgloss.Color{
		domain.LayerController: lipgloss.Color("#60A5FA"), // blue
		domain.LayerService:    success,
		domain.LayerRepository: lipgloss.Color("#C084FC"), // violet
		domain.LayerEntity:     lipgloss.Color("#FB923C"), // orange
	}

	dimStyle      = lipgloss.NewStyle().Foreground(dim)
	faintStyle    = lipgloss.NewStyle().Foreground(faint)
	passStyle     = lipgloss.NewStyle().Foreground(success)
	failStyle     = lipgloss.NewStyle().Foreground(danger)
	warnStyle     = lipgloss.NewStyle().Foreground(warning)
	skipStyle     = lipgloss.NewStyle().Foreground(skipColor)
	errorTagStyle = lipgloss.NewStyle().Foreground(danger).Bold(true)
	warnTagStyle  = lipgloss.NewStyle().Foreground(warning).Bold(true)
	infoTagStyle  = lipgloss.NewStyle().Foreground(info)
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(fg)
	separatorLine = faintStyle.Render(strings.Repeat("─", 64))
)

// RenderReport renders a run report: the summary box, then per file the
// classification, violations and fix results.
func RenderReport(rep *domain.ProjectReport) string {
	var b strings.Builder

	title := headerStyle.Render("layerfix")
	subtitle := dimStyle.Render(rep.Project)
	status := passStyle.Render("success")
	switch {
	case rep.Cancelled:
		status = warnStyle.Render("cancelled")
	case !rep.Success:
		status = failStyle.Render("failed")
	}
	c := rep.Counts
	counts := dimStyle.Render(fmt.Sprintf("%d files  ·  %d violations  ·  %d advisories", c.Files, c.Violations, c.Advisories))
	outcomes := passStyle.Render(fmt.Sprintf("%d applied", c.Applied)) + dimStyle.Render("  ·  ") +
		skipStyle.Render(fmt.Sprintf("%d skipped", c.Skipped)) + dimStyle.Render("  ·  ") +
		failStyle.Render(fmt.Sprintf("%d failed", c.Failed))

	b.WriteString(boxStyle.Render(title + "\n" + subtitle + "\n\n" + status + "\n" + counts + "\n" + outcomes))
	b.WriteString("\n\n")
	if rep.Error != "" {
		b.WriteString("  " + errorTagStyle.Render("error") + " " + rep.Error + "\n\n")
	}

	for _, f := range rep.Files {
		if len(f.Violations) == 0 && len(f.Results) == 0 && f.ParseError == "" && !f.Created {
			continue
		}
		renderFile(&b, f)
	}

	b.WriteString("  " + separatorLine + "\n")
	if len(rep.Violations()) == 0 {
		b.WriteString("  " + passStyle.Render("No violations found.") + "\n")
	}
	b.WriteString("\n")
	return b.String()
}

func renderFile(b *strings.Builder, f domain.FileReport) {
	line := "  " + titleStyle.Render(shortenPath(f.Path))
	switch {
	case f.Created:
		line += "  " + passStyle.Render("created")
	case f.Reverted:
		line += "  " + warnStyle.Render("reverted")
	}
	b.WriteString(line + "\n")

	if f.ParseError != "" {
		fmt.Fprintf(b, "    %s %s\n", errorTagStyle.Render("parse"), dimStyle.Render(f.ParseError))
	}
	for _, u := range f.Units {
		fmt.Fprintf(b, "    %s %s\n", layerTag(u.Layer), dimStyle.Render(u.Name))
	}
	for _, v := range f.Violations {
		fmt.Fprintf(b, "    %s %s %s:%d  %s\n",
			severityTag(v.Severity),
			titleStyle.Render(v.RuleID),
			v.Unit+"."+v.Member,
			v.Span.StartLine,
			dimStyle.Render(v.Title),
		)
	}
	for _, r := range f.Results {
		renderResult(b, r)
	}
	b.WriteString("\n")
}

func renderResult(b *strings.Builder, r domain.FixResult) {
	target := ""
	if r.Target != "" {
		target = dimStyle.Render(" → " + r.Target)
	}
	fmt.Fprintf(b, "      %s %s %s%s\n", outcomeIcon(r.Outcome), r.RuleID, r.Member, target)
	if r.Error != "" {
		fmt.Fprintf(b, "        %s\n", failStyle.Render(r.Error))
	}
	for _, n := range r.Notes {
		fmt.Fprintf(b, "        %s\n", faintStyle.Render(n))
	}
}

func outcomeIcon(o domain.Outcome) string {
	switch o {
	case domain.OutcomeApplied:
		return passStyle.Render("●")
	case domain.OutcomeFailed:
		return failStyle.Render("●")
	default:
		return skipStyle.Render("○")
	}
}

func layerTag(l domain.Layer) string {
	c, ok := layerColors[l]
	if !ok {
		return skipStyle.Render(padRight(string(l), 12))
	}
	return lipgloss.NewStyle().Foreground(c).Render(padRight(string(l), 12))
}

func severityTag(severity domain.Severity) string {
	switch severity {
	case domain.SeverityError:
		return errorTagStyle.Render("error")
	case domain.SeverityWarning:
		return warnTagStyle.Render("warn ")
	default:
		return infoTagStyle.Render("info ")
	}
}

func shortenPath(path string) string {
	path = filepath.ToSlash(path)
	if idx := strings.Index(path, "src/main/java/"); idx >= 0 {
		return path[idx+len("src/main/java/"):]
	}
	parts := strings.Split(path, "/")
	if len(parts) > 3 {
		return strings.Join(parts[len(parts)-3:], "/")
	}
	return path
}

func padRight(s string, width int) string {
	if len(s) >= width {
		return s
	}
	return s + strings.Repeat(" ", width-len(s))
}

// RenderHistory formats run history for terminal output, most recent first.
func RenderHistory(runs []domain.RunSummary) string {
	if len(runs) == 0 {
		return "  " + dimStyle.Render("No run history found.") + "\n"
	}

	var b strings.Builder
	b.WriteString("\n")
	b.WriteString("  " + titleStyle.Render("Run History") + "\n")
	b.WriteString("  " + faintStyle.Render(strings.Repeat("─", 50)) + "\n\n")

	for _, r := range runs {
		hash := r.CommitHash
		if len(hash) > 7 {
			hash = hash[:7]
		}
		if hash == "" {
			hash = "·······"
		}
		status := passStyle.Render("ok  ")
		if !r.Success {
			status = failStyle.Render("fail")
		}
		fmt.Fprintf(&b, "  %s  %s  %s  %s  %s\n",
			dimStyle.Render(r.Timestamp.Format("2006-01-02 15:04")),
			faintStyle.Render(hash),
			status,
			padRight(r.Project, 16),
			dimStyle.Render(fmt.Sprintf("%d violations, %d applied, %d failed", r.Counts.Violations, r.Counts.Applied, r.Counts.Failed)),
		)
	}
	return b.String()
}

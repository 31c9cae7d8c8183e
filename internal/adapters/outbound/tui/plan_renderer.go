package tui

import (
	"fmt"
	"strings"

	"github.com/abdidvp/layerfix/internal/domain"
)

const planMaxRows = 20

// RenderPlans shows where each violation's logic is headed: source member,
// mode and target unit, with sequential plans marked.
func RenderPlans(plans []domain.FixPlan) string {
	if len(plans) == 0 {
		return "\n  " + dimStyle.Render("No fix plans.") + "\n\n"
	}

	var b strings.Builder
	hdr := fmt.Sprintf("  %-6s %-36s %-9s %s", "Rule", "Member", "Mode", "Target")
	b.WriteString(titleStyle.Render(hdr) + "\n")
	b.WriteString("  " + faintStyle.Render(strings.Repeat("─", 68)) + "\n")

	shown := min(planMaxRows, len(plans))
	for _, p := range plans[:shown] {
		member := truncateOrPad(p.Violation.Unit+"."+p.SourceName, 36)
		target := dimStyle.Render("—")
		if p.Target != nil {
			target = p.Target.Name
			if p.NewMethod != "" {
				target += "." + p.NewMethod
			}
			if p.Target.IsNew {
				target += " " + passStyle.Render("(new)")
			}
		}
		line := fmt.Sprintf("  %-6s %s %s %s", p.Violation.RuleID, dimStyle.Render(member), modeLabel(p.Mode), target)
		if p.SequentialDependency {
			line += "  " + warnStyle.Render("after "+p.DependsOn)
		}
		b.WriteString(line + "\n")
		if p.Blocked != "" {
			b.WriteString("         " + failStyle.Render("blocked: "+p.Blocked) + "\n")
		}
	}
	if remaining := len(plans) - shown; remaining > 0 {
		b.WriteString(faintStyle.Render(fmt.Sprintf("  (%d more plans)\n", remaining)))
	}
	b.WriteString("\n")
	return b.String()
}

func modeLabel(m domain.PlanMode) string {
	switch m {
	case domain.ModeDelegate, domain.ModeRelocate:
		return passStyle.Render(padRight(string(m), 9))
	default:
		return skipStyle.Render(padRight(string(m), 9))
	}
}

func truncateOrPad(s string, width int) string {
	if len(s) > width {
		return s[:width-1] + "…"
	}
	return padRight(s, width)
}

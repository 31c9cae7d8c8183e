package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/abdidvp/layerfix/internal/domain"
	"github.com/abdidvp/layerfix/internal/domain/rules"
)

var (
	sectionHeaderStyle = lipgloss.NewStyle().Bold(true).Foreground(accent)
	hintStyle          = lipgloss.NewStyle().Foreground(dim).Italic(true)
)

// RenderRules lists the active catalog grouped by the layer each rule
// inspects.
func RenderRules(all []rules.Rule) string {
	var b strings.Builder
	b.WriteString(boxStyle.Render(headerStyle.Render("Rule Catalog") + "\n" +
		dimStyle.Render(fmt.Sprintf("%d active rules", len(all)))))
	b.WriteString("\n")

	for _, layer := range domain.Layers {
		var section []rules.Rule
		for _, r := range all {
			for _, l := range r.Layers {
				if l == layer {
					section = append(section, r)
					break
				}
			}
		}
		if len(section) == 0 {
			continue
		}

		b.WriteString("\n")
		fmt.Fprintf(&b, "  %s %s\n", sectionHeaderStyle.Render(string(layer)), dimStyle.Render(fmt.Sprintf("(%d)", len(section))))
		for _, r := range section {
			target := hintStyle.Render("report only")
			if !r.Advisory() {
				target = dimStyle.Render("→ " + string(r.TargetLayer))
			}
			fmt.Fprintf(&b, "    %s %s %s  %s\n", severityTag(r.Severity), titleStyle.Render(r.ID), r.Title, target)
			if r.Source != "" {
				fmt.Fprintf(&b, "          %s\n", faintStyle.Render(r.Source))
			}
		}
	}

	b.WriteString("\n")
	b.WriteString("  " + hintStyle.Render("Run layerfix fix --dry-run <dir> to preview the relocations."))
	b.WriteString("\n")
	return b.String()
}

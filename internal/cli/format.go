package cli

import (
	"fmt"
	"math"
	"strings"

	"github.com/fatih/color"

	"anchorsync/internal/scene"
	"anchorsync/pkg"
)

var (
	doneColor  = color.New(color.FgHiGreen)
	dimColor   = color.New(color.FgHiBlack)
	errorColor = color.New(color.FgRed)
	headColor  = color.New(color.Bold)
)

// priorityColor mirrors the marker colors so the list and the scene agree
func priorityColor(p pkg.Priority) *color.Color {
	switch p {
	case pkg.PriorityHigh:
		return color.New(color.FgRed)
	case pkg.PriorityMedium:
		return color.New(color.FgYellow)
	case pkg.PriorityLow:
		return color.New(color.FgBlue)
	}
	return color.New(color.FgWhite)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func formatTask(t pkg.Task) string {
	check := "[ ]"
	title := t.Title
	if t.Completed {
		check = doneColor.Sprint("[x]")
		title = dimColor.Sprint(title)
	}

	line := fmt.Sprintf("%s %s  %s  %s", check, dimColor.Sprint(shortID(t.ID)), title,
		priorityColor(t.Priority).Sprintf("(%s)", t.Priority))
	if t.Position != nil {
		line += dimColor.Sprintf("  @ %s", *t.Position)
	}
	return line
}

// formatProgress returns "" when there are no tasks
func formatProgress(p pkg.Progress) string {
	if p.Total == 0 {
		return ""
	}
	pct := int(p.Fraction()*100 + 0.5)
	bar := strings.Repeat("#", pct/10) + strings.Repeat(".", 10-pct/10)
	return fmt.Sprintf("%s %d/%d completed (%d%%)", bar, p.Completed, p.Total, pct)
}

func formatEntity(v scene.EntityView) string {
	return fmt.Sprintf("%-8s %-24s %-6s pos=%s scale=%.2f yaw=%.1f°",
		shortID(v.Key), v.Title, v.Color, v.Position, v.Scale, v.Yaw*180/math.Pi)
}

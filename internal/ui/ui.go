// Package ui renders terminal output for the tsync CLI.
package ui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/mschirtzinger/tsync/internal/schema"
)

var (
	accentStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#5B8DEF")).Bold(true)
	passStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#3FB950"))
	warnStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#D29922"))
	failStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF6B6B"))
	mutedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	labelStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#AAAAAA")).Width(12)
	boxStyle    = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#444444")).
			Padding(0, 1)
)

func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }

// RenderOnline renders the connectivity state.
func RenderOnline(online bool) string {
	if online {
		return RenderPass("● online")
	}
	return RenderWarn("○ offline")
}

// Row is one label/value line of a Box.
type Row struct {
	Label string
	Value string
}

// Box renders a titled, bordered block of rows.
func Box(title string, rows []Row) string {
	lines := []string{RenderAccent(title), ""}
	for _, r := range rows {
		lines = append(lines, lipgloss.JoinHorizontal(lipgloss.Top, labelStyle.Render(r.Label), r.Value))
	}
	return boxStyle.Render(strings.Join(lines, "\n"))
}

// SyncBadge marks records that have not reached the remote store.
func SyncBadge(it schema.Item) string {
	switch {
	case it.MarkedForDeletion():
		return RenderFail("deleting")
	case it.SyncFailed:
		return RenderFail("sync failed")
	case it.IsOffline():
		return RenderWarn("offline")
	default:
		return ""
	}
}

// FormatItem renders one list or task as a single line.
func FormatItem(it schema.Item) string {
	var b strings.Builder
	b.WriteString(statusMark(it.Status))
	b.WriteString(" ")
	b.WriteString(it.Title)
	b.WriteString(" ")
	b.WriteString(RenderMuted(it.ID))

	var meta []string
	if it.Priority != "" && it.Priority != schema.PriorityMedium {
		meta = append(meta, string(it.Priority))
	}
	if it.DueDate != "" {
		meta = append(meta, "due "+it.DueDate)
	}
	if len(it.Tags) > 0 {
		meta = append(meta, "#"+strings.Join(it.Tags, " #"))
	}
	if len(meta) > 0 {
		b.WriteString(" ")
		b.WriteString(RenderMuted(fmt.Sprintf("(%s)", strings.Join(meta, ", "))))
	}
	if badge := SyncBadge(it); badge != "" {
		b.WriteString(" ")
		b.WriteString(badge)
	}
	return b.String()
}

func statusMark(s schema.Status) string {
	switch s {
	case schema.StatusDone:
		return RenderPass("[x]")
	case schema.StatusInProgress:
		return RenderAccent("[~]")
	default:
		return "[ ]"
	}
}

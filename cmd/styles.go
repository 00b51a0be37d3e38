package cmd

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/hildam/fin-flow-go/entity/consts"
)

var (
	colorSuccess = lipgloss.Color("#22C55E")
	colorError   = lipgloss.Color("#EF4444")
	colorInfo    = lipgloss.Color("#38BDF8")
	colorAccent  = lipgloss.Color("#A78BFA")
	colorMuted   = lipgloss.Color("#6B7280")

	styleSuccess = lipgloss.NewStyle().Foreground(colorSuccess).Bold(true)
	styleError   = lipgloss.NewStyle().Foreground(colorError).Bold(true)
	styleInfo    = lipgloss.NewStyle().Foreground(colorInfo)
	styleAccent  = lipgloss.NewStyle().Foreground(colorAccent).Bold(true)
	styleMuted   = lipgloss.NewStyle().Foreground(colorMuted)
	styleTitle   = lipgloss.NewStyle().Bold(true).Underline(true)
)

// eventStyle 事件名对应的样式
func eventStyle(name string) lipgloss.Style {
	switch name {
	case consts.EventNotification, consts.EventFinalResultReport:
		return styleAccent
	case consts.EventAllProposalsApproved, consts.EventExecution:
		return styleSuccess
	case consts.EventAllProposalsRejected:
		return styleError
	case consts.EventAgentOutput, consts.EventChatAnalysis:
		return styleInfo
	}
	return styleMuted
}

// mark 健康状态标记
func mark(ok bool) string {
	if ok {
		return styleSuccess.Render("✓")
	}
	return styleError.Render("✗")
}

// Package ui provides terminal styling for autodev CLI output.
package ui

import (
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"
)

var (
	ColorPass = lipgloss.AdaptiveColor{
		Light: "#2da44e",
		Dark:  "#3fb950",
	}
	ColorWarn = lipgloss.AdaptiveColor{
		Light: "#bf8700",
		Dark:  "#d29922",
	}
	ColorFail = lipgloss.AdaptiveColor{
		Light: "#cf222e",
		Dark:  "#f85149",
	}
	ColorMuted = lipgloss.AdaptiveColor{
		Light: "#6e7781",
		Dark:  "#8b949e",
	}
	ColorAccent = lipgloss.AdaptiveColor{
		Light: "#0969da",
		Dark:  "#58a6ff",
	}
)

var (
	passStyle   = lipgloss.NewStyle().Foreground(ColorPass)
	warnStyle   = lipgloss.NewStyle().Foreground(ColorWarn)
	failStyle   = lipgloss.NewStyle().Foreground(ColorFail)
	mutedStyle  = lipgloss.NewStyle().Foreground(ColorMuted)
	accentStyle = lipgloss.NewStyle().Foreground(ColorAccent)
	headerStyle = lipgloss.NewStyle().Bold(true).Foreground(ColorAccent)
)

// Status icons shared across commands.
const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✗"
	IconSkip = "-"
)

// Init configures the color profile from the environment. Call once at
// process start, before any styled output.
func Init() {
	if termenv.EnvNoColor() {
		DisableColor()
	}
}

// DisableColor forces plain output.
func DisableColor() {
	lipgloss.SetColorProfile(termenv.Ascii)
}

func RenderPass(s string) string   { return passStyle.Render(s) }
func RenderWarn(s string) string   { return warnStyle.Render(s) }
func RenderFail(s string) string   { return failStyle.Render(s) }
func RenderMuted(s string) string  { return mutedStyle.Render(s) }
func RenderAccent(s string) string { return accentStyle.Render(s) }
func RenderHeader(s string) string { return headerStyle.Render(s) }

func RenderPassIcon() string { return passStyle.Render(IconPass) }
func RenderWarnIcon() string { return warnStyle.Render(IconWarn) }
func RenderFailIcon() string { return failStyle.Render(IconFail) }
func RenderSkipIcon() string { return mutedStyle.Render(IconSkip) }

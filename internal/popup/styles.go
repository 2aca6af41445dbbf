package popup

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/xkilldash9x/bugreport-cli/internal/composer"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#B4BEFE"))

	infoStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#89B4FA"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6E3A1"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#F38BA8"))

	keyStyle      = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#CBA6F7"))
	disabledStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#585B70"))
	helpStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("#A6ADC8")).Padding(1, 0, 0, 0)

	panelStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#585B70")).
			Padding(1, 2)
)

func statusStyle(class composer.Class) lipgloss.Style {
	switch class {
	case composer.ClassSuccess:
		return successStyle
	case composer.ClassError:
		return errorStyle
	default:
		return infoStyle
	}
}

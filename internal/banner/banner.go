package banner

import (
	"valetbench/internal/tui/styles"

	"github.com/charmbracelet/lipgloss"
)

func GetString() string {
	renderer := lipgloss.DefaultRenderer()

	style := renderer.NewStyle().
		Foreground(styles.ColorBanner).
		Bold(true)

	ascii := `
 _   __     __     __  ___               __ 
| | / /__ _/ /__  / /_/ _ )___ ___  ____/ / 
| |/ / _ '/ / -_)/ __/ _  / -_) _ \/ __/ _ \
|___/\_,_/_/\__/ \__/____/\__/_//_/\__/_//_/`

	return "\n" + style.Render(ascii) + "\n" +
		styles.Subtle.Render("  proxy vs valet-key upload benchmark") + "\n"
}

package tui

// Color constants for the worklog TUI theme
const (
	ColorBorder = "#3A3F55" // Grey-blue

	// Text
	ColorPrimaryText   = "#E6EAF2"
	ColorSecondaryText = "#B1B8C7"
	ColorDisabledText  = "#6D7383"
	ColorHelpText      = "240"

	// Accents
	ColorAccentMain   = "#7C3AED"
	ColorAccentBright = "#A78BFA"

	// State
	ColorError   = "#EF4444"
	ColorSuccess = "#22C55E"
	ColorWarning = "#F59E0B"
)

package common

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/banner"
)

// PrintBanner displays the application banner and the resolved runtime settings
func PrintBanner(config *Config, logger arbor.ILogger) {
	b := banner.New().
		SetStyle(banner.StyleDouble).
		SetBorderColor(banner.ColorGreen).
		SetTextColor(banner.ColorWhite).
		SetBold(true).
		SetWidth(72)

	b.PrintTopLine()
	b.PrintCenteredText(AppName)
	b.PrintCenteredText("Version " + GetVersion())
	b.PrintSeparatorLine()
	b.PrintKeyValue("Backend", config.Backend.BaseURL, 14)
	b.PrintKeyValue("Browser", config.Browser.Mode, 14)
	b.PrintBottomLine()

	logger.Info().
		Str("version", GetFullVersion()).
		Str("backend", config.Backend.BaseURL).
		Str("browser_mode", config.Browser.Mode).
		Bool("keyring", config.Keyring.Enabled).
		Msg("Cookiepool starting")
}

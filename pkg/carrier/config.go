package carrier

import "log/slog"

// Config holds the credentials and defaults needed to place, steer and
// end calls through the carrier's REST API, and to validate signed
// webhook requests coming back from it.
type Config struct {
	AccountSID string `mapstructure:"account_sid"`
	AuthToken  string `mapstructure:"auth_token"`
	FromNumber string `mapstructure:"from_number"`

	// PublicURL is the bridge's public base URL. The carrier client does
	// not read it; webhook signature URLs are rebuilt from
	// webhook.Config.BaseURL.
	PublicURL string `mapstructure:"public_url"`

	Logger *slog.Logger
}

func (c Config) withDefaults() Config {
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
	return c
}

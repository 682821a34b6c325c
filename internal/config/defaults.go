package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			APIBase:   "http://localhost:8000/api",
			SocketURL: "ws://localhost:8000/ws",
		},
		Sync: SyncConfig{
			PollIntervalSeconds: 10,
			RequestTimeoutSec:   15,
		},
		Archive: ArchiveConfig{
			Enabled: false,
			DBPath:  "~/.lmsync/archive.db",
		},
		Login: LoginConfig{
			UsernameSelector: `input[name="login"]`,
			PasswordSelector: `input[name="password"]`,
			SubmitSelector:   `button[type="submit"]`,
			TokenCookie:      "access_token",
			ProfileDir:       "~/.lmsync/chrome-profile",
			Headless:         true,
		},
		Metrics: MetricsConfig{
			Enabled: false,
			Port:    9480,
		},
	}
}

package config

// GitHubConfig holds the GitHub App credentials. Token is only used when no
// App is configured (local development against a personal access token).
type GitHubConfig struct {
	AppID         int64
	PrivateKey    string
	WebhookSecret string
	Token         string
	APIURL        string
}

func loadGitHubConfig() GitHubConfig {
	return GitHubConfig{
		AppID:         getEnvInt64("GITHUB_APP_ID", 0),
		PrivateKey:    getEnv("GITHUB_APP_PRIVATE_KEY", ""),
		WebhookSecret: getEnv("GITHUB_WEBHOOK_SECRET", ""),
		Token:         getEnv("GITHUB_TOKEN", ""),
		APIURL:        getEnv("GITHUB_API_URL", ""),
	}
}

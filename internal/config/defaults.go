package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Server: ServerConfig{
			Host:        "0.0.0.0",
			Port:        8080,
			WebhookPath: "/api/webhook",
			VerifyToken: "${FB_VERIFY_TOKEN}",
		},
		Graph: GraphConfig{
			APIBase:         "https://graph.facebook.com",
			APIVersion:      "v2.12",
			BroadcastEchoes: false,
		},
		OpenAI: OpenAIConfig{
			APIKey:    "${OPENAI_API}",
			APIBase:   "https://api.openai.com/v1",
			Model:     "gpt-3.5-turbo",
			MaxTokens: 1024,
		},
		Store: StoreConfig{
			DBPath: "~/.faqbot/faqbot.db",
		},
		Content: ContentConfig{
			Path: "~/.faqbot/content.yaml",
		},
	}
}

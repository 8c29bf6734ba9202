package macrolog

type ModelConfig struct {
	ModelID     string  `env:"BEDROCK_MODEL_ID,default=us.anthropic.claude-3-7-sonnet-20250219-v1:0"`
	MaxTokens   int32   `env:"MAX_TOKENS,default=1024"`
	Temperature float32 `env:"TEMPERATURE,default=0.2"`
	TopP        float32 `env:"TOP_P,default=0.9"`
}

type ProviderConfig struct {
	ClaudeModel        string `env:"CLAUDE_MODEL,default=claude-haiku-4-5-20251001"`
	OpenAIModel        string `env:"OPENAI_MODEL,default=gpt-4o-mini"`
	GeminiModel        string `env:"GEMINI_MODEL,default=gemini-2.0-flash"`
	BaseOllamaEndpoint string `env:"BASE_OLLAMA_ENDPOINT,default=http://localhost:11434"`
	OllamaModel        string `env:"OLLAMA_MODEL,default=llama3.2"`
}

type SheetsConfig struct {
	Endpoint  string `env:"SHEETS_ENDPOINT"`
	SheetName string `env:"LOG_SHEET_NAME,default=Log"`
}

type OAuthConfig struct {
	ProxyBaseURL string `env:"OAUTH_PROXY_URL,default=http://localhost:7071"`
	RedirectURI  string `env:"OAUTH_REDIRECT_URI,default=http://127.0.0.1:8085/callback"`
	AuthURL      string `env:"GOOGLE_AUTH_URL,default=https://accounts.google.com/o/oauth2/v2/auth"`
	TokenURL     string `env:"GOOGLE_TOKEN_URL,default=https://oauth2.googleapis.com/token"`
}

type SettingsConfig struct {
	Path           string `env:"MACROLOG_SETTINGS_PATH,default=macrolog-settings.json"`
	S3Bucket       string `env:"MACROLOG_SETTINGS_S3_BUCKET"`
	S3Key          string `env:"MACROLOG_SETTINGS_S3_KEY,default=macrolog/settings.json"`
	KeyringService string `env:"MACROLOG_KEYRING_SERVICE,default=macrolog"`
	UseKeyring     bool   `env:"MACROLOG_USE_KEYRING,default=false"`
	OperationLog   string `env:"MACROLOG_OPERATION_LOG"`
}

type ServerConfig struct {
	Addr string `env:"API_ADDR,default=:7071"`
}

type NotifyConfig struct {
	WebhookURL string `env:"SLACK_WEBHOOK_URL"`
	Channel    string `env:"SLACK_CHANNEL,default=#food-log"`
}

// Package config defines the on-disk configuration schema and loads it
// from YAML, with environment variable expansion and strict field
// validation.
package config

// Config is the top-level configuration structure.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Logging   LoggingConfig   `yaml:"logging"`
	LLM       LLMConfig       `yaml:"llm"`
	Tools     ToolsConfig     `yaml:"tools"`
	Content   ContentConfig   `yaml:"content"`
	MCP       MCPConfig       `yaml:"mcp"`
	ChatStore ChatStoreConfig `yaml:"chat_store"`
}

// ServerConfig configures the HTTP facade.
type ServerConfig struct {
	Host     string `yaml:"host"`
	HTTPPort int    `yaml:"http_port"`
}

// LoggingConfig configures structured logging.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// LLMConfig configures the OpenAI-compatible chat completion endpoint.
type LLMConfig struct {
	BaseURL    string `yaml:"base_url"`
	APIKey     string `yaml:"api_key"`
	Model      string `yaml:"model"`
	SystemRole string `yaml:"system_role"`
}

// ToolsConfig configures the tool-augmented conversation loop.
type ToolsConfig struct {
	// MaxRounds bounds the number of LLM-stream/tool-invocation rounds
	// within a single turn. Defaults to 8 when zero.
	MaxRounds int `yaml:"max_rounds"`
}

// ContentConfig configures the content filter applied before persistence.
type ContentConfig struct {
	// MaxLength is the maximum number of codepoints a filtered response
	// may contain before it is rejected. Defaults to 10000 when zero.
	MaxLength int `yaml:"max_length"`
}

// MCPConfig configures the set of Model Context Protocol servers and the
// schedule on which their tool registries are refreshed.
type MCPConfig struct {
	Servers         []MCPServerConfig `yaml:"servers"`
	RefreshSchedule string            `yaml:"refresh_schedule"`
}

// MCPServerConfig describes one configured MCP server.
type MCPServerConfig struct {
	Name    string        `yaml:"name"`
	BaseURL string        `yaml:"base_url"`
	Auth    MCPAuthConfig `yaml:"auth"`
}

// MCPAuthConfig describes the authentication scheme for one MCP server.
// Kind selects which of the remaining fields apply: "none", "bearer",
// "basic", "api_key", or "oauth2_client_credentials".
type MCPAuthConfig struct {
	Kind string `yaml:"kind"`

	Token string `yaml:"token,omitempty"` // bearer

	Username string `yaml:"username,omitempty"` // basic
	Password string `yaml:"password,omitempty"` // basic

	Header string `yaml:"header,omitempty"` // api_key
	Value  string `yaml:"value,omitempty"`  // api_key

	AuthServerURL string `yaml:"auth_server_url,omitempty"` // oauth2_client_credentials
	Realm         string `yaml:"realm,omitempty"`
	ClientID      string `yaml:"client_id,omitempty"`
	ClientSecret  string `yaml:"client_secret,omitempty"`
}

// ChatStoreConfig selects and configures the chat message store.
type ChatStoreConfig struct {
	// Driver is "memory" or "sqlite". Defaults to "memory" when empty.
	Driver string `yaml:"driver"`
	// DSN is the sqlite data source name, used only when Driver is "sqlite".
	DSN string `yaml:"dsn"`
}

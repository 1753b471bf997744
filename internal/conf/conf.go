package conf

import (
	"os"
	"path/filepath"
	"strings"
)

// Config represents application configuration
type Config struct {
	// Lark configuration (chat transport)
	Lark LarkConfig

	// Staff configuration
	Staff StaffConfig

	// Keyword suggester configuration (optional)
	Suggest SuggestConfig

	// Store configuration
	Store StoreConfig

	// Replies configuration (loaded from YAML)
	Replies *RepliesConfig

	// Debug mode
	Debug bool
}

// LarkConfig contains chat transport credentials
type LarkConfig struct {
	AppID     string
	AppSecret string
}

// StaffConfig contains the staff channel and admin identities
type StaffConfig struct {
	ChatID   string   // staff group chat
	ThreadID string   // topic inside the staff chat, optional
	AdminIDs []string // users allowed to answer and reject questions
}

// SuggestConfig contains keyword-suggestion API settings
type SuggestConfig struct {
	APIKey  string
	BaseURL string
	Model   string
}

// StoreConfig contains durable storage paths
type StoreConfig struct {
	KnowledgeDBPath string
	QuestionsDBPath string
}

// LoadFromEnv loads configuration from environment variables
func LoadFromEnv() *Config {
	// Storage paths
	knowledgeDBPath := os.Getenv("KNOWLEDGE_DB_PATH")
	questionsDBPath := os.Getenv("QUESTIONS_DB_PATH")
	if knowledgeDBPath == "" || questionsDBPath == "" {
		homeDir, _ := os.UserHomeDir()
		dataDir := filepath.Join(homeDir, ".bereg")
		if knowledgeDBPath == "" {
			knowledgeDBPath = filepath.Join(dataDir, "knowledge.db")
		}
		if questionsDBPath == "" {
			questionsDBPath = filepath.Join(dataDir, "questions.db")
		}
	}

	// Admin ids, comma separated
	var adminIDs []string
	for _, id := range strings.Split(os.Getenv("STAFF_ADMIN_IDS"), ",") {
		if id = strings.TrimSpace(id); id != "" {
			adminIDs = append(adminIDs, id)
		}
	}

	// Load replies from YAML
	repliesConfigPath := os.Getenv("REPLIES_CONFIG_PATH")
	repliesConfig, _ := LoadRepliesConfig(repliesConfigPath)
	if repliesConfig == nil {
		repliesConfig = DefaultRepliesConfig()
	}

	return &Config{
		Lark: LarkConfig{
			AppID:     os.Getenv("LARK_APP_ID"),
			AppSecret: os.Getenv("LARK_APP_SECRET"),
		},
		Staff: StaffConfig{
			ChatID:   os.Getenv("STAFF_CHAT_ID"),
			ThreadID: os.Getenv("STAFF_THREAD_ID"),
			AdminIDs: adminIDs,
		},
		Suggest: SuggestConfig{
			APIKey:  os.Getenv("SUGGEST_API_KEY"),
			BaseURL: os.Getenv("SUGGEST_BASE_URL"),
			Model:   os.Getenv("SUGGEST_MODEL"),
		},
		Store: StoreConfig{
			KnowledgeDBPath: knowledgeDBPath,
			QuestionsDBPath: questionsDBPath,
		},
		Replies: repliesConfig,
		Debug:   os.Getenv("DEBUG") == "true",
	}
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Lark.AppID == "" || c.Lark.AppSecret == "" {
		return &ConfigError{Field: "LARK_APP_ID/LARK_APP_SECRET", Message: "required"}
	}
	if c.Staff.ChatID == "" {
		return &ConfigError{Field: "STAFF_CHAT_ID", Message: "required"}
	}
	return nil
}

// ConfigError represents a configuration error
type ConfigError struct {
	Field   string
	Message string
}

func (e *ConfigError) Error() string {
	return e.Field + ": " + e.Message
}

// StaffList implements a privilege check over a fixed id list.
type StaffList struct {
	ids map[string]struct{}
}

// NewStaffList creates a privilege check from admin ids.
func NewStaffList(adminIDs []string) *StaffList {
	ids := make(map[string]struct{}, len(adminIDs))
	for _, id := range adminIDs {
		ids[id] = struct{}{}
	}
	return &StaffList{ids: ids}
}

// IsStaff reports whether the user may perform admin actions.
func (s *StaffList) IsStaff(userID string) bool {
	_, ok := s.ids[userID]
	return ok
}

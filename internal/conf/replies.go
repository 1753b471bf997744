package conf

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/beregbot/bereg/internal/biz/usecase"
	"gopkg.in/yaml.v3"
)

// RepliesConfig contains matcher thresholds and reply copy loaded from YAML
type RepliesConfig struct {
	Matcher MatcherConfig `yaml:"matcher"`
	Guest   GuestReplies  `yaml:"guest"`
	Staff   StaffReplies  `yaml:"staff"`
}

// MatcherConfig contains match acceptance thresholds
type MatcherConfig struct {
	SemanticThreshold float64 `yaml:"semantic_threshold"`
	KeywordThreshold  float64 `yaml:"keyword_threshold"`
}

// GuestReplies contains guest-facing reply copy
type GuestReplies struct {
	TooShort     string `yaml:"too_short"`
	Forwarded    string `yaml:"forwarded"`
	InProgress   string `yaml:"in_progress"`
	Rejected     string `yaml:"rejected"`
	Error        string `yaml:"error"`
	AnswerPrefix string `yaml:"answer_prefix"`
}

// StaffReplies contains staff-facing reply copy
type StaffReplies struct {
	NewQuestion    string `yaml:"new_question"`
	KeywordsPrompt string `yaml:"keywords_prompt"`
	KeywordsRetry  string `yaml:"keywords_retry"`
	Saved          string `yaml:"saved"`
	AlreadyHandled string `yaml:"already_handled"`
	SaveFailed     string `yaml:"save_failed"`
}

// LoadRepliesConfig loads replies configuration from YAML file
func LoadRepliesConfig(configPath string) (*RepliesConfig, error) {
	// Try multiple paths
	paths := []string{configPath}
	if configPath == "" {
		paths = []string{
			"configs/replies.yaml",
			"./configs/replies.yaml",
			"/etc/bereg/replies.yaml",
		}
		// Add path relative to executable
		if execPath, err := os.Executable(); err == nil {
			paths = append(paths, filepath.Join(filepath.Dir(execPath), "configs", "replies.yaml"))
		}
		// Add path relative to working directory
		if wd, err := os.Getwd(); err == nil {
			paths = append(paths, filepath.Join(wd, "configs", "replies.yaml"))
		}
	}

	var data []byte
	var err error

	for _, p := range paths {
		data, err = os.ReadFile(p)
		if err == nil {
			break
		}
	}

	if data == nil {
		// Return default config if no file found
		return DefaultRepliesConfig(), nil
	}

	var config RepliesConfig
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse replies.yaml: %w", err)
	}

	// Fill in defaults for empty values
	config.fillDefaults()

	return &config, nil
}

// fillDefaults fills in default values for empty fields
func (c *RepliesConfig) fillDefaults() {
	defaults := DefaultRepliesConfig()

	if c.Matcher.SemanticThreshold == 0 {
		c.Matcher.SemanticThreshold = defaults.Matcher.SemanticThreshold
	}
	if c.Matcher.KeywordThreshold == 0 {
		c.Matcher.KeywordThreshold = defaults.Matcher.KeywordThreshold
	}

	if c.Guest.TooShort == "" {
		c.Guest.TooShort = defaults.Guest.TooShort
	}
	if c.Guest.Forwarded == "" {
		c.Guest.Forwarded = defaults.Guest.Forwarded
	}
	if c.Guest.InProgress == "" {
		c.Guest.InProgress = defaults.Guest.InProgress
	}
	if c.Guest.Rejected == "" {
		c.Guest.Rejected = defaults.Guest.Rejected
	}
	if c.Guest.Error == "" {
		c.Guest.Error = defaults.Guest.Error
	}
	if c.Guest.AnswerPrefix == "" {
		c.Guest.AnswerPrefix = defaults.Guest.AnswerPrefix
	}

	if c.Staff.NewQuestion == "" {
		c.Staff.NewQuestion = defaults.Staff.NewQuestion
	}
	if c.Staff.KeywordsPrompt == "" {
		c.Staff.KeywordsPrompt = defaults.Staff.KeywordsPrompt
	}
	if c.Staff.KeywordsRetry == "" {
		c.Staff.KeywordsRetry = defaults.Staff.KeywordsRetry
	}
	if c.Staff.Saved == "" {
		c.Staff.Saved = defaults.Staff.Saved
	}
	if c.Staff.AlreadyHandled == "" {
		c.Staff.AlreadyHandled = defaults.Staff.AlreadyHandled
	}
	if c.Staff.SaveFailed == "" {
		c.Staff.SaveFailed = defaults.Staff.SaveFailed
	}
}

// ToTexts converts the reply copy to the usecase text bundle
func (c *RepliesConfig) ToTexts() usecase.Texts {
	return usecase.Texts{
		TooShort:       c.Guest.TooShort,
		Forwarded:      c.Guest.Forwarded,
		InProgress:     c.Guest.InProgress,
		Rejected:       c.Guest.Rejected,
		UserError:      c.Guest.Error,
		AnswerPrefix:   c.Guest.AnswerPrefix,
		NewQuestion:    c.Staff.NewQuestion,
		KeywordsPrompt: c.Staff.KeywordsPrompt,
		KeywordsRetry:  c.Staff.KeywordsRetry,
		Saved:          c.Staff.Saved,
		AlreadyHandled: c.Staff.AlreadyHandled,
		SaveFailed:     c.Staff.SaveFailed,
	}
}

// DefaultRepliesConfig returns the default replies configuration
func DefaultRepliesConfig() *RepliesConfig {
	return &RepliesConfig{
		Matcher: MatcherConfig{
			SemanticThreshold: usecase.DefaultSemanticThreshold,
			KeywordThreshold:  usecase.DefaultKeywordThreshold,
		},
		Guest: GuestReplies{
			TooShort:     "Пожалуйста, уточните ваш вопрос, он слишком короткий.",
			Forwarded:    "Спасибо за ваш вопрос! 🤔\n\nЯ передам его нашему менеджеру, и он ответит вам в ближайшее время.",
			InProgress:   "Ваш предыдущий вопрос ещё обрабатывается.\n\nПожалуйста, дождитесь ответа от менеджера.",
			Rejected:     "Ваш вопрос некорректен, сформулируйте пожалуйста снова",
			Error:        "❌ Произошла ошибка. Попробуйте ещё раз.",
			AnswerPrefix: "💬 Ответ от менеджера:\n\n",
		},
		Staff: StaffReplies{
			NewQuestion:    "❓ Новый вопрос от пользователя %s (%s):\n\n%s",
			KeywordsPrompt: "✅ Ответ отправлен пользователю.\n\n🔤 Укажите ключевые слова через запятую (для поиска похожих вопросов)\n\n💡 Или напишите \"авто\" для автоматической генерации ключевых слов",
			KeywordsRetry:  "Ключевые слова некорректны, укажите их снова через запятую.",
			Saved:          "✅ Ответ сохранен в базе знаний с ключевыми словами: %s",
			AlreadyHandled: "❌ Вопрос не найден — возможно, на него уже ответили.",
			SaveFailed:     "❌ Произошла ошибка при сохранении. Попробуйте ещё раз.",
		},
	}
}

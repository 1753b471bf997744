package suggest

import (
	"context"
	"fmt"
	"strings"
	"time"
	"unicode"
	"unicode/utf8"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"
)

const (
	defaultModel = "gpt-4o-mini"
	maxKeywords  = 7
)

// Suggester generates knowledge-base keywords for an answered question
// using an OpenAI-compatible completion API, with a text-analysis fallback
// when the API is unavailable.
type Suggester struct {
	client *openai.Client
	model  string
	logger *zap.Logger
}

// NewSuggester creates a new suggester. An empty apiKey disables the API
// path entirely and every call falls back to manual extraction.
func NewSuggester(apiKey, baseURL, model string, logger *zap.Logger) *Suggester {
	if model == "" {
		model = defaultModel
	}

	var client *openai.Client
	if apiKey != "" {
		config := openai.DefaultConfig(apiKey)
		if baseURL != "" {
			config.BaseURL = baseURL
		}
		client = openai.NewClientWithConfig(config)
	}

	return &Suggester{
		client: client,
		model:  model,
		logger: logger,
	}
}

// Suggest returns 3-7 keywords for the question/answer pair. It never
// returns an empty list: when both the API and text analysis come up
// short, a fixed fallback set is used.
func (s *Suggester) Suggest(ctx context.Context, question, answer string) ([]string, error) {
	if s.client != nil {
		keywords, err := s.generate(ctx, question, answer)
		if err != nil {
			s.logger.Warn("keyword generation failed, using manual extraction", zap.Error(err))
		} else if len(keywords) > 0 {
			s.logger.Info("keywords generated", zap.Strings("keywords", keywords))
			return keywords, nil
		}
	}

	return s.manualKeywords(question, answer), nil
}

// generate asks the completion API for a comma-separated keyword list.
func (s *Suggester) generate(ctx context.Context, question, answer string) ([]string, error) {
	prompt := fmt.Sprintf(`Вопрос: "%s"
Ответ: "%s"

Контекст: База отдыха на озере

Задача: Создай список ключевых слов (3-7 слов) через запятую для поиска этого ответа. Ключевые слова должны быть:
- На русском языке
- Связаны с базой отдыха
- Помогать найти этот ответ при похожих вопросах
- Включать синонимы и вариации

Ключевые слова:`, question, answer)

	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	resp, err := s.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: s.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: 0.7,
		MaxTokens:   50,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}

	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("no response choices")
	}

	return extractKeywords(resp.Choices[0].Message.Content), nil
}

// extractKeywords parses a keyword list out of model output.
func extractKeywords(text string) []string {
	clean := strings.TrimSpace(text)
	for _, prefix := range []string{"Ключевые слова:", "ключевые слова:", "Ключевые слова", "ключевые слова"} {
		clean = strings.ReplaceAll(clean, prefix, "")
	}

	var keywords []string
	for _, part := range strings.FieldsFunc(clean, func(r rune) bool {
		return r == ',' || r == '\n' || r == '\r'
	}) {
		word := strings.ToLower(strings.TrimSpace(part))
		n := utf8.RuneCountInString(word)
		if n > 2 && n < 20 && hasCyrillic(word) {
			keywords = append(keywords, word)
			if len(keywords) == maxKeywords {
				break
			}
		}
	}
	return keywords
}

// resortVocabulary maps resort topics to the keyword groups guests use
// when asking about them.
var resortVocabulary = [][]string{
	{"питание", "еда", "кухня", "готовить", "мангал"},
	{"дом", "комната", "номер", "жилье", "размещение"},
	{"цена", "стоимость", "сколько", "деньги", "тариф"},
	{"душ", "туалет", "удобства", "ванная", "баня"},
	{"развлечения", "досуг", "активности", "купание"},
	{"трансфер", "доехать", "добраться", "парковка", "машина"},
	{"услуги", "сервис", "обслуживание", "включено"},
}

var stopWords = map[string]struct{}{
	"и": {}, "в": {}, "на": {}, "с": {}, "по": {}, "для": {}, "от": {}, "до": {}, "из": {}, "у": {}, "о": {}, "об": {},
	"но": {}, "да": {}, "или": {}, "а": {}, "то": {}, "как": {}, "что": {}, "это": {}, "тот": {}, "все": {},
	"она": {}, "он": {}, "они": {}, "мы": {}, "вы": {}, "я": {}, "не": {}, "ни": {}, "бы": {}, "ли": {},
	"же": {}, "уже": {}, "еще": {}, "там": {}, "тут": {}, "где": {}, "куда": {}, "когда": {}, "если": {},
}

// fallbackKeywords is the last resort when nothing can be extracted.
var fallbackKeywords = []string{"база отдыха", "услуги", "информация"}

// manualKeywords derives keywords by matching the pair against the resort
// vocabulary and picking out significant words from the text itself.
func (s *Suggester) manualKeywords(question, answer string) []string {
	text := strings.ToLower(question + " " + answer)

	var found []string
	seen := make(map[string]struct{})
	add := func(word string) {
		if _, ok := seen[word]; !ok {
			seen[word] = struct{}{}
			found = append(found, word)
		}
	}

	for _, group := range resortVocabulary {
		for _, word := range group {
			if strings.Contains(text, word) {
				add(word)
				// Pull in the closest related words from the same group
				for _, related := range group[:3] {
					add(related)
				}
				break
			}
		}
	}

	for _, word := range importantWords(text) {
		add(word)
	}

	if len(found) > maxKeywords {
		found = found[:maxKeywords]
	}
	if len(found) == 0 {
		found = append(found, fallbackKeywords...)
	}

	s.logger.Info("keywords extracted manually", zap.Strings("keywords", found))
	return found
}

// importantWords picks up to ten Cyrillic words longer than three runes
// that are not stop words.
func importantWords(text string) []string {
	fields := strings.FieldsFunc(text, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})

	var words []string
	for _, word := range fields {
		if utf8.RuneCountInString(word) <= 3 {
			continue
		}
		if _, stop := stopWords[word]; stop {
			continue
		}
		if !hasCyrillic(word) {
			continue
		}
		words = append(words, word)
		if len(words) == 10 {
			break
		}
	}
	return words
}

func hasCyrillic(word string) bool {
	for _, r := range word {
		if unicode.Is(unicode.Cyrillic, r) {
			return true
		}
	}
	return false
}

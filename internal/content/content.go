// Package content loads the static conversational content pack: the
// guide strings prepended to every completion request, the FAQ question
// list, the admin allow-list, and the persistent-menu buttons. The pack
// is read once at process start and treated as immutable.
package content

import (
	"fmt"
	"log/slog"
	"os"

	"faqbot/internal/domain"

	"gopkg.in/yaml.v3"
)

// MenuButton is one persistent-menu entry.
type MenuButton struct {
	Title   string `yaml:"title"`
	Payload string `yaml:"payload"`
}

// Content is the loaded content pack.
type Content struct {
	Assistant string       `yaml:"assistant"` // lead system instruction
	Guides    []string     `yaml:"guides"`    // additional system context, in order
	Questions []string     `yaml:"questions"` // FAQ questions, index-addressable
	Admins    []string     `yaml:"admins"`    // sender IDs allowed to run admin commands
	Menu      []MenuButton `yaml:"menu"`
}

// Load reads and parses the content pack at path.
func Load(path string, logger *slog.Logger) (*Content, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read content pack %s: %w", path, err)
	}

	var c Content
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cannot parse content pack %s: %w", path, err)
	}

	if c.Assistant == "" {
		return nil, fmt.Errorf("content pack %s: assistant instruction is required", path)
	}
	if len(c.Questions) == 0 {
		logger.Warn("content pack has no FAQ questions", "path", path)
	}

	logger.Info("content pack loaded",
		"path", path,
		"guides", len(c.Guides),
		"questions", len(c.Questions),
		"admins", len(c.Admins),
	)
	return &c, nil
}

// GuideMessages returns the Guide Set as role-tagged messages: the
// assistant instruction first, then each guide string, in order.
func (c *Content) GuideMessages() []domain.ChatMessage {
	msgs := make([]domain.ChatMessage, 0, len(c.Guides)+1)
	msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: c.Assistant})
	for _, g := range c.Guides {
		msgs = append(msgs, domain.ChatMessage{Role: domain.RoleSystem, Content: g})
	}
	return msgs
}

// Question returns the FAQ question at index, or false when the index
// is out of range.
func (c *Content) Question(i int) (string, bool) {
	if i < 0 || i >= len(c.Questions) {
		return "", false
	}
	return c.Questions[i], true
}

// IsAdmin reports whether senderID is on the admin allow-list.
func (c *Content) IsAdmin(senderID string) bool {
	for _, id := range c.Admins {
		if id == senderID {
			return true
		}
	}
	return false
}

// Starter is a minimal content pack written by `faqbot init`.
const Starter = `# faqbot content pack
assistant: 'You are a helpful assistant for Camp Cesaria that answers "Frequently Asked Questions" by their users.'
guides: []
questions:
  - What are your check-in and check-out times?
  - Do you allow pets on the campsite?
admins: []
menu:
  - title: FAQs
    payload: MENU_FAQ
  - title: Talk to a person
    payload: TALK_TO_PERSON
`

// WriteStarter writes the starter pack to path unless a file already exists.
func WriteStarter(path string) error {
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("content pack already exists at %s", path)
	}
	return os.WriteFile(path, []byte(Starter), 0o644)
}

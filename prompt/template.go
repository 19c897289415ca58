package prompt

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"text/template"
)

// Config controls prompt budgeting and role layout.
type Config struct {
	// MaxPromptLength is the prompt budget in characters.
	MaxPromptLength int `json:"max_prompt_length" yaml:"max_prompt_length"`
	// JobInChat sends the job as a trailing user turn instead of the system block.
	JobInChat bool `json:"job_in_chat" yaml:"job_in_chat"`
	// SystemRoleAllowed is false for templates without a system role.
	SystemRoleAllowed bool `json:"system_role_allowed" yaml:"system_role_allowed"`
}

// DefaultConfig returns the budget used by the default model.
func DefaultConfig() Config {
	return Config{
		MaxPromptLength:   1024 * 3 * 4,
		JobInChat:         false,
		SystemRoleAllowed: true,
	}
}

// Vars are the values a chat template can reference besides the turns.
type Vars struct {
	BOS     string
	EOS     string
	Speaker string
}

// Renderer turns role/content turns into a wire-format prompt.
type Renderer interface {
	Render(turns []Turn, vars Vars) (string, error)
}

// Template is a chat template in Go text/template syntax. Inside the
// template .Messages, .BOS, .EOS and .Speaker are available, plus the
// functions even and fail.
type Template struct {
	Name string `json:"name" yaml:"name"`
	BOS  string `json:"bos_token" yaml:"bos_token"`
	EOS  string `json:"eos_token" yaml:"eos_token"`
	UNK  string `json:"unk_token" yaml:"unk_token"`
	Chat string `json:"chat_template" yaml:"chat_template"`
}

var (
	// ChatML is the template used by OpenHermes style models.
	ChatML = Template{
		Name: "chatml",
		BOS:  "<s>",
		EOS:  "<|im_end|>",
		UNK:  "<unk>",
		Chat: "{{range .Messages}}<|im_start|>{{.Role}}\n{{.Content}}<|im_end|>\n{{end}}<|im_start|>{{.Speaker}}\n",
	}

	// Mistral is the instruction format; it has no system role and requires
	// strictly alternating user/assistant turns.
	Mistral = Template{
		Name: "mistral",
		BOS:  "<s>",
		EOS:  "</s>",
		UNK:  "<unk>",
		Chat: `{{.BOS}}{{range $i, $m := .Messages}}` +
			`{{if ne (eq $m.Role "user") (even $i)}}{{fail "conversation roles must alternate user/assistant/user/assistant/..."}}{{end}}` +
			`{{if eq $m.Role "user"}}[INST] {{$m.Content}} [/INST]` +
			`{{else if eq $m.Role "assistant"}}{{$m.Content}}{{$.EOS}} ` +
			`{{else}}{{fail "only user and assistant roles are supported"}}{{end}}{{end}}`,
	}
)

// TemplateByName returns one of the built-in templates.
func TemplateByName(name string) (Template, bool) {
	switch strings.ToLower(name) {
	case "chatml", "":
		return ChatML, true
	case "mistral":
		return Mistral, true
	default:
		return Template{}, false
	}
}

var _ Renderer = Template{}

var (
	templateCache sync.Map // chat template text → *template.Template

	funcs = template.FuncMap{
		"even": func(i int) bool { return i%2 == 0 },
		"fail": func(msg string) (string, error) { return "", errors.New(msg) },
	}
)

func (t Template) parsed() (*template.Template, error) {
	if cached, ok := templateCache.Load(t.Chat); ok {
		return cached.(*template.Template), nil
	}
	tmpl, err := template.New(t.Name).Funcs(funcs).Parse(t.Chat)
	if err != nil {
		return nil, fmt.Errorf("parse chat template %q: %w", t.Name, err)
	}
	templateCache.Store(t.Chat, tmpl)
	return tmpl, nil
}

// Render executes the template. Empty BOS/EOS vars fall back to the
// template's own tokens.
func (t Template) Render(turns []Turn, vars Vars) (string, error) {
	tmpl, err := t.parsed()
	if err != nil {
		return "", err
	}
	if vars.BOS == "" {
		vars.BOS = t.BOS
	}
	if vars.EOS == "" {
		vars.EOS = t.EOS
	}

	var sb strings.Builder
	data := struct {
		Messages []Turn
		Vars
	}{Messages: turns, Vars: vars}
	if err := tmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render chat template %q: %w", t.Name, err)
	}
	return sb.String(), nil
}

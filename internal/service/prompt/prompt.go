// Package prompt renders the system and user prompts of both model passes.
package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templates embed.FS

// Tools known to the model
type ToolDescriber interface {
	Describe() string
}

// System and user parts of a prompt
type Prompt struct {
	System string
	User   string
}

type Builder struct {
	tools ToolDescriber

	// Tool the first pass asks the model to call for course questions
	tool string

	tmpl *template.Template
}

func NewBuilder(tools ToolDescriber, tool string) (*Builder, error) {
	tmpl, err := template.ParseFS(templates, "templates/*.tmpl")
	if err != nil {
		return nil, fmt.Errorf("can't parse prompt templates. Err: %w", err)
	}

	return &Builder{tools: tools, tool: tool, tmpl: tmpl}, nil
}

// FirstPass asks the model to either call a tool or answer in plain text
func (b *Builder) FirstPass(message string) (Prompt, error) {
	system, err := b.render("first_pass.tmpl", map[string]string{
		"Tools": b.tools.Describe(),
		"Tool":  b.tool,
	})
	if err != nil {
		return Prompt{}, err
	}

	return Prompt{System: system, User: message}, nil
}

// SecondPass asks the model to answer using the tool result only
func (b *Builder) SecondPass(message string, result string) (Prompt, error) {
	data := map[string]string{
		"Message": message,
		"Result":  result,
	}

	system, err := b.render("second_pass.tmpl", data)
	if err != nil {
		return Prompt{}, err
	}
	user, err := b.render("second_pass_user.tmpl", data)
	if err != nil {
		return Prompt{}, err
	}

	return Prompt{System: system, User: user}, nil
}

func (b *Builder) render(name string, data any) (string, error) {
	var buf bytes.Buffer
	if err := b.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("can't render prompt %s. Err: %w", name, err)
	}
	return strings.TrimSpace(buf.String()), nil
}

package strategy

import (
	"bytes"
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"strings"
	"text/template"
	"time"

	"github.com/google/uuid"

	"valetbench/internal/runner"
)

// DefaultNameTemplate keeps the local file name as the object name.
const DefaultNameTemplate = "{{name}}"

// NameData is passed to the object name template.
type NameData struct {
	Name string // file name with extension
	Base string // file name without extension
	Ext  string // extension including the dot
}

// NameTemplate renders the object name requested for a delegated URL.
// It is safe for concurrent use.
type NameTemplate struct {
	tmpl *template.Template
}

// NewNameTemplate parses text. Besides the usual template syntax it accepts
// the shorthands {{name}}, {{base}} and {{ext}}.
func NewNameTemplate(text string) (*NameTemplate, error) {
	if strings.TrimSpace(text) == "" {
		text = DefaultNameTemplate
	}
	t, err := template.New("object").Funcs(nameFuncs).Option("missingkey=error").Parse(preprocess(text))
	if err != nil {
		return nil, fmt.Errorf("parse object name template: %w", err)
	}
	return &NameTemplate{tmpl: t}, nil
}

// Render returns the object name for f.
func (n *NameTemplate) Render(f runner.FileRef) (string, error) {
	ext := filepath.Ext(f.Name)
	var buf bytes.Buffer
	err := n.tmpl.Execute(&buf, NameData{
		Name: f.Name,
		Base: strings.TrimSuffix(f.Name, ext),
		Ext:  ext,
	})
	if err != nil {
		return "", fmt.Errorf("render object name for %s: %w", f.Name, err)
	}
	out := strings.TrimSpace(buf.String())
	if out == "" {
		return "", fmt.Errorf("object name for %s rendered empty", f.Name)
	}
	return out, nil
}

// preprocess converts the naked variables to field access.
func preprocess(s string) string {
	s = strings.ReplaceAll(s, "{{name}}", "{{.Name}}")
	s = strings.ReplaceAll(s, "{{base}}", "{{.Base}}")
	s = strings.ReplaceAll(s, "{{ext}}", "{{.Ext}}")
	return s
}

var nameFuncs = template.FuncMap{
	"uuid":         func() string { return uuid.NewString() },
	"randomInt":    randomInt,
	"randomChoice": randomChoice,
	"timestamp":    func() string { return time.Now().Format("20060102_150405") },
}

func randomInt(min, max int) int {
	if max <= min {
		return min
	}
	return rand.IntN(max-min) + min
}

func randomChoice(choices ...string) string {
	if len(choices) == 0 {
		return ""
	}
	return choices[rand.IntN(len(choices))]
}

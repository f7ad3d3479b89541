// Package prompts holds the LLM prompt templates embedded in the binary.
//
// content.json maps a prompt key to a text/template body. Every template is
// parsed once on first use; rendering with a missing placeholder value is an
// error rather than a silent "<no value>".
package prompts

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"text/template"
)

//go:embed content.json
var contentFile []byte

// Prompt keys in content.json
const (
	KeyCurrentData     = "current-data"
	KeyTopicExtraction = "topic-extraction"
	KeyResearchBrief   = "research-brief"
	KeyDraft           = "draft"
)

var (
	loadOnce sync.Once
	set      *template.Template
	keys     []string
	loadErr  error
)

func load() (*template.Template, error) {
	loadOnce.Do(func() {
		set, keys, loadErr = parse(contentFile)
	})
	return set, loadErr
}

func parse(raw []byte) (*template.Template, []string, error) {
	var bodies map[string]string
	if err := json.Unmarshal(raw, &bodies); err != nil {
		return nil, nil, fmt.Errorf("parse prompt file: %w", err)
	}

	root := template.New("prompts").Option("missingkey=error")
	names := make([]string, 0, len(bodies))
	for name, body := range bodies {
		if _, err := root.New(name).Parse(body); err != nil {
			return nil, nil, fmt.Errorf("prompt %q: %w", name, err)
		}
		names = append(names, name)
	}
	sort.Strings(names)
	return root, names, nil
}

// Render fills the prompt named key with data.
func Render(key string, data map[string]string) (string, error) {
	root, err := load()
	if err != nil {
		return "", err
	}
	tmpl := root.Lookup(key)
	if tmpl == nil {
		return "", fmt.Errorf("prompt %q not found", key)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render prompt %q: %w", key, err)
	}
	return buf.String(), nil
}

// Keys lists the embedded prompt keys, sorted.
func Keys() ([]string, error) {
	if _, err := load(); err != nil {
		return nil, err
	}
	return append([]string(nil), keys...), nil
}

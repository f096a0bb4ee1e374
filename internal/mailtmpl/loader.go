package mailtmpl

import (
	"bytes"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"text/template"

	"gopkg.in/yaml.v3"
)

// Template is a rendered-per-event mail template
type Template struct {
	Event   string
	Subject *template.Template
	Body    *template.Template
}

// Loader manages loading and caching of mail templates
type Loader struct {
	mu        sync.RWMutex
	templates map[string]*Template
}

// NewLoader creates a new mail template loader
func NewLoader() *Loader {
	return &Loader{
		templates: make(map[string]*Template),
	}
}

// LoadFromDir loads all YAML mail templates from a directory
func (l *Loader) LoadFromDir(dir string) error {
	slog.Info("loading mail templates from directory", "dir", dir)

	patterns := []string{"*.yaml", "*.yml"}
	var files []string

	for _, pattern := range patterns {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			continue
		}
		files = append(files, matches...)
	}

	loaded := 0
	for _, file := range files {
		if err := l.LoadFromFile(file); err != nil {
			slog.Warn("failed to load mail template", "file", file, "error", err)
			continue
		}
		loaded++
	}

	slog.Info("mail templates loaded", "count", loaded, "total_files", len(files))
	return nil
}

// LoadFromFile loads a single mail template from a YAML file
func (l *Loader) LoadFromFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file: %w", err)
	}

	var tf templateFile
	if err := yaml.Unmarshal(data, &tf); err != nil {
		return fmt.Errorf("failed to parse YAML: %w", err)
	}

	if tf.Event == "" {
		return fmt.Errorf("template event is required")
	}
	if tf.Subject == "" {
		return fmt.Errorf("template subject is required")
	}

	subject, err := template.New(tf.Event + ":subject").Parse(tf.Subject)
	if err != nil {
		return fmt.Errorf("failed to parse subject template: %w", err)
	}

	body, err := template.New(tf.Event + ":body").Parse(tf.Body)
	if err != nil {
		return fmt.Errorf("failed to parse body template: %w", err)
	}

	l.mu.Lock()
	l.templates[tf.Event] = &Template{
		Event:   tf.Event,
		Subject: subject,
		Body:    body,
	}
	l.mu.Unlock()

	slog.Info("mail template loaded", "event", tf.Event)
	return nil
}

// Get retrieves a template by event type
func (l *Loader) Get(event string) *Template {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.templates[event]
}

// List returns the event types with a loaded template
func (l *Loader) List() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()

	result := make([]string, 0, len(l.templates))
	for event := range l.templates {
		result = append(result, event)
	}
	return result
}

// Render executes subject and body against the given data
func (t *Template) Render(data interface{}) (subject, body string, err error) {
	var sb, bb bytes.Buffer

	if err := t.Subject.Execute(&sb, data); err != nil {
		return "", "", fmt.Errorf("failed to render subject: %w", err)
	}

	if err := t.Body.Execute(&bb, data); err != nil {
		return "", "", fmt.Errorf("failed to render body: %w", err)
	}

	return sb.String(), bb.String(), nil
}

// templateFile represents the YAML structure of a mail template file
type templateFile struct {
	Event   string `yaml:"event"`
	Subject string `yaml:"subject"`
	Body    string `yaml:"body"`
}

package sender

import (
	"bytes"
	"embed"
	"fmt"
	"strings"
	"text/template"
)

//go:embed templates/*.tmpl
var templateFS embed.FS

// Templates хранит разобранные шаблоны писем по ключу шаблона.
// Каждый файл определяет блоки "subject" и "body".
type Templates struct {
	set map[string]*template.Template
}

// LoadTemplates разбирает встроенные шаблоны.
func LoadTemplates() (*Templates, error) {
	const op = "sender.LoadTemplates"

	entries, err := templateFS.ReadDir("templates")
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	set := make(map[string]*template.Template, len(entries))
	for _, e := range entries {
		key := strings.TrimSuffix(e.Name(), ".tmpl")
		t, err := template.New(key).Option("missingkey=error").ParseFS(templateFS, "templates/"+e.Name())
		if err != nil {
			return nil, fmt.Errorf("%s: %s: %w", op, key, err)
		}
		set[key] = t
	}
	return &Templates{set: set}, nil
}

// Render возвращает тему и текст письма.
func (t *Templates) Render(key string, data map[string]any) (subject, body string, err error) {
	tmpl, ok := t.set[key]
	if !ok {
		return "", "", fmt.Errorf("%w: %q", ErrUnknownTemplate, key)
	}
	var buf bytes.Buffer
	if err := tmpl.ExecuteTemplate(&buf, "subject", data); err != nil {
		return "", "", err
	}
	subject = strings.TrimSpace(buf.String())
	buf.Reset()
	if err := tmpl.ExecuteTemplate(&buf, "body", data); err != nil {
		return "", "", err
	}
	return subject, strings.TrimLeft(buf.String(), "\n"), nil
}

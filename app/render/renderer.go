package render

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/template"
	"time"
	"unicode/utf8"

	"github.com/ncruces/go-strftime"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

const repoURL = "https://github.com/lysyi3m/rss-planet"

// Page is the planet-wide data every template receives.
type Page struct {
	Name       string
	Link       string
	OwnerName  string
	OwnerEmail string
	Feed       string // URL of the planet's own feed, if any
	Generator  string
	Date       time.Time
	Channels   []Info
	Items      []Info
}

type Renderer struct {
	outputDir  string
	dateFormat string
	encoding   string
}

func NewRenderer(outputDir, dateFormat, encoding string) *Renderer {
	if dateFormat == "" {
		dateFormat = DefaultDateFormat
	}
	if encoding == "" {
		encoding = "utf-8"
	}
	return &Renderer{outputDir: outputDir, dateFormat: dateFormat, encoding: encoding}
}

// RenderAll renders every template into the output directory. A failing template is
// logged and does not stop the others; the failures are returned joined.
func (r *Renderer) RenderAll(page Page, templates []string) error {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.outputDir, err)
	}

	var errs []error
	for _, templateFile := range templates {
		if err := r.Render(page, templateFile); err != nil {
			slog.Error("Write failed", "template", templateFile, "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Render writes one template to the output file named after it, without extension.
func (r *Renderer) Render(page Page, templateFile string) error {
	slog.Info("Processing template", "template", templateFile)

	tmpl, err := template.ParseFiles(templateFile)
	if err != nil {
		return fmt.Errorf("failed to parse template %s: %w", templateFile, err)
	}

	base := strings.TrimSuffix(filepath.Base(templateFile), filepath.Ext(templateFile))
	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, r.templateData(page, base)); err != nil {
		return fmt.Errorf("failed to execute template %s: %w", templateFile, err)
	}

	output, err := Encode(buf.String(), r.encoding)
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", templateFile, err)
	}

	outputFile := filepath.Join(r.outputDir, base)
	slog.Info("Writing output", "file", outputFile)
	if err := os.WriteFile(outputFile, output, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputFile, err)
	}
	return nil
}

// WriteFile stores an already rendered document in the output directory.
func (r *Renderer) WriteFile(name, content string) error {
	if err := os.MkdirAll(r.outputDir, 0o755); err != nil {
		return fmt.Errorf("failed to create output directory %s: %w", r.outputDir, err)
	}
	outputFile := filepath.Join(r.outputDir, name)
	if err := os.WriteFile(outputFile, []byte(content), 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", outputFile, err)
	}
	return nil
}

func (r *Renderer) templateData(page Page, base string) map[string]any {
	date := page.Date.UTC()
	data := map[string]any{
		"Items":       page.Items,
		"Channels":    page.Channels,
		"generator":   page.Generator,
		"name":        page.Name,
		"link":        page.Link,
		"owner_name":  page.OwnerName,
		"owner_email": page.OwnerEmail,
		"url":         strings.TrimSuffix(page.Link, "/") + "/" + base,
		"repo_url":    repoURL,
		"date":        strftime.Format(r.dateFormat, date),
		"date_iso":    strftime.Format(TimeFormatISO, date),
		"date_822":    strftime.Format(TimeFormat822, date),
	}
	if page.Feed != "" {
		data["feed"] = page.Feed
		data["feedtype"] = "atom"
		if strings.Contains(page.Feed, "rss") {
			data["feedtype"] = "rss"
		}
	}
	return data
}

// Encode converts rendered UTF-8 output to the requested encoding. "xml", "html" and
// "sgml" produce ASCII with numeric character references; any other WHATWG encoding
// label replaces unsupported characters with character references.
func Encode(output, name string) ([]byte, error) {
	switch strings.ToLower(name) {
	case "utf-8", "utf8":
		return []byte(output), nil
	case "xml", "html", "sgml":
		return asciiReferences(output), nil
	}

	enc, err := htmlindex.Get(name)
	if err != nil {
		return nil, fmt.Errorf("unsupported encoding %q: %w", name, err)
	}
	encoded, err := encoding.HTMLEscapeUnsupported(enc.NewEncoder()).String(output)
	if err != nil {
		return nil, err
	}
	return []byte(encoded), nil
}

func asciiReferences(s string) []byte {
	var buf bytes.Buffer
	buf.Grow(len(s))
	for _, r := range s {
		if r < utf8.RuneSelf {
			buf.WriteRune(r)
			continue
		}
		fmt.Fprintf(&buf, "&#%d;", r)
	}
	return buf.Bytes()
}

package feed

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
)

// Parser maps any feed format gofeed understands onto Fields and Entries.
type Parser struct {
	gofeedParser *gofeed.Parser
}

func NewParser() *Parser {
	return &Parser{
		gofeedParser: gofeed.NewParser(),
	}
}

func (p *Parser) Run(data []byte) (Fields, []Entry, error) {
	parsed, err := p.gofeedParser.Parse(bytes.NewReader(data))
	if err != nil {
		return Fields{}, nil, fmt.Errorf("failed to parse feed: %w", err)
	}

	info := newFields()
	info.setText("title", parsed.Title, TypeHTML)
	info.setText("link", parsed.Link, "")
	info.setText("tagline", parsed.Description, TypeHTML)
	info.setText("language", parsed.Language, "")
	info.setText("copyright", parsed.Copyright, TypePlain)
	info.setText("generator", parsed.Generator, TypePlain)
	info.setDate("updated", parsed.UpdatedParsed)
	info.setDate("published", parsed.PublishedParsed)
	info.setPerson("author", firstAuthor(parsed.Author, parsed.Authors))

	if parsed.Image != nil {
		info.setText("image_url", parsed.Image.URL, "")
		info.setText("image_title", parsed.Image.Title, TypePlain)
	}

	entries := make([]Entry, 0, len(parsed.Items))
	for _, item := range parsed.Items {
		if item == nil {
			continue
		}
		entries = append(entries, p.normalizeItem(item, parsed.Language))
	}

	return info, entries, nil
}

func (p *Parser) normalizeItem(item *gofeed.Item, language string) Entry {
	entry := Entry{Fields: newFields()}

	entry.setText("id", strings.TrimSpace(item.GUID), "")
	entry.setText("title", item.Title, TypeHTML)
	entry.setText("link", item.Link, "")
	entry.setText("summary", item.Description, TypeHTML)
	entry.setDate("updated", item.UpdatedParsed)
	entry.setDate("published", item.PublishedParsed)
	entry.setPerson("author", firstAuthor(item.Author, item.Authors))

	if len(item.Categories) > 0 {
		entry.setText("category", strings.Join(item.Categories, ", "), TypePlain)
	}

	// RSS 2.0 allows a single enclosure per item
	if len(item.Enclosures) > 0 && item.Enclosures[0] != nil {
		enclosure := item.Enclosures[0]
		entry.setText("enclosure_url", enclosure.URL, "")
		entry.setText("enclosure_type", enclosure.Type, "")
		entry.setText("enclosure_length", enclosure.Length, "")
	}

	if item.Content != "" {
		entry.Content = []Text{{Value: item.Content, Type: TypeHTML, Language: language}}
	}

	if item.DublinCoreExt != nil && len(item.DublinCoreExt.Source) > 0 {
		entry.Source = &Source{Name: item.DublinCoreExt.Source[0]}
	}

	return entry
}

func firstAuthor(author *gofeed.Person, authors []*gofeed.Person) *gofeed.Person {
	for _, a := range authors {
		if a != nil {
			return a
		}
	}
	return author
}

func newFields() Fields {
	return Fields{
		Text:   make(map[string]Text),
		Dates:  make(map[string]time.Time),
		People: make(map[string]Person),
	}
}

func (f *Fields) setText(key, value, contentType string) {
	if value == "" {
		return
	}
	f.Text[key] = Text{Value: value, Type: contentType}
}

func (f *Fields) setDate(key string, t *time.Time) {
	if t == nil || t.IsZero() {
		return
	}
	f.Dates[key] = t.UTC()
}

func (f *Fields) setPerson(key string, person *gofeed.Person) {
	if person == nil {
		return
	}
	name := strings.TrimSpace(person.Name)
	email := strings.TrimSpace(person.Email)
	if name == "" && email == "" {
		return
	}
	f.People[key] = Person{Name: name, Email: email}
}

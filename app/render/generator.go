package render

import (
	"bytes"
	"cmp"
	"encoding/xml"
	"fmt"
	"html"
	"strings"
	"time"

	"github.com/lysyi3m/rss-planet/app/feed"
)

// Generator writes the aggregated items as a single RSS 2.0 document.
type Generator struct {
	version string
}

func NewGenerator(version string) *Generator {
	return &Generator{version: version}
}

func (g *Generator) Run(page Page, items []*feed.Item) (string, error) {
	var buf bytes.Buffer

	buf.WriteString(`<?xml version="1.0" encoding="UTF-8"?>`)
	buf.WriteString("\n")
	buf.WriteString(`<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/" xmlns:atom="http://www.w3.org/2005/Atom">`)
	buf.WriteString("\n  <channel>\n")

	g.writeElement(&buf, "title", page.Name, 4)
	g.writeElement(&buf, "link", page.Link, 4)
	g.writeElement(&buf, "description", fmt.Sprintf("%s - %s", page.Name, page.Link), 4)

	if page.Feed != "" {
		buf.WriteString(fmt.Sprintf("    <atom:link href=\"%s\" rel=\"self\" type=\"application/rss+xml\" />\n",
			html.EscapeString(page.Feed)))
	}

	lastBuildDate := page.Date
	if len(items) > 0 {
		lastBuildDate = items[0].Date()
	}
	if !lastBuildDate.IsZero() {
		g.writeElement(&buf, "lastBuildDate", lastBuildDate.UTC().Format(time.RFC1123Z), 4)
	}
	g.writeElement(&buf, "generator", cmp.Or(page.Generator, "RSS-Planet/"+g.version), 4)

	if page.OwnerEmail != "" {
		g.writeElement(&buf, "managingEditor", strings.TrimSpace(fmt.Sprintf("%s (%s)", page.OwnerEmail, page.OwnerName)), 4)
	}

	for _, item := range items {
		g.writeItem(&buf, item)
	}

	buf.WriteString("  </channel>\n</rss>")

	return buf.String(), nil
}

func (g *Generator) writeItem(buf *bytes.Buffer, item *feed.Item) {
	buf.WriteString("    <item>\n")

	if id := item.ID(); id != "" {
		buf.WriteString(fmt.Sprintf("      <guid isPermaLink=\"%t\">", g.isURL(id)))
		xml.EscapeText(buf, []byte(id))
		buf.WriteString("</guid>\n")
	}

	title := item.Title()
	if name := item.Feed().Name(); name != "" && title != "" {
		title = name + ": " + title
	}
	g.writeElement(buf, "title", title, 6)
	g.writeElement(buf, "link", item.Link(), 6)

	summary, _ := item.Get("summary")
	content := item.Content()
	g.writeElement(buf, "description", cmp.Or(summary, content), 6)
	if content != "" && content != summary {
		buf.WriteString("      <content:encoded><![CDATA[")
		buf.WriteString(strings.ReplaceAll(content, "]]>", "]]]]><![CDATA[>"))
		buf.WriteString("]]></content:encoded>\n")
	}

	g.writeElement(buf, "pubDate", item.Date().UTC().Format(time.RFC1123Z), 6)

	if email, ok := item.Get("author_email"); ok {
		name, _ := item.Get("author_name")
		g.writeElement(buf, "author", strings.TrimSpace(fmt.Sprintf("%s (%s)", email, name)), 6)
	}

	if categories, ok := item.Get("category"); ok {
		for _, category := range strings.Split(categories, ", ") {
			if category != "" {
				g.writeElement(buf, "category", category, 6)
			}
		}
	}

	// RSS 2.0 spec: url, length, type are required
	url, _ := item.Get("enclosure_url")
	mediaType, _ := item.Get("enclosure_type")
	if url != "" && mediaType != "" {
		length, _ := item.Get("enclosure_length")
		buf.WriteString(fmt.Sprintf("      <enclosure url=\"%s\" length=\"%s\" type=\"%s\" />\n",
			html.EscapeString(url),
			html.EscapeString(cmp.Or(length, "0")),
			html.EscapeString(mediaType)))
	}

	buf.WriteString(fmt.Sprintf("      <source url=\"%s\">", html.EscapeString(item.Feed().URL())))
	xml.EscapeText(buf, []byte(item.Feed().Name()))
	buf.WriteString("</source>\n")

	buf.WriteString("    </item>\n")
}

func (g *Generator) writeElement(buf *bytes.Buffer, tag, content string, indent int) {
	if content == "" {
		return
	}

	buf.WriteString(strings.Repeat(" ", indent))
	buf.WriteString("<")
	buf.WriteString(tag)
	buf.WriteString(">")
	xml.EscapeText(buf, []byte(content))
	buf.WriteString("</")
	buf.WriteString(tag)
	buf.WriteString(">\n")
}

func (g *Generator) isURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}

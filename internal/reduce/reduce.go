// Package reduce strips fetched pages down to the markup or text worth
// sending to a model.
package reduce

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
)

// Default limits, in characters.
const (
	DefaultHTMLLimit  = 120000
	DefaultTextLimit  = 70000
	ClassifyTextLimit = 8000

	// MinHTMLLength is the smallest cleaned page worth a structural prompt.
	MinHTMLLength = 300
)

// noise is removed before serializing cleaned markup.
const noise = "script, style, meta, link, svg, iframe, noscript, nav, footer"

// textNoise is additionally removed before flattening to text.
const textNoise = noise + ", button, form"

// Reducer bounds page content for model input.
type Reducer struct {
	HTMLLimit int
	TextLimit int
}

// New returns a Reducer with the default limits.
func New() *Reducer {
	return &Reducer{HTMLLimit: DefaultHTMLLimit, TextLimit: DefaultTextLimit}
}

func (r *Reducer) htmlLimit() int {
	if r == nil || r.HTMLLimit <= 0 {
		return DefaultHTMLLimit
	}
	return r.HTMLLimit
}

func (r *Reducer) textLimit() int {
	if r == nil || r.TextLimit <= 0 {
		return DefaultTextLimit
	}
	return r.TextLimit
}

// Reduce removes non-content elements and comments and returns the
// remaining markup, truncated to HTMLLimit characters.
func (r *Reducer) Reduce(raw string) string {
	doc, err := parse(raw)
	if err != nil {
		return ""
	}
	doc.Find(noise).Remove()

	out, err := doc.Html()
	if err != nil {
		return ""
	}
	return Truncate(out, r.htmlLimit())
}

// ExtractText flattens the page to whitespace-normalized text truncated to
// TextLimit characters.
func (r *Reducer) ExtractText(raw string) string {
	return r.ExtractTextLimit(raw, r.textLimit())
}

// ExtractTextLimit is ExtractText with an explicit limit, such as
// ClassifyTextLimit for identification prompts.
func (r *Reducer) ExtractTextLimit(raw string, limit int) string {
	doc, err := parse(raw)
	if err != nil {
		return ""
	}
	doc.Find(textNoise).Remove()

	var parts []string
	for _, n := range doc.Nodes {
		collectText(n, &parts)
	}
	return Truncate(strings.Join(strings.Fields(strings.Join(parts, " ")), " "), limit)
}

// TooSmall reports whether cleaned markup is below MinHTMLLength characters.
func TooSmall(cleaned string) bool {
	return len([]rune(cleaned)) < MinHTMLLength
}

// Truncate cuts s to at most limit characters.
func Truncate(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func parse(raw string) (*goquery.Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, err
	}
	for _, n := range doc.Nodes {
		removeComments(n)
	}
	return doc, nil
}

func removeComments(n *html.Node) {
	for c := n.FirstChild; c != nil; {
		next := c.NextSibling
		if c.Type == html.CommentNode {
			n.RemoveChild(c)
		} else {
			removeComments(c)
		}
		c = next
	}
}

func collectText(n *html.Node, parts *[]string) {
	if n.Type == html.TextNode {
		if t := strings.TrimSpace(n.Data); t != "" {
			*parts = append(*parts, t)
		}
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		collectText(c, parts)
	}
}

package wikipedia

import (
	"io"
	"regexp"
	"strings"

	"github.com/rotisserie/eris"
	"golang.org/x/net/html"
)

var (
	editMarker     = regexp.MustCompile(`\[\w+\]`)
	citationMarker = regexp.MustCompile(`\[\d+\]`)
)

// parsePage extracts the summary, infobox, and sections from article HTML.
// The summary is the first non-empty paragraph of the content area; sections
// map each h2/h3 heading to its paragraphs, and empty sections are dropped.
func parsePage(r io.Reader) (*Page, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, eris.Wrap(err, "parse html")
	}

	content := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && attr(n, "id") == "mw-content-text"
	})
	if content == nil {
		return nil, eris.New("no content found")
	}

	page := &Page{
		Infobox:  parseInfobox(doc),
		Sections: make(map[string]string),
	}

	var current string
	var order []string
	walk(content, func(n *html.Node) bool {
		if n.Type != html.ElementNode {
			return true
		}
		switch n.Data {
		case "table", "style", "script":
			return false
		case "h2", "h3":
			current = strings.TrimSpace(editMarker.ReplaceAllString(text(n), ""))
			if _, ok := page.Sections[current]; !ok {
				order = append(order, current)
				page.Sections[current] = ""
			}
			return false
		case "p":
			t := text(n)
			if t == "" {
				return false
			}
			if page.Summary == "" {
				page.Summary = t
			}
			if current != "" {
				page.Sections[current] += t + "\n"
			}
			return false
		}
		return true
	})

	for _, k := range order {
		if strings.TrimSpace(page.Sections[k]) == "" {
			delete(page.Sections, k)
		}
	}
	return page, nil
}

// parseInfobox reads th/td pairs from the first infobox table in the page.
func parseInfobox(doc *html.Node) map[string]string {
	out := make(map[string]string)
	box := findFirst(doc, func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == "table" && hasClass(n, "infobox")
	})
	if box == nil {
		return out
	}
	walk(box, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "tr" {
			return true
		}
		th := findFirst(n, isElement("th"))
		td := findFirst(n, isElement("td"))
		if th != nil && td != nil {
			if k := text(th); k != "" {
				out[k] = text(td)
			}
		}
		return false
	})
	return out
}

// stripTags returns the text content of an HTML fragment.
func stripTags(fragment string) string {
	doc, err := html.Parse(strings.NewReader(fragment))
	if err != nil {
		return fragment
	}
	return text(doc)
}

// walk visits n and its descendants depth-first. Returning false from fn
// skips the node's children.
func walk(n *html.Node, fn func(*html.Node) bool) {
	if !fn(n) {
		return
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		walk(c, fn)
	}
}

func findFirst(n *html.Node, match func(*html.Node) bool) *html.Node {
	var found *html.Node
	walk(n, func(c *html.Node) bool {
		if found != nil {
			return false
		}
		if match(c) {
			found = c
			return false
		}
		return true
	})
	return found
}

func isElement(tag string) func(*html.Node) bool {
	return func(n *html.Node) bool {
		return n.Type == html.ElementNode && n.Data == tag
	}
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func hasClass(n *html.Node, class string) bool {
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

// text returns the whitespace-collapsed text under n, skipping styles,
// scripts, and edit links, with citation markers removed.
func text(n *html.Node) string {
	var b strings.Builder
	walk(n, func(c *html.Node) bool {
		switch c.Type {
		case html.TextNode:
			b.WriteString(c.Data)
		case html.ElementNode:
			if c.Data == "style" || c.Data == "script" || hasClass(c, "mw-editsection") {
				return false
			}
			switch c.Data {
			case "br", "p", "div", "li", "tr", "td", "th":
				b.WriteByte(' ')
			}
		}
		return true
	})
	s := citationMarker.ReplaceAllString(b.String(), "")
	return strings.Join(strings.Fields(s), " ")
}

package scraper

import (
	"strings"

	"github.com/rpattn/regwatch/internal/ingestion"
	"golang.org/x/net/html"
)

// Labels used by the register's result cards.
const (
	LabelAttorney     = "Attorney"
	LabelFirm         = "Firm"
	LabelPhone        = "Phone"
	LabelEmail        = "Email"
	LabelWebsite      = "Website"
	LabelDirectors    = "Company Directors"
	LabelAddress      = "Address"
	LabelRegisteredAs = "Registered as"
)

var escapedControls = strings.NewReplacer(`\r`, "", `\n`, "", `\t`, "", `\`, "")

// DeleteControlChars strips escaped line breaks and stray backslashes left in
// result markup by the search endpoint.
func DeleteControlChars(markup string) string {
	return escapedControls.Replace(markup)
}

// ParseHTML extracts the labelled fields of one result card. Every element
// classed "block" contributes its first span as the label and the following
// element as the value. Contact blocks hold one labelled pair per child div.
// "Registered as" joins its tag spans and "Website" prefers the link target.
func ParseHTML(markup string) map[string]string {
	data := make(map[string]string)
	doc, err := html.Parse(strings.NewReader(markup))
	if err != nil {
		return data
	}

	walk(doc, func(n *html.Node) bool {
		if !hasClass(n, "block") {
			return true
		}
		if hasClass(n, "contact") {
			for child := n.FirstChild; child != nil; child = child.NextSibling {
				if isElement(child, "div") {
					parseField(child, data)
				}
			}
			return false
		}
		parseField(n, data)
		return true
	})
	return data
}

func parseField(block *html.Node, data map[string]string) {
	label := find(block, func(n *html.Node) bool { return isElement(n, "span") })
	if label == nil {
		return
	}
	name := text(label)
	if name == "" {
		return
	}

	switch name {
	case LabelRegisteredAs:
		tags := find(block, func(n *html.Node) bool { return isElement(n, "div") && hasClass(n, "tags") })
		if tags == nil {
			return
		}
		var values []string
		walk(tags, func(n *html.Node) bool {
			if isElement(n, "span") {
				if v := text(n); v != "" {
					values = append(values, v)
				}
				return false
			}
			return true
		})
		data[name] = strings.Join(values, ", ")
		return
	case LabelWebsite:
		value := nextElement(label)
		if value == nil {
			return
		}
		link := find(value, func(n *html.Node) bool { return isElement(n, "a") && attr(n, "href") != "" })
		if link != nil {
			data[name] = strings.TrimSpace(attr(link, "href"))
		} else {
			data[name] = text(value)
		}
		return
	}

	if value := nextElement(label); value != nil {
		data[name] = text(value)
	}
}

// walk visits n and its descendants depth first. Returning false from visit
// skips the children of that node.
func walk(n *html.Node, visit func(*html.Node) bool) {
	if !visit(n) {
		return
	}
	for child := n.FirstChild; child != nil; child = child.NextSibling {
		walk(child, visit)
	}
}

func find(root *html.Node, match func(*html.Node) bool) *html.Node {
	var result *html.Node
	walk(root, func(n *html.Node) bool {
		if result != nil {
			return false
		}
		if n != root && match(n) {
			result = n
			return false
		}
		return true
	})
	return result
}

func nextElement(n *html.Node) *html.Node {
	for sib := n.NextSibling; sib != nil; sib = sib.NextSibling {
		if sib.Type == html.ElementNode {
			return sib
		}
	}
	return nil
}

func isElement(n *html.Node, tag string) bool {
	return n.Type == html.ElementNode && n.Data == tag
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
	if n.Type != html.ElementNode {
		return false
	}
	for _, c := range strings.Fields(attr(n, "class")) {
		if c == class {
			return true
		}
	}
	return false
}

func text(n *html.Node) string {
	var sb strings.Builder
	walk(n, func(node *html.Node) bool {
		if node.Type == html.TextNode {
			sb.WriteString(node.Data)
			sb.WriteByte(' ')
		}
		return true
	})
	return ingestion.CleanText(sb.String())
}

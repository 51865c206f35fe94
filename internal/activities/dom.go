package activities

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/net/html"
)

// strict drops every tag, leaving text. Script and style bodies are dropped too.
var strict = func() *bluemonday.Policy {
	p := bluemonday.StrictPolicy()
	p.AddSpaceWhenStrippingTag(true)
	return p
}()

func isElement(n *html.Node, tags ...string) bool {
	if n == nil || n.Type != html.ElementNode {
		return false
	}
	if len(tags) == 0 {
		return true
	}
	for _, t := range tags {
		if n.Data == t {
			return true
		}
	}
	return false
}

func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val, true
		}
	}
	return "", false
}

// classMatches reports whether any of n's class names matches re.
func classMatches(n *html.Node, re *regexp.Regexp) bool {
	class, ok := attr(n, "class")
	if !ok {
		return false
	}
	for _, c := range strings.Fields(class) {
		if re.MatchString(c) {
			return true
		}
	}
	return false
}

// findAll returns the descendants of root matching pred, in document order.
func findAll(root *html.Node, pred func(*html.Node) bool) []*html.Node {
	var out []*html.Node
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			if pred(c) {
				out = append(out, c)
			}
			walk(c)
		}
	}
	if root != nil {
		walk(root)
	}
	return out
}

// find returns the first descendant of root matching pred, or nil.
func find(root *html.Node, pred func(*html.Node) bool) *html.Node {
	if root == nil {
		return nil
	}
	for c := root.FirstChild; c != nil; c = c.NextSibling {
		if pred(c) {
			return c
		}
		if n := find(c, pred); n != nil {
			return n
		}
	}
	return nil
}

func tagIs(tags ...string) func(*html.Node) bool {
	return func(n *html.Node) bool { return isElement(n, tags...) }
}

func tagWithClass(tag string, re *regexp.Regexp) func(*html.Node) bool {
	return func(n *html.Node) bool { return isElement(n, tag) && classMatches(n, re) }
}

func anyWithClass(re *regexp.Regexp) func(*html.Node) bool {
	return func(n *html.Node) bool { return isElement(n) && classMatches(n, re) }
}

func linkWithHref(n *html.Node) bool {
	if !isElement(n, "a") {
		return false
	}
	_, ok := attr(n, "href")
	return ok
}

// textOf returns the visible text under n with whitespace collapsed.
func textOf(n *html.Node) string {
	if n == nil {
		return ""
	}
	var b strings.Builder
	if err := html.Render(&b, n); err != nil {
		return ""
	}
	plain := html.UnescapeString(strict.Sanitize(b.String()))
	return strings.Join(strings.Fields(plain), " ")
}

// absolute prefixes base onto relative links.
func absolute(href, base string) string {
	if href == "" || strings.HasPrefix(href, "http") {
		return href
	}
	return base + href
}

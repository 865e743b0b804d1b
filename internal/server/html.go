package server

import (
	"bytes"

	"golang.org/x/net/html"
)

// InjectScript parses an HTML document and appends a module script tag
// referencing src to its head, falling back to the document root when no
// head exists.
func InjectScript(document []byte, src string) ([]byte, error) {
	doc, err := html.Parse(bytes.NewReader(document))
	if err != nil {
		return nil, err
	}

	script := &html.Node{
		Type: html.ElementNode,
		Data: "script",
		Attr: []html.Attribute{
			{Key: "type", Val: "module"},
			{Key: "src", Val: src},
		},
	}

	target := findElement(doc, "head")
	if target == nil {
		target = findElement(doc, "body")
	}
	if target == nil {
		target = doc
	}
	target.AppendChild(script)

	var out bytes.Buffer
	if err := html.Render(&out, doc); err != nil {
		return nil, err
	}
	return out.Bytes(), nil
}

func findElement(n *html.Node, name string) *html.Node {
	if n.Type == html.ElementNode && n.Data == name {
		return n
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if found := findElement(c, name); found != nil {
			return found
		}
	}
	return nil
}

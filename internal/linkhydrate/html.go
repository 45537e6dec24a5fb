package linkhydrate

import (
	"io"
	"time"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type nodeAnchor struct {
	n *html.Node
}

func (a nodeAnchor) Attr(name string) (string, bool) {
	for _, attr := range a.n.Attr {
		if attr.Namespace == "" && attr.Key == name {
			return attr.Val, true
		}
	}
	return "", false
}

func (a nodeAnchor) SetAttr(name, value string) {
	for i, attr := range a.n.Attr {
		if attr.Namespace == "" && attr.Key == name {
			a.n.Attr[i].Val = value
			return
		}
	}
	a.n.Attr = append(a.n.Attr, html.Attribute{Key: name, Val: value})
}

// HTMLDocument é um Document sobre uma árvore do x/net/html.
type HTMLDocument struct {
	root *html.Node
}

// ParseHTML lê um documento HTML completo.
func ParseHTML(r io.Reader) (*HTMLDocument, error) {
	root, err := html.Parse(r)
	if err != nil {
		return nil, err
	}
	return &HTMLDocument{root: root}, nil
}

// Anchors implementa Document.
func (d *HTMLDocument) Anchors(key string) []Anchor {
	var out []Anchor
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.DataAtom == atom.A {
			a := nodeAnchor{n: n}
			if v, ok := a.Attr(MarkerAttr); ok && v == key {
				out = append(out, a)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(d.root)
	return out
}

// Render escreve o documento.
func (d *HTMLDocument) Render(w io.Writer) error {
	return html.Render(w, d.root)
}

// HydrateHTML reescreve no servidor os links marcados de uma página, com o mesmo algoritmo
// do script do navegador. Devolve quantos hrefs mudaram.
func HydrateHTML(r io.Reader, w io.Writer, tokens Tokens, now time.Time, opts ...Option) (int, error) {
	doc, err := ParseHTML(r)
	if err != nil {
		return 0, err
	}

	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	engine := Init(doc, tokens, opts...)
	defer engine.Teardown()

	n := engine.Rehydrate()
	if err := doc.Render(w); err != nil {
		return n, err
	}
	return n, nil
}

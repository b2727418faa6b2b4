package checker

import (
	"bytes"
	"strings"

	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"
)

type formInput struct {
	Type  string
	Name  string
	Value string
}

type loginForm struct {
	Action    string
	HasAction bool
	Inputs    []formInput
}

// page is what the login heuristic needs from a document: the first <base>
// href and the forms in document order. Inputs outside any form are kept in
// loose so form-less login pages still yield fields.
type page struct {
	BaseHref string
	Forms    []*loginForm
	loose    []formInput
}

func parsePage(body []byte) *page {
	p := &page{}
	doc, err := html.Parse(bytes.NewReader(body))
	if err != nil {
		return p
	}

	var current *loginForm
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		entered := false
		if n.Type == html.ElementNode {
			switch n.DataAtom {
			case atom.Base:
				if href, ok := attr(n, "href"); ok && p.BaseHref == "" {
					p.BaseHref = strings.TrimSpace(href)
				}
			case atom.Form:
				action, ok := attr(n, "action")
				current = &loginForm{Action: strings.TrimSpace(action), HasAction: ok && strings.TrimSpace(action) != ""}
				p.Forms = append(p.Forms, current)
				entered = true
			case atom.Input:
				in := inputOf(n)
				if current != nil {
					current.Inputs = append(current.Inputs, in)
				} else {
					p.loose = append(p.loose, in)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if entered {
			current = nil
		}
	}
	walk(doc)
	return p
}

// loginForm picks the first form holding a password input, then the first
// form, then a pseudo form made of every input outside a form.
func (p *page) loginForm() *loginForm {
	for _, f := range p.Forms {
		if f.hasPassword() {
			return f
		}
	}
	if len(p.Forms) > 0 {
		return p.Forms[0]
	}
	return &loginForm{Inputs: p.loose}
}

func (p *page) hasPasswordInput() bool {
	for _, f := range p.Forms {
		if f.hasPassword() {
			return true
		}
	}
	for _, in := range p.loose {
		if in.Type == "password" {
			return true
		}
	}
	return false
}

func (f *loginForm) hasPassword() bool {
	return f.firstOfType("password") != nil
}

// firstNamed returns the name of the first input of one of types that has a name.
func (f *loginForm) firstNamed(types ...string) (string, bool) {
	for _, in := range f.Inputs {
		if in.Name == "" {
			continue
		}
		for _, t := range types {
			if in.Type == t {
				return in.Name, true
			}
		}
	}
	return "", false
}

func (f *loginForm) firstOfType(t string) *formInput {
	for i := range f.Inputs {
		if f.Inputs[i].Type == t {
			return &f.Inputs[i]
		}
	}
	return nil
}

func (f *loginForm) hidden() []formInput {
	var out []formInput
	for _, in := range f.Inputs {
		if in.Type == "hidden" && in.Name != "" {
			out = append(out, in)
		}
	}
	return out
}

func inputOf(n *html.Node) formInput {
	typ, _ := attr(n, "type")
	typ = strings.ToLower(strings.TrimSpace(typ))
	if typ == "" {
		typ = "text"
	}
	name, _ := attr(n, "name")
	value, _ := attr(n, "value")
	return formInput{Type: typ, Name: name, Value: value}
}

// attr looks up an attribute; the parser already lower-cases attribute keys.
func attr(n *html.Node, key string) (string, bool) {
	for _, a := range n.Attr {
		if a.Namespace == "" && strings.EqualFold(a.Key, key) {
			return a.Val, true
		}
	}
	return "", false
}

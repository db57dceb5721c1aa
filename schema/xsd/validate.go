package xsd

import (
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

// Event describes one schema violation.
type Event struct {
	// Path locates the offending node, e.g. "/Root/Series[2]/Period/Point[3]".
	Path    string
	Message string
}

func (e Event) String() string {
	return fmt.Sprintf("%s: %s", e.Path, e.Message)
}

// EventHandler receives every violation found during validation. Validation
// does not stop on the first violation.
type EventHandler func(Event)

// ValidateReader reads a document from r and validates it, reporting every
// violation to handler. An error is returned only when the input is not
// well-formed XML; the parsed document is returned otherwise.
func (s *Schema) ValidateReader(r io.Reader, handler EventHandler) (*etree.Document, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "reading document")
	}
	s.Validate(doc, handler)
	return doc, nil
}

// Validate validates a parsed document.
func (s *Schema) Validate(doc *etree.Document, handler EventHandler) {
	root := doc.Root()
	if root == nil {
		handler(Event{Path: "/", Message: "Root element is missing"})
		return
	}
	decl, ok := s.roots[root.Tag]
	if !ok || root.NamespaceURI() != s.TargetNamespace {
		handler(Event{
			Path:    "/" + root.Tag,
			Message: fmt.Sprintf("The '%s' element is not declared in namespace '%s'", root.Tag, s.TargetNamespace),
		})
		return
	}
	v := validator{ns: s.TargetNamespace, handler: handler}
	v.element(root, decl, "/"+root.Tag)
}

type validator struct {
	ns      string
	handler EventHandler
}

func (v *validator) report(path, format string, args ...interface{}) {
	v.handler(Event{Path: path, Message: fmt.Sprintf(format, args...)})
}

func (v *validator) element(e *etree.Element, decl *elementDecl, path string) {
	if decl.complex == nil {
		v.attributes(e, nil, path)
		v.noChildren(e, decl.name, path)
		if msg := decl.simple.check(e.Text()); msg != "" {
			v.report(path, "The '%s' element is invalid - %s", decl.name, msg)
		}
		return
	}

	ct := decl.complex
	v.attributes(e, ct.attributes, path)
	if ct.content != nil {
		v.noChildren(e, decl.name, path)
		if msg := ct.content.check(e.Text()); msg != "" {
			v.report(path, "The '%s' element is invalid - %s", decl.name, msg)
		}
		return
	}
	if text := strings.TrimSpace(e.Text()); text != "" {
		v.report(path, "The element '%s' cannot contain text", decl.name)
	}
	v.sequence(e, ct.sequence, path)
}

// sequence walks the children in document order. Each child is matched to
// the next declaration with the same name at or after the current position;
// skipped declarations are reported when they are required.
func (v *validator) sequence(e *etree.Element, decls []*elementDecl, path string) {
	counts := make([]int, len(decls))
	current := 0
	seen := map[string]int{}

	for _, child := range e.ChildElements() {
		seen[child.Tag]++
		childPath := fmt.Sprintf("%s/%s", path, child.Tag)
		if seen[child.Tag] > 1 {
			childPath = fmt.Sprintf("%s[%d]", childPath, seen[child.Tag])
		}

		match := -1
		for i := current; i < len(decls); i++ {
			if decls[i].name == child.Tag {
				match = i
				break
			}
		}
		if match < 0 || child.NamespaceURI() != v.ns {
			v.report(childPath, "The element '%s' has invalid child element '%s'", e.Tag, child.Tag)
			continue
		}
		for i := current; i < match; i++ {
			if counts[i] < decls[i].minOccurs {
				v.report(path, "The element '%s' has incomplete content. Expected '%s' before '%s'", e.Tag, decls[i].name, child.Tag)
			}
		}
		current = match
		decl := decls[match]
		if decl.maxOccurs != unbounded && counts[match] >= decl.maxOccurs {
			v.report(childPath, "The element '%s' occurs more than %d time(s)", child.Tag, decl.maxOccurs)
			continue
		}
		counts[match]++
		v.element(child, decl, childPath)
	}

	for i := current; i < len(decls); i++ {
		if counts[i] < decls[i].minOccurs {
			v.report(path, "The element '%s' has incomplete content. Expected '%s'", e.Tag, decls[i].name)
		}
	}
}

func (v *validator) attributes(e *etree.Element, decls []*attributeDecl, path string) {
	present := map[string]string{}
	for _, a := range e.Attr {
		if a.Space == "xmlns" || (a.Space == "" && a.Key == "xmlns") || a.Space == "xsi" {
			continue
		}
		present[a.Key] = a.Value
	}
	for _, decl := range decls {
		value, ok := present[decl.name]
		if !ok {
			if decl.required {
				v.report(path, "The required attribute '%s' is missing", decl.name)
			}
			continue
		}
		delete(present, decl.name)
		if msg := decl.typ.check(value); msg != "" {
			v.report(path, "The '%s' attribute is invalid - %s", decl.name, msg)
		}
	}
	for name := range present {
		v.report(path, "The '%s' attribute is not declared", name)
	}
}

func (v *validator) noChildren(e *etree.Element, name, path string) {
	for _, child := range e.ChildElements() {
		v.report(path+"/"+child.Tag, "The element '%s' cannot contain child element '%s'", name, child.Tag)
	}
}

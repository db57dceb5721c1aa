package incoming

import (
	"context"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"

	"github.com/gridexchange/edi-gateway/market"
	"github.com/gridexchange/edi-gateway/schema"
	"github.com/gridexchange/edi-gateway/schema/xsd"
)

// node is an element lookup scoped to the document namespace. A missing
// element yields a zero node whose text is empty, so extraction code can walk
// optional paths without nil checks.
type node struct {
	e  *etree.Element
	ns string
}

// child follows a path of local names.
func (n node) child(path ...string) node {
	cur := n
	for _, name := range path {
		if cur.e == nil {
			return node{}
		}
		next := node{ns: cur.ns}
		for _, c := range cur.e.ChildElements() {
			if c.Tag == name && c.NamespaceURI() == cur.ns {
				next.e = c
				break
			}
		}
		cur = next
	}
	return cur
}

func (n node) all(name string) []node {
	if n.e == nil {
		return nil
	}
	var nodes []node
	for _, c := range n.e.ChildElements() {
		if c.Tag == name && c.NamespaceURI() == n.ns {
			nodes = append(nodes, node{e: c, ns: n.ns})
		}
	}
	return nodes
}

func (n node) text() string {
	if n.e == nil {
		return ""
	}
	return strings.TrimSpace(n.e.Text())
}

func (n node) optional() *string {
	return optional(n.text())
}

type schemaKeyFunc func(namespace string) (schema.Key, error)

// readXML loads the document, resolves its schema from the root namespace
// and validates it. Problems are added to c, in which case the returned node
// is empty.
func readXML(ctx context.Context, provider *schema.Provider, r io.Reader, format market.DocumentFormat, documentType market.IncomingDocumentType, keyOf schemaKeyFunc, c *collector) (node, error) {
	if err := ctx.Err(); err != nil {
		return node{}, err
	}

	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		c.structural("", errors.Wrap(err, "reading document").Error())
		return node{}, nil
	}
	root := doc.Root()
	if root == nil {
		c.structural("", "Root element is missing")
		return node{}, nil
	}
	namespace := root.NamespaceURI()
	if namespace == "" {
		c.structural("/"+root.Tag, "The root element has no namespace")
		return node{}, nil
	}
	key, err := keyOf(namespace)
	if err != nil {
		c.structural("/"+root.Tag, err.Error())
		return node{}, nil
	}
	if !strings.EqualFold(key.ProcessType, expectedProcessType(format, documentType)) {
		c.add(InvalidBusinessReasonOrVersion(documentType.String(), key.ProcessType, key.Version))
		return node{}, nil
	}

	s, found, err := provider.XML(ctx, key)
	if err != nil {
		return node{}, err
	}
	if !found {
		c.add(InvalidBusinessReasonOrVersion(documentType.String(), key.ProcessType, key.Version))
		return node{}, nil
	}
	s.Validate(doc, func(e xsd.Event) {
		c.structural(e.Path, e.Message)
	})
	if c.failed() {
		return node{}, nil
	}
	return node{e: root, ns: namespace}, nil
}

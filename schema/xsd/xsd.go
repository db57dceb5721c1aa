// Package xsd compiles the subset of XML Schema used by the market document
// schemas and validates documents against it.
//
// Supported constructs: top-level and nested xs:element (name, type,
// minOccurs, maxOccurs, inline types), named and anonymous xs:complexType with
// xs:sequence or xs:simpleContent/xs:extension, xs:attribute (use="required"),
// and xs:simpleType restrictions with the enumeration, pattern, length,
// minLength, maxLength and fractionDigits facets. Type references prefixed
// with "xs:" or "xsd:" resolve to the built-in types; any other reference
// resolves to a named type of the same schema.
package xsd

import (
	"fmt"
	"io"
	"regexp"
	"strconv"
	"strings"

	"github.com/beevik/etree"
	"github.com/pkg/errors"
)

const unbounded = -1

// Schema is a compiled XML schema.
type Schema struct {
	TargetNamespace string
	roots           map[string]*elementDecl
}

type elementDecl struct {
	name      string
	minOccurs int
	maxOccurs int
	simple    *simpleType
	complex   *complexType
}

type complexType struct {
	sequence   []*elementDecl
	attributes []*attributeDecl
	content    *simpleType // Set for simpleContent.
}

type attributeDecl struct {
	name     string
	required bool
	typ      *simpleType
}

type simpleType struct {
	name           string
	builtin        string
	base           *simpleType
	enumerations   []string
	patterns       []*regexp.Regexp
	length         int
	minLength      int
	maxLength      int
	fractionDigits int
}

// compiler holds the named definitions while a schema is compiled.
type compiler struct {
	complexDefs map[string]*etree.Element
	simpleDefs  map[string]*etree.Element
	complexes   map[string]*complexType
	simples     map[string]*simpleType
}

// Compile reads an XSD document.
func Compile(r io.Reader) (*Schema, error) {
	doc := etree.NewDocument()
	if _, err := doc.ReadFrom(r); err != nil {
		return nil, errors.Wrap(err, "reading schema")
	}
	root := doc.Root()
	if root == nil || root.Tag != "schema" {
		return nil, errors.New("schema root element not found")
	}

	c := &compiler{
		complexDefs: map[string]*etree.Element{},
		simpleDefs:  map[string]*etree.Element{},
		complexes:   map[string]*complexType{},
		simples:     map[string]*simpleType{},
	}
	for _, child := range root.ChildElements() {
		name := child.SelectAttrValue("name", "")
		switch child.Tag {
		case "complexType":
			c.complexDefs[name] = child
		case "simpleType":
			c.simpleDefs[name] = child
		}
	}

	s := &Schema{
		TargetNamespace: root.SelectAttrValue("targetNamespace", ""),
		roots:           map[string]*elementDecl{},
	}
	for _, child := range root.SelectElements("element") {
		decl, err := c.element(child)
		if err != nil {
			return nil, err
		}
		s.roots[decl.name] = decl
	}
	if len(s.roots) == 0 {
		return nil, errors.New("schema declares no top-level element")
	}
	return s, nil
}

func (c *compiler) element(e *etree.Element) (*elementDecl, error) {
	if ref := e.SelectAttr("ref"); ref != nil {
		return nil, errors.Errorf("element references are not supported (ref=%q)", ref.Value)
	}
	decl := &elementDecl{
		name:      e.SelectAttrValue("name", ""),
		minOccurs: 1,
		maxOccurs: 1,
	}
	if decl.name == "" {
		return nil, errors.New("element without a name")
	}
	if v := e.SelectAttr("minOccurs"); v != nil {
		n, err := strconv.Atoi(v.Value)
		if err != nil {
			return nil, errors.Wrapf(err, "element %s: minOccurs", decl.name)
		}
		decl.minOccurs = n
	}
	if v := e.SelectAttr("maxOccurs"); v != nil {
		if v.Value == "unbounded" {
			decl.maxOccurs = unbounded
		} else {
			n, err := strconv.Atoi(v.Value)
			if err != nil {
				return nil, errors.Wrapf(err, "element %s: maxOccurs", decl.name)
			}
			decl.maxOccurs = n
		}
	}

	var err error
	switch {
	case e.SelectAttr("type") != nil:
		decl.simple, decl.complex, err = c.resolve(e.SelectAttrValue("type", ""))
	case e.SelectElement("complexType") != nil:
		decl.complex, err = c.complexType(e.SelectElement("complexType"))
	case e.SelectElement("simpleType") != nil:
		decl.simple, err = c.simpleType(e.SelectElement("simpleType"))
	default:
		decl.simple = builtinType("string")
	}
	if err != nil {
		return nil, errors.Wrapf(err, "element %s", decl.name)
	}
	return decl, nil
}

// resolve finds a type by its qualified name.
func (c *compiler) resolve(qname string) (*simpleType, *complexType, error) {
	prefix, local := splitQName(qname)
	if prefix == "xs" || prefix == "xsd" {
		if !isBuiltin(local) {
			return nil, nil, errors.Errorf("unsupported built-in type %q", qname)
		}
		return builtinType(local), nil, nil
	}
	if ct, ok := c.complexes[local]; ok {
		return nil, ct, nil
	}
	if st, ok := c.simples[local]; ok {
		return st, nil, nil
	}
	if def, ok := c.complexDefs[local]; ok {
		ct, err := c.complexType(def)
		if err != nil {
			return nil, nil, err
		}
		c.complexes[local] = ct
		return nil, ct, nil
	}
	if def, ok := c.simpleDefs[local]; ok {
		st, err := c.simpleType(def)
		if err != nil {
			return nil, nil, err
		}
		c.simples[local] = st
		return st, nil, nil
	}
	return nil, nil, errors.Errorf("type %q is not declared", qname)
}

func (c *compiler) complexType(e *etree.Element) (*complexType, error) {
	ct := &complexType{}
	if seq := e.SelectElement("sequence"); seq != nil {
		for _, child := range seq.SelectElements("element") {
			decl, err := c.element(child)
			if err != nil {
				return nil, err
			}
			ct.sequence = append(ct.sequence, decl)
		}
	}
	attrs := e.SelectElements("attribute")
	if sc := e.SelectElement("simpleContent"); sc != nil {
		ext := sc.SelectElement("extension")
		if ext == nil {
			return nil, errors.New("simpleContent without extension")
		}
		st, _, err := c.resolve(ext.SelectAttrValue("base", ""))
		if err != nil {
			return nil, err
		}
		if st == nil {
			return nil, errors.New("simpleContent must extend a simple type")
		}
		ct.content = st
		attrs = append(attrs, ext.SelectElements("attribute")...)
	}
	for _, a := range attrs {
		decl := &attributeDecl{
			name:     a.SelectAttrValue("name", ""),
			required: a.SelectAttrValue("use", "optional") == "required",
		}
		var err error
		switch {
		case a.SelectAttr("type") != nil:
			var ct *complexType
			decl.typ, ct, err = c.resolve(a.SelectAttrValue("type", ""))
			if err == nil && ct != nil {
				err = errors.Errorf("attribute %s has a complex type", decl.name)
			}
		case a.SelectElement("simpleType") != nil:
			decl.typ, err = c.simpleType(a.SelectElement("simpleType"))
		default:
			decl.typ = builtinType("string")
		}
		if err != nil {
			return nil, err
		}
		ct.attributes = append(ct.attributes, decl)
	}
	return ct, nil
}

func (c *compiler) simpleType(e *etree.Element) (*simpleType, error) {
	st := &simpleType{
		name:      e.SelectAttrValue("name", ""),
		length:    -1,
		minLength: -1,
		maxLength: -1,
		// -1 means unrestricted.
		fractionDigits: -1,
	}
	restriction := e.SelectElement("restriction")
	if restriction == nil {
		return nil, errors.Errorf("simple type %q has no restriction", st.name)
	}
	base, _, err := c.resolve(restriction.SelectAttrValue("base", "xs:string"))
	if err != nil {
		return nil, err
	}
	if base == nil {
		return nil, errors.Errorf("simple type %q restricts a complex type", st.name)
	}
	st.base = base

	for _, facet := range restriction.ChildElements() {
		value := facet.SelectAttrValue("value", "")
		switch facet.Tag {
		case "enumeration":
			st.enumerations = append(st.enumerations, value)
		case "pattern":
			re, err := regexp.Compile("^(?:" + value + ")$")
			if err != nil {
				return nil, errors.Wrapf(err, "simple type %q: pattern", st.name)
			}
			st.patterns = append(st.patterns, re)
		case "length", "minLength", "maxLength", "fractionDigits":
			n, err := strconv.Atoi(value)
			if err != nil {
				return nil, errors.Wrapf(err, "simple type %q: %s", st.name, facet.Tag)
			}
			switch facet.Tag {
			case "length":
				st.length = n
			case "minLength":
				st.minLength = n
			case "maxLength":
				st.maxLength = n
			case "fractionDigits":
				st.fractionDigits = n
			}
		default:
			return nil, errors.Errorf("simple type %q: unsupported facet %s", st.name, facet.Tag)
		}
	}
	return st, nil
}

func splitQName(qname string) (prefix, local string) {
	if i := strings.IndexByte(qname, ':'); i >= 0 {
		return qname[:i], qname[i+1:]
	}
	return "", qname
}

func (st *simpleType) String() string {
	if st.builtin != "" {
		return "xs:" + st.builtin
	}
	if st.name != "" {
		return st.name
	}
	return fmt.Sprintf("anonymous restriction of %s", st.base)
}

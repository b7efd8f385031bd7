// Package xmldoc loads XML text into a traversable tree and finds elements by
// local tag name, ignoring namespace prefixes and URIs.
//
// DMN documents from different vendors and schema versions bind the DMN
// namespace to different prefixes (or to the default namespace), so every
// lookup here compares local names only.
package xmldoc

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/beevik/etree"
	"github.com/opensource-finance/dmnsim/internal/domain"
)

// Load parses document text. Text that is not well-formed XML, or that has no
// root element, yields a *domain.MalformedDocumentError.
func Load(text string) (*etree.Document, error) {
	if err := checkWellFormed(text); err != nil {
		return nil, &domain.MalformedDocumentError{Err: err}
	}

	doc := etree.NewDocument()
	if err := doc.ReadFromString(text); err != nil {
		return nil, &domain.MalformedDocumentError{Err: err}
	}
	if doc.Root() == nil {
		return nil, &domain.MalformedDocumentError{Err: errNoRoot}
	}
	return doc, nil
}

// checkWellFormed rejects what etree tolerates: mismatched end tags, more
// than one root element, text outside the root and repeated attributes.
// It uses the decoder the engine reads documents with, so both agree on
// which documents exist.
func checkWellFormed(text string) error {
	dec := xml.NewDecoder(strings.NewReader(text))
	depth, roots := 0, 0
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return err
		}

		switch t := tok.(type) {
		case xml.StartElement:
			if depth == 0 {
				roots++
				if roots > 1 {
					return errMultipleRoots
				}
			}
			if err := checkAttributes(t); err != nil {
				return err
			}
			depth++
		case xml.EndElement:
			depth--
		case xml.CharData:
			if depth == 0 && strings.TrimSpace(string(t)) != "" {
				return errTextOutsideRoot
			}
		}
	}
	if roots == 0 {
		return errNoRoot
	}
	return nil
}

func checkAttributes(el xml.StartElement) error {
	seen := make(map[xml.Name]struct{}, len(el.Attr))
	for _, attr := range el.Attr {
		if _, dup := seen[attr.Name]; dup {
			return fmt.Errorf("%w: %q on <%s>", errDuplicateAttr, attr.Name.Local, el.Name.Local)
		}
		seen[attr.Name] = struct{}{}
	}
	return nil
}

// FirstChild returns the first direct child element of parent whose local
// name is localName, or nil.
func FirstChild(parent *etree.Element, localName string) *etree.Element {
	if parent == nil {
		return nil
	}
	for _, child := range parent.ChildElements() {
		if child.Tag == localName {
			return child
		}
	}
	return nil
}

// Descendants returns every element below root, at any depth, whose local
// name is localName, in document order. root itself is not included; pass
// &doc.Element to search a whole document including its root element.
func Descendants(root *etree.Element, localName string) []*etree.Element {
	if root == nil {
		return nil
	}
	var found []*etree.Element
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, child := range e.ChildElements() {
			if child.Tag == localName {
				found = append(found, child)
			}
			walk(child)
		}
	}
	walk(root)
	return found
}

// Attr returns the value of the unprefixed attribute key, or "" when absent.
func Attr(e *etree.Element, key string) string {
	if e == nil {
		return ""
	}
	for _, a := range e.Attr {
		if a.Space == "" && a.Key == key {
			return a.Value
		}
	}
	return ""
}

// TextContent returns the concatenated character data of e and all of its
// descendants, like the DOM textContent property.
func TextContent(e *etree.Element) string {
	if e == nil {
		return ""
	}
	var sb strings.Builder
	var walk func(e *etree.Element)
	walk = func(e *etree.Element) {
		for _, tok := range e.Child {
			switch t := tok.(type) {
			case *etree.CharData:
				sb.WriteString(t.Data)
			case *etree.Element:
				walk(t)
			}
		}
	}
	walk(e)
	return sb.String()
}

// ChildText returns the trimmed text content of parent's first child named
// localName, and whether that child exists.
func ChildText(parent *etree.Element, localName string) (string, bool) {
	child := FirstChild(parent, localName)
	if child == nil {
		return "", false
	}
	return strings.TrimSpace(TextContent(child)), true
}

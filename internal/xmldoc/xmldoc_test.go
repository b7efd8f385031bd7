package xmldoc

import (
	"errors"
	"testing"

	"github.com/opensource-finance/dmnsim/internal/domain"
)

const prefixedDoc = `<?xml version="1.0" encoding="UTF-8"?>
<dmn:definitions xmlns:dmn="https://www.omg.org/spec/DMN/20191111/MODEL/" id="defs">
  <dmn:decision id="d1" name="First">
    <dmn:decisionTable id="t1">
      <dmn:input id="i1" label="Age">
        <dmn:inputExpression typeRef="number"><dmn:text> age </dmn:text></dmn:inputExpression>
      </dmn:input>
      <dmn:rule id="r1"><dmn:inputEntry><dmn:text><![CDATA[< 18]]></dmn:text></dmn:inputEntry></dmn:rule>
      <dmn:rule id="r2"><dmn:inputEntry><dmn:text>&gt;= 18</dmn:text></dmn:inputEntry></dmn:rule>
    </dmn:decisionTable>
  </dmn:decision>
  <dmn:decision id="d2"/>
</dmn:definitions>`

const defaultNamespaceDoc = `<definitions xmlns="http://www.omg.org/spec/DMN/20151101/dmn.xsd">
  <decision id="d1"><decisionTable><rule id="r1"/></decisionTable></decision>
</definitions>`

func TestLoad(t *testing.T) {
	t.Run("CommentsAndWhitespaceAroundRoot", func(t *testing.T) {
		text := "<?xml version=\"1.0\"?>\n<!-- exported -->\n<definitions id=\"a\" name=\"a\"/>\n<!-- end -->\n"
		if _, err := Load(text); err != nil {
			t.Errorf("expected document to load, got %v", err)
		}
	})

	t.Run("WellFormed", func(t *testing.T) {
		doc, err := Load(prefixedDoc)
		if err != nil {
			t.Fatalf("Load failed: %v", err)
		}
		if doc.Root().Tag != "definitions" {
			t.Errorf("expected root definitions, got %s", doc.Root().Tag)
		}
	})

	malformed := map[string]string{
		"PlainText":     "this is not xml",
		"Empty":         "",
		"TruncatedTag":  `<definitions><decision id="d1"`,
		"SecondRoot":    `<definitions><decision id="d1"/></definitions><definitions><decision id="d2"/></definitions>`,
		"TrailingText":  `<definitions><decision id="d1"/></definitions>garbage`,
		"LeadingText":   `garbage<definitions/>`,
		"DuplicateAttr": `<definitions><decision id="d1" id="d2"/></definitions>`,
		"MismatchedEnd": `<definitions><decision id="d1"></definitions></decision>`,
		"Unclosed":      `<definitions><decision id="d1">`,
	}
	for name, text := range malformed {
		t.Run(name, func(t *testing.T) {
			_, err := Load(text)
			if err == nil {
				t.Fatal("expected error for malformed document")
			}
			if !errors.Is(err, domain.ErrMalformedDocument) {
				t.Errorf("expected ErrMalformedDocument, got %v", err)
			}
			var mde *domain.MalformedDocumentError
			if !errors.As(err, &mde) {
				t.Errorf("expected *MalformedDocumentError, got %T", err)
			}
		})
	}
}

func TestDescendantsIgnoresPrefix(t *testing.T) {
	for name, text := range map[string]string{"Prefixed": prefixedDoc, "DefaultNamespace": defaultNamespaceDoc} {
		t.Run(name, func(t *testing.T) {
			doc, err := Load(text)
			if err != nil {
				t.Fatalf("Load failed: %v", err)
			}

			decisions := Descendants(&doc.Element, "decision")
			if len(decisions) == 0 {
				t.Fatal("expected decisions")
			}
			if Attr(decisions[0], "id") != "d1" {
				t.Errorf("expected first decision d1, got %q", Attr(decisions[0], "id"))
			}

			table := FirstChild(decisions[0], "decisionTable")
			if table == nil {
				t.Fatal("expected decisionTable child")
			}
			if len(Descendants(table, "rule")) == 0 {
				t.Error("expected rules under table")
			}
		})
	}
}

func TestDescendantsDocumentOrder(t *testing.T) {
	doc, _ := Load(prefixedDoc)

	decisions := Descendants(&doc.Element, "decision")
	if len(decisions) != 2 {
		t.Fatalf("expected 2 decisions, got %d", len(decisions))
	}

	rules := Descendants(decisions[0], "rule")
	if len(rules) != 2 {
		t.Fatalf("expected 2 rules, got %d", len(rules))
	}
	if Attr(rules[0], "id") != "r1" || Attr(rules[1], "id") != "r2" {
		t.Errorf("rules out of order: %s, %s", Attr(rules[0], "id"), Attr(rules[1], "id"))
	}

	if got := Descendants(decisions[1], "rule"); len(got) != 0 {
		t.Errorf("expected no rules for d2, got %d", len(got))
	}
}

func TestFirstChildOnlyDirectChildren(t *testing.T) {
	doc, _ := Load(prefixedDoc)

	if FirstChild(doc.Root(), "rule") != nil {
		t.Error("FirstChild must not descend below direct children")
	}
	if FirstChild(nil, "rule") != nil {
		t.Error("FirstChild(nil) should return nil")
	}
}

func TestTextContent(t *testing.T) {
	doc, _ := Load(prefixedDoc)
	rules := Descendants(&doc.Element, "rule")

	entry := FirstChild(rules[0], "inputEntry")
	text, ok := ChildText(entry, "text")
	if !ok || text != "< 18" {
		t.Errorf("expected CDATA text '< 18', got %q (found=%v)", text, ok)
	}

	entry = FirstChild(rules[1], "inputEntry")
	if text, _ := ChildText(entry, "text"); text != ">= 18" {
		t.Errorf("expected '>= 18', got %q", text)
	}

	input := Descendants(&doc.Element, "input")[0]
	expr := FirstChild(input, "inputExpression")
	if text, _ := ChildText(expr, "text"); text != "age" {
		t.Errorf("expected trimmed 'age', got %q", text)
	}
	if Attr(expr, "typeRef") != "number" {
		t.Errorf("expected typeRef number, got %q", Attr(expr, "typeRef"))
	}
	if Attr(expr, "missing") != "" {
		t.Error("expected empty value for missing attribute")
	}
}

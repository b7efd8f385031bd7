// Package parser reconstructs the decision tables of a DMN document for
// display, without evaluating anything.
package parser

import (
	"github.com/beevik/etree"
	"github.com/opensource-finance/dmnsim/internal/domain"
	"github.com/opensource-finance/dmnsim/internal/xmldoc"
)

// Parse loads document text and returns one Decision per decision element,
// in document order. Only malformed XML is an error; missing attributes and
// elements degrade to empty values.
//
// The scan is namespace-blind: any element named decision, input, output or
// rule is taken to be the DMN element of that name.
func Parse(text string) ([]domain.Decision, error) {
	doc, err := xmldoc.Load(text)
	if err != nil {
		return nil, err
	}
	return ParseDocument(doc), nil
}

// ParseDocument extracts decisions from an already loaded document.
func ParseDocument(doc *etree.Document) []domain.Decision {
	decisions := []domain.Decision{}
	for _, el := range xmldoc.Descendants(&doc.Element, "decision") {
		decisions = append(decisions, parseDecision(el))
	}
	return decisions
}

func parseDecision(el *etree.Element) domain.Decision {
	id := xmldoc.Attr(el, "id")
	name := xmldoc.Attr(el, "name")
	if name == "" {
		name = id
	}

	d := domain.Decision{
		ID:      id,
		Name:    name,
		Inputs:  []domain.InputDefinition{},
		Outputs: []domain.OutputDefinition{},
		Rules:   []domain.RuleDefinition{},
	}

	table := xmldoc.FirstChild(el, "decisionTable")
	if table == nil {
		return d
	}

	for _, in := range xmldoc.Descendants(table, "input") {
		d.Inputs = append(d.Inputs, parseInput(in))
	}
	for _, out := range xmldoc.Descendants(table, "output") {
		d.Outputs = append(d.Outputs, parseOutput(out))
	}
	for i, rule := range xmldoc.Descendants(table, "rule") {
		d.Rules = append(d.Rules, parseRule(rule, i+1))
	}
	return d
}

func parseInput(el *etree.Element) domain.InputDefinition {
	def := domain.InputDefinition{
		ID:    xmldoc.Attr(el, "id"),
		Label: xmldoc.Attr(el, "label"),
	}

	if expr := xmldoc.FirstChild(el, "inputExpression"); expr != nil {
		def.TypeRef = xmldoc.Attr(expr, "typeRef")
		def.Name, _ = xmldoc.ChildText(expr, "text")
	}
	if def.Label == "" {
		def.Label = def.Name
	}

	if values := xmldoc.FirstChild(el, "inputValues"); values != nil {
		if raw, _ := xmldoc.ChildText(values, "text"); raw != "" {
			def.AllowedValues, def.AllowedValuesKind = LexAllowedValues(raw)
		}
	}
	return def
}

func parseOutput(el *etree.Element) domain.OutputDefinition {
	def := domain.OutputDefinition{
		ID:      xmldoc.Attr(el, "id"),
		Name:    xmldoc.Attr(el, "name"),
		Label:   xmldoc.Attr(el, "label"),
		TypeRef: xmldoc.Attr(el, "typeRef"),
	}
	if def.Label == "" {
		def.Label = def.Name
	}
	return def
}

func parseRule(el *etree.Element, index int) domain.RuleDefinition {
	return domain.RuleDefinition{
		ID:            xmldoc.Attr(el, "id"),
		Index:         index,
		InputEntries:  entryTexts(el, "inputEntry"),
		OutputEntries: entryTexts(el, "outputEntry"),
	}
}

// entryTexts collects the trimmed text of each entry cell; a cell without a
// text child contributes "".
func entryTexts(rule *etree.Element, localName string) []string {
	texts := []string{}
	for _, entry := range xmldoc.Descendants(rule, localName) {
		text, _ := xmldoc.ChildText(entry, "text")
		texts = append(texts, text)
	}
	return texts
}

package engine

import (
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"strings"
)

// The document model below only binds local names. encoding/xml matches
// untagged-namespace fields against any namespace, so DMN 1.1 through 1.5
// documents and vendor prefixes decode the same way.

type definitions struct {
	XMLName   xml.Name   `xml:"definitions"`
	ID        string     `xml:"id,attr"`
	Name      string     `xml:"name,attr"`
	Decisions []decision `xml:"decision"`
}

type decision struct {
	ID                      string                   `xml:"id,attr"`
	Name                    string                   `xml:"name,attr"`
	Variable                *variable                `xml:"variable"`
	DecisionTable           *decisionTable           `xml:"decisionTable"`
	LiteralExpression       *literalExpression       `xml:"literalExpression"`
	InformationRequirements []informationRequirement `xml:"informationRequirement"`
}

type variable struct {
	Name    string `xml:"name,attr"`
	TypeRef string `xml:"typeRef,attr"`
}

type literalExpression struct {
	ID   string `xml:"id,attr"`
	Text string `xml:"text"`
}

type informationRequirement struct {
	RequiredDecision *reference `xml:"requiredDecision"`
}

type reference struct {
	Href string `xml:"href,attr"`
}

type decisionTable struct {
	ID          string   `xml:"id,attr"`
	HitPolicy   string   `xml:"hitPolicy,attr"`
	Aggregation string   `xml:"aggregation,attr"`
	Inputs      []input  `xml:"input"`
	Outputs     []output `xml:"output"`
	Rules       []rule   `xml:"rule"`
}

type input struct {
	ID              string          `xml:"id,attr"`
	Label           string          `xml:"label,attr"`
	InputExpression inputExpression `xml:"inputExpression"`
}

type inputExpression struct {
	TypeRef string `xml:"typeRef,attr"`
	Text    string `xml:"text"`
}

type output struct {
	ID      string `xml:"id,attr"`
	Name    string `xml:"name,attr"`
	Label   string `xml:"label,attr"`
	TypeRef string `xml:"typeRef,attr"`
}

type rule struct {
	ID            string  `xml:"id,attr"`
	InputEntries  []entry `xml:"inputEntry"`
	OutputEntries []entry `xml:"outputEntry"`
}

type entry struct {
	ID   string `xml:"id,attr"`
	Text string `xml:"text"`
}

func decodeDefinitions(r io.Reader) (*definitions, error) {
	dec := xml.NewDecoder(r)

	var defs definitions
	if err := dec.Decode(&defs); err != nil {
		var syntaxErr *xml.SyntaxError
		if errors.As(err, &syntaxErr) || errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
		}
		return nil, fmt.Errorf("invalid DMN document: %w", err)
	}
	if err := checkTrailing(dec); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidXML, err)
	}
	return &defs, nil
}

// checkTrailing allows only comments, processing instructions and
// whitespace after the root element.
func checkTrailing(dec *xml.Decoder) error {
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			return err
		}
		switch t := tok.(type) {
		case xml.StartElement:
			return fmt.Errorf("second root element <%s>", t.Name.Local)
		case xml.CharData:
			if strings.TrimSpace(string(t)) != "" {
				return errors.New("text after the root element")
			}
		}
	}
}

func (d *definitions) decision(id string) *decision {
	for i := range d.Decisions {
		if d.Decisions[i].ID == id {
			return &d.Decisions[i]
		}
	}
	return nil
}

// resultName is the key an output column's value is reported under.
func (o output) resultName(position int) string {
	switch {
	case o.Name != "":
		return o.Name
	case o.ID != "":
		return o.ID
	default:
		return fmt.Sprintf("output%d", position+1)
	}
}

func (r informationRequirement) requiredDecisionID() (string, bool) {
	if r.RequiredDecision == nil {
		return "", false
	}
	href := strings.TrimSpace(r.RequiredDecision.Href)
	if i := strings.LastIndex(href, "#"); i >= 0 {
		href = href[i+1:]
	}
	return href, href != ""
}

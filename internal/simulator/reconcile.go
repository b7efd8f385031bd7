package simulator

import (
	"log/slog"

	"github.com/beevik/etree"
	"github.com/opensource-finance/dmnsim/internal/xmldoc"
)

// ReconcileRuleIndexes maps matched rule ids to the 1-based positions of
// those rules in decisionID's decision table, ascending in document order
// regardless of the order ids are given in. The result is empty, never nil,
// when nothing matched or the table cannot be located.
func ReconcileRuleIndexes(dmnXML, decisionID string, matchedRuleIDs []string) []int {
	indexes, _ := reconcile(dmnXML, decisionID, matchedRuleIDs)
	return indexes
}

// reconcile reports ok=false when there were ids to map but the document,
// decision or table could not be located.
func reconcile(dmnXML, decisionID string, matchedRuleIDs []string) ([]int, bool) {
	indexes := []int{}
	if len(matchedRuleIDs) == 0 {
		return indexes, true
	}

	doc, err := xmldoc.Load(dmnXML)
	if err != nil {
		slog.Warn("rule index reconciliation degraded", "decision_id", decisionID, "error", err)
		return indexes, false
	}

	table := xmldoc.FirstChild(findDecision(&doc.Element, decisionID), "decisionTable")
	if table == nil {
		slog.Warn("rule index reconciliation degraded", "decision_id", decisionID, "reason", "decision table not found")
		return indexes, false
	}

	matched := make(map[string]struct{}, len(matchedRuleIDs))
	for _, id := range matchedRuleIDs {
		matched[id] = struct{}{}
	}

	for i, rule := range xmldoc.Descendants(table, "rule") {
		if _, ok := matched[xmldoc.Attr(rule, "id")]; ok {
			indexes = append(indexes, i+1)
		}
	}
	return indexes, true
}

// findDecision returns the first decision element with the given id, or nil.
func findDecision(root *etree.Element, id string) *etree.Element {
	for _, el := range xmldoc.Descendants(root, "decision") {
		if xmldoc.Attr(el, "id") == id {
			return el
		}
	}
	return nil
}

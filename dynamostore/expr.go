package dynamostore

import (
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/jacentio/mpath/tree"
)

// maxInValues is DynamoDB's limit on IN operands.
const maxInValues = 100

// exprBuilder accumulates placeholder names and values for one request.
type exprBuilder struct {
	names  map[string]string
	values map[string]types.AttributeValue
	nameOf map[string]string
	nv     int
}

func newExprBuilder() *exprBuilder {
	return &exprBuilder{
		names:  make(map[string]string),
		values: make(map[string]types.AttributeValue),
		nameOf: make(map[string]string),
	}
}

// name returns the placeholder for attribute, reusing it on repeat.
func (b *exprBuilder) name(attr string) string {
	if p, ok := b.nameOf[attr]; ok {
		return p
	}
	p := fmt.Sprintf("#n%d", len(b.nameOf))
	b.nameOf[attr] = p
	b.names[p] = attr
	return p
}

func (b *exprBuilder) value(av types.AttributeValue) string {
	p := fmt.Sprintf(":v%d", b.nv)
	b.nv++
	b.values[p] = av
	return p
}

func (b *exprBuilder) str(s string) string {
	return b.value(&types.AttributeValueMemberS{Value: s})
}

func (b *exprBuilder) in(attr string, vals []string) string {
	ph := make([]string, len(vals))
	for i, v := range vals {
		ph[i] = b.str(v)
	}
	return fmt.Sprintf("%s IN (%s)", b.name(attr), strings.Join(ph, ", "))
}

// exprNames returns nil when no names were used, as the API rejects empty maps.
func (b *exprBuilder) exprNames() map[string]string {
	if len(b.names) == 0 {
		return nil
	}
	return b.names
}

func (b *exprBuilder) exprValues() map[string]types.AttributeValue {
	if len(b.values) == 0 {
		return nil
	}
	return b.values
}

// filterExpr translates f into a filter expression. The expression is a
// superset of f: conditions DynamoDB cannot express exactly (whole-segment
// matches, oversized IN lists) are narrowed client-side with Layout.Match.
// When onIndex is true the parent conditions are left out, since a query
// filter may not reference the index key.
func (b *exprBuilder) filterExpr(l tree.Layout, f tree.Filter, onIndex bool) (string, error) {
	var conds []string

	if f.ID != "" {
		conds = append(conds, fmt.Sprintf("%s = %s", b.name(l.ID), b.str(f.ID)))
	}
	if f.IDIn != nil {
		if len(f.IDIn) == 0 {
			conds = append(conds, fmt.Sprintf("attribute_not_exists(%s)", b.name(l.ID)))
		} else if len(f.IDIn) <= maxInValues {
			conds = append(conds, b.in(l.ID, f.IDIn))
		}
	}
	if f.IDNot != "" {
		conds = append(conds, fmt.Sprintf("%s <> %s", b.name(l.ID), b.str(f.IDNot)))
	}
	if f.Roots && !onIndex {
		p := b.name(l.Parent)
		conds = append(conds, fmt.Sprintf("(attribute_not_exists(%s) OR %s = %s)", p, p, b.str("")))
	}
	if f.ParentID != "" && !onIndex {
		conds = append(conds, fmt.Sprintf("%s = %s", b.name(l.Parent), b.str(f.ParentID)))
	}
	if len(f.ParentIn) > 0 && len(f.ParentIn) <= maxInValues && !onIndex {
		conds = append(conds, b.in(l.Parent, f.ParentIn))
	}
	if f.PathUnder != "" {
		p := b.name(l.Path)
		conds = append(conds, fmt.Sprintf("(%s = %s OR begins_with(%s, %s))",
			p, b.str(f.PathUnder), p, b.str(f.PathUnder+l.Separator)))
	}
	if f.PathSegment != "" {
		conds = append(conds, fmt.Sprintf("contains(%s, %s)", b.name(l.Path), b.str(l.Separator+f.PathSegment)))
	}

	keys := make([]string, 0, len(f.Where))
	for k := range f.Where {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		av, err := attributevalue.Marshal(f.Where[k])
		if err != nil {
			return "", fmt.Errorf("marshal condition %s: %w", k, err)
		}
		conds = append(conds, fmt.Sprintf("%s = %s", b.name(k), b.value(av)))
	}
	return strings.Join(conds, " AND "), nil
}

// updateExpr translates p into SET and REMOVE clauses. A nil value removes
// the attribute. The id is never written.
func (b *exprBuilder) updateExpr(l tree.Layout, p tree.Patch) (string, error) {
	var set, remove []string

	keys := make([]string, 0, len(p.Set))
	for k := range p.Set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if k == l.ID {
			continue
		}
		v := p.Set[k]
		if v == nil {
			remove = append(remove, b.name(k))
			continue
		}
		av, err := attributevalue.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("marshal %s: %w", k, err)
		}
		set = append(set, fmt.Sprintf("%s = %s", b.name(k), b.value(av)))
	}
	for _, k := range p.Unset {
		if k == l.ID {
			continue
		}
		if _, ok := p.Set[k]; ok {
			continue
		}
		remove = append(remove, b.name(k))
	}

	var parts []string
	if len(set) > 0 {
		parts = append(parts, "SET "+strings.Join(set, ", "))
	}
	if len(remove) > 0 {
		parts = append(parts, "REMOVE "+strings.Join(remove, ", "))
	}
	return strings.Join(parts, " "), nil
}

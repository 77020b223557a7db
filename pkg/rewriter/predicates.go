package rewriter

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// inject adds the predicates to sel, descending into derived tables for the
// COUNT(*) idiom. It reports whether anything was added.
func (r *Rewriter) inject(sel sqlparser.SelectStatement, tenantID string) bool {
	switch s := sel.(type) {
	case *sqlparser.ParenSelect:
		return r.inject(s.Select, tenantID)
	case *sqlparser.Select:
		if isCountStar(s) {
			if subs := derivedTables(s.From); len(subs) > 0 {
				injected := false
				for _, sq := range subs {
					if r.inject(sq.Select, tenantID) {
						injected = true
					}
				}
				return injected
			}
		}
		cond := r.condition(qualifier(s.From), tenantID)
		if cond == nil {
			return false
		}
		mergeWhere(s, cond)
		return true
	default:
		return false
	}
}

// isCountStar reports whether the projection is exactly one COUNT(*) call.
func isCountStar(s *sqlparser.Select) bool {
	if len(s.SelectExprs) != 1 {
		return false
	}
	aliased, ok := s.SelectExprs[0].(*sqlparser.AliasedExpr)
	if !ok {
		return false
	}
	fn, ok := aliased.Expr.(*sqlparser.FuncExpr)
	if !ok || !fn.Name.EqualString("count") {
		return false
	}
	return strings.EqualFold(sqlparser.String(fn), "count(*)")
}

// condition builds the predicate group for one SELECT, or nil when no filter applies.
func (r *Rewriter) condition(alias, tenantID string) sqlparser.Expr {
	var preds []sqlparser.Expr
	if r.softDelete {
		preds = append(preds, &sqlparser.ComparisonExpr{
			Operator: sqlparser.EqualStr,
			Left:     column(alias, r.deleteFlagColumn),
			Right:    sqlparser.NewIntVal([]byte("0")),
		})
	}
	if r.tenantFilter && tenantID != "" {
		preds = append(preds, &sqlparser.ComparisonExpr{
			Operator: sqlparser.EqualStr,
			Left:     column(alias, r.tenantColumn),
			Right:    sqlparser.NewStrVal([]byte(tenantID)),
		})
	}

	switch len(preds) {
	case 0:
		return nil
	case 1:
		return preds[0]
	}
	group := preds[0]
	for _, p := range preds[1:] {
		group = &sqlparser.AndExpr{Left: group, Right: p}
	}
	return &sqlparser.ParenExpr{Expr: group}
}

func column(alias, name string) *sqlparser.ColName {
	col := &sqlparser.ColName{Name: sqlparser.NewColIdent(name)}
	if alias != "" {
		col.Qualifier = sqlparser.TableName{Name: sqlparser.NewTableIdent(alias)}
	}
	return col
}

// mergeWhere conjoins cond with the existing WHERE clause of s.
func mergeWhere(s *sqlparser.Select, cond sqlparser.Expr) {
	if s.Where == nil || s.Where.Expr == nil {
		s.Where = sqlparser.NewWhere(sqlparser.WhereStr, cond)
		return
	}
	existing := s.Where.Expr
	// The formatter does not add parentheses, so an OR must be grouped
	// before it becomes the left side of an AND.
	if _, ok := existing.(*sqlparser.OrExpr); ok {
		existing = &sqlparser.ParenExpr{Expr: existing}
	}
	s.Where.Expr = &sqlparser.AndExpr{Left: existing, Right: cond}
}

package rewriter

import (
	"strings"

	"github.com/xwb1989/sqlparser"
)

// TableRef is the driving table of a SELECT. Name is lowercased with quotes removed;
// Alias keeps the spelling used in the statement.
type TableRef struct {
	Name  string
	Alias string
}

// DrivingTable parses sql and returns the table its predicates would be injected against.
func DrivingTable(sql string) (TableRef, bool) {
	stmt, err := sqlparser.Parse(sql)
	if err != nil {
		return TableRef{}, false
	}
	sel, ok := stmt.(sqlparser.SelectStatement)
	if !ok {
		return TableRef{}, false
	}
	return resolveSelect(sel)
}

func resolveSelect(sel sqlparser.SelectStatement) (TableRef, bool) {
	switch s := sel.(type) {
	case *sqlparser.Select:
		return resolveFrom(s.From)
	case *sqlparser.ParenSelect:
		return resolveSelect(s.Select)
	default:
		// UNION has no single driving table.
		return TableRef{}, false
	}
}

func resolveFrom(from sqlparser.TableExprs) (TableRef, bool) {
	if len(from) == 0 {
		return TableRef{}, false
	}
	return resolveTableExpr(from[0])
}

func resolveTableExpr(expr sqlparser.TableExpr) (TableRef, bool) {
	switch t := expr.(type) {
	case *sqlparser.AliasedTableExpr:
		switch inner := t.Expr.(type) {
		case sqlparser.TableName:
			name := strings.ToLower(inner.Name.String())
			// A FROM-less select is parsed as selecting from dual.
			if name == "" || (name == "dual" && inner.Qualifier.IsEmpty()) {
				return TableRef{}, false
			}
			return TableRef{Name: name, Alias: t.As.String()}, true
		case *sqlparser.Subquery:
			return resolveSelect(inner.Select)
		}
	case *sqlparser.JoinTableExpr:
		return resolveTableExpr(t.LeftExpr)
	case *sqlparser.ParenTableExpr:
		return resolveFrom(t.Exprs)
	}
	return TableRef{}, false
}

// qualifier returns the alias of the first FROM entry when it is a plain aliased table.
// A join contributes the alias of its left-most table.
func qualifier(from sqlparser.TableExprs) string {
	if len(from) == 0 {
		return ""
	}
	expr := from[0]
	for {
		switch t := expr.(type) {
		case *sqlparser.JoinTableExpr:
			expr = t.LeftExpr
			continue
		case *sqlparser.ParenTableExpr:
			if len(t.Exprs) == 0 {
				return ""
			}
			expr = t.Exprs[0]
			continue
		case *sqlparser.AliasedTableExpr:
			if _, ok := t.Expr.(sqlparser.TableName); ok {
				return t.As.String()
			}
		}
		return ""
	}
}

// derivedTables collects the subqueries used as FROM sources, looking through joins
// and parenthesised table lists.
func derivedTables(from sqlparser.TableExprs) []*sqlparser.Subquery {
	var out []*sqlparser.Subquery
	var walk func(sqlparser.TableExpr)
	walk = func(expr sqlparser.TableExpr) {
		switch t := expr.(type) {
		case *sqlparser.AliasedTableExpr:
			if sq, ok := t.Expr.(*sqlparser.Subquery); ok {
				out = append(out, sq)
			}
		case *sqlparser.JoinTableExpr:
			walk(t.LeftExpr)
			walk(t.RightExpr)
		case *sqlparser.ParenTableExpr:
			for _, e := range t.Exprs {
				walk(e)
			}
		}
	}
	for _, e := range from {
		walk(e)
	}
	return out
}

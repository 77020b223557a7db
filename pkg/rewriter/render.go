package rewriter

import (
	"regexp"

	"github.com/nsxbet/sql-rewriter/pkg/config"
	"github.com/xwb1989/sqlparser"
)

// The tokenizer names each ? placeholder :v1, :v2 and so on.
var positionalArg = regexp.MustCompile(`^:v[0-9]+$`)

func (r *Rewriter) render(node sqlparser.SQLNode, d dialect) string {
	buf := sqlparser.NewTrackedBuffer(func(buf *sqlparser.TrackedBuffer, node sqlparser.SQLNode) {
		r.formatNode(buf, node, d)
	})
	buf.Myprintf("%v", node)
	return buf.String()
}

func (r *Rewriter) formatNode(buf *sqlparser.TrackedBuffer, node sqlparser.SQLNode, d dialect) {
	switch n := node.(type) {
	case *sqlparser.SQLVal:
		switch {
		case n.Type == sqlparser.ValArg && r.placeholder != config.PlaceholderNamed && positionalArg.Match(n.Val):
			buf.WriteString("?")
			return
		case n.Type == sqlparser.StrVal:
			d.writeString(buf, n)
			return
		}
	case sqlparser.ColIdent:
		d.writeIdent(buf, n, n.String())
		return
	case sqlparser.TableIdent:
		d.writeIdent(buf, n, n.String())
		return
	}
	node.Format(buf)
}

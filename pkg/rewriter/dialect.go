package rewriter

import (
	"strings"

	"github.com/antlr4-go/antlr/v4"
	postgresql "github.com/bytebase/parser/postgresql"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/xwb1989/sqlparser"
)

// dialect decides how statement text is read and how literals and identifiers are written.
//
// The MySQL family uses backslash escapes, backtick identifiers and treats "..." as a string.
// Every other engine, and an unspecified one, follows standard SQL: '' is the only escape
// inside a string, backslashes are ordinary characters and "..." is an identifier.
type dialect int

const (
	dialectANSI dialect = iota
	dialectMySQL
)

func dialectFor(engine types.Engine) dialect {
	switch engine {
	case types.Engine_MYSQL, types.Engine_MARIADB, types.Engine_TIDB:
		return dialectMySQL
	default:
		return dialectANSI
	}
}

// normalize turns standard SQL text into the MySQL lexical form the parser reads:
// "ident" becomes `ident` and backslashes inside '...' are doubled so they stay literal.
// Text the standard lexer cannot tokenize cleanly is returned as is.
func (d dialect) normalize(sql string) string {
	if d == dialectMySQL || !strings.ContainsAny(sql, "\"\\") {
		return sql
	}

	lexer := postgresql.NewPostgreSQLLexer(antlr.NewInputStream(sql))
	listener := &lexErrorListener{DefaultErrorListener: antlr.NewDefaultErrorListener()}
	lexer.RemoveErrorListeners()
	lexer.AddErrorListener(listener)

	stream := antlr.NewCommonTokenStream(lexer, antlr.TokenDefaultChannel)
	stream.Fill()
	if listener.failed {
		return sql
	}

	src := []rune(sql)
	var out strings.Builder
	last := 0
	for _, token := range stream.GetAllTokens() {
		var replacement string
		switch token.GetTokenType() {
		case postgresql.PostgreSQLLexerQuotedIdentifier:
			replacement = backtickIdentifier(token.GetText())
		case postgresql.PostgreSQLLexerStringConstant:
			replacement = strings.ReplaceAll(token.GetText(), `\`, `\\`)
		case postgresql.PostgreSQLLexerUnterminatedStringConstant,
			postgresql.PostgreSQLLexerUnterminatedQuotedIdentifier:
			return sql
		default:
			continue
		}
		start, stop := token.GetStart(), token.GetStop()
		if start < last || stop >= len(src) {
			return sql
		}
		out.WriteString(string(src[last:start]))
		out.WriteString(replacement)
		last = stop + 1
	}
	out.WriteString(string(src[last:]))
	return out.String()
}

// backtickIdentifier converts a "quoted" identifier token to its `quoted` form.
func backtickIdentifier(text string) string {
	name := strings.ReplaceAll(text[1:len(text)-1], `""`, `"`)
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// writeString writes a string literal. MySQL keeps the parser's own encoder.
func (d dialect) writeString(buf *sqlparser.TrackedBuffer, v *sqlparser.SQLVal) {
	if d == dialectMySQL {
		v.Format(buf)
		return
	}
	buf.WriteByte('\'')
	buf.WriteString(strings.ReplaceAll(string(v.Val), "'", "''"))
	buf.WriteByte('\'')
}

// writeIdent writes an identifier, quoting it the way the dialect expects when quoting is needed.
func (d dialect) writeIdent(buf *sqlparser.TrackedBuffer, node sqlparser.SQLNode, name string) {
	formatted := sqlparser.String(node)
	if d == dialectMySQL || !strings.HasPrefix(formatted, "`") {
		buf.WriteString(formatted)
		return
	}
	buf.WriteByte('"')
	buf.WriteString(strings.ReplaceAll(name, `"`, `""`))
	buf.WriteByte('"')
}

type lexErrorListener struct {
	*antlr.DefaultErrorListener
	failed bool
}

func (l *lexErrorListener) SyntaxError(_ antlr.Recognizer, _ any, _, _ int, _ string, _ antlr.RecognitionException) {
	l.failed = true
}

// Package validate checks statement text against the ANTLR grammar of a database engine.
//
// The rewriter renders statements in the MySQL dialect. Validating the output against
// the target engine's grammar catches text the engine would reject before it is executed.
package validate

import (
	"fmt"

	"github.com/antlr4-go/antlr/v4"
	mysql "github.com/gedhean/mysql-parser"
	postgresql "github.com/bytebase/parser/postgresql"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
)

// ErrUnsupportedEngine is returned for engines without a grammar
var ErrUnsupportedEngine = errors.New("no grammar available for engine")

// SyntaxError represents a SQL syntax error with position information.
type SyntaxError struct {
	Message  string
	Position types.Position
	Related  string
}

// Error implements the error interface.
func (e *SyntaxError) Error() string {
	msg := fmt.Sprintf("syntax error at line %d, column %d: %s", e.Position.Line, e.Position.Column, e.Message)
	if e.Related != "" {
		msg += fmt.Sprintf(" (related text: %s)", e.Related)
	}
	return msg
}

// Supported reports whether engine can be validated
func Supported(engine types.Engine) bool {
	switch engine {
	case types.Engine_MYSQL, types.Engine_MARIADB, types.Engine_TIDB, types.Engine_POSTGRES:
		return true
	default:
		return false
	}
}

// Validate parses sql with the grammar of engine and returns the first syntax error
func Validate(engine types.Engine, sql string) error {
	switch engine {
	case types.Engine_MYSQL, types.Engine_MARIADB, types.Engine_TIDB:
		return validateMySQL(sql)
	case types.Engine_POSTGRES:
		return validatePostgreSQL(sql)
	default:
		return errors.Wrapf(ErrUnsupportedEngine, "%s", engine)
	}
}

func validateMySQL(sql string) error {
	lexer := mysql.NewMySQLLexer(antlr.NewInputStream(sql))
	lexerErrors := &errorListener{}
	lexer.RemoveErrorListeners()
	lexer.AddErrorListener(lexerErrors)

	stream := antlr.NewCommonTokenStream(lexer, antlr.TokenDefaultChannel)
	p := mysql.NewMySQLParser(stream)
	parserErrors := &errorListener{}
	p.RemoveErrorListeners()
	p.AddErrorListener(parserErrors)
	p.BuildParseTrees = true

	p.Script()

	return firstError(lexerErrors, parserErrors)
}

func validatePostgreSQL(sql string) error {
	lexer := postgresql.NewPostgreSQLLexer(antlr.NewInputStream(sql))
	lexerErrors := &errorListener{}
	lexer.RemoveErrorListeners()
	lexer.AddErrorListener(lexerErrors)

	stream := antlr.NewCommonTokenStream(lexer, antlr.TokenDefaultChannel)
	p := postgresql.NewPostgreSQLParser(stream)
	parserErrors := &errorListener{}
	p.RemoveErrorListeners()
	p.AddErrorListener(parserErrors)
	p.BuildParseTrees = true

	if tree := p.Root(); tree == nil {
		return &SyntaxError{Message: "failed to parse SQL statement"}
	}

	return firstError(lexerErrors, parserErrors)
}

func firstError(listeners ...*errorListener) error {
	for _, l := range listeners {
		if l.err != nil {
			return l.err
		}
	}
	return nil
}

// errorListener keeps the first syntax error reported by a lexer or parser.
type errorListener struct {
	*antlr.DefaultErrorListener
	err *SyntaxError
}

func (l *errorListener) SyntaxError(_ antlr.Recognizer, offending any, line, column int, msg string, _ antlr.RecognitionException) {
	if l.err != nil {
		return
	}
	l.err = &SyntaxError{
		Message:  msg,
		Position: types.Position{Line: int32(line), Column: int32(column)},
	}
	if token, ok := offending.(*antlr.CommonToken); ok {
		stream := token.GetInputStream()
		start := max(token.GetStart()-40, 0)
		stop := min(token.GetStop(), stream.Size()-1)
		if start <= stop {
			l.err.Related = stream.GetTextFromInterval(antlr.NewInterval(start, stop))
		}
	}
}

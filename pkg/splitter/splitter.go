// Package splitter splits a MySQL script into statements using the ANTLR MySQL lexer.
//
// Semicolons inside BEGIN ... END, CASE, IF, LOOP, WHILE and REPEAT blocks do not end
// a statement. Scripts that use DELIMITER are split on the active delimiter.
package splitter

import (
	"fmt"
	"regexp"

	"github.com/antlr4-go/antlr/v4"
	parser "github.com/gedhean/mysql-parser"
	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
)

// Statement is one statement of a script. Text starts at the first significant token
// and stops before the terminating delimiter. Positions are zero based lines and columns.
type Statement struct {
	Text  string         `json:"text" yaml:"text"`
	Start types.Position `json:"start" yaml:"start"`
	End   types.Position `json:"end" yaml:"end"`
	Empty bool           `json:"empty,omitempty" yaml:"empty,omitempty"`
}

var (
	delimiterPattern = regexp.MustCompile(`(?i)^\s*DELIMITER\s+(?P<DELIMITER>[^\s\\]+)\s*`)
	errUnbalanced    = errors.New("invalid statement: failed to split multiple statements")
)

// Split splits script into statements
func Split(script string) ([]Statement, error) {
	lexer := parser.NewMySQLLexer(antlr.NewInputStream(script))
	listener := &errorListener{}
	lexer.RemoveErrorListeners()
	lexer.AddErrorListener(listener)

	stream := antlr.NewCommonTokenStream(lexer, antlr.TokenDefaultChannel)
	stream.Fill()
	if listener.err != nil {
		return nil, listener.err
	}

	var (
		segments []segment
		err      error
	)
	if hasDelimiterStatement(stream.GetAllTokens()) {
		segments, err = splitDelimiterMode(stream)
	} else {
		segments, err = splitBlocks(stream.GetAllTokens())
	}
	if err != nil {
		return nil, err
	}

	out := make([]Statement, 0, len(segments))
	for _, seg := range segments {
		out = append(out, seg.statement(stream))
	}
	return out, nil
}

// NonEmpty drops statements that hold only comments or whitespace
func NonEmpty(stmts []Statement) []Statement {
	var out []Statement
	for _, s := range stmts {
		if !s.Empty {
			out = append(out, s)
		}
	}
	return out
}

// segment is the half open token range [start, stop) of one statement, followed by
// the terminator tokens [stop, next).
type segment struct {
	tokens []antlr.Token
	start  int
	stop   int
}

func (s segment) statement(stream *antlr.CommonTokenStream) Statement {
	first, last := -1, -1
	for i := s.start; i < s.stop; i++ {
		tok := s.tokens[i]
		if tok.GetChannel() != antlr.TokenDefaultChannel || tok.GetTokenType() == antlr.TokenEOF {
			continue
		}
		if first < 0 {
			first = i
		}
		last = i
	}

	if first < 0 {
		anchor := s.tokens[min(s.start, len(s.tokens)-1)]
		return Statement{Start: position(anchor), End: position(anchor), Empty: true}
	}

	// From antlr4, the line is ONE based, and the column is ZERO based.
	return Statement{
		Text:  stream.GetTextFromTokens(s.tokens[first], s.tokens[last]),
		Start: position(s.tokens[first]),
		End:   endPosition(s.tokens[last]),
	}
}

func position(tok antlr.Token) types.Position {
	return types.Position{Line: int32(tok.GetLine() - 1), Column: int32(tok.GetColumn())}
}

func endPosition(tok antlr.Token) types.Position {
	return types.Position{Line: int32(tok.GetLine() - 1), Column: int32(tok.GetColumn() + len(tok.GetText()))}
}

func splitBlocks(tokens []antlr.Token) ([]segment, error) {
	var (
		beginCase, ifs, loops, whiles, repeats []int
		semicolons                             []int
	)

	for i, tok := range tokens {
		if tok.GetChannel() != antlr.TokenDefaultChannel {
			continue
		}
		prev := defaultChannelTokenType(tokens, i, -1)
		next := defaultChannelTokenType(tokens, i, 1)

		switch tok.GetTokenType() {
		case parser.MySQLParserBEGIN_SYMBOL:
			// BEGIN WORK and BEGIN; start a transaction, XA BEGIN a global one.
			if next == parser.MySQLParserWORK_SYMBOL || next == parser.MySQLParserSEMICOLON_SYMBOL ||
				next == antlr.TokenEOF || prev == parser.MySQLParserXA_SYMBOL {
				continue
			}
			beginCase = append(beginCase, i)
		case parser.MySQLParserCASE_SYMBOL:
			if prev != parser.MySQLParserEND_SYMBOL {
				beginCase = append(beginCase, i)
			}
		case parser.MySQLParserIF_SYMBOL:
			if prev != parser.MySQLParserEND_SYMBOL && next != parser.MySQLParserEXISTS_SYMBOL {
				ifs = append(ifs, i)
			}
		case parser.MySQLParserLOOP_SYMBOL:
			if prev != parser.MySQLParserEND_SYMBOL {
				loops = append(loops, i)
			}
		case parser.MySQLParserWHILE_SYMBOL:
			if prev != parser.MySQLParserEND_SYMBOL {
				whiles = append(whiles, i)
			}
		case parser.MySQLParserREPEAT_SYMBOL:
			if prev != parser.MySQLParserUNTIL_SYMBOL && prev != parser.MySQLParserEND_SYMBOL {
				repeats = append(repeats, i)
			}
		case parser.MySQLParserEND_SYMBOL:
			if prev == parser.MySQLParserXA_SYMBOL {
				continue
			}
			var err error
			switch next {
			case parser.MySQLParserIF_SYMBOL:
				// IF(expr1, expr2, expr3) opens no block, so the oldest IF is the one being closed.
				semicolons, ifs, err = closeBlock(semicolons, ifs, true)
			case parser.MySQLParserREPEAT_SYMBOL:
				// Same for the REPEAT(str, count) function.
				semicolons, repeats, err = closeBlock(semicolons, repeats, true)
			case parser.MySQLParserLOOP_SYMBOL:
				semicolons, loops, err = closeBlock(semicolons, loops, false)
			case parser.MySQLParserWHILE_SYMBOL:
				semicolons, whiles, err = closeBlock(semicolons, whiles, false)
			default:
				semicolons, beginCase, err = closeBlock(semicolons, beginCase, false)
			}
			if err != nil {
				return nil, err
			}
		case parser.MySQLParserSEMICOLON_SYMBOL:
			semicolons = append(semicolons, i)
		}
	}

	var out []segment
	start := 0
	for _, pos := range semicolons {
		out = append(out, segment{tokens: tokens, start: start, stop: pos})
		start = pos + 1
	}
	// The last statement may end at EOF instead of a semicolon.
	if eof := len(tokens) - 1; start < eof {
		out = append(out, segment{tokens: tokens, start: start, stop: eof})
	}
	return out, nil
}

// closeBlock pops a block opener and discards the semicolons found inside the block.
func closeBlock(semicolons, openers []int, oldest bool) ([]int, []int, error) {
	if len(openers) == 0 {
		return nil, nil, errUnbalanced
	}
	open := openers[len(openers)-1]
	if oldest {
		open = openers[0]
	}
	return popSemicolons(semicolons, open), openers[:len(openers)-1], nil
}

func popSemicolons(stack []int, openPos int) []int {
	for i := len(stack) - 1; i >= 0; i-- {
		if stack[i] < openPos {
			return stack[:i+1]
		}
	}
	return nil
}

func splitDelimiterMode(stream *antlr.CommonTokenStream) ([]segment, error) {
	tokens := stream.GetAllTokens()
	var out []segment
	delimiter := ";"
	start := 0

	i := 0
	for i < len(tokens) {
		tok := tokens[i]
		if tok.GetChannel() == antlr.TokenDefaultChannel && tok.GetTokenType() == parser.MySQLLexerDELIMITER_SYMBOL {
			next, text := delimiterStatement(stream, i)
			d, err := extractDelimiter(text)
			if err != nil {
				return nil, err
			}
			delimiter = d
			start, i = next, next
			continue
		}

		if delimiter == ";" && tok.GetTokenType() == parser.MySQLLexerSEMICOLON_SYMBOL {
			out = append(out, segment{tokens: tokens, start: start, stop: i})
			i++
			start = i
			continue
		}

		if tok.GetChannel() != antlr.TokenDefaultChannel {
			i++
			continue
		}

		if next, ok := matchDelimiter(stream, i, delimiter); ok {
			out = append(out, segment{tokens: tokens, start: start, stop: i})
			start, i = next, next
			continue
		}
		i++
	}

	if eof := len(tokens) - 1; start < eof {
		out = append(out, segment{tokens: tokens, start: start, stop: eof})
	}
	return out, nil
}

// matchDelimiter reports whether the tokens from pos spell delimiter, and the index after it.
func matchDelimiter(stream *antlr.CommonTokenStream, pos int, delimiter string) (int, bool) {
	matched := 0
	for i := pos; i < len(stream.GetAllTokens()); i++ {
		text := stream.GetTextFromInterval(antlr.Interval{Start: i, Stop: i})
		for j := 0; j < len(text); j++ {
			if matched >= len(delimiter) || text[j] != delimiter[matched] {
				return 0, false
			}
			matched++
			if matched == len(delimiter) {
				return i + 1, true
			}
		}
	}
	return 0, false
}

// delimiterStatement returns the DELIMITER statement starting at pos, which runs to the end of the line.
func delimiterStatement(stream *antlr.CommonTokenStream, pos int) (int, string) {
	tokens := stream.GetAllTokens()
	for i := pos; i < len(tokens); i++ {
		tok := tokens[i]
		if (tok.GetTokenType() == parser.MySQLLexerWHITESPACE && tok.GetText() == "\n") || tok.GetTokenType() == antlr.TokenEOF {
			return i + 1, stream.GetTextFromTokens(tokens[pos], tokens[i-1])
		}
	}
	return len(tokens), stream.GetTextFromTokens(tokens[pos], tokens[len(tokens)-1])
}

func extractDelimiter(stmt string) (string, error) {
	match := delimiterPattern.FindStringSubmatch(stmt)
	index := delimiterPattern.SubexpIndex("DELIMITER")
	if index >= 0 && index < len(match) {
		return match[index], nil
	}
	return "", errors.Errorf("cannot extract delimiter from %q", stmt)
}

func hasDelimiterStatement(tokens []antlr.Token) bool {
	for _, tok := range tokens {
		if tok.GetChannel() == antlr.TokenDefaultChannel && tok.GetTokenType() == parser.MySQLLexerDELIMITER_SYMBOL {
			return true
		}
	}
	return false
}

func defaultChannelTokenType(tokens []antlr.Token, base int, offset int) int {
	step, remaining := 1, offset
	if offset < 0 {
		step, remaining = -1, -offset
	}
	current := base
	for remaining != 0 {
		current += step
		if current < 0 || current >= len(tokens) {
			return antlr.TokenEOF
		}
		if tokens[current].GetChannel() == antlr.TokenDefaultChannel {
			remaining--
		}
	}
	return tokens[current].GetTokenType()
}

// SyntaxError is a lexing error with its position
type SyntaxError struct {
	Position types.Position
	Message  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("syntax error at line %d:%d: %s", e.Position.Line, e.Position.Column, e.Message)
}

type errorListener struct {
	*antlr.DefaultErrorListener
	err *SyntaxError
}

func (l *errorListener) SyntaxError(_ antlr.Recognizer, _ any, line, column int, msg string, _ antlr.RecognitionException) {
	if l.err == nil {
		l.err = &SyntaxError{Position: types.Position{Line: int32(line), Column: int32(column)}, Message: msg}
	}
}

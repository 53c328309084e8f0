// Package sqlscan splits SQL text into the few token classes the data-access
// core cares about: words, quoted identifiers, @name parameters, literals
// and comments. It does not parse SQL.
package sqlscan

import "strings"

type TokenType int

const (
	Word TokenType = iota
	QuotedIdent
	Param  // @name
	SysVar // @@name
	String
	Number
	Comment
	Punct
	EOF
)

func (t TokenType) String() string {
	switch t {
	case Word:
		return "Word"
	case QuotedIdent:
		return "QuotedIdent"
	case Param:
		return "Param"
	case SysVar:
		return "SysVar"
	case String:
		return "String"
	case Number:
		return "Number"
	case Comment:
		return "Comment"
	case Punct:
		return "Punct"
	default:
		return "EOF"
	}
}

// Token is one lexeme. Pos and End are byte offsets into the input, so
// input[Pos:End] is the raw text. Value is the identifier with quotes
// removed, or the parameter name without its '@'.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
	End   int
}

// Options adjusts the lexer to an engine's quoting rules.
type Options struct {
	// BackslashEscapes treats \ inside string literals as an escape (MySQL).
	BackslashEscapes bool
	// BracketIdents treats [name] as a quoted identifier (SQL Server).
	BracketIdents bool
}

type Lexer struct {
	input        string
	opts         Options
	position     int
	readPosition int
	ch           byte
}

func NewLexer(sql string, opts Options) *Lexer {
	lexer := &Lexer{input: sql, opts: opts}
	lexer.readChar()
	return lexer
}

func (lexer *Lexer) readChar() {
	if lexer.readPosition >= len(lexer.input) {
		lexer.ch = 0
	} else {
		lexer.ch = lexer.input[lexer.readPosition]
	}
	lexer.position = lexer.readPosition
	lexer.readPosition++
}

func (lexer *Lexer) peekChar() byte {
	if lexer.readPosition >= len(lexer.input) {
		return 0
	}
	return lexer.input[lexer.readPosition]
}

func (lexer *Lexer) atEOF() bool { return lexer.position >= len(lexer.input) }

// NextToken returns the next token, skipping whitespace. It never fails:
// an unterminated literal or comment runs to the end of input.
func (lexer *Lexer) NextToken() Token {
	lexer.skipWhitespace()
	start := lexer.position
	if lexer.atEOF() {
		return Token{Type: EOF, Pos: len(lexer.input), End: len(lexer.input)}
	}

	switch {
	case lexer.ch == '-' && lexer.peekChar() == '-':
		for !lexer.atEOF() && lexer.ch != '\n' {
			lexer.readChar()
		}
		return lexer.token(Comment, start, "")
	case lexer.ch == '/' && lexer.peekChar() == '*':
		lexer.readChar()
		lexer.readChar()
		for !lexer.atEOF() && !(lexer.ch == '*' && lexer.peekChar() == '/') {
			lexer.readChar()
		}
		lexer.readChar()
		lexer.readChar()
		return lexer.token(Comment, start, "")
	case lexer.ch == '\'':
		lexer.readQuoted('\'', lexer.opts.BackslashEscapes)
		return lexer.token(String, start, "")
	case lexer.ch == '"':
		return lexer.token(QuotedIdent, start, lexer.readQuoted('"', false))
	case lexer.ch == '`':
		return lexer.token(QuotedIdent, start, lexer.readQuoted('`', false))
	case lexer.ch == '[' && lexer.opts.BracketIdents:
		return lexer.token(QuotedIdent, start, lexer.readQuoted(']', false))
	case lexer.ch == '@' && lexer.peekChar() == '@':
		lexer.readChar()
		lexer.readChar()
		return lexer.token(SysVar, start, lexer.readIdentifier())
	case lexer.ch == '@' && isIdentStart(lexer.peekChar()):
		lexer.readChar()
		return lexer.token(Param, start, lexer.readIdentifier())
	case lexer.ch == '$' && lexer.readDollarQuoted():
		return lexer.token(String, start, "")
	case isDigit(lexer.ch):
		lexer.readNumber()
		return lexer.token(Number, start, "")
	case isIdentStart(lexer.ch):
		return lexer.token(Word, start, lexer.readIdentifier())
	}

	lexer.readChar()
	return lexer.token(Punct, start, "")
}

func (lexer *Lexer) token(t TokenType, start int, value string) Token {
	end := lexer.position
	if end > len(lexer.input) {
		end = len(lexer.input)
	}
	if t == Punct || t == String || t == Number || t == Comment {
		value = lexer.input[start:end]
	}
	return Token{Type: t, Value: value, Pos: start, End: end}
}

func (lexer *Lexer) skipWhitespace() {
	for lexer.ch == ' ' || lexer.ch == '\t' || lexer.ch == '\n' || lexer.ch == '\r' || lexer.ch == '\f' {
		lexer.readChar()
	}
}

func (lexer *Lexer) readIdentifier() string {
	position := lexer.position
	for isIdentPart(lexer.ch) {
		lexer.readChar()
	}
	return lexer.input[position:lexer.position]
}

func (lexer *Lexer) readNumber() {
	for isDigit(lexer.ch) || lexer.ch == '.' {
		lexer.readChar()
	}
}

// readQuoted consumes a quoted run whose closing character is close; a
// doubled close character is an escaped one. It returns the unescaped body.
func (lexer *Lexer) readQuoted(close byte, backslash bool) string {
	var b strings.Builder
	lexer.readChar() // opening quote
	for !lexer.atEOF() {
		switch {
		case backslash && lexer.ch == '\\':
			lexer.readChar()
			if !lexer.atEOF() {
				b.WriteByte(lexer.ch)
				lexer.readChar()
			}
			continue
		case lexer.ch == close:
			if lexer.peekChar() == close {
				b.WriteByte(close)
				lexer.readChar()
				lexer.readChar()
				continue
			}
			lexer.readChar()
			return b.String()
		}
		b.WriteByte(lexer.ch)
		lexer.readChar()
	}
	return b.String()
}

// readDollarQuoted consumes a PostgreSQL $tag$...$tag$ literal. It reports
// false, consuming nothing, when the '$' does not open one ($1 markers).
func (lexer *Lexer) readDollarQuoted() bool {
	rest := lexer.input[lexer.position+1:]
	end := strings.IndexByte(rest, '$')
	if end < 0 {
		return false
	}
	tag := rest[:end]
	for i := 0; i < len(tag); i++ {
		if !isIdentPart(tag[i]) || (i == 0 && isDigit(tag[i])) {
			return false
		}
	}
	delim := "$" + tag + "$"
	bodyStart := lexer.position + len(delim)
	closeAt := strings.Index(lexer.input[bodyStart:], delim)
	stop := len(lexer.input)
	if closeAt >= 0 {
		stop = bodyStart + closeAt + len(delim)
	}
	for lexer.position < stop && !lexer.atEOF() {
		lexer.readChar()
	}
	return true
}

func isIdentStart(ch byte) bool {
	return ch == '_' || ('a' <= ch && ch <= 'z') || ('A' <= ch && ch <= 'Z') || ch >= 0x80
}

func isIdentPart(ch byte) bool {
	return isIdentStart(ch) || isDigit(ch) || ch == '$' || ch == '#'
}

func isDigit(ch byte) bool {
	return '0' <= ch && ch <= '9'
}

// Tokenize returns every token up to, not including, EOF.
func Tokenize(sql string, opts Options) []Token {
	lexer := NewLexer(sql, opts)
	var tokens []Token
	for {
		tok := lexer.NextToken()
		if tok.Type == EOF {
			return tokens
		}
		tokens = append(tokens, tok)
	}
}

// FirstKeyword returns the first word of sql, upper-cased, skipping comments
// and opening parentheses.
func FirstKeyword(sql string) string {
	lexer := NewLexer(sql, Options{})
	for {
		tok := lexer.NextToken()
		switch tok.Type {
		case EOF:
			return ""
		case Comment:
			continue
		case Punct:
			if tok.Value == "(" {
				continue
			}
			return ""
		case Word:
			return strings.ToUpper(tok.Value)
		default:
			return ""
		}
	}
}

// Statements splits sql at each ';' outside literals and comments. Runs
// holding only comments are dropped, so a trailing ';' adds no statement.
// The separators themselves are not returned.
func Statements(sql string, opts Options) [][]Token {
	var (
		out     [][]Token
		current []Token
		useful  bool
	)
	flush := func() {
		if useful {
			out = append(out, current)
		}
		current, useful = nil, false
	}
	for _, tok := range Tokenize(sql, opts) {
		if tok.Type == Punct && tok.Value == ";" {
			flush()
			continue
		}
		current = append(current, tok)
		if tok.Type != Comment {
			useful = true
		}
	}
	flush()
	return out
}

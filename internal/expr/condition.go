package expr

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"
	"unicode"
)

// TokenType identifies the type of a condition token.
type TokenType int

// TokenType constants for condition tokens.
const (
	TokenEOF    TokenType = iota
	TokenRef              // $parameter.x.value[0]
	TokenNumber           // 1, 2.5, -3
	TokenString           // 'text' or "text"
	TokenIdent            // true, false, null
	TokenOp               // == != < <= > >=
	TokenAnd              // &
	TokenOr               // |
	TokenNot              // ~
	TokenLParen           // (
	TokenRParen           // )
)

func (t TokenType) String() string {
	switch t {
	case TokenEOF:
		return "EOF"
	case TokenRef:
		return "REF"
	case TokenNumber:
		return "NUMBER"
	case TokenString:
		return "STRING"
	case TokenIdent:
		return "IDENT"
	case TokenOp:
		return "OP"
	case TokenAnd:
		return "AND"
	case TokenOr:
		return "OR"
	case TokenNot:
		return "NOT"
	case TokenLParen:
		return "LPAREN"
	case TokenRParen:
		return "RPAREN"
	default:
		return "UNKNOWN"
	}
}

// Token is a lexical token of a condition.
type Token struct {
	Type  TokenType
	Value string
	Pos   int
}

// ConditionError reports a malformed condition.
type ConditionError struct {
	Condition string
	Pos       int
	Msg       string
}

func (e *ConditionError) Error() string {
	return fmt.Sprintf("condition %q: offset %d: %s", e.Condition, e.Pos, e.Msg)
}

// Lexer tokenizes a condition string.
type Lexer struct {
	input string
	pos   int
}

// NewLexer creates a new lexer for the given condition.
func NewLexer(input string) *Lexer {
	return &Lexer{input: input}
}

// Tokenize converts the input into a slice of tokens.
func (l *Lexer) Tokenize() ([]Token, error) {
	var tokens []Token
	for {
		tok, err := l.nextToken()
		if err != nil {
			return nil, err
		}
		tokens = append(tokens, tok)
		if tok.Type == TokenEOF {
			return tokens, nil
		}
	}
}

func (l *Lexer) errorf(pos int, format string, args ...any) error {
	return &ConditionError{Condition: l.input, Pos: pos, Msg: fmt.Sprintf(format, args...)}
}

func (l *Lexer) nextToken() (Token, error) {
	for l.pos < len(l.input) && unicode.IsSpace(rune(l.input[l.pos])) {
		l.pos++
	}
	if l.pos >= len(l.input) {
		return Token{Type: TokenEOF, Pos: l.pos}, nil
	}

	start := l.pos
	c := l.input[l.pos]
	switch {
	case c == '$':
		l.pos++
		for l.pos < len(l.input) {
			ch := l.input[l.pos]
			if isIdentByte(ch) || ch == '.' || ch == '[' || ch == ']' || ch == '$' {
				l.pos++
				continue
			}
			// Negative index inside brackets.
			if ch == '-' && l.pos > 0 && l.input[l.pos-1] == '[' {
				l.pos++
				continue
			}
			break
		}
		return Token{Type: TokenRef, Value: l.input[start:l.pos], Pos: start}, nil
	case c == '\'' || c == '"':
		l.pos++
		var sb strings.Builder
		for l.pos < len(l.input) && l.input[l.pos] != c {
			sb.WriteByte(l.input[l.pos])
			l.pos++
		}
		if l.pos >= len(l.input) {
			return Token{}, l.errorf(start, "unterminated string")
		}
		l.pos++
		return Token{Type: TokenString, Value: sb.String(), Pos: start}, nil
	case c >= '0' && c <= '9', c == '-' || c == '.':
		l.pos++
		for l.pos < len(l.input) {
			ch := l.input[l.pos]
			if (ch >= '0' && ch <= '9') || ch == '.' || ch == 'e' || ch == 'E' ||
				((ch == '-' || ch == '+') && (l.input[l.pos-1] == 'e' || l.input[l.pos-1] == 'E')) {
				l.pos++
				continue
			}
			break
		}
		return Token{Type: TokenNumber, Value: l.input[start:l.pos], Pos: start}, nil
	case isIdentByte(c):
		for l.pos < len(l.input) && isIdentByte(l.input[l.pos]) {
			l.pos++
		}
		return Token{Type: TokenIdent, Value: l.input[start:l.pos], Pos: start}, nil
	case c == '&':
		l.pos++
		return Token{Type: TokenAnd, Value: "&", Pos: start}, nil
	case c == '|':
		l.pos++
		return Token{Type: TokenOr, Value: "|", Pos: start}, nil
	case c == '(':
		l.pos++
		return Token{Type: TokenLParen, Value: "(", Pos: start}, nil
	case c == ')':
		l.pos++
		return Token{Type: TokenRParen, Value: ")", Pos: start}, nil
	case c == '~':
		l.pos++
		return Token{Type: TokenNot, Value: "~", Pos: start}, nil
	case c == '=' || c == '!' || c == '<' || c == '>':
		if l.pos+1 < len(l.input) && l.input[l.pos+1] == '=' {
			l.pos += 2
			return Token{Type: TokenOp, Value: l.input[start:l.pos], Pos: start}, nil
		}
		if c == '<' || c == '>' {
			l.pos++
			return Token{Type: TokenOp, Value: string(c), Pos: start}, nil
		}
		return Token{}, l.errorf(start, "unexpected %q", c)
	}
	return Token{}, l.errorf(start, "unexpected %q", c)
}

// Node is a parsed condition expression.
type Node interface {
	eval(ctx *Context) (any, error)
}

type literalNode struct{ value any }

func (n *literalNode) eval(*Context) (any, error) { return n.value, nil }

type refNode struct{ ref *Reference }

func (n *refNode) eval(ctx *Context) (any, error) { return ctx.Lookup(n.ref) }

type notNode struct{ operand Node }

func (n *notNode) eval(ctx *Context) (any, error) {
	v, err := n.operand.eval(ctx)
	if err != nil {
		return nil, err
	}
	b, ok := v.(bool)
	if !ok {
		return nil, fmt.Errorf("~ expects a boolean, got %T", v)
	}
	return !b, nil
}

type logicalNode struct {
	and         bool
	left, right Node
}

func (n *logicalNode) eval(ctx *Context) (any, error) {
	l, err := evalBool(n.left, ctx)
	if err != nil {
		return nil, err
	}
	if n.and && !l {
		return false, nil
	}
	if !n.and && l {
		return true, nil
	}
	return evalBool(n.right, ctx)
}

type compareNode struct {
	op          string
	left, right Node
}

func (n *compareNode) eval(ctx *Context) (any, error) {
	l, err := n.left.eval(ctx)
	if err != nil {
		return nil, err
	}
	r, err := n.right.eval(ctx)
	if err != nil {
		return nil, err
	}
	return compare(n.op, l, r)
}

func evalBool(n Node, ctx *Context) (bool, error) {
	v, err := n.eval(ctx)
	if err != nil {
		return false, err
	}
	b, ok := v.(bool)
	if !ok {
		return false, fmt.Errorf("expected a boolean operand, got %T", v)
	}
	return b, nil
}

func compare(op string, l, r any) (bool, error) {
	lf, lNum := toFloat(l)
	rf, rNum := toFloat(r)
	if lNum && rNum {
		switch op {
		case "==":
			return lf == rf, nil
		case "!=":
			return lf != rf, nil
		case "<":
			return lf < rf, nil
		case "<=":
			return lf <= rf, nil
		case ">":
			return lf > rf, nil
		case ">=":
			return lf >= rf, nil
		}
	}
	switch op {
	case "==":
		return reflect.DeepEqual(l, r), nil
	case "!=":
		return !reflect.DeepEqual(l, r), nil
	}
	ls, lStr := l.(string)
	rs, rStr := r.(string)
	if lStr && rStr {
		switch op {
		case "<":
			return ls < rs, nil
		case "<=":
			return ls <= rs, nil
		case ">":
			return ls > rs, nil
		case ">=":
			return ls >= rs, nil
		}
	}
	return false, fmt.Errorf("cannot compare %T %s %T", l, op, r)
}

// toFloat converts numeric values of any Go kind to float64.
func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case bool, nil, string:
		return 0, false
	case float64:
		return n, true
	case float32:
		return float64(n), true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// Condition is a parsed boolean condition.
type Condition struct {
	Source string
	root   Node
}

// ParseCondition parses a condition such as
// "$parameter.x.value[0] > 0 & ~($variables.skip == true)".
// Operator precedence from lowest: |, &, ~, comparisons.
func ParseCondition(s string) (*Condition, error) {
	tokens, err := NewLexer(s).Tokenize()
	if err != nil {
		return nil, err
	}
	p := &condParser{src: s, tokens: tokens}
	root, err := p.parseOr()
	if err != nil {
		return nil, err
	}
	if p.cur().Type != TokenEOF {
		return nil, p.errorf("unexpected %s %q", p.cur().Type, p.cur().Value)
	}
	return &Condition{Source: s, root: root}, nil
}

// Eval evaluates the condition.
func (c *Condition) Eval(ctx *Context) (bool, error) {
	return evalBool(c.root, ctx)
}

// EvaluateCondition parses and evaluates a condition in one step.
func (c *Context) EvaluateCondition(s string) (bool, error) {
	cond, err := ParseCondition(s)
	if err != nil {
		return false, err
	}
	return cond.Eval(c)
}

type condParser struct {
	src    string
	tokens []Token
	pos    int
}

func (p *condParser) cur() Token { return p.tokens[p.pos] }

func (p *condParser) advance() Token {
	t := p.tokens[p.pos]
	if p.pos < len(p.tokens)-1 {
		p.pos++
	}
	return t
}

func (p *condParser) errorf(format string, args ...any) error {
	return &ConditionError{Condition: p.src, Pos: p.cur().Pos, Msg: fmt.Sprintf(format, args...)}
}

func (p *condParser) parseOr() (Node, error) {
	left, err := p.parseAnd()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == TokenOr {
		p.advance()
		right, err := p.parseAnd()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: false, left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseAnd() (Node, error) {
	left, err := p.parseNot()
	if err != nil {
		return nil, err
	}
	for p.cur().Type == TokenAnd {
		p.advance()
		right, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		left = &logicalNode{and: true, left: left, right: right}
	}
	return left, nil
}

func (p *condParser) parseNot() (Node, error) {
	if p.cur().Type == TokenNot {
		p.advance()
		operand, err := p.parseNot()
		if err != nil {
			return nil, err
		}
		return &notNode{operand: operand}, nil
	}
	return p.parseComparison()
}

func (p *condParser) parseComparison() (Node, error) {
	left, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	if p.cur().Type != TokenOp {
		return left, nil
	}
	op := p.advance().Value
	right, err := p.parseOperand()
	if err != nil {
		return nil, err
	}
	return &compareNode{op: op, left: left, right: right}, nil
}

func (p *condParser) parseOperand() (Node, error) {
	tok := p.cur()
	switch tok.Type {
	case TokenLParen:
		p.advance()
		n, err := p.parseOr()
		if err != nil {
			return nil, err
		}
		if p.cur().Type != TokenRParen {
			return nil, p.errorf("expected ')'")
		}
		p.advance()
		return n, nil
	case TokenRef:
		ref, err := ParseReference(tok.Value)
		if err != nil {
			return nil, err
		}
		p.advance()
		return &refNode{ref: ref}, nil
	case TokenNumber:
		f, err := strconv.ParseFloat(tok.Value, 64)
		if err != nil {
			return nil, p.errorf("invalid number %q", tok.Value)
		}
		p.advance()
		return &literalNode{value: f}, nil
	case TokenString:
		p.advance()
		return &literalNode{value: tok.Value}, nil
	case TokenIdent:
		p.advance()
		switch strings.ToLower(tok.Value) {
		case "true":
			return &literalNode{value: true}, nil
		case "false":
			return &literalNode{value: false}, nil
		case "null", "none":
			return &literalNode{value: nil}, nil
		}
		return nil, &ConditionError{Condition: p.src, Pos: tok.Pos, Msg: fmt.Sprintf("unknown identifier %q", tok.Value)}
	}
	return nil, p.errorf("unexpected %s", tok.Type)
}

// References returns every substitution reference used by a condition.
func References(cond string) ([]*Reference, error) {
	tokens, err := NewLexer(cond).Tokenize()
	if err != nil {
		return nil, err
	}
	var refs []*Reference
	for _, tok := range tokens {
		if tok.Type != TokenRef {
			continue
		}
		ref, err := ParseReference(tok.Value)
		if err != nil {
			return nil, err
		}
		refs = append(refs, ref)
	}
	return refs, nil
}

package steam

import (
	"fmt"
	"io"
	"strings"
)

// Node is one entry of a text KeyValues (VDF/ACF) document. A node either
// carries a Value or, when IsBlock is true, a list of Children.
type Node struct {
	Key      string
	Value    string
	IsBlock  bool
	Children []*Node
}

// Child returns the first child whose key matches key case-insensitively.
func (n *Node) Child(key string) *Node {
	if n == nil {
		return nil
	}
	for _, c := range n.Children {
		if strings.EqualFold(c.Key, key) {
			return c
		}
	}
	return nil
}

// Get returns the value of the child key, or "" if absent or a block.
func (n *Node) Get(key string) string {
	c := n.Child(key)
	if c == nil || c.IsBlock {
		return ""
	}
	return c.Value
}

// Path walks nested blocks by key.
func (n *Node) Path(keys ...string) *Node {
	cur := n
	for _, k := range keys {
		cur = cur.Child(k)
		if cur == nil {
			return nil
		}
	}
	return cur
}

// SyntaxError reports malformed VDF input.
type SyntaxError struct {
	Line int
	Msg  string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("vdf: line %d: %s", e.Line, e.Msg)
}

type tokenKind int

const (
	tokEOF tokenKind = iota
	tokString
	tokOpen
	tokClose
)

type token struct {
	kind tokenKind
	text string
	line int
}

type lexer struct {
	src  string
	pos  int
	line int
}

func (lx *lexer) skipSpaceAndComments() {
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch {
		case c == '\n':
			lx.line++
			lx.pos++
		case c == ' ' || c == '\t' || c == '\r':
			lx.pos++
		case c == 0xEF && strings.HasPrefix(lx.src[lx.pos:], "\uFEFF"):
			lx.pos += len("\uFEFF")
		case c == '/' && lx.pos+1 < len(lx.src) && lx.src[lx.pos+1] == '/':
			for lx.pos < len(lx.src) && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
		case c == '[':
			// [$WIN32] style conditionals are ignored.
			for lx.pos < len(lx.src) && lx.src[lx.pos] != ']' && lx.src[lx.pos] != '\n' {
				lx.pos++
			}
			if lx.pos < len(lx.src) && lx.src[lx.pos] == ']' {
				lx.pos++
			}
		default:
			return
		}
	}
}

func (lx *lexer) next() (token, error) {
	lx.skipSpaceAndComments()
	if lx.pos >= len(lx.src) {
		return token{kind: tokEOF, line: lx.line}, nil
	}

	switch c := lx.src[lx.pos]; c {
	case '{':
		lx.pos++
		return token{kind: tokOpen, line: lx.line}, nil
	case '}':
		lx.pos++
		return token{kind: tokClose, line: lx.line}, nil
	case '"':
		return lx.quoted()
	default:
		start := lx.pos
		for lx.pos < len(lx.src) {
			ch := lx.src[lx.pos]
			if ch == ' ' || ch == '\t' || ch == '\r' || ch == '\n' || ch == '{' || ch == '}' || ch == '"' {
				break
			}
			lx.pos++
		}
		return token{kind: tokString, text: lx.src[start:lx.pos], line: lx.line}, nil
	}
}

func (lx *lexer) quoted() (token, error) {
	startLine := lx.line
	lx.pos++ // opening quote

	var sb strings.Builder
	for lx.pos < len(lx.src) {
		c := lx.src[lx.pos]
		switch c {
		case '"':
			lx.pos++
			return token{kind: tokString, text: sb.String(), line: startLine}, nil
		case '\\':
			if lx.pos+1 >= len(lx.src) {
				sb.WriteByte(c)
				lx.pos++
				continue
			}
			switch esc := lx.src[lx.pos+1]; esc {
			case '"', '\\':
				sb.WriteByte(esc)
			case 'n':
				sb.WriteByte('\n')
			case 't':
				sb.WriteByte('\t')
			default:
				sb.WriteByte('\\')
				sb.WriteByte(esc)
			}
			lx.pos += 2
		case '\n':
			lx.line++
			sb.WriteByte(c)
			lx.pos++
		default:
			sb.WriteByte(c)
			lx.pos++
		}
	}
	return token{}, &SyntaxError{Line: startLine, Msg: "unterminated string"}
}

// ParseVDF parses a text KeyValues document. The returned root node is a
// block whose children are the top-level entries.
func ParseVDF(r io.Reader) (*Node, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("reading vdf: %w", err)
	}
	return ParseVDFString(string(data))
}

// ParseVDFString parses a text KeyValues document held in memory.
func ParseVDFString(src string) (*Node, error) {
	lx := &lexer{src: src, line: 1}
	root := &Node{IsBlock: true}
	if err := parseBlock(lx, root, false); err != nil {
		return nil, err
	}
	return root, nil
}

func parseBlock(lx *lexer, parent *Node, nested bool) error {
	for {
		tok, err := lx.next()
		if err != nil {
			return err
		}

		switch tok.kind {
		case tokEOF:
			if nested {
				return &SyntaxError{Line: tok.line, Msg: "unexpected end of input, missing }"}
			}
			return nil
		case tokClose:
			if !nested {
				return &SyntaxError{Line: tok.line, Msg: "unexpected }"}
			}
			return nil
		case tokOpen:
			return &SyntaxError{Line: tok.line, Msg: "unexpected { without key"}
		}

		node := &Node{Key: tok.text}
		val, err := lx.next()
		if err != nil {
			return err
		}
		switch val.kind {
		case tokString:
			node.Value = val.text
		case tokOpen:
			node.IsBlock = true
			if err := parseBlock(lx, node, true); err != nil {
				return err
			}
		default:
			return &SyntaxError{Line: val.line, Msg: fmt.Sprintf("key %q has no value", node.Key)}
		}
		parent.Children = append(parent.Children, node)
	}
}

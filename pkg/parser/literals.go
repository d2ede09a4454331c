package parser

import (
	"errors"
	"fmt"
	"math/big"
	"strconv"
	"strings"
	"unicode/utf8"

	sitter "github.com/tree-sitter/go-tree-sitter"

	"rblower/compiler-go/pkg/ast"
)

func (c *parseContext) integer(n *sitter.Node, text string) (ast.Node, error) {
	digits := text
	sign := ""
	if strings.HasPrefix(digits, "-") || strings.HasPrefix(digits, "+") {
		sign, digits = digits[:1], digits[1:]
	}
	if len(digits) > 2 && digits[0] == '0' && (digits[1] == 'd' || digits[1] == 'D') {
		digits = digits[2:]
	}
	if sign == "+" {
		sign = ""
	}
	value, err := strconv.ParseInt(sign+digits, 0, 64)
	if err == nil {
		return c.at(ast.NewFixnum(value), n), nil
	}
	if errors.Is(err, strconv.ErrRange) {
		if b, ok := new(big.Int).SetString(sign+digits, 0); ok {
			return c.at(ast.NewBignum(b), n), nil
		}
	}
	return nil, wrapParseError(c.file, n, fmt.Errorf("invalid integer literal %q", text))
}

func (c *parseContext) float(n *sitter.Node, text string) (ast.Node, error) {
	value, err := strconv.ParseFloat(strings.ReplaceAll(text, "_", ""), 64)
	if err != nil {
		return nil, wrapParseError(c.file, n, fmt.Errorf("invalid float literal %q", text))
	}
	return c.at(ast.NewFloat(value), n), nil
}

// literalParts splits string-like contents into static text and
// interpolations. With raw set, escape sequences are kept verbatim, as
// regexp sources need.
func (c *parseContext) literalParts(n *sitter.Node, raw bool) ([]ast.Node, bool, error) {
	var (
		parts   []ast.Node
		buf     strings.Builder
		dynamic bool
	)
	flush := func() {
		if buf.Len() > 0 {
			parts = append(parts, ast.NewStr(buf.String()))
			buf.Reset()
		}
	}
	for _, child := range c.namedChildren(n) {
		switch child.Kind() {
		case "string_content", "heredoc_content":
			buf.WriteString(c.text(child))
		case "escape_sequence":
			if raw {
				buf.WriteString(c.text(child))
			} else {
				buf.WriteString(unescape(c.text(child)))
			}
		case "interpolation":
			flush()
			part, err := c.expression(child)
			if err != nil {
				return nil, false, err
			}
			parts = append(parts, part)
			dynamic = true
		}
	}
	flush()
	return parts, dynamic, nil
}

func joinStatic(parts []ast.Node) string {
	var sb strings.Builder
	for _, p := range parts {
		if s, ok := p.(*ast.StrNode); ok {
			sb.WriteString(s.Value)
		}
	}
	return sb.String()
}

func (c *parseContext) str(n *sitter.Node) (ast.Node, error) {
	parts, dynamic, err := c.literalParts(n, false)
	if err != nil {
		return nil, err
	}
	if !dynamic {
		return c.at(ast.NewStr(joinStatic(parts)), n), nil
	}
	return c.at(ast.NewDStr(parts), n), nil
}

// chainedString joins adjacent literals: "a" "#{b}".
func (c *parseContext) chainedString(n *sitter.Node) (ast.Node, error) {
	var (
		all     []ast.Node
		dynamic bool
	)
	for _, child := range c.namedChildren(n) {
		parts, d, err := c.literalParts(child, false)
		if err != nil {
			return nil, err
		}
		all = append(all, parts...)
		dynamic = dynamic || d
	}
	if !dynamic {
		return c.at(ast.NewStr(joinStatic(all)), n), nil
	}
	return c.at(ast.NewDStr(all), n), nil
}

func (c *parseContext) symbol(n *sitter.Node) (ast.Node, error) {
	parts, dynamic, err := c.literalParts(n, false)
	if err != nil {
		return nil, err
	}
	if !dynamic {
		return c.at(ast.NewSymbol(joinStatic(parts)), n), nil
	}
	return c.at(ast.NewDSymbol(parts), n), nil
}

func (c *parseContext) subshell(n *sitter.Node) (ast.Node, error) {
	parts, dynamic, err := c.literalParts(n, false)
	if err != nil {
		return nil, err
	}
	if !dynamic {
		return c.at(ast.NewXStr(joinStatic(parts)), n), nil
	}
	return c.at(ast.NewDXStr(parts), n), nil
}

func (c *parseContext) regex(n *sitter.Node) (ast.Node, error) {
	parts, dynamic, err := c.literalParts(n, true)
	if err != nil {
		return nil, err
	}
	options := regexpOptions(c.text(n))
	if !dynamic {
		return c.at(ast.NewRegexp(joinStatic(parts), options), n), nil
	}
	return c.at(ast.NewDRegexp(parts, options), n), nil
}

// regexpOptions reads the flag letters after the closing delimiter.
func regexpOptions(text string) ast.RegexpOptions {
	var options ast.RegexpOptions
	for i := len(text) - 1; i >= 0; i-- {
		switch text[i] {
		case 'i':
			options |= ast.RegexpIgnoreCase
		case 'x':
			options |= ast.RegexpExtended
		case 'm':
			options |= ast.RegexpMultiline
		case 'o', 'u', 'e', 's', 'n':
		default:
			return options
		}
	}
	return options
}

var simpleEscapes = map[byte]string{
	'n': "\n", 't': "\t", 's': " ", 'r': "\r", '0': "\x00", 'e': "\x1b",
	'a': "\a", 'b': "\b", 'f': "\f", 'v': "\v",
}

// unescape decodes one escape sequence, or every escape in a character
// literal's text.
func unescape(text string) string {
	var sb strings.Builder
	for len(text) > 0 {
		if text[0] != '\\' || len(text) == 1 {
			r, size := utf8.DecodeRuneInString(text)
			sb.WriteRune(r)
			text = text[size:]
			continue
		}
		if s, ok := simpleEscapes[text[1]]; ok && !(text[1] == '0' && len(text) > 2 && isOctal(text[2])) {
			sb.WriteString(s)
			text = text[2:]
			continue
		}
		if strings.HasPrefix(text, `\u{`) {
			end := strings.IndexByte(text, '}')
			if end > 0 {
				for _, hex := range strings.Fields(text[3:end]) {
					if cp, err := strconv.ParseUint(hex, 16, 32); err == nil {
						sb.WriteRune(rune(cp))
					}
				}
				text = text[end+1:]
				continue
			}
		}
		value, _, tail, err := strconv.UnquoteChar(text, 0)
		if err == nil {
			if value < utf8.RuneSelf {
				sb.WriteByte(byte(value))
			} else {
				sb.WriteRune(value)
			}
			text = tail
			continue
		}
		// unknown escapes drop the backslash
		r, size := utf8.DecodeRuneInString(text[1:])
		sb.WriteRune(r)
		text = text[1+size:]
	}
	return sb.String()
}

func isOctal(b byte) bool { return b >= '0' && b <= '7' }

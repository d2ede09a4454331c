package parser

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	sitter "github.com/tree-sitter/go-tree-sitter"
)

// SourceLocation is a 1-based source span.
type SourceLocation struct {
	Line      int
	Column    int
	EndLine   int
	EndColumn int
}

// ParseError includes a message plus a best-effort source location.
type ParseError struct {
	File     string
	Message  string
	Location SourceLocation
}

func (e *ParseError) Error() string {
	file := e.File
	if file == "" {
		file = "<input>"
	}
	return fmt.Sprintf("%s:%d:%d: %s", file, e.Location.Line, e.Location.Column, e.Message)
}

// IsSyntaxError reports whether err came from malformed source.
func IsSyntaxError(err error) bool {
	var parseErr *ParseError
	return errors.As(err, &parseErr)
}

// LocationOf returns the location carried by a parse error.
func LocationOf(err error) (SourceLocation, bool) {
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr.Location, true
	}
	return SourceLocation{}, false
}

func wrapParseError(file string, node *sitter.Node, err error) error {
	if err == nil {
		return nil
	}
	var parseErr *ParseError
	if errors.As(err, &parseErr) {
		return parseErr
	}
	if node == nil {
		return err
	}
	return &ParseError{
		File:     file,
		Message:  err.Error(),
		Location: locationForNode(node),
	}
}

// syntaxError reports the earliest problem node in source order: a token
// tree-sitter had to invent ("missing 'end'") or a run of input it could
// not place ("unexpected ...").
func syntaxError(file string, source []byte, root *sitter.Node) *ParseError {
	bad := firstProblem(root)
	if bad == nil {
		return &ParseError{File: file, Message: "syntax error", Location: locationForNode(root)}
	}
	message := "syntax error"
	switch {
	case bad.IsMissing():
		message += ", missing " + describeKind(bad.Kind())
	default:
		if text := excerpt(source, bad); text != "" {
			message += fmt.Sprintf(", unexpected %q", text)
		}
	}
	return &ParseError{File: file, Message: message, Location: locationForNode(bad)}
}

func locationForNode(node *sitter.Node) SourceLocation {
	if node == nil {
		return SourceLocation{}
	}
	start, end := node.StartPosition(), node.EndPosition()
	return SourceLocation{
		Line:      int(start.Row) + 1,
		Column:    int(start.Column) + 1,
		EndLine:   int(end.Row) + 1,
		EndColumn: int(end.Column) + 1,
	}
}

// firstProblem descends only into subtrees tree-sitter flagged, so clean
// statements around the error are never visited.
func firstProblem(node *sitter.Node) *sitter.Node {
	if node == nil {
		return nil
	}
	if node.IsMissing() || node.IsError() {
		return node
	}
	if !node.HasError() {
		return nil
	}
	for i := uint(0); i < node.ChildCount(); i++ {
		if found := firstProblem(node.Child(i)); found != nil {
			return found
		}
	}
	return nil
}

const excerptLimit = 24

// excerpt is the first line of node's text, cut to excerptLimit runes.
func excerpt(source []byte, node *sitter.Node) string {
	start, end := node.StartByte(), node.EndByte()
	if end > uint(len(source)) || start >= end {
		return ""
	}
	text := string(source[start:end])
	if i := strings.IndexByte(text, '\n'); i >= 0 {
		text = text[:i]
	}
	text = strings.TrimSpace(text)
	if runes := []rune(text); len(runes) > excerptLimit {
		text = string(runes[:excerptLimit]) + "..."
	}
	return text
}

// describeKind renders a grammar kind: punctuation and keywords are
// quoted, named rules read as words.
func describeKind(kind string) string {
	kind = strings.TrimSpace(kind)
	switch {
	case kind == "":
		return "token"
	case keywords[kind]:
		return "'" + kind + "'"
	case strings.IndexFunc(kind, func(r rune) bool {
		return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
	}) < 0:
		return "'" + kind + "'"
	}
	return strings.ReplaceAll(kind, "_", " ")
}

var keywords = map[string]bool{
	"end": true, "then": true, "do": true, "when": true, "in": true,
	"else": true, "elsif": true, "rescue": true, "ensure": true,
}

package rendering

import (
	"bytes"
	"errors"
	"fmt"
	"strings"
	"text/template"
	"text/template/parse"

	"github.com/Masterminds/sprig/v3"
	"github.com/ethpandaops/devsync/pkg/transform"
)

const (
	fieldSerial = "sn"
	fieldIP     = "ip"
)

// Template errors
var (
	ErrUnknownPlaceholder = errors.New("unknown placeholder")
	ErrMissingPlaceholder = errors.New("missing placeholder")
	ErrUnbalancedBrace    = errors.New("unbalanced brace")
	ErrInvalidTemplate    = errors.New("invalid template")
	ErrLineBreak          = errors.New("statements must fit on one line")
)

// lineBreaks may not appear in a statement: the artifact is one statement per line
const lineBreaks = "\r\n"

// TemplateError reports a malformed statement template
type TemplateError struct {
	Syntax string
	Err    error
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("invalid %s sql template: %v", e.Syntax, e.Err)
}

func (e *TemplateError) Unwrap() error {
	return e.Err
}

// Statement is one rendered SQL statement
type Statement string

// segment is either literal text or a placeholder reference
type segment struct {
	literal string
	field   string
}

// statementData is the value Go syntax templates are executed against
type statementData struct {
	SerialNumber string
	IPAddress    string
}

// Template is a validated statement template. It is safe to reuse.
type Template struct {
	syntax   string
	segments []segment
	tmpl     *template.Template
}

// Compile validates cfg and prepares its template for rendering
func Compile(cfg *Config) (*Template, error) {
	if err := cfg.Validate(); err != nil {
		return nil, &TemplateError{Syntax: cfg.Syntax, Err: err}
	}

	if i := strings.IndexAny(cfg.Template, lineBreaks); i >= 0 {
		return nil, &TemplateError{Syntax: cfg.Syntax, Err: fmt.Errorf("%w: template has a line break at offset %d", ErrLineBreak, i)}
	}

	if cfg.Syntax == SyntaxGo {
		return compileGo(cfg.Template)
	}

	segments, err := parseFormat(cfg.Template)
	if err != nil {
		return nil, &TemplateError{Syntax: SyntaxFormat, Err: err}
	}

	return &Template{syntax: SyntaxFormat, segments: segments}, nil
}

// Render substitutes param into the template. A result spanning more than
// one line is rejected.
func (t *Template) Render(param transform.CorrectionParam) (Statement, error) {
	stmt, err := t.render(param)
	if err != nil {
		return "", err
	}

	if strings.ContainsAny(string(stmt), lineBreaks) {
		return "", &TemplateError{Syntax: t.syntax, Err: fmt.Errorf("%w: rendered statement for %q spans lines", ErrLineBreak, param.SerialNumber)}
	}

	return stmt, nil
}

func (t *Template) render(param transform.CorrectionParam) (Statement, error) {
	if t.tmpl != nil {
		var buf bytes.Buffer
		if err := t.tmpl.Execute(&buf, statementData{SerialNumber: param.SerialNumber, IPAddress: param.IPAddress}); err != nil {
			return "", &TemplateError{Syntax: SyntaxGo, Err: fmt.Errorf("failed to execute template: %w", err)}
		}

		return Statement(buf.String()), nil
	}

	var sb strings.Builder
	for _, seg := range t.segments {
		switch seg.field {
		case fieldSerial:
			sb.WriteString(param.SerialNumber)
		case fieldIP:
			sb.WriteString(param.IPAddress)
		default:
			sb.WriteString(seg.literal)
		}
	}

	return Statement(sb.String()), nil
}

// RenderAll renders every param in order
func (t *Template) RenderAll(params []transform.CorrectionParam) ([]Statement, error) {
	statements := make([]Statement, 0, len(params))

	for i, param := range params {
		stmt, err := t.Render(param)
		if err != nil {
			return nil, fmt.Errorf("param %d: %w", i, err)
		}

		statements = append(statements, stmt)
	}

	return statements, nil
}

// Syntax returns the template syntax in use
func (t *Template) Syntax() string {
	return t.syntax
}

// parseFormat splits a {sn}/{ip} template into segments
func parseFormat(s string) ([]segment, error) {
	var (
		segments []segment
		literal  strings.Builder
		seen     = map[string]bool{}
	)

	flush := func() {
		if literal.Len() > 0 {
			segments = append(segments, segment{literal: literal.String()})
			literal.Reset()
		}
	}

	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			if i+1 < len(s) && s[i+1] == '{' {
				literal.WriteByte('{')
				i++

				continue
			}

			end := strings.IndexAny(s[i+1:], "{}")
			if end < 0 || s[i+1+end] != '}' {
				return nil, fmt.Errorf("%w: '{' at offset %d", ErrUnbalancedBrace, i)
			}

			name := s[i+1 : i+1+end]
			if name != fieldSerial && name != fieldIP {
				return nil, fmt.Errorf("%w: {%s}", ErrUnknownPlaceholder, name)
			}

			flush()
			segments = append(segments, segment{field: name})
			seen[name] = true
			i += end + 1
		case '}':
			if i+1 < len(s) && s[i+1] == '}' {
				literal.WriteByte('}')
				i++

				continue
			}

			return nil, fmt.Errorf("%w: '}' at offset %d", ErrUnbalancedBrace, i)
		default:
			literal.WriteByte(s[i])
		}
	}

	flush()

	for _, name := range []string{fieldSerial, fieldIP} {
		if !seen[name] {
			return nil, fmt.Errorf("%w: {%s}", ErrMissingPlaceholder, name)
		}
	}

	return segments, nil
}

func compileGo(content string) (*Template, error) {
	tmpl, err := template.New("statement").Funcs(sprig.TxtFuncMap()).Parse(content)
	if err != nil {
		return nil, &TemplateError{Syntax: SyntaxGo, Err: fmt.Errorf("%w: %w", ErrInvalidTemplate, err)}
	}

	fields := map[string]bool{}
	if tmpl.Tree != nil {
		collectFields(tmpl.Tree.Root, fields)
	}

	for _, name := range []string{"SerialNumber", "IPAddress"} {
		if !fields[name] {
			return nil, &TemplateError{Syntax: SyntaxGo, Err: fmt.Errorf("%w: .%s", ErrMissingPlaceholder, name)}
		}
	}

	for name := range fields {
		if name != "SerialNumber" && name != "IPAddress" {
			return nil, &TemplateError{Syntax: SyntaxGo, Err: fmt.Errorf("%w: .%s", ErrUnknownPlaceholder, name)}
		}
	}

	t := &Template{syntax: SyntaxGo, tmpl: tmpl}

	// Probe once so runtime failures surface before any record is processed.
	if _, err := t.Render(transform.CorrectionParam{SerialNumber: "probe", IPAddress: "127.0.0.1"}); err != nil {
		return nil, err
	}

	return t, nil
}

// collectFields records the first identifier of every field reference in the tree
func collectFields(node parse.Node, fields map[string]bool) {
	switch n := node.(type) {
	case *parse.ListNode:
		if n == nil {
			return
		}

		for _, child := range n.Nodes {
			collectFields(child, fields)
		}
	case *parse.ActionNode:
		collectFields(n.Pipe, fields)
	case *parse.PipeNode:
		if n == nil {
			return
		}

		for _, cmd := range n.Cmds {
			collectFields(cmd, fields)
		}
	case *parse.CommandNode:
		for _, arg := range n.Args {
			collectFields(arg, fields)
		}
	case *parse.FieldNode:
		if len(n.Ident) > 0 {
			fields[n.Ident[0]] = true
		}
	case *parse.ChainNode:
		collectFields(n.Node, fields)
	case *parse.IfNode:
		collectBranch(&n.BranchNode, fields)
	case *parse.RangeNode:
		collectBranch(&n.BranchNode, fields)
	case *parse.WithNode:
		collectBranch(&n.BranchNode, fields)
	case *parse.TemplateNode:
		collectFields(n.Pipe, fields)
	}
}

func collectBranch(n *parse.BranchNode, fields map[string]bool) {
	collectFields(n.Pipe, fields)
	collectFields(n.List, fields)

	if n.ElseList != nil {
		collectFields(n.ElseList, fields)
	}
}

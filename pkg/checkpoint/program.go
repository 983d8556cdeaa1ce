package checkpoint

import (
	"strings"

	"github.com/pkg/errors"
)

const lambdaToken = "lambda"

// sexp is a parsed program expression: either an atom or a parenthesized list.
type sexp struct {
	atom string
	list []*sexp
}

func (s *sexp) isList() bool {
	return s.list != nil
}

func (s *sexp) isAbstraction() bool {
	return s.isList() && len(s.list) == 2 && !s.list[0].isList() && s.list[0].atom == lambdaToken
}

func (s *sexp) String() string {
	if !s.isList() {
		return s.atom
	}
	parts := make([]string, 0, len(s.list))
	for _, c := range s.list {
		parts = append(parts, c.String())
	}
	return "(" + strings.Join(parts, " ") + ")"
}

// ProgramHead returns the primitive at the head of a program: enclosing abstractions are
// stripped, then the application spine is followed to its function position. For example,
// "(lambda (lambda (fold $0 $1 cons)))" has head "fold".
func ProgramHead(program string) (string, error) {
	p, err := parseProgram(program)
	if err != nil {
		return "", err
	}
	for p.isAbstraction() {
		p = p.list[1]
	}
	for p.isList() && !p.isAbstraction() {
		p = p.list[0]
	}
	return p.String(), nil
}

func parseProgram(program string) (*sexp, error) {
	toks, err := tokenize(program)
	if err != nil {
		return nil, err
	}
	if len(toks) == 0 {
		return nil, errors.New("empty program")
	}
	p, rest, err := parseTokens(toks)
	if err != nil {
		return nil, errors.Wrapf(err, "parsing program %q", program)
	}
	if len(rest) != 0 {
		return nil, errors.Errorf("trailing tokens in program %q", program)
	}
	return p, nil
}

func parseTokens(toks []string) (*sexp, []string, error) {
	switch toks[0] {
	case ")":
		return nil, nil, errors.New("unexpected )")
	case "(":
		node := &sexp{list: []*sexp{}}
		rest := toks[1:]
		for {
			if len(rest) == 0 {
				return nil, nil, errors.New("unbalanced (")
			}
			if rest[0] == ")" {
				if len(node.list) == 0 {
					return nil, nil, errors.New("empty application")
				}
				return node, rest[1:], nil
			}
			var (
				child *sexp
				err   error
			)
			child, rest, err = parseTokens(rest)
			if err != nil {
				return nil, nil, err
			}
			node.list = append(node.list, child)
		}
	default:
		return &sexp{atom: toks[0]}, toks[1:], nil
	}
}

// tokenize splits a program into parentheses and atoms. Invented primitives of the form
// "#(...)" are kept whole as a single atom.
func tokenize(program string) ([]string, error) {
	var toks []string
	for i := 0; i < len(program); {
		c := program[i]
		switch {
		case c == ' ' || c == '\t' || c == '\n':
			i++
		case c == '(' || c == ')':
			toks = append(toks, string(c))
			i++
		case c == '#' && i+1 < len(program) && program[i+1] == '(':
			depth, j := 0, i+1
			for ; j < len(program); j++ {
				if program[j] == '(' {
					depth++
				} else if program[j] == ')' {
					depth--
					if depth == 0 {
						break
					}
				}
			}
			if depth != 0 {
				return nil, errors.Errorf("unbalanced invented primitive in %q", program)
			}
			toks = append(toks, program[i:j+1])
			i = j + 1
		default:
			j := i
			for j < len(program) && !strings.ContainsRune(" \t\n()", rune(program[j])) {
				j++
			}
			toks = append(toks, program[i:j])
			i = j
		}
	}
	return toks, nil
}

// Package reconcile implements the interactive diff-and-merge pass between
// the persisted descriptor registry and freshly discovered artifacts.
package reconcile

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Prompter asks the operator yes/no questions on a single input stream, one
// at a time.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter creates a prompter reading answers from in and writing
// questions to out.
func NewPrompter(in io.Reader, out io.Writer) (p *Prompter) {
	return &Prompter{
		in:  bufio.NewReader(in),
		out: out,
	}
}

// Confirm asks a yes/no question with the stated default.  An empty answer
// resolves to the default; any other answer is affirmative only when it is
// exactly "y" or "yes", case-insensitively.
func (p *Prompter) Confirm(question string, def bool) (yes bool) {
	hint := "y/N"
	if def {
		hint = "Y/n"
	}

	_, _ = fmt.Fprintf(p.out, "%s [%s]: ", question, hint)

	// An EOF still yields whatever was read before it, so the error itself
	// is not interesting here.
	line, _ := p.in.ReadString('\n')

	answer := strings.ToLower(strings.TrimSpace(line))
	if answer == "" {
		return def
	}

	return answer == "y" || answer == "yes"
}

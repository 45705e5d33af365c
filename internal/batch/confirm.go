// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package batch

import (
	"bufio"
	"fmt"
	"io"
	"strings"
)

// Confirmer gates every mutating phase on an operator decision.
type Confirmer interface {
	Confirm(prompt string) (bool, error)
}

// ConfirmFunc adapts a function to Confirmer.
type ConfirmFunc func(prompt string) (bool, error)

func (f ConfirmFunc) Confirm(prompt string) (bool, error) { return f(prompt) }

// Always returns a Confirmer that answers every prompt with answer.
func Always(answer bool) Confirmer {
	return ConfirmFunc(func(string) (bool, error) { return answer, nil })
}

// Prompter asks on out and reads a y/n answer from in. Anything other than
// a line starting with y or Y is a no; end of input is a no.
type Prompter struct {
	in  *bufio.Reader
	out io.Writer
}

// NewPrompter returns a Prompter reading from in and writing to out.
func NewPrompter(in io.Reader, out io.Writer) *Prompter {
	return &Prompter{in: bufio.NewReader(in), out: out}
}

func (p *Prompter) Confirm(prompt string) (bool, error) {
	fmt.Fprintf(p.out, "%s (y/n): ", prompt)
	line, err := p.in.ReadString('\n')
	if err != nil && err != io.EOF {
		return false, err
	}
	answer := strings.TrimSpace(line)
	return strings.HasPrefix(answer, "y") || strings.HasPrefix(answer, "Y"), nil
}

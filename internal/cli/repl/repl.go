// Package repl is the line-oriented question loop of the querygate CLI.
package repl

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/koustreak/querygate/internal/assistant"
	"github.com/koustreak/querygate/internal/errs"
)

const (
	Prompt    = "Question> "
	separator = 60
)

type Asker interface {
	Ask(ctx context.Context, question string) (*assistant.Answer, error)
}

type styles struct {
	title   lipgloss.Style
	heading lipgloss.Style
	muted   lipgloss.Style
	err     lipgloss.Style
}

func newStyles(out io.Writer) styles {
	r := lipgloss.NewRenderer(out)
	return styles{
		title:   r.NewStyle().Foreground(lipgloss.Color("63")).Bold(true),
		heading: r.NewStyle().Foreground(lipgloss.Color("42")).Bold(true),
		muted:   r.NewStyle().Foreground(lipgloss.Color("245")),
		err:     r.NewStyle().Foreground(lipgloss.Color("196")),
	}
}

// REPL reads questions from in and prints answers to out.
type REPL struct {
	in    *bufio.Scanner
	out   io.Writer
	asker Asker
	style styles
}

func New(in io.Reader, out io.Writer, asker Asker) *REPL {
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	return &REPL{in: scanner, out: out, asker: asker, style: newStyles(out)}
}

// Banner prints the title and usage hints.
func (r *REPL) Banner(title string) {
	fmt.Fprintln(r.out, r.style.title.Render(title))
	fmt.Fprintln(r.out, "Type 'exit' to quit.")
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, "Schema loaded. You can now ask questions like:")
	fmt.Fprintln(r.out, r.style.muted.Render("  - 'Show top 10 customers by total spend this year'"))
	fmt.Fprintln(r.out)
}

// Run loops until exit/quit, end of input or ctx cancellation. A failed
// question prints the error and prompts again.
func (r *REPL) Run(ctx context.Context) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		fmt.Fprint(r.out, Prompt)
		if !r.in.Scan() {
			fmt.Fprintln(r.out)
			fmt.Fprintln(r.out, "Goodbye!")
			return r.in.Err()
		}

		question := strings.TrimSpace(r.in.Text())
		switch strings.ToLower(question) {
		case "exit", "quit":
			fmt.Fprintln(r.out, "Goodbye!")
			return nil
		case "":
			continue
		}

		answer, err := r.asker.Ask(ctx, question)
		if err != nil {
			if errors.Is(err, context.Canceled) && ctx.Err() != nil {
				return ctx.Err()
			}
			fmt.Fprintln(r.out, r.style.err.Render("Error: "+Message(err)))
			fmt.Fprintln(r.out)
			continue
		}
		r.print(answer)
	}
}

func (r *REPL) print(a *assistant.Answer) {
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.style.heading.Render("Generated SQL:"))
	fmt.Fprintln(r.out, a.SQL)
	fmt.Fprintln(r.out)

	result := a.Result
	fmt.Fprintf(r.out, "Rows returned: %d\n", result.Count)
	if result.Truncated() && result.Limit > 0 {
		fmt.Fprintln(r.out, r.style.muted.Render(fmt.Sprintf("(capped at %d rows; more may exist)", result.Limit)))
	}
	if len(result.Rows) > 0 {
		fmt.Fprintln(r.out, "First row:")
		first, err := json.Marshal(result.Rows[0])
		if err != nil {
			first = []byte(fmt.Sprint(result.Rows[0].Map()))
		}
		fmt.Fprintln(r.out, string(first))
	} else {
		fmt.Fprintln(r.out, "No rows matched.")
	}

	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, r.style.heading.Render("Explanation:"))
	fmt.Fprintln(r.out, a.Explanation)
	fmt.Fprintln(r.out)
	fmt.Fprintln(r.out, strings.Repeat("-", separator))
	fmt.Fprintln(r.out)
}

// Message renders err for people: the classified message plus its cause,
// without the kind prefix.
func Message(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		if e.Cause != nil {
			return e.Message + ": " + e.Cause.Error()
		}
		return e.Message
	}
	return err.Error()
}

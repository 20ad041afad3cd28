package gosampler

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/term"
)

// Console reads control lines and runs them against a sampler. On a
// terminal it provides line editing and history; otherwise it reads plain
// lines, which suits pipes and serial links.
type Console struct {
	sampler *Sampler
	in      io.Reader
	out     io.Writer
	prompt  string
}

// NewConsole creates a console reading from in and writing to out
func NewConsole(sampler *Sampler, in io.Reader, out io.Writer) *Console {
	return &Console{sampler: sampler, in: in, out: out, prompt: "> "}
}

// lineReader yields one line at a time
type lineReader interface {
	ReadLine() (string, error)
}

type scannerReader struct {
	scanner *bufio.Scanner
}

func (r scannerReader) ReadLine() (string, error) {
	if !r.scanner.Scan() {
		if err := r.scanner.Err(); err != nil {
			return "", err
		}
		return "", io.EOF
	}
	return r.scanner.Text(), nil
}

// Run processes lines until end of input, a quit line, or ctx is done
func (c *Console) Run(ctx context.Context) error {
	reader, out, restore, err := c.open()
	if err != nil {
		return err
	}
	defer restore()

	for {
		if ctx.Err() != nil {
			return nil
		}
		line, err := reader.ReadLine()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return fmt.Errorf("failed to read command: %w", err)
		}

		switch strings.ToLower(strings.TrimSpace(line)) {
		case "quit", "exit":
			return nil
		}

		if err := c.sampler.ExecuteLine(ctx, line, out); err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
		}
	}
}

func (c *Console) open() (lineReader, io.Writer, func(), error) {
	if f, ok := c.in.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fd := int(f.Fd())
		state, err := term.MakeRaw(fd)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("failed to enter raw mode: %w", err)
		}
		t := term.NewTerminal(struct {
			io.Reader
			io.Writer
		}{c.in, c.out}, c.prompt)
		return t, t, func() { _ = term.Restore(fd, state) }, nil
	}

	scanner := bufio.NewScanner(c.in)
	return scannerReader{scanner: scanner}, c.out, func() {}, nil
}

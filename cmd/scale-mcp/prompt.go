package main

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"
)

// promptDecider asks the user on a terminal whether a page must be removed.
// Questions from concurrent estimations are asked one at a time.
type promptDecider struct {
	mu  sync.Mutex
	in  *bufio.Reader
	out io.Writer
}

func newPromptDecider(in io.Reader, out io.Writer) *promptDecider {
	return &promptDecider{in: bufio.NewReader(in), out: out}
}

// DecideOnRemoval shows the message and, unless warningOnly, asks for a
// yes/no answer. An empty answer or end of input means yes.
func (d *promptDecider) DecideOnRemoval(message string, warningOnly bool) bool {
	d.mu.Lock()
	defer d.mu.Unlock()

	fmt.Fprintf(d.out, "\n%s\n", message)
	if warningOnly {
		return true
	}

	for {
		fmt.Fprint(d.out, "Remove this page? [Y/n] ")
		line, err := d.in.ReadString('\n')
		switch strings.ToLower(strings.TrimSpace(line)) {
		case "", "y", "yes":
			return true
		case "n", "no":
			return false
		}
		if err != nil {
			return true
		}
	}
}

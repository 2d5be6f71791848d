// PrettyPrinter is referenced (but not retrieved) from the teacher's
// pkg/runner/local_exec.go and local_docker.go as NewPrettyPrinter(ow); it
// manages per-instance stdout/stderr pumps and waits for them to drain.
// Rebuilt here from that call-site contract, adapted to tokenize output
// into runner.Event log lines instead of printing to an OutputWriter
// directly, and colorized/wrapped with the teacher's logrusorgru/aurora +
// mitchellh/go-wordwrap pairing.
package runner

import (
	"bufio"
	"fmt"
	"io"
	"sync"

	"github.com/logrusorgru/aurora"
	"github.com/mitchellh/go-wordwrap"
)

const wrapWidth = 100

// PrettyPrinter fans multiple labeled stdout/stderr streams into a single
// ordered channel of wrapped, colorized lines.
type PrettyPrinter struct {
	wg   sync.WaitGroup
	mu   sync.Mutex
	out  chan string
	done chan struct{}
}

// NewPrettyPrinter constructs a PrettyPrinter. Callers Manage() one or
// more (label, stdout, stderr) triples, then Wait() for all of them to
// finish draining.
func NewPrettyPrinter() *PrettyPrinter {
	return &PrettyPrinter{
		out:  make(chan string, 64),
		done: make(chan struct{}),
	}
}

// Lines returns the channel of formatted, colorized lines.
func (p *PrettyPrinter) Lines() <-chan string {
	return p.out
}

// Manage pumps stdout and stderr, prefixing each line with label, until
// both are drained.
func (p *PrettyPrinter) Manage(label string, stdout, stderr io.Reader) {
	p.wg.Add(2)
	go p.pump(label, stdout, false)
	go p.pump(label, stderr, true)
}

func (p *PrettyPrinter) pump(label string, r io.Reader, isErr bool) {
	defer p.wg.Done()
	if r == nil {
		return
	}

	scan := bufio.NewScanner(r)
	scan.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	tag := aurora.Cyan(label).String()
	if isErr {
		tag = aurora.Red(label).String()
	}

	for scan.Scan() {
		wrapped := wordwrap.WrapString(scan.Text(), wrapWidth)
		for _, line := range splitLines(wrapped) {
			p.mu.Lock()
			p.out <- fmt.Sprintf("[%s] %s", tag, line)
			p.mu.Unlock()
		}
	}
}

func splitLines(s string) []string {
	var lines []string
	start := 0
	for i, r := range s {
		if r == '\n' {
			lines = append(lines, s[start:i])
			start = i + 1
		}
	}
	lines = append(lines, s[start:])
	return lines
}

// Wait blocks until every managed stream has drained, then closes Lines().
func (p *PrettyPrinter) Wait() {
	p.wg.Wait()
	close(p.out)
}

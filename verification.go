package futapi

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
	"sync"
)

// CodeProvider resolves the one-time code the accounts site mails out when
// it does not trust the device. fallback is the code supplied up front, if
// any; returning "" means no code is available.
type CodeProvider interface {
	VerificationCode(ctx context.Context, fallback string) (string, error)
}

// CodeProviderFunc adapts a function to CodeProvider.
type CodeProviderFunc func(ctx context.Context, fallback string) (string, error)

func (f CodeProviderFunc) VerificationCode(ctx context.Context, fallback string) (string, error) {
	return f(ctx, fallback)
}

// StaticCode only ever offers the pre-supplied code.
var StaticCode = CodeProviderFunc(func(_ context.Context, fallback string) (string, error) {
	return fallback, nil
})

// PromptCode asks for the code on out and reads one line from in. An empty
// answer keeps the fallback. Input typed ahead of a prompt answers the next
// one. A cancelled prompt leaves its read pending until a line arrives, and
// that line answers the next prompt.
type PromptCode struct {
	in  *bufio.Reader
	out io.Writer

	mu      sync.Mutex
	pending chan promptAnswer
}

type promptAnswer struct {
	line string
	err  error
}

func NewPromptCode(in io.Reader, out io.Writer) *PromptCode {
	return &PromptCode{in: bufio.NewReader(in), out: out}
}

func (p *PromptCode) VerificationCode(ctx context.Context, fallback string) (string, error) {
	question := "Insert your verification code: "
	if fallback != "" {
		question = fmt.Sprintf("Insert your verification code (press enter to send %s): ", fallback)
	}
	if _, err := io.WriteString(p.out, question); err != nil {
		return "", err
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case a := <-p.readLine():
		p.mu.Lock()
		p.pending = nil
		p.mu.Unlock()

		if a.err != nil && a.err != io.EOF {
			return "", a.err
		}
		if code := strings.TrimSpace(a.line); code != "" {
			return code, nil
		}
		return fallback, nil
	}
}

// readLine starts a read unless an earlier one is still outstanding.
func (p *PromptCode) readLine() <-chan promptAnswer {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pending != nil {
		return p.pending
	}

	ch := make(chan promptAnswer, 1)
	p.pending = ch
	go func() {
		line, err := p.in.ReadString('\n')
		if err == io.EOF && line != "" {
			err = nil
		}
		ch <- promptAnswer{line: line, err: err}
	}()
	return ch
}

package poll

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// Producer computes one new value for a Cell. A returned error keeps the
// cell's previous value.
type Producer[T any] interface {
	Produce(ctx context.Context) (T, error)
}

// ProducerFunc adapts a context-aware function to Producer.
type ProducerFunc[T any] func(ctx context.Context) (T, error)

// Produce calls f.
func (f ProducerFunc[T]) Produce(ctx context.Context) (T, error) {
	return f(ctx)
}

// Func wraps a zero-argument synchronous function that cannot fail.
func Func[T any](fn func() T) Producer[T] {
	return ProducerFunc[T](func(context.Context) (T, error) {
		return fn(), nil
	})
}

// FuncErr wraps a context-aware function that may fail.
func FuncErr[T any](fn func(ctx context.Context) (T, error)) Producer[T] {
	return ProducerFunc[T](fn)
}

// Runner executes an external command and returns its standard output. The
// default runner uses os/exec; tests substitute a fake.
type Runner interface {
	Output(ctx context.Context, argv []string) ([]byte, error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

// Output runs argv[0] with the remaining arguments. A non-zero exit is an
// error that carries the trimmed stderr.
func (ExecRunner) Output(ctx context.Context, argv []string) ([]byte, error) {
	if len(argv) == 0 {
		return nil, fmt.Errorf("empty command")
	}
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return out, fmt.Errorf("%s: %w: %s", argv[0], err, msg)
		}
		return out, fmt.Errorf("%s: %w", argv[0], err)
	}
	return out, nil
}

// CommandProducer runs an external command each tick and parses its stdout.
type CommandProducer[T any] struct {
	Argv   []string
	Parse  func(stdout string) (T, error)
	Runner Runner
}

// Command builds a CommandProducer using the os/exec runner.
func Command[T any](argv []string, parse func(stdout string) (T, error)) *CommandProducer[T] {
	return &CommandProducer[T]{
		Argv:   append([]string(nil), argv...),
		Parse:  parse,
		Runner: ExecRunner{},
	}
}

// Produce runs the command to completion and hands stdout to Parse.
func (p *CommandProducer[T]) Produce(ctx context.Context) (T, error) {
	var zero T
	runner := p.Runner
	if runner == nil {
		runner = ExecRunner{}
	}
	out, err := runner.Output(ctx, p.Argv)
	if err != nil {
		return zero, err
	}
	v, err := p.Parse(string(out))
	if err != nil {
		return zero, fmt.Errorf("parse %s output: %w", p.Argv[0], err)
	}
	return v, nil
}

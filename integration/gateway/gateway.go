// Package gateway runs the edi-gateway binary from integration tests.
package gateway

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
)

const binary = "edi-gateway"

// envPrefix is the prefix of every environment variable read by the binary.
const envPrefix = "EDI_GATEWAY_"

type Runner struct {
	command    string
	configFile string
	dir        string
	args       []string
	env        []string
}

func Server(args ...string) *Runner {
	return &Runner{command: "server", args: args}
}

func Validate(args ...string) *Runner {
	return &Runner{command: "validate", args: args}
}

func (b *Runner) WithEnv(env []string) *Runner {
	b.env = env
	return b
}

func (b *Runner) WithConfigFile(name string) *Runner {
	b.configFile = name
	return b
}

func (b *Runner) Run(t *testing.T) error {
	t.Helper()

	cmd := b.exec(context.Background())

	start := time.Now()
	if err := cmd.Run(); err != nil {
		return errors.Wrapf(err, "%s %s", binary, b.command)
	}

	fmt.Println("Ran in ", time.Since(start))
	return nil
}

// RunBackground starts the command and returns the function that stops it.
func (b *Runner) RunBackground(t *testing.T) context.CancelFunc {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	cmd := b.exec(ctx)

	start := time.Now()
	if err := cmd.Start(); err != nil {
		t.Fatalf("%s %s: %v", binary, b.command, err)
	}

	done := make(chan struct{})

	go func() {
		_ = cmd.Wait()
		fmt.Println("Ran in ", time.Since(start))
		close(done)
	}()

	return func() {
		cancel()
		<-done
	}
}

func (b *Runner) RunOrFail(t *testing.T) {
	t.Helper()
	if err := b.Run(t); err != nil {
		t.Fatal(err)
	}
}

func (b *Runner) exec(ctx context.Context) *exec.Cmd {
	args := []string{b.command}
	if b.configFile != "" {
		args = append(args, "--config", b.configFile)
	}
	args = append(args, b.args...)

	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Env = append(removeAppEnvs(os.Environ()), b.env...)
	if b.dir != "" {
		cmd.Dir = b.dir
	}

	// If the test is killed by a timeout, go test will wait for
	// os.Stderr and os.Stdout to close as a result.
	//
	// However, the `cmd` will still run in the background
	// and hold those descriptors open.
	// As a result, go test will hang forever.
	//
	// Avoid that by wrapping stderr and stdout, breaking the short
	// circuit and forcing cmd.Run to use another pipe and goroutine
	// to pass along stderr and stdout.
	// See https://github.com/golang/go/issues/23019
	cmd.Stdout = struct{ io.Writer }{os.Stdout}
	cmd.Stderr = struct{ io.Writer }{os.Stderr}

	return cmd
}

func removeAppEnvs(env []string) []string {
	var clean []string

	for _, value := range env {
		if !strings.HasPrefix(value, envPrefix) {
			clean = append(clean, value)
		}
	}

	return clean
}

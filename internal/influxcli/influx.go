// Package influxcli wraps the influx CLI for extraction, load, and
// whole-bucket snapshot operations.
package influxcli

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/rs/zerolog"
)

// ErrCommandTimeout is returned when an invocation exceeds its execution budget.
var ErrCommandTimeout = errors.New("influx command timed out")

// Influx wraps the influx CLI.
type Influx struct {
	binary string
	host   string
	org    string
	logger zerolog.Logger
}

// New creates an Influx wrapper for the given host and organization.
func New(host, org string, logger zerolog.Logger) *Influx {
	return NewWithBinary("influx", host, org, logger)
}

// NewWithBinary creates an Influx wrapper with a custom binary path.
func NewWithBinary(binary, host, org string, logger zerolog.Logger) *Influx {
	return &Influx{
		binary: binary,
		host:   host,
		org:    org,
		logger: logger.With().Str("component", "influxcli").Logger(),
	}
}

// Query runs a Flux query and writes the raw output to the given file.
func (i *Influx) Query(ctx context.Context, token, query, outputPath string) error {
	f, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("create query output file: %w", err)
	}

	args := []string{
		"query", query,
		"--host", i.host,
		"--org", i.org,
		"--token", token,
		"--raw",
	}

	runErr := i.run(ctx, args, f)
	closeErr := f.Close()
	if runErr != nil {
		return fmt.Errorf("query failed: %w", runErr)
	}
	if closeErr != nil {
		return fmt.Errorf("close query output file: %w", closeErr)
	}
	return nil
}

// Write loads a CSV file into the given bucket.
func (i *Influx) Write(ctx context.Context, token, bucket, filePath string) error {
	args := []string{
		"write",
		"--host", i.host,
		"--org", i.org,
		"--token", token,
		"--bucket", bucket,
		"--format", "csv",
		"--file", filePath,
	}

	if err := i.run(ctx, args, nil); err != nil {
		return fmt.Errorf("write failed: %w", err)
	}
	return nil
}

// Backup dumps a whole bucket into the given local directory.
func (i *Influx) Backup(ctx context.Context, token, bucket, dir string) error {
	args := []string{
		"backup", dir,
		"--host", i.host,
		"--token", token,
		"--bucket", bucket,
	}

	if err := i.run(ctx, args, nil); err != nil {
		return fmt.Errorf("backup failed: %w", err)
	}
	return nil
}

// Restore loads a whole-bucket dump from the given local directory, remapping
// it to a new organization and bucket.
func (i *Influx) Restore(ctx context.Context, token, bucket, dir, newOrg, newBucket string) error {
	args := []string{
		"restore", dir,
		"--host", i.host,
		"--org", i.org,
		"--token", token,
		"--bucket", bucket,
		"--new-org", newOrg,
		"--new-bucket", newBucket,
	}

	if err := i.run(ctx, args, nil); err != nil {
		return fmt.Errorf("restore failed: %w", err)
	}
	return nil
}

// run executes an influx command. Standard output goes to stdout if non-nil.
// Context deadline expiry kills the child process and is surfaced as
// ErrCommandTimeout.
func (i *Influx) run(ctx context.Context, args []string, stdout io.Writer) error {
	cmd := exec.CommandContext(ctx, i.binary, args...)

	var stderr bytes.Buffer
	cmd.Stdout = stdout
	cmd.Stderr = &stderr

	i.logger.Debug().
		Str("command", i.binary).
		Strs("args", redactArgs(args)).
		Msg("executing influx command")

	err := cmd.Run()
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return fmt.Errorf("%w: %s %s", ErrCommandTimeout, i.binary, args[0])
		}
		errMsg := strings.TrimSpace(stderr.String())
		if errMsg == "" {
			errMsg = err.Error()
		}
		return fmt.Errorf("%w: %s", err, errMsg)
	}

	return nil
}

// redactArgs masks the token value so it never reaches the log.
func redactArgs(args []string) []string {
	redacted := make([]string, len(args))
	copy(redacted, args)
	for i, arg := range redacted {
		if arg == "--token" && i+1 < len(redacted) {
			redacted[i+1] = "***"
		}
	}
	return redacted
}

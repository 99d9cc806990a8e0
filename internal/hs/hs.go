// Package hs wraps the Hammerspace `hs` command-line tool.
//
// Only the metadata verbs shothammer needs are exposed: keyword add/delete
// and tag set. Every call is a synchronous child process whose stdout and
// stderr are captured and logged at debug level.
package hs

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog"
)

// DefaultBinary is the hs executable looked up in PATH.
const DefaultBinary = "hs"

// Client issues hs metadata commands through a Runner.
type Client struct {
	runner Runner
	log    zerolog.Logger
}

// New creates a Client. A nil runner defaults to an ExecRunner for "hs".
func New(runner Runner, log zerolog.Logger) *Client {
	if runner == nil {
		runner = &ExecRunner{Binary: DefaultBinary}
	}
	return &Client{
		runner: runner,
		log:    log.With().Str("component", "hs").Logger(),
	}
}

// ===================
// Keywords
// ===================

// KeywordAdd runs `hs keyword add [-r] <keyword> <path>`.
// Adding a keyword that is already present is not an error for hs.
func (c *Client) KeywordAdd(ctx context.Context, path, keyword string, recursive bool) error {
	return c.keyword(ctx, "add", path, keyword, recursive)
}

// KeywordDelete runs `hs keyword delete [-r] <keyword> <path>`.
func (c *Client) KeywordDelete(ctx context.Context, path, keyword string, recursive bool) error {
	return c.keyword(ctx, "delete", path, keyword, recursive)
}

func (c *Client) keyword(ctx context.Context, verb, path, keyword string, recursive bool) error {
	if path == "" || keyword == "" {
		return fmt.Errorf("keyword %s: %w", verb, ErrEmptyArgument)
	}
	return c.run(ctx, KeywordArgs(verb, keyword, path, recursive)...)
}

// KeywordArgs builds the argument list for `hs keyword <verb>`.
func KeywordArgs(verb, keyword, path string, recursive bool) []string {
	args := []string{"keyword", verb}
	if recursive {
		args = append(args, "-r")
	}
	return append(args, keyword, path)
}

// ===================
// Tags
// ===================

// TagSet runs `hs tag set [-r] -e <value> <tag> <path>`.
//
// The value is passed as a single argument, so no shell quoting is applied.
func (c *Client) TagSet(ctx context.Context, path, tag, value string, recursive bool) error {
	if path == "" || tag == "" {
		return fmt.Errorf("tag set: %w", ErrEmptyArgument)
	}
	return c.run(ctx, TagSetArgs(tag, value, path, recursive)...)
}

// TagSetArgs builds the argument list for `hs tag set`.
func TagSetArgs(tag, value, path string, recursive bool) []string {
	args := []string{"tag", "set"}
	if recursive {
		args = append(args, "-r")
	}
	return append(args, "-e", value, tag, path)
}

func (c *Client) run(ctx context.Context, args ...string) error {
	res, err := c.runner.Run(ctx, args...)

	c.log.Debug().
		Str("cmd", "hs "+strings.Join(args, " ")).
		Int("exit", res.ExitCode).
		Dur("took", res.Duration).
		Bytes("stdout", res.Stdout).
		Bytes("stderr", res.Stderr).
		Msg("hs invocation")

	return err
}

package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// exitRequest carries a kong exit (help output) out of the parser.
type exitRequest int

// run parses args, executes the selected command and returns the process
// exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) (code int) {
	defer func() {
		if r := recover(); r != nil {
			req, ok := r.(exitRequest)
			if !ok {
				panic(r)
			}
			code = int(req)
		}
	}()

	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("docbook"),
		kong.Description("Render a tree of Markdown pages into an HTML book, per-page PDFs and Confluence pages."),
		kong.UsageOnError(),
		kong.Writers(stdout, stderr),
		kong.Exit(func(code int) { panic(exitRequest(code)) }),
	)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 1
	}

	kctx, err := parser.Parse(args)
	if err != nil {
		_, _ = fmt.Fprintf(stderr, "Error: %v\n", err)
		return 2
	}

	globals := &Globals{
		Context: ctx,
		Stdout:  stdout,
		Stderr:  stderr,
		CLI:     &cli,
	}
	if err := kctx.Run(globals); err != nil {
		return reportError(err, globals)
	}
	return 0
}

// reportError prints err and returns the exit code. Errors raised before
// logging is configured are printed only.
func reportError(err error, g *Globals) int {
	if errors.Is(err, context.Canceled) {
		return 130
	}
	return ferrors.NewCLIErrorAdapter(g.CLI.Verbose, g.Logger).Report(g.Stderr, err)
}

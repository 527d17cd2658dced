// Package credentials asks the user for Confluence credentials when no token
// is configured and the tool runs attached to a terminal.
package credentials

import (
	"bufio"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/mattn/go-isatty"
	"golang.org/x/term"

	ferrors "git.home.luguber.info/inful/docbook/internal/foundation/errors"
)

// Provider supplies the value of the Authorization header.
type Provider interface {
	AuthHeader(ctx context.Context) (string, error)
}

// Interactive prompts for a username and a password.
type Interactive struct {
	In  io.Reader
	Out io.Writer
	// ReadSecret reads the password without echo. When nil the password is
	// read from In like the username.
	ReadSecret func() (string, error)
}

var _ Provider = (*Interactive)(nil)

// NewTerminal returns a provider bound to stdin and stderr that hides the password.
func NewTerminal() *Interactive {
	return &Interactive{
		In:  os.Stdin,
		Out: os.Stderr,
		ReadSecret: func() (string, error) {
			b, err := term.ReadPassword(int(os.Stdin.Fd())) // #nosec G115 -- file descriptors fit in int
			return string(b), err
		},
	}
}

// AuthHeader prompts and returns "Basic base64(user:password)".
func (p *Interactive) AuthHeader(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	in := bufio.NewReader(p.In)

	_, _ = fmt.Fprint(p.Out, "Confluence username: ")
	user, err := readLine(in)
	if err != nil {
		return "", credentialError(err, "username")
	}

	_, _ = fmt.Fprint(p.Out, "Confluence password: ")
	var password string
	if p.ReadSecret != nil {
		password, err = p.ReadSecret()
	} else {
		password, err = readLine(in)
	}
	_, _ = fmt.Fprintln(p.Out)
	if err != nil {
		return "", credentialError(err, "password")
	}

	return BasicAuth(user, strings.TrimRight(password, "\r\n")), nil
}

// BasicAuth builds a basic Authorization header value.
func BasicAuth(user, password string) string {
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(user+":"+password))
}

// IsInteractive reports whether stdin is a terminal.
func IsInteractive() bool {
	fd := os.Stdin.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func readLine(r *bufio.Reader) (string, error) {
	line, err := r.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		return "", err
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func credentialError(err error, what string) error {
	return ferrors.WrapError(err, ferrors.CategoryAuth, "failed to read Confluence "+what).Build()
}

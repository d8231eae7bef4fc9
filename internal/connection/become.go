package connection

import (
	"context"
	"fmt"
	"strings"

	"github.com/eniac111/plumbtest/internal/modules"
	"mvdan.cc/sh/v3/syntax"
)

// Privilege escalation methods.
const (
	MethodSudo = "sudo"
	MethodSu   = "su"
	MethodDoas = "doas"
)

// BecomeCommand wraps cmd so it runs as user through method. Empty values
// default to sudo and root.
func BecomeCommand(method, user, cmd string) (string, error) {
	if method == "" {
		method = MethodSudo
	}
	if user == "" {
		user = "root"
	}
	quotedUser, err := syntax.Quote(user, syntax.LangPOSIX)
	if err != nil {
		return "", fmt.Errorf("invalid become user: %w", err)
	}
	quotedCmd, err := quoteScript(cmd)
	if err != nil {
		return "", fmt.Errorf("invalid command: %w", err)
	}
	switch method {
	case MethodSudo:
		return "sudo -H -S -n -u " + quotedUser + " /bin/sh -c " + quotedCmd, nil
	case MethodSu:
		return "su " + quotedUser + " -c " + quotedCmd, nil
	case MethodDoas:
		return "doas -n -u " + quotedUser + " /bin/sh -c " + quotedCmd, nil
	default:
		return "", fmt.Errorf("unsupported become method %q", method)
	}
}

// quoteScript quotes a script for /bin/sh. POSIX quoting rejects
// non-printable runes such as newlines, which plain single quotes carry fine.
func quoteScript(s string) (string, error) {
	quoted, err := syntax.Quote(s, syntax.LangPOSIX)
	if err == nil || strings.ContainsRune(s, 0) {
		return quoted, err
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'", nil
}

// becomeConn runs every command through a privilege escalation wrapper.
// File system access keeps the connecting user's privileges.
type becomeConn struct {
	modules.Conn
	method string
	user   string
}

func (b *becomeConn) Exec(ctx context.Context, cmd string) (modules.ExecResult, error) {
	wrapped, err := BecomeCommand(b.method, b.user, cmd)
	if err != nil {
		// A command that cannot be wrapped is a module failure, not a
		// transport failure.
		return modules.ExecResult{Stderr: err.Error(), RC: 1}, nil
	}
	return b.Conn.Exec(ctx, wrapped)
}

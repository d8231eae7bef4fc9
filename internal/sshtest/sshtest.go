// Package sshtest runs an in-process SSH server with an SFTP subsystem for
// tests. Commands are executed on the local machine with /bin/sh.
package sshtest

import (
	"errors"
	"fmt"
	"io"
	"net"
	"os/exec"
	"strconv"
	"testing"

	"github.com/charmbracelet/ssh"
	"github.com/pkg/sftp"
)

// Server is a running test server.
type Server struct {
	Host     string
	Port     int
	User     string
	Password string

	srv *ssh.Server
}

// Vars returns inventory variables that reach the server.
func (s *Server) Vars() map[string]any {
	return map[string]any{
		"address":    s.Host,
		"port":       s.Port,
		"user":       s.User,
		"password":   s.Password,
		"connection": "ssh",
	}
}

// Addr returns host:port.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.Host, strconv.Itoa(s.Port))
}

// Start listens on a loopback port and serves until the test ends.
func Start(t testing.TB) *Server {
	t.Helper()

	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		Host:     "127.0.0.1",
		Port:     l.Addr().(*net.TCPAddr).Port,
		User:     "tester",
		Password: "secret",
	}
	s.srv = &ssh.Server{
		Handler: runCommand,
		PasswordHandler: func(ctx ssh.Context, password string) bool {
			return ctx.User() == s.User && password == s.Password
		},
		SubsystemHandlers: map[string]ssh.SubsystemHandler{
			"sftp": serveSFTP,
		},
	}

	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = s.srv.Serve(l)
	}()
	t.Cleanup(func() {
		_ = s.srv.Close()
		<-done
	})
	return s
}

func runCommand(sess ssh.Session) {
	cmd := exec.CommandContext(sess.Context(), "/bin/sh", "-c", sess.RawCommand())
	cmd.Stdout = sess
	cmd.Stderr = sess.Stderr()

	if err := cmd.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			_ = sess.Exit(exitErr.ExitCode())
			return
		}
		_, _ = fmt.Fprintf(sess.Stderr(), "Error: %v\n", err)
		_ = sess.Exit(1)
		return
	}
	_ = sess.Exit(0)
}

func serveSFTP(sess ssh.Session) {
	server, err := sftp.NewServer(sess)
	if err != nil {
		_ = sess.Exit(1)
		return
	}
	if err := server.Serve(); err != nil && !errors.Is(err, io.EOF) {
		_ = sess.Exit(1)
		return
	}
	_ = sess.Exit(0)
}

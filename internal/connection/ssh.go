package connection

import (
	"context"
	"errors"

	"github.com/charmbracelet/log"
	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/ssh"
	cryptossh "golang.org/x/crypto/ssh"
)

// SSHConn runs commands over SSH and reaches the file system over SFTP.
type SSHConn struct {
	client *cryptossh.Client
	fs     *ssh.FS
}

// DialSSH opens an SSH connection to s.Host.
func DialSSH(ctx context.Context, s Settings, logger *log.Logger) (*SSHConn, error) {
	client, err := ssh.Connect(ctx, s.Host, ssh.ConnectOptions{
		Timeout:        s.Timeout,
		KnownHostsFile: s.KnownHosts,
		Logger:         logger,
	})
	if err != nil {
		return nil, err
	}
	return &SSHConn{client: client}, nil
}

// Exec runs cmd in a new session.
func (c *SSHConn) Exec(ctx context.Context, cmd string) (modules.ExecResult, error) {
	stdout, stderr, rc, err := ssh.RunCommand(ctx, c.client, cmd)
	return modules.ExecResult{Stdout: stdout, Stderr: stderr, RC: rc}, err
}

// FS starts the SFTP session on first use.
func (c *SSHConn) FS() (modules.FS, error) {
	if c.fs == nil {
		fsys, err := ssh.NewFS(c.client)
		if err != nil {
			return nil, err
		}
		c.fs = fsys
	}
	return c.fs, nil
}

// Close ends the SFTP session and the connection.
func (c *SSHConn) Close() error {
	var errs []error
	if c.fs != nil {
		errs = append(errs, c.fs.Close())
	}
	errs = append(errs, c.client.Close())
	return errors.Join(errs...)
}

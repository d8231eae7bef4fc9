package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eniac111/plumbtest/internal/logging"
	"github.com/eniac111/plumbtest/internal/types"
	"github.com/pkg/sftp"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
)

// ConnectOptions tune how a connection is established.
type ConnectOptions struct {
	// Timeout bounds the TCP dial and the SSH handshake.
	Timeout time.Duration
	// KnownHostsFile enables host key verification against that file.
	KnownHostsFile string
	// SkipDefaults disables the ~/.ssh/id_rsa and SSH agent fallbacks.
	SkipDefaults bool

	Logger *log.Logger
}

// Connect opens an SSH connection using user/password or user/key auth.
func Connect(ctx context.Context, host types.Host, opts ConnectOptions) (*ssh.Client, error) {
	logger := opts.Logger
	if logger == nil {
		logger = logging.For("ssh")
	}

	var authMethods []ssh.AuthMethod

	if host.Password != "" {
		authMethods = append(authMethods, ssh.Password(host.Password))
	}

	if host.KeyPath != "" {
		key, err := os.ReadFile(host.KeyPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read SSH key: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(key)
		if err != nil {
			return nil, fmt.Errorf("failed to parse SSH key: %w", err)
		}
		authMethods = append(authMethods, ssh.PublicKeys(signer))
	}

	if !opts.SkipDefaults {
		authMethods = append(authMethods, defaultAuth(host, logger)...)
	}

	if len(authMethods) == 0 {
		return nil, fmt.Errorf("no authentication methods available")
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey() // DO NOT USE IN PRODUCTION
	if opts.KnownHostsFile != "" {
		cb, err := knownhosts.New(opts.KnownHostsFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load known hosts: %w", err)
		}
		hostKeyCallback = cb
	}

	config := &ssh.ClientConfig{
		User:            host.User,
		Auth:            authMethods,
		HostKeyCallback: hostKeyCallback,
		Timeout:         opts.Timeout,
	}

	port := host.Port
	if port == 0 {
		port = 22 // default port 22
	}
	addr := net.JoinHostPort(host.DialAddress(), strconv.Itoa(port))

	dialer := net.Dialer{Timeout: opts.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	if opts.Timeout > 0 {
		_ = conn.SetDeadline(time.Now().Add(opts.Timeout))
	}
	c, chans, reqs, err := ssh.NewClientConn(conn, addr, config)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to dial SSH: %w", err)
	}
	_ = conn.SetDeadline(time.Time{})
	logger.Debug("connected", "host", host.Name, "addr", addr, "user", host.User)
	return ssh.NewClient(c, chans, reqs), nil
}

// defaultAuth tries the default key when no key path is provided, and
// always tries the SSH agent.
func defaultAuth(host types.Host, logger *log.Logger) []ssh.AuthMethod {
	var methods []ssh.AuthMethod
	if host.KeyPath == "" {
		if usr, err := user.Current(); err == nil {
			defaultKeyPath := filepath.Join(usr.HomeDir, ".ssh", "id_rsa")
			key, err := os.ReadFile(defaultKeyPath)
			if err == nil {
				signer, err := ssh.ParsePrivateKey(key)
				if err == nil {
					methods = append(methods, ssh.PublicKeys(signer))
					logger.Debug("using default SSH key", "path", defaultKeyPath)
				} else {
					logger.Debug("failed to parse default SSH key", "err", err)
				}
			}
		}
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if sshAgent, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(sshAgent).Signers))
			logger.Debug("using SSH agent")
		} else {
			logger.Debug("failed to connect to SSH agent", "err", err)
		}
	}
	return methods
}

// RunCommand executes a command on the remote host via SSH and returns its
// output and exit status. The error is set only when the command could not
// be run or its exit status was never received.
func RunCommand(ctx context.Context, sshClient *ssh.Client, cmd string) (string, string, int, error) {
	session, err := sshClient.NewSession()
	if err != nil {
		return "", "", 0, err
	}
	defer session.Close()

	// Capture stdout, stderr
	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(cmd) }()

	select {
	case <-ctx.Done():
		_ = session.Signal(ssh.SIGKILL)
		session.Close()
		<-done
		return stdout.String(), stderr.String(), 0, ctx.Err()
	case err = <-done:
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		return stdout.String(), stderr.String(), exitErr.ExitStatus(), nil
	}
	if err != nil {
		return stdout.String(), stderr.String(), 0, err
	}
	return stdout.String(), stderr.String(), 0, nil
}

// FS is a remote file system reached over SFTP.
type FS struct {
	client *sftp.Client
}

// NewFS opens an SFTP session on sshClient.
func NewFS(sshClient *ssh.Client) (*FS, error) {
	c, err := sftp.NewClient(sshClient)
	if err != nil {
		return nil, fmt.Errorf("failed to start sftp: %w", err)
	}
	return &FS{client: c}, nil
}

func (f *FS) Lstat(name string) (os.FileInfo, error) { return f.client.Lstat(name) }

func (f *FS) MkdirAll(path string, perm os.FileMode) error {
	if err := f.client.MkdirAll(path); err != nil {
		return err
	}
	return f.client.Chmod(path, perm)
}

func (f *FS) RemoveAll(path string) error { return f.client.RemoveAll(path) }

func (f *FS) Symlink(oldname, newname string) error { return f.client.Symlink(oldname, newname) }

func (f *FS) Link(oldname, newname string) error { return f.client.Link(oldname, newname) }

func (f *FS) Chmod(name string, mode os.FileMode) error { return f.client.Chmod(name, mode) }

// Chown changes ownership; a negative id keeps the current one.
func (f *FS) Chown(name string, uid, gid int) error {
	if uid < 0 || gid < 0 {
		info, err := f.client.Stat(name)
		if err != nil {
			return err
		}
		if st, ok := info.Sys().(*sftp.FileStat); ok {
			if uid < 0 {
				uid = int(st.UID)
			}
			if gid < 0 {
				gid = int(st.GID)
			}
		}
	}
	return f.client.Chown(name, uid, gid)
}

func (f *FS) Chtimes(name string, atime, mtime time.Time) error {
	return f.client.Chtimes(name, atime, mtime)
}

// ReadFile reads a whole remote file.
func (f *FS) ReadFile(name string) ([]byte, error) {
	file, err := f.client.Open(name)
	if err != nil {
		return nil, err
	}
	defer file.Close()
	return io.ReadAll(file)
}

// WriteFile creates or truncates a remote file and sets its mode.
func (f *FS) WriteFile(name string, data []byte, perm os.FileMode) error {
	file, err := f.client.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_TRUNC)
	if err != nil {
		return err
	}
	if _, err := file.Write(data); err != nil {
		file.Close()
		return err
	}
	if err := file.Close(); err != nil {
		return err
	}
	return f.client.Chmod(name, perm)
}

// Close ends the SFTP session.
func (f *FS) Close() error { return f.client.Close() }

// Package connection opens transports to hosts and wraps them for privilege
// escalation.
package connection

import (
	"context"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
	"github.com/spf13/cast"
)

// Transport types.
const (
	Local = "local"
	SSH   = "ssh"
)

// Settings is everything needed to reach and act on one host.
type Settings struct {
	Host         types.Host
	Type         string
	Timeout      time.Duration
	KnownHosts   string
	Become       bool
	BecomeUser   string
	BecomeMethod string
}

// Defaults are the request-wide connection options. Host variables win
// over them.
type Defaults struct {
	Connection     string
	User           string
	PrivateKeyFile string
	KnownHosts     string
	Timeout        time.Duration
	Become         bool
	BecomeUser     string
	BecomeMethod   string
}

// Resolve computes the settings for host name with the given variables.
func Resolve(name string, vars map[string]any, d Defaults) Settings {
	h := types.HostFromVars(name, vars)
	if h.User == "" {
		h.User = d.User
	}
	if h.KeyPath == "" {
		h.KeyPath = d.PrivateKeyFile
	}

	s := Settings{
		Host:         h,
		Type:         h.Connection,
		Timeout:      d.Timeout,
		KnownHosts:   d.KnownHosts,
		Become:       d.Become,
		BecomeUser:   d.BecomeUser,
		BecomeMethod: d.BecomeMethod,
	}
	if s.Type == "" {
		s.Type = d.Connection
	}
	if s.Type == "" {
		s.Type = implicitType(h)
	}
	if v, ok := vars[types.VarKnownHosts]; ok {
		s.KnownHosts = cast.ToString(v)
	}
	if v, ok := vars[types.VarBecome]; ok {
		s.Become = types.Truthy(v)
	}
	if v := cast.ToString(vars[types.VarBecomeUser]); v != "" {
		s.BecomeUser = v
	}
	if v := cast.ToString(vars[types.VarBecomeMethod]); v != "" {
		s.BecomeMethod = v
	}
	return s
}

// implicitType picks local for loopback names, ssh otherwise.
func implicitType(h types.Host) string {
	switch h.Name {
	case "localhost", "127.0.0.1", "::1":
		if h.Address == "" || h.Address == h.Name {
			return Local
		}
	}
	return SSH
}

// Open connects according to s.
func Open(ctx context.Context, s Settings, logger *log.Logger) (modules.Conn, error) {
	var (
		conn modules.Conn
		err  error
	)
	switch s.Type {
	case Local:
		conn = NewLocal()
	case SSH:
		conn, err = DialSSH(ctx, s, logger)
	default:
		return nil, fmt.Errorf("unsupported connection type %q", s.Type)
	}
	if err != nil {
		return nil, err
	}
	if s.Become {
		return &becomeConn{Conn: conn, method: s.BecomeMethod, user: s.BecomeUser}, nil
	}
	return conn, nil
}

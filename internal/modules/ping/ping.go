package ping

import (
	"context"
	"strings"

	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
)

// PingModule checks that a command can be run on the host.
type PingModule struct{}

func (PingModule) Run(ctx context.Context, conn modules.Conn, inv modules.Invocation) (types.Result, error) {
	data := inv.Args.String("data")
	if data == "" {
		data = "pong"
	}
	res := types.Result{types.KeyChanged: false}

	out, err := conn.Exec(ctx, "true")
	if err != nil {
		return nil, err
	}
	if out.RC != 0 {
		msg := strings.TrimSpace(out.Stderr)
		if msg == "" {
			msg = "ping command exited non-zero"
		}
		res["rc"] = out.RC
		return res.Fail(msg), nil
	}
	if data == "crash" {
		return res.Fail("boom"), nil
	}
	res["ping"] = data
	return res, nil
}

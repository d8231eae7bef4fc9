package shell

import (
	"context"
	"errors"
	"io/fs"
	"strings"

	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
	"mvdan.cc/sh/v3/syntax"
)

type ShellModule struct{}

func (sm ShellModule) Run(ctx context.Context, conn modules.Conn, inv modules.Invocation) (types.Result, error) {
	res := types.Result{
		types.KeyChanged: false,
		types.KeyFailed:  false,
	}

	cmdString := inv.Args.String(modules.RawParams)
	if cmdString == "" {
		cmdString = inv.Args.String("cmd")
	}
	if strings.TrimSpace(cmdString) == "" {
		return res.Fail("Missing 'cmd' parameter for shell module"), nil
	}
	res["cmd"] = cmdString

	// creates/removes make the command idempotent.
	if creates := inv.Args.String("creates"); creates != "" {
		exists, err := pathExists(conn, creates)
		if err != nil {
			return nil, err
		}
		if exists {
			res[types.KeyMsg] = "skipped, since " + creates + " exists"
			return res, nil
		}
	}
	if removes := inv.Args.String("removes"); removes != "" {
		exists, err := pathExists(conn, removes)
		if err != nil {
			return nil, err
		}
		if !exists {
			res[types.KeyMsg] = "skipped, since " + removes + " does not exist"
			return res, nil
		}
	}

	if inv.Check {
		res[types.KeySkipped] = true
		res[types.KeyMsg] = "command would have run if not in check mode"
		return res, nil
	}

	script := cmdString
	if chdir := inv.Args.String("chdir"); chdir != "" {
		quoted, err := syntax.Quote(chdir, syntax.LangPOSIX)
		if err != nil {
			return res.Fail("invalid chdir: " + err.Error()), nil
		}
		script = "cd " + quoted + " && " + cmdString
	}

	out, err := conn.Exec(ctx, script)
	if err != nil {
		return nil, err
	}
	res["stdout"] = out.Stdout
	res["stderr"] = out.Stderr
	res["rc"] = out.RC
	if out.RC != 0 {
		return res.Fail("non-zero return code"), nil
	}

	// If it ran successfully, let's consider this a "change"
	res[types.KeyChanged] = true
	return res, nil
}

func pathExists(conn modules.Conn, path string) (bool, error) {
	fsys, err := conn.FS()
	if err != nil {
		return false, err
	}
	_, err = fsys.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return err == nil, nil
}

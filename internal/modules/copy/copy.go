package copy

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"

	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
)

// CopyModule writes content, or a file from the controller, to dest on the host.
type CopyModule struct{}

func (CopyModule) Run(ctx context.Context, conn modules.Conn, inv modules.Invocation) (types.Result, error) {
	res := types.Result{types.KeyChanged: false}

	dest := inv.Args.String("dest")
	if dest == "" {
		return res.Fail("Missing 'dest' parameter"), nil
	}
	res["dest"] = dest

	var data []byte
	_, hasContent := inv.Args["content"]
	src := inv.Args.String("src")
	switch {
	case hasContent && src != "":
		return res.Fail("'content' and 'src' are mutually exclusive"), nil
	case hasContent:
		data = []byte(inv.Args.String("content"))
	case src != "":
		b, err := os.ReadFile(src)
		if err != nil {
			return res.Fail(fmt.Sprintf("could not read src: %v", err)), nil
		}
		data = b
	default:
		return res.Fail("One of 'content' or 'src' is required"), nil
	}

	mode := os.FileMode(0o644)
	if m := inv.Args.String("mode"); m != "" {
		parsed, err := strconv.ParseUint(m, 8, 32)
		if err != nil {
			return res.Fail(fmt.Sprintf("invalid mode '%s'", m)), nil
		}
		mode = os.FileMode(parsed)
	}

	sum := sha256.Sum256(data)
	res["checksum"] = hex.EncodeToString(sum[:])
	res["size"] = len(data)

	fsys, err := conn.FS()
	if err != nil {
		return nil, err
	}

	existing, err := fsys.ReadFile(dest)
	switch {
	case err == nil && bytes.Equal(existing, data):
		return res, nil
	case err != nil && !errors.Is(err, fs.ErrNotExist):
		return res.Fail(fmt.Sprintf("could not read dest: %v", err)), nil
	}

	res[types.KeyChanged] = true
	if inv.Check {
		return res, nil
	}
	if err := fsys.WriteFile(dest, data, mode); err != nil {
		return res.Fail(fmt.Sprintf("could not write dest: %v", err)), nil
	}
	return res, nil
}

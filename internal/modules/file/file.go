package file

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
)

// timestampLayout is the format accepted by modification_time and access_time.
const timestampLayout = "200601021504.05"

// FileModule is our main struct for the module.
type FileModule struct{}

// Run implements the module interface by reading parameters
// and performing the requested file operation on the host's file system.
func (fm FileModule) Run(ctx context.Context, conn modules.Conn, inv modules.Invocation) (types.Result, error) {
	res := types.Result{
		types.KeyChanged: false,
		types.KeyFailed:  false,
	}

	// 1. Gather parameters
	path := inv.Args.String("path")
	state := inv.Args.String("state")
	src := inv.Args.String("src")
	dest := inv.Args.String("dest")
	owner := inv.Args.String("owner")
	group := inv.Args.String("group")
	modeStr := inv.Args.String("mode")
	modTimeParam := inv.Args.String("modification_time")
	accTimeParam := inv.Args.String("access_time")

	if state == "" {
		state = "file"
	}
	if (state == "link" || state == "hard") && dest == "" {
		dest = path
	}
	if path == "" && (state == "file" || state == "touch" || state == "directory" || state == "absent") {
		return res.Fail("Missing 'path' parameter"), nil
	}
	if (state == "link" || state == "hard") && (dest == "" || src == "") {
		return res.Fail("For link/hard link state, both 'src' and 'dest' are required"), nil
	}
	if path == "" {
		path = dest
	}
	res["path"] = path
	res["state"] = state

	fsys, err := conn.FS()
	if err != nil {
		return nil, err
	}
	op := fileOp{fs: fsys, check: inv.Check}

	// 2. Dispatch by state
	var changed bool
	switch state {
	case "file":
		changed, err = op.ensureFile(path, false)
	case "touch":
		changed, err = op.ensureFile(path, true)
	case "directory":
		changed, err = op.ensureDirectory(path)
	case "absent":
		changed, err = op.removePath(path)
	case "link":
		changed, err = op.ensureLink(src, dest, fsys.Symlink)
	case "hard":
		changed, err = op.ensureLink(src, dest, fsys.Link)
	default:
		return res.Fail(fmt.Sprintf("Unknown state '%s'", state)), nil
	}
	if err != nil {
		return res.Fail(err.Error()), nil
	}
	res[types.KeyChanged] = changed

	// 3. If not absent, set ownership, permissions and times if needed
	if state != "absent" {
		attrChanged, err := op.setFileAttributes(path, owner, group, modeStr, modTimeParam, accTimeParam, state == "touch")
		if err != nil {
			return res.Fail(err.Error()), nil
		}
		res[types.KeyChanged] = changed || attrChanged
	}
	return res, nil
}

// ---------------------------------------------------------
//  Helper Functions
// ---------------------------------------------------------

// fileOp applies changes to fs unless check is set, in which case it only
// reports whether a change would have been made.
type fileOp struct {
	fs    modules.FS
	check bool
}

func (o fileOp) ensureFile(path string, touch bool) (bool, error) {
	info, err := o.fs.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if !touch {
			return false, fmt.Errorf("file '%s' does not exist, use state=touch to create it", path)
		}
		if o.check {
			return true, nil
		}
		return true, o.fs.WriteFile(path, nil, 0o644)
	} else if err != nil {
		return false, err
	}

	if info.IsDir() {
		return false, fmt.Errorf("'%s' exists but is a directory", path)
	}
	return false, nil
}

func (o fileOp) ensureDirectory(path string) (bool, error) {
	info, err := o.fs.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		if o.check {
			return true, nil
		}
		if err := o.fs.MkdirAll(path, 0o755); err != nil {
			return false, err
		}
		return true, nil
	} else if err != nil {
		return false, err
	}
	if !info.IsDir() {
		return false, fmt.Errorf("'%s' exists but is not a directory", path)
	}
	return false, nil
}

func (o fileOp) removePath(path string) (bool, error) {
	_, err := o.fs.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	} else if err != nil {
		return false, err
	}
	if o.check {
		return true, nil
	}
	if err := o.fs.RemoveAll(path); err != nil {
		return true, err
	}
	return true, nil
}

func (o fileOp) ensureLink(src, dest string, link func(oldname, newname string) error) (bool, error) {
	_, err := o.fs.Lstat(dest)
	if errors.Is(err, fs.ErrNotExist) {
		if o.check {
			return true, nil
		}
		if err := link(src, dest); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, err
}

func (o fileOp) setFileAttributes(path, owner, group, modeStr, modTimeParam, accTimeParam string, touch bool) (bool, error) {
	changed := false
	info, err := o.fs.Lstat(path)
	if errors.Is(err, fs.ErrNotExist) && o.check {
		// Nothing to compare against until the path really exists.
		return false, nil
	}
	if err != nil {
		return false, err
	}

	if modeStr != "" {
		mode, err := strconv.ParseUint(modeStr, 8, 32)
		if err != nil {
			return false, fmt.Errorf("invalid mode '%s'", modeStr)
		}
		if info.Mode().Perm() != os.FileMode(mode).Perm() {
			changed = true
			if !o.check {
				if err := o.fs.Chmod(path, os.FileMode(mode)); err != nil {
					return false, err
				}
			}
		}
	}

	if owner != "" || group != "" {
		uid, gid := -1, -1
		if owner != "" {
			if uid, err = strconv.Atoi(owner); err != nil {
				return false, fmt.Errorf("owner must be a numeric uid, got '%s'", owner)
			}
		}
		if group != "" {
			if gid, err = strconv.Atoi(group); err != nil {
				return false, fmt.Errorf("group must be a numeric gid, got '%s'", group)
			}
		}
		changed = true
		if !o.check {
			if err := o.fs.Chown(path, uid, gid); err != nil {
				return false, err
			}
		}
	}

	if touch && modTimeParam == "" {
		modTimeParam = "now"
	}
	if touch && accTimeParam == "" {
		accTimeParam = "now"
	}
	mtime, mset, err := parseTimestamp(modTimeParam, info.ModTime())
	if err != nil {
		return false, err
	}
	atime, aset, err := parseTimestamp(accTimeParam, info.ModTime())
	if err != nil {
		return false, err
	}
	if mset || aset {
		changed = true
		if !o.check {
			if err := o.fs.Chtimes(path, atime, mtime); err != nil {
				return false, err
			}
		}
	}
	return changed, nil
}

// parseTimestamp resolves a time parameter. It reports false when the
// parameter leaves the time untouched.
func parseTimestamp(param string, current time.Time) (time.Time, bool, error) {
	switch param {
	case "", "preserve":
		return current, false, nil
	case "now":
		return time.Now(), true, nil
	}
	t, err := time.ParseInLocation(timestampLayout, param, time.Local)
	if err != nil {
		return current, false, fmt.Errorf("invalid timestamp '%s', expected format %s", param, timestampLayout)
	}
	return t, true, nil
}

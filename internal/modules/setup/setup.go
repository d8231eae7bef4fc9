package setup

import (
	"context"
	"strings"

	"github.com/eniac111/plumbtest/internal/modules"
	"github.com/eniac111/plumbtest/internal/types"
	"github.com/subosito/gotenv"
)

const osReleasePath = "/etc/os-release"

// FactsKey holds the gathered facts in a setup result.
const FactsKey = "facts"

var osFamilies = map[string]string{
	"debian":    "Debian",
	"ubuntu":    "Debian",
	"rhel":      "RedHat",
	"centos":    "RedHat",
	"fedora":    "RedHat",
	"rocky":     "RedHat",
	"almalinux": "RedHat",
	"alpine":    "Alpine",
	"arch":      "Archlinux",
	"suse":      "Suse",
	"opensuse":  "Suse",
}

// SetupModule gathers facts about the host.
type SetupModule struct{}

func (SetupModule) Run(ctx context.Context, conn modules.Conn, inv modules.Invocation) (types.Result, error) {
	res := types.Result{types.KeyChanged: false}

	out, err := conn.Exec(ctx, "uname -s; uname -r; uname -m; uname -n")
	if err != nil {
		return nil, err
	}
	if out.RC != 0 {
		return res.Fail("uname failed: " + strings.TrimSpace(out.Stderr)), nil
	}
	lines := strings.Split(strings.TrimSpace(out.Stdout), "\n")
	for len(lines) < 4 {
		lines = append(lines, "")
	}

	facts := map[string]any{
		"system":       strings.TrimSpace(lines[0]),
		"kernel":       strings.TrimSpace(lines[1]),
		"architecture": strings.TrimSpace(lines[2]),
		"hostname":     strings.TrimSpace(lines[3]),
	}
	facts["distribution"] = facts["system"]
	facts["os_family"] = facts["system"]
	facts["distribution_version"] = ""

	if fsys, err := conn.FS(); err == nil {
		if data, err := fsys.ReadFile(osReleasePath); err == nil {
			if rel, err := parseOSRelease(string(data)); err == nil {
				applyOSRelease(facts, rel)
			}
		}
	}

	res[FactsKey] = facts
	return res, nil
}

// parseOSRelease reads the os-release KEY=VALUE format.
func parseOSRelease(data string) (map[string]string, error) {
	return gotenv.StrictParse(strings.NewReader(data))
}

func applyOSRelease(facts map[string]any, rel map[string]string) {
	if name := rel["NAME"]; name != "" {
		facts["distribution"] = strings.Fields(name)[0]
	}
	facts["distribution_version"] = rel["VERSION_ID"]

	candidates := append([]string{rel["ID"]}, strings.Fields(rel["ID_LIKE"])...)
	for _, id := range candidates {
		if family, ok := osFamilies[strings.ToLower(id)]; ok {
			facts["os_family"] = family
			return
		}
	}
}

package patterns

import (
	"regexp"
	"strings"
)

// RegisterBuiltins installs the stock probe patterns. Called once at
// startup, before any user patterns load, so builtins win ties.
func RegisterBuiltins(r *Registry) {
	_ = r.Register(diskUsagePattern())
	_ = r.Register(networkPattern())
	_ = r.Register(servicePattern())
}

// diskUsagePattern probes filesystem pressure: overall usage first, then a
// dynamic drill-down into the fullest mount.
func diskUsagePattern() *Pattern {
	return &Pattern{
		Name:    "disk-usage",
		Matcher: regexp.MustCompile(`(?i)\b(disk|espaço|storage)\b.*\b(full|cheio|usage|space|free)\b|\bdf\b`),
		Sequence: []Step{
			{
				ID:      "overview",
				Command: Command{Static: "df -h"},
				Extract: "disk_overview",
				Parse:   parseFullestMount,
			},
			{
				ID: "drilldown",
				Command: Command{Dynamic: func(ctx Context) []string {
					mount, _ := ctx["disk_overview"].(map[string]interface{})
					if mount == nil {
						return nil
					}
					path, _ := mount["mount"].(string)
					if path == "" {
						return nil
					}
					return []string{"du -sh " + path + "/* 2>/dev/null | sort -rh | head -10"}
				}},
				Extract:  "largest_dirs",
				Optional: true,
			},
		},
		Aggregator: func(ctx Context) interface{} {
			return map[string]interface{}{
				"kind":         "disk-usage",
				"overview":     ctx["disk_overview"],
				"largest_dirs": ctx["largest_dirs"],
			}
		},
	}
}

// parseFullestMount keeps the raw df output and pulls the mount with the
// highest use percentage for the drill-down step.
func parseFullestMount(output string) (interface{}, error) {
	result := map[string]interface{}{"raw": output}
	best := -1
	for _, line := range strings.Split(output, "\n")[1:] {
		fields := strings.Fields(line)
		if len(fields) < 6 {
			continue
		}
		pct := strings.TrimSuffix(fields[4], "%")
		n := 0
		for _, c := range pct {
			if c < '0' || c > '9' {
				n = -1
				break
			}
			n = n*10 + int(c-'0')
		}
		if n > best {
			best = n
			result["mount"] = fields[5]
			result["use_percent"] = n
		}
	}
	return result, nil
}

func networkPattern() *Pattern {
	return &Pattern{
		Name:    "network-diagnosis",
		Matcher: regexp.MustCompile(`(?i)\b(network|internet|dns|conex|connect)\w*\b.*\b(slow|down|fail|lenta|caiu|problem)\w*\b`),
		Sequence: []Step{
			{ID: "interfaces", Command: Command{Static: "ip -brief addr"}, Extract: "interfaces"},
			{ID: "routes", Command: Command{Static: "ip route show default"}, Extract: "default_route"},
			{ID: "dns", Command: Command{Static: "cat /etc/resolv.conf"}, Extract: "dns", Optional: true},
		},
	}
}

func servicePattern() *Pattern {
	return &Pattern{
		Name:    "service-status",
		Matcher: regexp.MustCompile(`(?i)\b(service|servi[cç]o|daemon|systemd)\b.*\b(status|running|rodando|dead|failed)\b`),
		Sequence: []Step{
			{ID: "failed", Command: Command{Static: "systemctl --failed --no-pager"}, Extract: "failed_units"},
			{ID: "recent", Command: Command{Static: "journalctl -p err -n 20 --no-pager"}, Extract: "recent_errors", Optional: true},
		},
	}
}

// Package identity derives the stable machine fingerprint and resolves the
// session user.
package identity

import (
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/shirou/gopsutil/v4/host"

	"github.com/mcpterm/mcpterm/internal/debug"
)

// CacheFileName holds the raw hex fingerprint under the app dir.
const CacheFileName = "machine-id"

// Fingerprint is the derived machine identity plus its provenance.
type Fingerprint struct {
	ID     string // sha256 hex over hostname|mac|uuid|os-arch
	Source string // which uuid source won: machine-id, dbus, platform, fallback
}

// MachineID returns the cached fingerprint, generating and caching it once.
// The cache file is owner-read-only.
func MachineID(appDir string) (string, error) {
	fp, err := Load(appDir)
	if err != nil {
		return "", err
	}
	return fp.ID, nil
}

// Load returns the cached fingerprint, generating it on first run.
func Load(appDir string) (*Fingerprint, error) {
	path := filepath.Join(appDir, CacheFileName)
	if data, err := os.ReadFile(path); err == nil {
		id := strings.TrimSpace(string(data))
		if len(id) == 64 {
			return &Fingerprint{ID: id, Source: "cache"}, nil
		}
		debug.Logf("identity: ignoring malformed cache %s", path)
	}

	fp := generate()
	if err := os.WriteFile(path, []byte(fp.ID+"\n"), 0o400); err != nil {
		return nil, fmt.Errorf("identity: cache fingerprint: %w", err)
	}
	return fp, nil
}

// generate combines hostname, primary MAC, system uuid, and os-arch under
// SHA-256. Each input degrades independently so the fingerprint is always
// producible.
func generate() *Fingerprint {
	hostname, _ := os.Hostname()
	uuid, source := systemUUID()
	mac := primaryMAC()
	osArch := runtime.GOOS + "-" + runtime.GOARCH

	sum := sha256.Sum256([]byte(hostname + "|" + mac + "|" + uuid + "|" + osArch))
	return &Fingerprint{ID: hex.EncodeToString(sum[:]), Source: source}
}

// systemUUID prefers the systemd machine-id, then the dbus copy, then the
// platform UUID, then a timestamp+random fallback.
func systemUUID() (uuid, source string) {
	for _, c := range []struct {
		path, name string
	}{
		{"/etc/machine-id", "machine-id"},
		{"/var/lib/dbus/machine-id", "dbus"},
	} {
		if data, err := os.ReadFile(c.path); err == nil {
			if id := strings.TrimSpace(string(data)); id != "" {
				return id, c.name
			}
		}
	}

	if id, err := host.HostID(); err == nil && id != "" {
		return id, "platform"
	}

	var b [8]byte
	_, _ = rand.Read(b[:])
	return fmt.Sprintf("%d-%s", time.Now().UnixNano(), hex.EncodeToString(b[:])), "fallback"
}

// primaryMAC returns the hardware address of the first up, non-loopback
// interface.
func primaryMAC() string {
	ifaces, err := net.Interfaces()
	if err != nil {
		return ""
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 || iface.Flags&net.FlagUp == 0 {
			continue
		}
		if mac := iface.HardwareAddr.String(); mac != "" {
			return mac
		}
	}
	return ""
}

// OSInfo returns a human-readable platform description for the Machine row.
func OSInfo() string {
	info, err := host.Info()
	if err != nil {
		return runtime.GOOS + "/" + runtime.GOARCH
	}
	return fmt.Sprintf("%s %s (%s/%s)", info.Platform, info.PlatformVersion, runtime.GOOS, runtime.GOARCH)
}

// LocalIP returns the preferred outbound IPv4 address, best-effort.
func LocalIP() string {
	conn, err := net.Dial("udp", "8.8.8.8:80")
	if err != nil {
		return ""
	}
	defer func() { _ = conn.Close() }()
	if addr, ok := conn.LocalAddr().(*net.UDPAddr); ok {
		return addr.IP.String()
	}
	return ""
}

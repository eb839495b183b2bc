// Package identity reports the firmware version this build identifies as on
// the register map.
package identity

import (
	"fmt"
	"os"
	"runtime/debug"
	"strconv"
	"strings"

	"github.com/micro-nova/amplipi-preamp/internal/models"
)

// Set with -ldflags "-X github.com/micro-nova/amplipi-preamp/internal/identity.Release=1.7
// -X github.com/micro-nova/amplipi-preamp/internal/identity.Commit=abc1234".
var (
	Release = "1.7"
	Commit  = ""
)

const hashMask = 1<<28 - 1

// Firmware returns the build's version. Without an injected Commit the VCS
// stamp from the Go build info is used.
func Firmware() models.Version {
	commit, dirty := Commit, false
	if commit == "" {
		commit, dirty = vcsStamp()
	}
	v, err := ParseVersion(Release + "-" + commit)
	if err != nil {
		v, _ = ParseVersion(Release)
	}
	v.Dirty = v.Dirty || dirty
	return v
}

func vcsStamp() (string, bool) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", false
	}
	var rev string
	var dirty bool
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			rev = s.Value
		case "vcs.modified":
			dirty = s.Value == "true"
		}
	}
	return rev, dirty
}

// ParseVersion parses "MAJOR.MINOR[-HASH][-dirty]". HASH is hex and
// truncated to its first seven digits.
func ParseVersion(s string) (models.Version, error) {
	var v models.Version
	s, v.Dirty = strings.CutSuffix(s, "-dirty")
	rel, hash, hasHash := strings.Cut(s, "-")

	maj, min, ok := strings.Cut(rel, ".")
	if !ok {
		return v, fmt.Errorf("identity: version %q: want MAJOR.MINOR", s)
	}
	n, err := strconv.ParseUint(maj, 10, 8)
	if err != nil {
		return v, fmt.Errorf("identity: version %q: major: %w", s, err)
	}
	v.Major = uint8(n)
	n, err = strconv.ParseUint(min, 10, 8)
	if err != nil {
		return v, fmt.Errorf("identity: version %q: minor: %w", s, err)
	}
	v.Minor = uint8(n)

	if hasHash && hash != "" {
		if len(hash) > 7 {
			hash = hash[:7]
		}
		h, err := strconv.ParseUint(hash, 16, 32)
		if err != nil {
			return v, fmt.Errorf("identity: version %q: hash: %w", s, err)
		}
		v.Hash = uint32(h) & hashMask
	}
	return v, nil
}

// String formats v the way ParseVersion reads it.
func String(v models.Version) string {
	s := fmt.Sprintf("%d.%d-%07x", v.Major, v.Minor, v.Hash)
	if v.Dirty {
		s += "-dirty"
	}
	return s
}

// InstanceName returns the mDNS instance name for the unit at addr.
func InstanceName(addr uint8) string {
	h, err := os.Hostname()
	if err != nil || h == "" {
		h = "amplipi"
	}
	return fmt.Sprintf("%s-preamp-%02x", h, addr)
}

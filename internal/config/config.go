// Package config loads the SNIC device daemon's configuration: CLI flags
// with an environment/.env override layer, following the old device
// config's lazy-singleton, env-wins-over-file pattern.
package config

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config is the device daemon's CLI flags plus the ambient-stack additions
// (status server address, tracer toggle, legacy OOB numbering).
type Config struct {
	RemoteAddr string // -r: transport remote (host) address
	LocalAddr  string // -l: transport local (device) address
	OOBAddr    string // -R: OOB message service address

	// LegacyBDF/LegacyDeviceID/LegacyBAR4 (-b/-a) let the daemon run with no
	// OOB connection at all: when OOBAddr is empty, these feed BAR4Base and
	// DeviceID directly instead of querying them. When OOBAddr is set, -a/-b
	// are ignored in favor of the OOB answers, except that under -legacy-msix
	// (which has no device-id selector) the device id still comes from -b.
	LegacyBDF      string // -b: legacy PCI bus:dev id, "bb:dd" hex
	LegacyDeviceID uint16 // parsed form of LegacyBDF: bus in the high byte, dev in the low
	LegacyBAR4     uint64 // -a: legacy BAR4 base, hex
	TapName        string // -t/-i: tap interface name

	StatusAddr string // -status-addr: internal/status HTTP listen address, empty disables it
	Trace      bool   // -trace: attach internal/trace's XDP counter
	LegacyMSIX bool   // -legacy-msix: use the legacy OOB selector numbering
}

// Default returns the zero-value configuration with the documented defaults
// applied (tap0, no status server, latest OOB numbering).
func Default() Config {
	return Config{
		TapName: "tap0",
	}
}

// Parse builds a Config from CLI flags in args (typically os.Args[1:]), then
// applies environment-variable overrides: environment wins when set, the
// same precedence the old DeviceConfig gave DEVICE_IP/DEVICE_PASSWORD over
// the .env file.
func Parse(args []string) (Config, error) {
	cfg := Default()

	fs := flag.NewFlagSet("snic-device", flag.ContinueOnError)
	fs.StringVar(&cfg.RemoteAddr, "r", "", "transport remote (host) address")
	fs.StringVar(&cfg.LocalAddr, "l", "", "transport local (device) address")
	fs.StringVar(&cfg.OOBAddr, "R", "", "OOB message service address")
	fs.StringVar(&cfg.LegacyBDF, "b", "", "legacy PCI bus:dev id (bb:dd)")
	legacyBAR4Hex := fs.String("a", "", "legacy BAR4 base, hex")
	fs.StringVar(&cfg.TapName, "t", cfg.TapName, "tap interface name")
	fs.StringVar(&cfg.TapName, "i", cfg.TapName, "tap interface name (alias of -t)")
	fs.StringVar(&cfg.StatusAddr, "status-addr", "", "internal/status HTTP listen address")
	fs.BoolVar(&cfg.Trace, "trace", false, "attach the optional XDP tap tracer")
	fs.BoolVar(&cfg.LegacyMSIX, "legacy-msix", false, "use the legacy OOB selector numbering")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	if *legacyBAR4Hex != "" {
		v, err := strconv.ParseUint(strings.TrimPrefix(*legacyBAR4Hex, "0x"), 16, 64)
		if err != nil {
			return Config{}, err
		}
		cfg.LegacyBAR4 = v
	}

	if cfg.LegacyBDF != "" {
		id, err := parseBDF(cfg.LegacyBDF)
		if err != nil {
			return Config{}, err
		}
		cfg.LegacyDeviceID = id
	}

	applyEnvOverrides(&cfg)
	return cfg, nil
}

// parseBDF parses a "bb:dd" hex bus:dev pair into the 16-bit id form
// internal/coordinator uses for device.State's device id.
func parseBDF(s string) (uint16, error) {
	bus, dev, ok := strings.Cut(s, ":")
	if !ok {
		return 0, fmt.Errorf("config: legacy BDF %q must be bus:dev hex pair", s)
	}
	busN, err := strconv.ParseUint(bus, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("config: legacy BDF %q: bad bus: %w", s, err)
	}
	devN, err := strconv.ParseUint(dev, 16, 8)
	if err != nil {
		return 0, fmt.Errorf("config: legacy BDF %q: bad dev: %w", s, err)
	}
	return uint16(busN)<<8 | uint16(devN), nil
}

func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("SNIC_REMOTE_ADDR"); v != "" {
		cfg.RemoteAddr = v
	}
	if v := os.Getenv("SNIC_LOCAL_ADDR"); v != "" {
		cfg.LocalAddr = v
	}
	if v := os.Getenv("SNIC_OOB_ADDR"); v != "" {
		cfg.OOBAddr = v
	}
	if v := os.Getenv("SNIC_TAP_NAME"); v != "" {
		cfg.TapName = v
	}
	if v := os.Getenv("SNIC_STATUS_ADDR"); v != "" {
		cfg.StatusAddr = v
	}
}

// loadDotEnv reads KEY=VALUE pairs from a .env file at the project root and
// applies them to environment variables not already set, mirroring the old
// config's project-root .env search.
func loadDotEnv() {
	root := findProjectRoot()
	data, err := os.ReadFile(filepath.Join(root, ".env"))
	if err != nil {
		return
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}
		key, value := strings.TrimSpace(parts[0]), strings.TrimSpace(parts[1])
		if _, set := os.LookupEnv(key); !set {
			os.Setenv(key, value)
		}
	}
}

func findProjectRoot() string {
	cwd, err := os.Getwd()
	if err != nil {
		return "."
	}
	for {
		if _, err := os.Stat(filepath.Join(cwd, "go.mod")); err == nil {
			return cwd
		}
		parent := filepath.Dir(cwd)
		if parent == cwd {
			return cwd
		}
		cwd = parent
	}
}

// ParseWithDotEnv is Parse, but first loads a .env file (if present) into the
// environment so its values are picked up by applyEnvOverrides. Kept
// separate from Parse so tests can call Parse directly without touching the
// process environment or filesystem.
func ParseWithDotEnv(args []string) (Config, error) {
	loadDotEnv()
	return Parse(args)
}

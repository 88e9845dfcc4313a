package config

import (
	"flag"
	"strconv"
	"strings"
)

var flagConfig = flag.String("config", "", "config file (yaml or toml)")

func init() {
	registerFlags(flag.CommandLine)
}

// registerFlags defines the flags that override config values.
func registerFlags(fs *flag.FlagSet) {
	fs.String("steps", "", "comma separated post-process steps")
	fs.Bool("strict", false, "abort on malformed elements")
	fs.String("format", "", "writer id (default inferred from -o, else glb2)")
	fs.Int("j", 0, "parallel conversions")
	fs.String("log-level", "", "debug|info|warn|error")
	fs.String("log-file", "", "rotating log file")
}

// ParseFlags parses command-line flags. Call this early in main().
func ParseFlags() {
	flag.Parse()
}

// ConfigPath returns the explicit config path given with -config.
func ConfigPath() string {
	return *flagConfig
}

// applyFlags applies flags given on the command line. Flags left at their
// defaults keep the file values.
func applyFlags(cfg *Config) error {
	return applyFlagSet(cfg, flag.CommandLine)
}

func applyFlagSet(cfg *Config, fs *flag.FlagSet) error {
	var err error
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "steps":
			cfg.Import.Steps = splitList(v)
		case "strict":
			cfg.Import.Strict, err = strconv.ParseBool(v)
		case "format":
			cfg.Export.Format = v
		case "j":
			cfg.Batch.Jobs, err = strconv.Atoi(v)
		case "log-level":
			cfg.Logging.Level = v
		case "log-file":
			cfg.Logging.LogFile = v
		}
	})
	return err
}

func splitList(s string) []string {
	var r []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			r = append(r, v)
		}
	}
	return r
}

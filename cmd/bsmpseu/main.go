// Command bsmpseu pseudonymizes Solaris BSM audit trails: it rewrites
// identifiers, paths, addresses, timestamps, and exec arguments while
// leaving every token's on-wire framing untouched.
package main

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/pkg/errors"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/tpltnt/bsmpseu/internal/config"
	"github.com/tpltnt/bsmpseu/internal/orchestrator"
	"github.com/tpltnt/bsmpseu/internal/rlog"
)

const (
	packageName = "bsmpseu"
	version     = "4.0.0"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	flags := pflag.NewFlagSet(packageName, pflag.ContinueOnError)

	pathList := flags.StringP("paths", "d", strings.Join(config.DefaultPathPrefixes(), ":"),
		"colon-separated list of path prefixes to pseudonymize")
	noPaths := flags.BoolP("no-paths", "D", false, "don't pseudonymize pathnames")
	uidRange := flags.StringP("uids", "u", fmt.Sprintf("%d:%d", config.DefaultUIDMin, config.DefaultUIDMax),
		"pseudonymize user IDs within min:max")
	noUIDs := flags.BoolP("no-uids", "U", false, "don't pseudonymize user IDs")
	gidRange := flags.StringP("gids", "g", fmt.Sprintf("%d:%d", config.DefaultGIDMin, config.DefaultGIDMax),
		"pseudonymize group IDs within min:max")
	noGIDs := flags.BoolP("no-gids", "G", false, "don't pseudonymize group IDs")
	pidRange := flags.StringP("pids", "p", fmt.Sprintf("%d:%d", config.DefaultPIDMin, config.DefaultPIDMax),
		"pseudonymize process IDs within min:max")
	noPIDs := flags.BoolP("no-pids", "P", false, "don't pseudonymize process IDs")
	shift := flags.Uint32P("shift", "s", config.DefaultTimeShiftMax, "maximum timestamp shift in seconds")
	noTime := flags.BoolP("no-time", "S", false, "don't pseudonymize timestamps")
	noAddrs := flags.BoolP("no-addrs", "A", false, "don't pseudonymize IPv4/IPv6 addresses")
	noArgs := flags.BoolP("no-args", "E", false, "don't pseudonymize exec arguments and environment")
	gzipOut := flags.BoolP("gzip", "z", false, "compress the output stream")
	verbose := flags.BoolP("verbose", "v", false, "display verbose information during pseudonymizing")
	showVersion := flags.BoolP("version", "V", false, "display version information")
	configFile := flags.StringP("config", "c", "", "TOML config file to parse (its values are not applied)")

	if err := flags.Parse(args); err != nil {
		if err == pflag.ErrHelp {
			return 0
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}

	if *showVersion {
		printVersion()
		return 0
	}

	v := viper.New()
	v.BindPFlags(flags)
	if *configFile != "" {
		v.SetConfigFile(*configFile)
		if err := v.ReadInConfig(); err != nil {
			fmt.Fprintf(os.Stderr, "%s: reading config file: %v\n", packageName, err)
			return 1
		}
	}

	cfg := config.Default()
	cfg.RewritePaths = !*noPaths
	cfg.RewriteUIDs = !*noUIDs
	cfg.RewriteGIDs = !*noGIDs
	cfg.RewritePIDs = !*noPIDs
	cfg.RewriteTime = !*noTime
	cfg.RewriteAddrs = !*noAddrs
	cfg.RewriteArgs = !*noArgs
	cfg.TimeShiftMax = *shift
	cfg.PathPrefixes = strings.Split(*pathList, ":")

	var err error
	cfg.UIDRange, err = parseRange(*uidRange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: -u: %v\n", packageName, err)
		return 2
	}
	cfg.GIDRange, err = parseRange(*gidRange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: -g: %v\n", packageName, err)
		return 2
	}
	cfg.PIDRange, err = parseRange(*pidRange)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: -p: %v\n", packageName, err)
		return 2
	}
	cfg.Normalize()

	log := rlog.New(*verbose)
	log.WithFields(map[string]interface{}{
		"paths": cfg.RewritePaths,
		"uids":  cfg.RewriteUIDs,
		"gids":  cfg.RewriteGIDs,
		"pids":  cfg.RewritePIDs,
		"time":  cfg.RewriteTime,
		"addrs": cfg.RewriteAddrs,
		"args":  cfg.RewriteArgs,
		"shift": cfg.TimeShiftMax,
	}).Debug("starting run")

	run := orchestrator.New(&cfg, log)

	inputs := flags.Args()
	if len(inputs) == 0 {
		if err := processOne(run, "stdin", os.Stdin, os.Stdout, *gzipOut); err != nil {
			log.WithError(err).Error("fatal error processing stdin")
			return 1
		}
		return 0
	}

	for _, path := range inputs {
		if err := processNamed(run, path, os.Stdout, *gzipOut); err != nil {
			log.WithError(err).WithField("file", path).Error("fatal error processing file")
			return 1
		}
	}
	return 0
}

func processNamed(run *orchestrator.Run, path string, out io.Writer, gzipOut bool) error {
	f, err := os.Open(path)
	if err != nil {
		return errors.Wrapf(err, "opening %s", path)
	}
	defer f.Close()
	return processOne(run, path, f, out, gzipOut)
}

func processOne(run *orchestrator.Run, name string, in io.Reader, out io.Writer, gzipOut bool) error {
	if !gzipOut {
		return run.ProcessFile(name, in, out, nil)
	}
	gw := gzip.NewWriter(out)
	defer gw.Close()
	return run.ProcessFile(name, in, gw, gw.Flush)
}

func parseRange(s string) (config.Range, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 {
		return config.Range{}, errors.Errorf("expected min:max, got %q", s)
	}
	min, err := strconv.ParseUint(parts[0], 10, 32)
	if err != nil {
		return config.Range{}, errors.Wrap(err, "parsing min")
	}
	max, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return config.Range{}, errors.Wrap(err, "parsing max")
	}
	return config.Range{Min: uint32(min), Max: uint32(max)}, nil
}

func printVersion() {
	fmt.Fprintf(os.Stderr, "%s %s\nPseudonymizer for Solaris BSM Audit Logs\n", packageName, version)
}

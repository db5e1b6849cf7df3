package config

import (
	"fmt"
	"net"
	"runtime"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/splitget/pkg/logging"
	"github.com/replicate/splitget/pkg/store"
)

const (
	ConsumerFile = "file"
	ConsumerNull = "null"
)

func AddRootPersistentFlags(cmd *cobra.Command) error {
	// Persistent Flags (applies to all commands/subcommands)
	cmd.PersistentFlags().IntP(OptConcurrency, "c", runtime.GOMAXPROCS(0)*4, "Number of connections to open at the start of each download")
	cmd.PersistentFlags().StringP(OptSplitThreshold, "s", "1MiB", "Only split a chunk in flight if more than this many bytes are left in it (e.g. 4MiB)")
	cmd.PersistentFlags().String(OptBufferSize, "32KiB", "Size of the read buffer for each connection")
	cmd.PersistentFlags().Duration(OptConnTimeout, 5*time.Second, "Timeout for establishing a connection, format is <number><unit>, e.g. 10s")
	cmd.PersistentFlags().BoolP(OptForce, "f", false, "Force download, overwriting existing file")
	cmd.PersistentFlags().StringSlice(OptResolve, []string{}, "Resolve hostnames to specific IPs")
	cmd.PersistentFlags().IntP(OptRetries, "r", 0, "Number of times a request is retried before any of its body is received")
	cmd.PersistentFlags().BoolP(OptVerbose, "v", false, "Verbose mode (equivalent to --log-level debug)")
	cmd.PersistentFlags().String(OptLoggingLevel, "info", "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().Bool(OptForceHTTP2, false, "Force HTTP/2")
	cmd.PersistentFlags().StringP(OptOutputConsumer, "o", ConsumerFile, "Output consumer (file, null)")
	cmd.PersistentFlags().BoolP(OptExtract, "x", false, "Extract the downloaded archive (tar, optionally compressed, or zip) into <dest>")
	cmd.PersistentFlags().Bool(OptProgress, false, "Render a progress bar on stderr")
	cmd.PersistentFlags().String(OptPIDFile, "", "Lock this PID file for the duration of the run")

	viper.SetEnvPrefix("SPLITGET")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("failed to bind flags: %w", err)
	}
	if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
		return fmt.Errorf("failed to bind persistent flags: %w", err)
	}

	// Hide flags from help, these are intended to be used for testing/internal benchmarking/debugging only
	for _, flag := range []string{OptForceHTTP2, OptBufferSize} {
		if err := cmd.PersistentFlags().MarkHidden(flag); err != nil {
			return fmt.Errorf("failed to hide flag %s: %w", flag, err)
		}
	}
	return nil
}

func PersistentStartupProcessFlags() error {
	if viper.GetBool(OptVerbose) {
		viper.Set(OptLoggingLevel, "debug")
	}
	setLogLevel(viper.GetString(OptLoggingLevel))
	if _, err := ResolveOverrides(); err != nil {
		return err
	}
	return nil
}

func setLogLevel(logLevel string) {
	// Set log-level
	switch logLevel {
	case "trace":
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "debug":
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "info":
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	case "warn":
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "error":
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// ResolveOverrides parses the --resolve values from viper.
func ResolveOverrides() (map[string]string, error) {
	return ResolveOverridesToMap(viper.GetStringSlice(OptResolve))
}

// ResolveOverridesToMap turns <hostname>:<port>:<ip> entries into a map of
// host:port to ip:port for the dialer.
func ResolveOverridesToMap(resolveHosts []string) (map[string]string, error) {
	logger := logging.GetLogger()
	if len(resolveHosts) == 0 {
		return nil, nil
	}
	resolveOverrides := make(map[string]string)
	for _, resolveHost := range resolveHosts {
		split := strings.SplitN(resolveHost, ":", 3)
		if len(split) != 3 {
			return nil, fmt.Errorf("invalid resolve host format, expected <hostname>:port:<ip>, got: %s", resolveHost)
		}
		host, port, addr := split[0], split[1], split[2]
		if net.ParseIP(host) != nil {
			return nil, fmt.Errorf("invalid hostname specified, looks like an IP address: %s", host)
		}
		if net.ParseIP(addr) == nil {
			return nil, fmt.Errorf("invalid IP address: %s", addr)
		}
		hostPort := net.JoinHostPort(host, port)
		target := net.JoinHostPort(addr, port)
		if existing, ok := resolveOverrides[hostPort]; ok && existing != target {
			return nil, fmt.Errorf("duplicate host:port specified: %s", host)
		}
		resolveOverrides[hostPort] = target
	}
	if logger.GetLevel() <= zerolog.DebugLevel {
		for key, elem := range resolveOverrides {
			logger.Debug().Str("host_port", key).Str("resolve_target", elem).Msg("Config")
		}
	}
	return resolveOverrides, nil
}

// ParseSize parses a humanized byte count option such as "1M" or "32KiB".
func ParseSize(opt string) (int64, error) {
	size, err := humanize.ParseBytes(viper.GetString(opt))
	if err != nil {
		return 0, fmt.Errorf("unable to parse %s: %w", opt, err)
	}
	return int64(size), nil
}

// GetStore returns the output store selected by --output and --extract.
func GetStore() (store.Store, error) {
	extract := viper.GetBool(OptExtract)
	switch viper.GetString(OptOutputConsumer) {
	case ConsumerFile, "":
		if extract {
			return &store.ArchiveStore{Overwrite: viper.GetBool(OptForce)}, nil
		}
		return &store.FileStore{Overwrite: viper.GetBool(OptForce)}, nil
	case ConsumerNull:
		if extract {
			return nil, fmt.Errorf("cannot use --%s with --%s %s", OptExtract, OptOutputConsumer, ConsumerNull)
		}
		return &store.NullStore{}, nil
	default:
		return nil, fmt.Errorf("invalid output consumer specified: %s", viper.GetString(OptOutputConsumer))
	}
}

package root

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/replicate/splitget/pkg"
	"github.com/replicate/splitget/pkg/cli"
	"github.com/replicate/splitget/pkg/client"
	"github.com/replicate/splitget/pkg/config"
	"github.com/replicate/splitget/pkg/download"
)

const rootLongDesc = `
splitget

splitget downloads a single file over many concurrent HTTP range requests and
writes every byte straight to its place in a preallocated output file.

The file is first cut into one chunk per connection. Whenever a connection
finishes its chunk, the largest chunk still in flight is split in half: the
slow connection keeps the bytes it already has and the first half of what is
left, and two fresh connections fetch the two halves of the remainder. This
keeps every connection busy until the very end of the download, so one slow
connection cannot hold up the rest of the file.

With --extract, <dest> is a directory: the archive (tar, tar.gz, tar.bz2,
tar.xz, tar.lz4, tar.Z or zip) is downloaded next to it and unpacked once
every byte has arrived.
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "splitget [flags] <url> <dest> [connections]",
		Short: "splitget",
		Long:  rootLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return config.PersistentStartupProcessFlags()
		},
		RunE: runRootCMD,
		Args: cobra.RangeArgs(2, 3),
		Example: `  splitget https://example.com/model.safetensors model.safetensors

  splitget https://example.com/model.safetensors model.safetensors 16`,
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	err := config.AddRootPersistentFlags(cmd)
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	return cmd
}

func runRootCMD(cmd *cobra.Command, args []string) error {
	// After we run through the PreRun functions we want to silence usage from being printed
	// on all errors
	cmd.SilenceUsage = true

	urlString := args[0]
	dest := args[1]
	if len(args) == 3 {
		connections, err := strconv.Atoi(args[2])
		if err != nil || connections < 1 {
			return fmt.Errorf("invalid connection count %q: must be a positive integer", args[2])
		}
		viper.Set(config.OptConcurrency, connections)
	}

	release, err := cli.AcquirePIDFile(viper.GetString(config.OptPIDFile))
	if err != nil {
		return err
	}
	defer release()

	if viper.GetString(config.OptOutputConsumer) != config.ConsumerNull {
		if err := cli.EnsureDestinationNotExist(dest); err != nil {
			return err
		}
	}

	size, elapsed, err := rootExecute(cmd.Context(), urlString, dest)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s in %.3fs\n", humanize.Bytes(uint64(size)), elapsed.Seconds())
	return nil
}

// rootExecute is the main function of the program and encapsulates the general logic
// returns any/all errors to the caller.
func rootExecute(ctx context.Context, urlString, dest string) (int64, time.Duration, error) {
	getter, err := NewGetter()
	if err != nil {
		return -1, 0, err
	}
	return getter.DownloadFile(ctx, urlString, dest)
}

// NewGetter builds a Getter from the command line and environment.
func NewGetter() (*splitget.Getter, error) {
	splitThreshold, err := config.ParseSize(config.OptSplitThreshold)
	if err != nil {
		return nil, err
	}
	bufferSize, err := config.ParseSize(config.OptBufferSize)
	if err != nil {
		return nil, err
	}
	resolveOverrides, err := config.ResolveOverrides()
	if err != nil {
		return nil, err
	}
	st, err := config.GetStore()
	if err != nil {
		return nil, err
	}

	clientOpts := client.Options{
		ForceHTTP2:       viper.GetBool(config.OptForceHTTP2),
		MaxRetries:       viper.GetInt(config.OptRetries),
		ConnectTimeout:   viper.GetDuration(config.OptConnTimeout),
		ResolveOverrides: resolveOverrides,
	}
	downloadOpts := download.Options{
		Concurrency:    viper.GetInt(config.OptConcurrency),
		SplitThreshold: splitThreshold,
		BufferSize:     int(bufferSize),
		Client:         clientOpts,
	}
	getter := &splitget.Getter{
		Options: downloadOpts,
		Store:   st,
	}
	if viper.GetBool(config.OptProgress) {
		getter.ProgressWriter = os.Stderr
	}
	return getter, nil
}

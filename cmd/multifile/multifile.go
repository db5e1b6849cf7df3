package multifile

import (
	"fmt"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/sync/semaphore"

	"github.com/replicate/splitget/cmd/root"
	"github.com/replicate/splitget/pkg/cli"
	"github.com/replicate/splitget/pkg/config"
	"github.com/replicate/splitget/pkg/logging"
)

const longDesc = `
'multifile' mode for splitget takes a manifest file as input (can use '-' for stdin) and downloads all files listed in the manifest.

The manifest is expected to be in the format of a newline-separated list of pairs of URLs and destination paths, separated by a space.
e.g.
https://example.com/file1.txt /tmp/file1.txt

Every file gets its own set of connections that are rebalanced as they finish. The number of files downloaded at
once is limited by '--max-concurrent-files' and the number of connections open at once, across all files, by
'--max-conn-per-host'.
`

const multifileExamples = `
  splitget multifile manifest.txt

  splitget multifile - < manifest.txt

  cat multifile.txt | splitget multifile -
`

func GetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "multifile [flags] <manifest-file>",
		Short:   "download files from a manifest file in parallel",
		Long:    longDesc,
		Args:    cobra.ExactArgs(1),
		RunE:    runMultifileCMD,
		Example: multifileExamples,
	}

	cmd.PersistentFlags().Int(config.OptMaxConnPerHost, 40, "Maximum number of (global) concurrent connections")
	cmd.PersistentFlags().Int(config.OptMaxConcurrentFiles, 40, "Maximum number of files to download concurrently")
	err := viper.BindPFlags(cmd.PersistentFlags())
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	cmd.SetUsageTemplate(cli.UsageTemplate)
	return cmd
}

func runMultifileCMD(cmd *cobra.Command, args []string) error {
	cmd.SilenceUsage = true
	manifestPath := args[0]
	file, err := manifestFile(manifestPath)
	if err != nil {
		return err
	}
	defer file.Close()
	manifest, err := parseManifest(file)
	if err != nil {
		return fmt.Errorf("error processing manifest file %s: %w", manifestPath, err)
	}

	release, err := cli.AcquirePIDFile(viper.GetString(config.OptPIDFile))
	if err != nil {
		return err
	}
	defer release()

	getter, err := root.NewGetter()
	if err != nil {
		return err
	}
	logger := logging.GetLogger()
	if perHostLimit := viper.GetInt(config.OptMaxConnPerHost); perHostLimit > 0 {
		logger.Debug().Int("max_connections_per_host", perHostLimit).Msg("Config")
		getter.Options.Client.MaxConnPerHost = perHostLimit
		getter.Options.Semaphore = semaphore.NewWeighted(int64(perHostLimit))
	}
	getter.MaxConcurrentFiles = viper.GetInt(config.OptMaxConcurrentFiles)

	totalFileSize, elapsedTime, err := getter.DownloadFiles(cmd.Context(), manifest)
	if err != nil {
		return err
	}

	throughput := float64(totalFileSize) / elapsedTime.Seconds()
	logger.Info().
		Int("file_count", manifest.Len()).
		Str("total_bytes_downloaded", humanize.Bytes(uint64(totalFileSize))).
		Str("throughput", fmt.Sprintf("%s/s", humanize.Bytes(uint64(throughput)))).
		Str("elapsed_time", fmt.Sprintf("%.3fs", elapsedTime.Seconds())).
		Msg("Metrics")
	fmt.Fprintf(cmd.OutOrStdout(), "Downloaded %s in %.3fs\n", humanize.Bytes(uint64(totalFileSize)), elapsedTime.Seconds())
	return nil
}

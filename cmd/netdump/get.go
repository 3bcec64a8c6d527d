package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
)

var getCmd = &cobra.Command{
	Use:   "get URL...",
	Short: "Fetch URLs and record the exchanges",
	Long: `Fetch each URL with a GET request through the interceptor at the
configured level. The status and URL of every response are printed, followed
by the directory holding the transcripts.

Examples:
  # Record one exchange with bodies
  netdump get https://api.example.com/v1/status

  # Record headers only, in a custom directory
  NETDUMP_LEVEL=headers netdump get --dir ./net-log https://example.com/`,
	Args: cobra.MinimumNArgs(1),
	RunE: runGet,
}

func init() {
	rootCmd.AddCommand(getCmd)
}

func runGet(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logger, err := newLogger(cfg.Log, verbose)
	if err != nil {
		return err
	}
	nd, err := openService(cfg, &logger)
	if err != nil {
		return err
	}
	defer nd.Close()

	out := cmd.OutOrStdout()
	var failed int
	for _, url := range args {
		res, err := nd.DefaultClient.Get(url)
		if err != nil {
			logger.Error().Err(err).Str("url", url).Msg("request failed")
			failed++
			continue
		}
		_, _ = io.Copy(io.Discard, res.Body)
		res.Body.Close()
		fmt.Fprintf(out, "%d %s\n", res.StatusCode, url)
	}
	fmt.Fprintf(out, "transcripts in %s\n", nd.Store().Dir())

	if failed > 0 {
		return fmt.Errorf("%d of %d requests failed", failed, len(args))
	}
	return nil
}

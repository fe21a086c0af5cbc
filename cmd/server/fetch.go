package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"audiokit/internal/downloader"
)

var fetchCmd = &cobra.Command{
	Use:   "fetch <url>",
	Short: "Download audio for a URL into the cache and print its path",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		path, err := a.cache.Acquire(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), path)
		return nil
	},
}

var pruneCmd = &cobra.Command{
	Use:   "prune",
	Short: "Remove cached audio older than the retention window",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := setup()
		if err != nil {
			return err
		}
		defer a.Close()

		n, err := a.cache.Prune(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "removed %d artifact(s) older than %s\n", n, a.cfg.Retention)

		entries, err := a.library.List(cmd.Context())
		if err != nil {
			return err
		}
		var total int64
		for _, e := range entries {
			total += e.Size
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%d artifact(s) remain, %s\n", len(entries), humanize.Bytes(uint64(total)))
		return nil
	},
}

var streamURLCmd = &cobra.Command{
	Use:   "streamurl <url>",
	Short: "Print a direct audio stream URL without downloading",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := loadConfig()
		if err != nil {
			return err
		}
		y := downloader.NewYTDLP(cfg.YTDLPPath, cfg.DownloadTimeout, logger)
		u, err := y.ResolveAudioURL(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), u)
		return nil
	},
}

func setup() (*app, error) {
	cfg, logger, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return newApp(cfg, logger)
}

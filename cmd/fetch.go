package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/fetcher"
)

var fetchDest string

var fetchCmd = &cobra.Command{
	Use:   "fetch",
	Short: "Download new provider reports from the FTP drop",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("fetch"); err != nil {
			return err
		}

		f, err := fetcher.NewFTPFetcher(fetcher.FTPOptions{
			URL:      cfg.FTP.URL,
			User:     cfg.FTP.User,
			Password: cfg.FTP.Password,
			Timeout:  cfg.FTP.Timeout(),
		})
		if err != nil {
			return eris.Wrap(err, "init ftp fetcher")
		}

		dest := fetchDest
		if dest == "" {
			dest = cfg.Ingest.ReportDir
		}

		res, err := fetcher.Sync(ctx, f, dest)
		if err != nil {
			return eris.Wrap(err, "fetch reports")
		}

		zap.L().Info("fetch complete",
			zap.String("dest", dest),
			zap.Int("downloaded", len(res.Downloaded)),
			zap.Int("skipped", res.Skipped),
		)
		return nil
	},
}

func init() {
	fetchCmd.Flags().StringVar(&fetchDest, "dest", "", "download directory (default ingest.report_dir)")
	rootCmd.AddCommand(fetchCmd)
}

package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/matviet/outbound-cli/internal/config"
	"github.com/matviet/outbound-cli/internal/linkage"
	"github.com/matviet/outbound-cli/internal/model"
	"github.com/matviet/outbound-cli/internal/resilience"
)

var (
	linkMonth    string
	linkChannel  string
	linkPerMonth bool
)

var linkCmd = &cobra.Command{
	Use:   "link",
	Short: "Link unlinked messages to customers by phone number",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		if err := cfg.Validate("link"); err != nil {
			return err
		}
		month, err := parseMonth(linkMonth)
		if err != nil {
			return err
		}
		channel, err := model.ParseChannel(linkChannel)
		if err != nil {
			return err
		}

		s, err := initStore(ctx, cfg.Store)
		if err != nil {
			return eris.Wrap(err, "init store")
		}
		defer s.Close() //nolint:errcheck

		retry := cfg.Retry.Policy()
		index, err := linkage.BuildIndex(ctx, s, cfg.Link.CustomerPageSize, retry)
		if err != nil {
			return err
		}

		r, err := linkage.New(s, index, linkage.Config{
			FetchPageSize:   cfg.Link.FetchPageSize,
			UpdateBatchSize: cfg.Link.UpdateBatchSize,
			PagePacer:       resilience.NewPacer(config.Delay(cfg.Link.PageDelayMS)),
			BatchPacer:      resilience.NewPacer(config.Delay(cfg.Link.BatchDelayMS)),
			Retry:           retry,
		})
		if err != nil {
			return err
		}

		var res linkage.Result
		if linkPerMonth && month == nil {
			res, err = r.ReconcileMonths(ctx, channel)
		} else {
			res, err = r.Reconcile(ctx, linkage.Scope{ReportMonth: month, Channel: channel})
		}
		if err != nil {
			return eris.Wrap(err, "link messages")
		}

		zap.L().Info("link complete",
			zap.Int("customers_indexed", index.Len()),
			zap.Int("pages", res.Pages),
			zap.Int("fetched", res.Fetched),
			zap.Int("linked", res.Linked),
			zap.Int("unmatched", res.Unmatched),
			zap.Int("dead_letters", len(res.DeadLetters)),
		)
		return nil
	},
}

func init() {
	linkCmd.Flags().StringVar(&linkMonth, "month", "", "only link messages of this report month (YYYY-MM)")
	linkCmd.Flags().StringVar(&linkChannel, "channel", "", "only link sms or zns messages")
	linkCmd.Flags().BoolVar(&linkPerMonth, "per-month", false, "run one pass per stored report month")
	rootCmd.AddCommand(linkCmd)
}

// Copyright 2026 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package main

import (
	"context"
	"fmt"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/blinklabs-io/crowdfund/campaign"
)

func campaignCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "campaign",
		Short: "Create, fund and settle campaigns",
	}
	cmd.AddCommand(
		campaignCreateCommand(),
		campaignActionCommand("start", "Open a campaign for contributions", func(ctx context.Context, l *campaign.Ledger, caller campaign.Identity) error {
			return l.Start(ctx, caller)
		}),
		campaignContributeCommand(),
		campaignActionCommand("finalize", "Settle a campaign whose deadline has passed", func(ctx context.Context, l *campaign.Ledger, caller campaign.Identity) error {
			return l.Finalize(ctx, caller)
		}),
		campaignPayoutCommand("withdraw", "Withdraw the funds of a successful campaign", (*campaign.Ledger).Withdraw),
		campaignPayoutCommand("refund", "Reclaim a contribution to a failed campaign", (*campaign.Ledger).Refund),
		campaignShowCommand(),
		campaignListCommand(),
		campaignContributorsCommand(),
		campaignHistoryCommand(),
		campaignEventsCommand(),
	)
	return cmd
}

func campaignCreateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "create NAME GOAL DAYS",
		Short: "Create a campaign owned by the caller",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			goal, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid goal %q: %w", args[1], err)
			}
			days, err := strconv.ParseUint(args[2], 10, 0)
			if err != nil {
				return fmt.Errorf("invalid duration %q: %w", args[2], err)
			}
			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				caller, err := a.caller()
				if err != nil {
					return err
				}
				id, err := a.registry.Create(ctx, caller, args[0], goal, uint(days))
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), id)
				return nil
			})
		},
	}
}

func campaignActionCommand(
	use string,
	short string,
	action func(context.Context, *campaign.Ledger, campaign.Identity) error,
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runLedgerAction(cmd, args[0], action)
		},
	}
}

// runLedgerAction applies action to a campaign as the caller and prints the
// resulting state
func runLedgerAction(
	cmd *cobra.Command,
	arg string,
	action func(context.Context, *campaign.Ledger, campaign.Identity) error,
) error {
	return runWithApp(cmd, func(ctx context.Context, a *app) error {
		caller, err := a.caller()
		if err != nil {
			return err
		}
		l, err := a.ledger(arg)
		if err != nil {
			return err
		}
		if err := action(ctx, l, caller); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), l.State())
		return nil
	})
}

func campaignContributeCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contribute ID AMOUNT",
		Short: "Contribute to an active campaign",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q: %w", args[1], err)
			}
			return runLedgerAction(cmd, args[0], func(ctx context.Context, l *campaign.Ledger, caller campaign.Identity) error {
				return l.Contribute(ctx, caller, amount)
			})
		},
	}
}

func campaignPayoutCommand(
	use string,
	short string,
	payout func(*campaign.Ledger, context.Context, campaign.Identity) (uint64, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   use + " ID",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				caller, err := a.caller()
				if err != nil {
					return err
				}
				l, err := a.ledger(args[0])
				if err != nil {
					return err
				}
				amount, err := payout(l, ctx, caller)
				if err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), amount)
				return nil
			})
		},
	}
}

func campaignShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show ID",
		Short: "Show a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(_ context.Context, a *app) error {
				l, err := a.ledger(args[0])
				if err != nil {
					return err
				}
				s := l.Snapshot()
				// Progress is reported raw and only capped for display
				progress := min(s.Progress, 100)
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "id:\t%d\n", s.ID)
				fmt.Fprintf(w, "name:\t%s\n", s.Name)
				fmt.Fprintf(w, "owner:\t%s\n", s.Owner)
				fmt.Fprintf(w, "state:\t%s\n", s.State)
				fmt.Fprintf(w, "goal:\t%d\n", s.Goal)
				fmt.Fprintf(w, "raised:\t%d\n", s.TotalRaised)
				fmt.Fprintf(w, "balance:\t%d\n", s.Balance)
				fmt.Fprintf(w, "progress:\t%d%%\n", progress)
				fmt.Fprintf(w, "contributors:\t%d\n", s.ContributorCount)
				fmt.Fprintf(w, "created:\t%s\n", s.CreatedAt.Format(time.RFC3339))
				fmt.Fprintf(w, "deadline:\t%s\n", s.Deadline.Format(time.RFC3339))
				fmt.Fprintf(w, "expired:\t%t\n", l.Expired())
				return w.Flush()
			})
		},
	}
}

func campaignListCommand() *cobra.Command {
	var creator, stateFilter string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List campaigns, oldest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var want *campaign.State
			if stateFilter != "" {
				st, err := campaign.ParseState(stateFilter)
				if err != nil {
					return err
				}
				want = &st
			}
			return runWithApp(cmd, func(_ context.Context, a *app) error {
				ids := a.registry.Campaigns()
				if creator != "" {
					ids = a.registry.UserCampaigns(campaign.Identity(creator))
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "ID\tNAME\tOWNER\tSTATE\tRAISED\tGOAL")
				for _, id := range ids {
					l, err := a.registry.Campaign(id)
					if err != nil {
						return err
					}
					s := l.Snapshot()
					if want != nil && s.State != *want {
						continue
					}
					fmt.Fprintf(
						w,
						"%d\t%s\t%s\t%s\t%d\t%d\n",
						s.ID,
						s.Name,
						s.Owner,
						s.State,
						s.TotalRaised,
						s.Goal,
					)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().StringVar(&creator, "creator", "", "only list campaigns created by this identity")
	cmd.Flags().StringVar(&stateFilter, "state", "", "only list campaigns in this state (label or numeric code)")
	return cmd
}

func campaignContributorsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "contributors ID",
		Short: "List contributors in order of first contribution",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWithApp(cmd, func(_ context.Context, a *app) error {
				l, err := a.ledger(args[0])
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CONTRIBUTOR\tAMOUNT")
				for _, c := range l.Contributions() {
					fmt.Fprintf(w, "%s\t%d\n", c.Contributor, c.Amount)
				}
				return w.Flush()
			})
		},
	}
}

func campaignHistoryCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "history ID",
		Short: "Show every recorded contribution balance change",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := campaign.ParseID(args[0])
			if err != nil {
				return err
			}
			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				history, err := a.db.ContributionHistory(ctx, id)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "CONTRIBUTOR\tBALANCE")
				for _, c := range history {
					fmt.Fprintf(w, "%s\t%d\n", c.Contributor, c.Amount)
				}
				return w.Flush()
			})
		},
	}
}

func campaignEventsCommand() *cobra.Command {
	var since uint64
	cmd := &cobra.Command{
		Use:   "events ID",
		Short: "Show the event journal of a campaign",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := campaign.ParseID(args[0])
			if err != nil {
				return err
			}
			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				entries, err := a.db.Events(ctx, id)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "SEQ\tTIME\tTYPE\tDATA")
				for _, e := range entries {
					if e.Seq <= since {
						continue
					}
					fmt.Fprintf(
						w,
						"%d\t%s\t%s\t%+v\n",
						e.Seq,
						e.Time.Format(time.RFC3339),
						e.Type,
						e.Data,
					)
				}
				return w.Flush()
			})
		},
	}
	cmd.Flags().Uint64Var(&since, "since", 0, "only show events with a sequence number above this")
	return cmd
}

func payoutsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "payouts [RECIPIENT]",
		Short: "List recorded payouts, optionally for one recipient",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var recipient campaign.Identity
			if len(args) > 0 {
				recipient = campaign.Identity(args[0])
			}
			return runWithApp(cmd, func(ctx context.Context, a *app) error {
				payouts, err := a.db.Payouts(ctx, recipient)
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "TIME\tRECIPIENT\tAMOUNT")
				for _, p := range payouts {
					fmt.Fprintf(
						w,
						"%s\t%s\t%d\n",
						p.Time.Format(time.RFC3339),
						p.To,
						p.Amount,
					)
				}
				return w.Flush()
			})
		},
	}
}

// Copyright 2025 Blink Labs Software
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
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"time"

	"github.com/capidao/capiledger/database/models"
	"github.com/capidao/capiledger/ledger"
	"github.com/capidao/capiledger/snapshot"
	"github.com/spf13/cobra"
)

func readSubmission(cmd *cobra.Command, path string) ([]byte, error) {
	if path == "-" {
		return io.ReadAll(cmd.InOrStdin())
	}
	return os.ReadFile(path)
}

func applyCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apply <dao-id> <file>",
		Short: "Apply an operation to a DAO, reading a YAML or JSON submission from file ('-' for stdin)",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			data, err := readSubmission(cmd, args[1])
			if err != nil {
				return fmt.Errorf("failed to read submission: %w", err)
			}
			sub, err := ledger.ParseSubmission(data)
			if err != nil {
				return err
			}
			group, err := sub.Group()
			if err != nil {
				return err
			}
			logger := commonRun(cmd.ErrOrStderr())
			engine, _, closeFn, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			state, err := engine.Submit(cmd.Context(), args[0], group)
			if err != nil {
				var rejection *ledger.RejectionError
				if errors.As(err, &rejection) {
					return fmt.Errorf(
						"operation rejected (%s): %w",
						rejection.Kind,
						err,
					)
				}
				return err
			}
			view, err := newStateView(state)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), view)
		},
	}
	return cmd
}

func stateCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "state <dao-id>",
		Short: "Show the ledger state of a DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			logger := commonRun(cmd.ErrOrStderr())
			engine, _, closeFn, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			state, err := engine.State(args[0])
			if err != nil {
				return err
			}
			view, err := newStateView(state)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), view)
		},
	}
	return cmd
}

type journalView struct {
	Seq           uint64 `json:"seq"`
	Kind          string `json:"kind"`
	Sender        string `json:"sender,omitempty"`
	Amount        uint64 `json:"amount,omitempty"`
	Time          int64  `json:"time"`
	Outcome       string `json:"outcome"`
	Reason        string `json:"reason,omitempty"`
	RejectionKind string `json:"rejectionKind,omitempty"`
}

func newJournalView(entry models.JournalEntry) journalView {
	return journalView{
		Seq:           entry.Seq,
		Kind:          entry.Kind,
		Sender:        entry.Sender,
		Amount:        uint64(entry.Amount),
		Time:          entry.Time,
		Outcome:       entry.Outcome,
		Reason:        entry.Reason,
		RejectionKind: entry.RejectionKind,
	}
}

func journalCommand() *cobra.Command {
	var limit, offset int
	var descending bool
	cmd := &cobra.Command{
		Use:   "journal <dao-id>",
		Short: "Show the operation journal of a DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			if limit < 0 || offset < 0 {
				return errors.New("limit and offset must not be negative")
			}
			logger := commonRun(cmd.ErrOrStderr())
			engine, _, closeFn, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			entries, _, err := engine.Journal(args[0], limit, offset, descending)
			if err != nil {
				return err
			}
			views := make([]journalView, 0, len(entries))
			for _, entry := range entries {
				views = append(views, newJournalView(entry))
			}
			return writeYAML(cmd.OutOrStdout(), views)
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 100, "maximum number of entries, 0 for all")
	cmd.Flags().IntVar(&offset, "offset", 0, "number of entries to skip")
	cmd.Flags().BoolVar(&descending, "desc", false, "newest entries first")
	return cmd
}

func queryCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "query",
		Short: "Run read-only ledger queries",
	}
	cmd.AddCommand(
		investorQueryCommand(
			"entitlement",
			"Show the dividend entitlement of an investor",
			(*ledger.Engine).Entitlement,
		),
		investorQueryCommand(
			"claimable",
			"Show the dividend an investor can claim now",
			(*ledger.Engine).Claimable,
		),
		voteStatusCommand(),
		drainSplitCommand(),
	)
	return cmd
}

func investorQueryCommand(
	name string,
	short string,
	query func(*ledger.Engine, string, ledger.Address) (uint64, error),
) *cobra.Command {
	return &cobra.Command{
		Use:   name + " <dao-id> <address>",
		Short: short,
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			logger := commonRun(cmd.ErrOrStderr())
			engine, _, closeFn, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			amount, err := query(engine, args[0], ledger.Address(args[1]))
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), amount)
			return nil
		},
	}
}

func voteStatusCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "vote-status <dao-id> <slot>",
		Short: "Show the vote status of a withdrawal slot",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			slot, err := strconv.ParseUint(args[1], 10, 32)
			if err != nil {
				return fmt.Errorf("invalid slot %q: %w", args[1], err)
			}
			logger := commonRun(cmd.ErrOrStderr())
			engine, _, closeFn, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			status, err := engine.VoteStatus(args[0], uint32(slot))
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), struct {
				ledger.VoteStatus
				Passed bool `json:"passed"`
			}{
				VoteStatus: status,
				Passed:     status.Passed(),
			})
		},
	}
}

func drainSplitCommand() *cobra.Command {
	var feeBP uint64
	cmd := &cobra.Command{
		Use:   "drain-split <balance>",
		Short: "Show how a customer balance is split between the platform and the DAO",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			balance, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid balance %q: %w", args[0], err)
			}
			if !cmd.Flags().Changed("fee-bp") {
				feeBP = cfg.PlatformFeeBP
			}
			platform, central, err := ledger.DrainSplit(balance, feeBP)
			if err != nil {
				return err
			}
			return writeYAML(cmd.OutOrStdout(), map[string]uint64{
				"platform": platform,
				"central":  central,
			})
		},
	}
	cmd.Flags().Uint64Var(&feeBP, "fee-bp", 0, "platform fee over 1000000, defaults to the configured fee")
	return cmd
}

func snapshotCommand() *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "snapshot <target>",
		Short: "Export every DAO state record to a directory, gs://bucket/prefix or s3://bucket/prefix",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			logger := commonRun(cmd.ErrOrStderr())
			target, err := snapshot.Open(cmd.Context(), args[0], snapshot.Options{
				CredentialsFile: cfg.SnapshotGcsCredentialsFile,
				Region:          cfg.SnapshotS3Region,
				Timeout:         timeout,
			})
			if err != nil {
				return err
			}
			defer target.Close() //nolint:errcheck
			_, db, closeFn, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			result, err := snapshot.Export(cmd.Context(), db, target, logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(
				cmd.OutOrStdout(),
				"exported %d records (%d bytes) to %s\n",
				result.Records,
				result.Bytes,
				target,
			)
			return nil
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 60*time.Second, "timeout for each object upload")
	return cmd
}

func verifyCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "verify",
		Short: "Decode every stored DAO state and check its invariants",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := configFromCommand(cmd)
			if err != nil {
				return err
			}
			logger := commonRun(cmd.ErrOrStderr())
			engine, _, closeFn, err := openLedger(cmd.Context(), cfg, logger)
			if err != nil {
				return err
			}
			defer closeFn()
			if err := engine.Verify(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

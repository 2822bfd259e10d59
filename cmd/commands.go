package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/mhismail3/tron-sub010/internal/contextmgr"
	"github.com/mhismail3/tron-sub010/internal/message"
	"github.com/mhismail3/tron-sub010/internal/normalize"
	"github.com/mhismail3/tron-sub010/internal/sanitize"
	"github.com/mhismail3/tron-sub010/internal/store"
)

// errViolations makes validate exit non-zero.
var errViolations = errors.New("conversation has violations")

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// run wraps a command body with app setup and teardown.
func run(cmd *cobra.Command, sessionID string, body func(a *app) error) (err error) {
	a, err := newApp(cmd, sessionID)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := a.close(cmd.ErrOrStderr()); cerr != nil && err == nil {
			err = cerr
		}
	}()
	return body(a)
}

func sanitizeCmd() *cobra.Command {
	var wire bool
	cmd := &cobra.Command{
		Use:   "sanitize FILE",
		Short: "Repair a conversation so providers accept it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "", func(a *app) error {
				conv, err := readConversation(cmd, args[0])
				if err != nil {
					return err
				}
				msgs := conv.Messages
				if conv.System != "" {
					msgs = append([]message.Message{message.System(conv.System)}, msgs...)
				}

				res := sanitize.Sanitize(msgs,
					sanitize.WithLogger(a.logger),
					sanitize.WithRecorder(a.recorders()),
				)
				a.logger.Info().
					Int("messages", len(res.Messages)).
					Int("fixes", len(res.Fixes)).
					Msg("conversation sanitized")

				if !wire {
					return writeJSON(cmd.OutOrStdout(), res)
				}
				payload, err := normalize.EncodeWire(res.Messages)
				if err != nil {
					return fmt.Errorf("encode wire: %w", err)
				}
				return writeJSON(cmd.OutOrStdout(), struct {
					System   string          `json:"system,omitempty"`
					Messages json.RawMessage `json:"messages"`
				}{payload.System, payload.Messages})
			})
		},
	}
	cmd.Flags().BoolVar(&wire, "wire", false, "Print the provider wire form instead of the sanitize result")
	return cmd
}

func validateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate FILE",
		Short: "Report problems without repairing them",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "", func(a *app) error {
				conv, err := readConversation(cmd, args[0])
				if err != nil {
					return err
				}
				violations := sanitize.Validate(conv.Messages)
				if violations == nil {
					violations = []sanitize.Violation{}
				}
				if err := writeJSON(cmd.OutOrStdout(), violations); err != nil {
					return err
				}
				if len(violations) > 0 {
					return fmt.Errorf("%w: %d found", errViolations, len(violations))
				}
				return nil
			})
		},
	}
}

// snapshotOutput is printed by snapshot.
type snapshotOutput struct {
	Snapshot      contextmgr.Snapshot  `json:"snapshot"`
	ShouldCompact bool                 `json:"shouldCompact"`
	Turn          contextmgr.TurnCheck `json:"turn"`
}

func snapshotCmd() *cobra.Command {
	var (
		model          string
		usageFile      string
		responseTokens int
	)
	cmd := &cobra.Command{
		Use:   "snapshot FILE",
		Short: "Show context window usage for a conversation",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "", func(a *app) error {
				conv, err := readConversation(cmd, args[0])
				if err != nil {
					return err
				}
				if model == "" {
					model = conv.Model
				}
				mgr, err := a.newManager(cmd.Context(), model)
				if err != nil {
					return err
				}
				loadConversation(mgr, conv, false)

				if usageFile != "" {
					data, err := readInput(cmd, usageFile)
					if err != nil {
						return err
					}
					usage := normalize.ResponseUsage(data)
					if usage == nil {
						return fmt.Errorf("%s: no token usage found", usageFile)
					}
					mgr.SetAPIContextTokens(usage.ContextTokens())
				}

				return writeJSON(cmd.OutOrStdout(), snapshotOutput{
					Snapshot:      mgr.Snapshot(),
					ShouldCompact: mgr.ShouldCompact(),
					Turn:          mgr.CanAcceptTurn(responseTokens),
				})
			})
		},
	}
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model id (overrides context.model)")
	cmd.Flags().StringVar(&usageFile, "usage", "", "Provider response whose reported usage replaces the estimate")
	cmd.Flags().IntVar(&responseTokens, "response-tokens", 4000, "Expected size of the next response")
	return cmd
}

// compactOutput is printed by compact.
type compactOutput struct {
	SessionID string                      `json:"sessionId"`
	Preview   bool                        `json:"preview"`
	Result    contextmgr.CompactionResult `json:"result"`
	Snapshot  contextmgr.Snapshot         `json:"snapshot"`
	Messages  []message.Message           `json:"messages,omitempty"`
}

func compactCmd() *cobra.Command {
	var (
		preview bool
		summary string
		resume  string
		model   string
	)
	cmd := &cobra.Command{
		Use:   "compact [FILE]",
		Short: "Summarize older turns and keep the recent ones",
		Long: `compact replaces all but the most recent turns with a summary.

With --resume the session is loaded from the configured store; FILE, if
given, is appended to it. The compacted session is saved back to the store.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if resume == "" && len(args) == 0 {
				return errors.New("FILE is required unless --resume is set")
			}
			return run(cmd, resume, func(a *app) error {
				ctx := cmd.Context()
				st, err := a.openStore(ctx)
				if err != nil {
					return err
				}

				var mgr *contextmgr.Manager
				if resume != "" {
					if st == nil {
						return errors.New("--resume needs a store (set store.type)")
					}
					mgr, err = a.resumeManager(ctx, st)
				} else {
					mgr, err = a.newManager(ctx, model)
				}
				if err != nil {
					return err
				}
				if model != "" && resume != "" {
					mgr.SwitchModel(model)
				}
				mgr.OnCompactionNeeded(func(s contextmgr.Snapshot) {
					a.logger.Warn().
						Str("level", string(s.ThresholdLevel)).
						Float64("usage", s.UsagePercent).
						Msg("context usage escalated")
				})

				if len(args) == 1 {
					conv, err := readConversation(cmd, args[0])
					if err != nil {
						return err
					}
					loadConversation(mgr, conv, resume != "")
				}

				opts := contextmgr.CompactionOptions{EditedSummary: summary}
				out := compactOutput{SessionID: mgr.SessionID(), Preview: preview}
				if preview {
					out.Result, err = mgr.PreviewCompaction(ctx, opts)
				} else {
					out.Result, err = mgr.ExecuteCompaction(ctx, opts)
				}
				if err != nil {
					return err
				}
				out.Snapshot = mgr.Snapshot()

				if !preview {
					out.Messages = mgr.ProviderMessages()
					if st != nil {
						if err := st.Save(ctx, mgr.ExportState()); err != nil {
							return fmt.Errorf("save session: %w", err)
						}
						a.logger.Info().Str("session_id", mgr.SessionID()).Msg("session saved")
					}
				}
				return writeJSON(cmd.OutOrStdout(), out)
			})
		},
	}
	cmd.Flags().BoolVar(&preview, "preview", false, "Show what compaction would do without applying it")
	cmd.Flags().StringVar(&summary, "summary", "", "Use this summary instead of calling the summarizer")
	cmd.Flags().StringVar(&resume, "resume", "", "Session id to load from the store")
	cmd.Flags().StringVarP(&model, "model", "m", "", "Model id (overrides context.model)")
	return cmd
}

// sessionLister is implemented by stores that can enumerate sessions.
type sessionLister interface {
	List(ctx context.Context) ([]string, error)
}

func sessionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sessions",
		Short: "Manage stored sessions",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "list",
		Short: "List stored session ids, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd, "", func(a *app) error {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				lister, ok := st.(sessionLister)
				if !ok {
					return fmt.Errorf("store %q cannot list sessions", a.cfg.Store.Type)
				}
				ids, err := lister.List(cmd.Context())
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "show ID",
		Short: "Print a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "", func(a *app) error {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				if st == nil {
					return errors.New("no store configured")
				}
				state, err := st.Load(cmd.Context(), args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd.OutOrStdout(), state)
			})
		},
	})
	cmd.AddCommand(&cobra.Command{
		Use:   "delete ID",
		Short: "Delete a stored session",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, "", func(a *app) error {
				st, err := a.openStore(cmd.Context())
				if err != nil {
					return err
				}
				if st == nil {
					return errors.New("no store configured")
				}
				if err := st.Delete(cmd.Context(), args[0]); err != nil && !errors.Is(err, store.ErrNotFound) {
					return err
				}
				return nil
			})
		},
	})
	return cmd
}

package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/KvFxKaido/Push-sub001/internal/agentloop"
	"github.com/KvFxKaido/Push-sub001/internal/models"
)

// runResultEnvelope is the --json output shape for a headless turn (§6).
type runResultEnvelope struct {
	Outcome   string `json:"outcome"`
	FinalText string `json:"final_text,omitempty"`
	Round     int    `json:"round"`
	SessionID string `json:"session_id"`
	Error     string `json:"error,omitempty"`
}

// runHeadless drives one turn to completion and exits 0 on success, 1
// otherwise (§6).
func runHeadless(cmd *cobra.Command, flags globalFlags, task string) error {
	rt, err := buildRuntime(flags)
	if err != nil {
		return err
	}

	sess, err := rt.store.Create(rt.cfg.Provider.Name, rt.cfg.Provider.Model, flags.cwd)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}

	ctx, cancel := signalContext()
	defer cancel()

	result, err := rt.loop.RunTurn(ctx, sess, task)
	if err != nil {
		if flags.jsonOut {
			printEnvelope(cmd, runResultEnvelope{Outcome: "error", SessionID: sess.ID, Error: err.Error()})
		} else {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
		}
		return err
	}

	env := runResultEnvelope{Outcome: string(result.Outcome), FinalText: result.FinalText, Round: result.Round, SessionID: sess.ID}
	if flags.jsonOut {
		printEnvelope(cmd, env)
	} else {
		fmt.Fprintln(cmd.OutOrStdout(), result.FinalText)
	}

	if result.Outcome != agentloop.OutcomeSuccess {
		return fmt.Errorf("turn ended with outcome %q", result.Outcome)
	}
	return nil
}

// runInteractive starts or resumes an interactive session, reading one
// task per line of stdin until EOF, "exit", or "quit" (§6: "push" / "push
// --session <id>"). A turn-level error is printed to stderr without ending
// the process — the session remains usable, per §7.
func runInteractive(cmd *cobra.Command, flags globalFlags, sessionID string) error {
	rt, err := buildRuntime(flags)
	if err != nil {
		return err
	}

	var sess *models.Session
	if sessionID != "" {
		sess, err = resumeSession(rt, sessionID)
		if err != nil {
			return fmt.Errorf("resume session %s: %w", sessionID, err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "resumed session %s (%d prior messages)\n", sess.ID, len(sess.Messages))
	} else {
		sess, err = rt.store.Create(rt.cfg.Provider.Name, rt.cfg.Provider.Model, flags.cwd)
		if err != nil {
			return fmt.Errorf("create session: %w", err)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "new session %s\n", sess.ID)
	}

	rt.loop.OnAssistantText = func(text string) { fmt.Fprint(cmd.OutOrStdout(), text) }
	rt.loop.OnToolEvent = func(line string) { fmt.Fprintf(cmd.OutOrStdout(), "\n[tool] %s\n", line) }

	ctx, cancel := signalContext()
	defer cancel()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	fmt.Fprint(cmd.OutOrStdout(), "> ")
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			fmt.Fprint(cmd.OutOrStdout(), "> ")
			continue
		}
		if line == "exit" || line == "quit" {
			return nil
		}

		result, err := rt.loop.RunTurn(ctx, sess, line)
		if err != nil {
			fmt.Fprintln(cmd.ErrOrStderr(), err)
			fmt.Fprint(cmd.OutOrStdout(), "\n> ")
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "\n[%s, round %d]\n> ", result.Outcome, result.Round)

		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return scanner.Err()
}

// resumeSession rebuilds a Session's message list from its persisted
// state.json snapshot, which already carries the live Messages slice — the
// events.jsonl replay exists for audit/debugging, not reconstruction, since
// state.json is saved after every mutation (I5).
func resumeSession(rt *runtime, id string) (*models.Session, error) {
	sess, err := rt.store.Load(id)
	if err != nil {
		return nil, err
	}
	if _, err := rt.store.ReplayEvents(id); err != nil && !errors.Is(err, os.ErrNotExist) {
		rt.logger.Warn("session: events.jsonl replay failed", "error", err, "session_id", id)
	}
	return sess, nil
}

func listSessions(cmd *cobra.Command, flags globalFlags) error {
	rt, err := buildRuntime(flags)
	if err != nil {
		return err
	}
	sessions, err := rt.store.List()
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if flags.jsonOut {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(sessions)
	}

	for _, s := range sessions {
		fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\t%s\t%d messages\tupdated %s\n",
			s.ID, s.Provider, s.Model, len(s.Messages), s.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func printEnvelope(cmd *cobra.Command, env runResultEnvelope) {
	data, err := json.MarshalIndent(env, "", "  ")
	if err != nil {
		fmt.Fprintf(cmd.OutOrStdout(), `{"outcome":"error","error":%q}`+"\n", err.Error())
		return
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
}

// signalContext returns a context cancelled on SIGINT/SIGTERM, the way an
// interactive or headless run should unwind into OutcomeCancelled (§4.5)
// rather than leaving the sandbox mid-operation.
func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

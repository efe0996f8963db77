package tools

import (
	"context"
	"strings"

	"github.com/KvFxKaido/Push-sub001/internal/pusherr"
	"github.com/KvFxKaido/Push-sub001/internal/sandboxclient"
)

// hydrationWindow is the chunk size used by auto-expand and chunked
// hydration (§4.3.7): ~400 lines starting at line 1.
const hydrationWindow = 400

// guardOutcome is the result of runEditGuard: either the write may proceed
// (possibly after an auto-expand read updated the ledger/version cache), or
// it must be blocked.
type guardOutcome struct {
	allowed bool
	blocked *pusherr.Error
}

// runEditGuard implements the Edit Guard with Scoped Auto-Expand (§4.3.6).
func runEditGuard(ctx context.Context, session *Session, path string) guardOutcome {
	verdict := session.Ledger.CheckWriteAllowed(path)
	if verdict.Allowed {
		return guardOutcome{allowed: true}
	}

	session.Ledger.RecordAutoExpandAttempt()
	read, err := session.Sandbox.Read(ctx, sandboxclient.ReadRequest{Path: path})
	if err != nil {
		if pe, ok := pusherr.As(err); ok && pe.Type == pusherr.FileNotFound {
			session.Ledger.RecordCreation(path)
			session.Ledger.RecordAutoExpandSuccess()
			return guardOutcome{allowed: true}
		}
		return guardOutcome{blocked: pusherr.New(pusherr.EditGuardBlocked, "auto-expand read failed: "+err.Error())}
	}

	session.Ledger.RecordRead(path, nil, read.Truncated)
	session.SetVersion(path, read.Version)

	if !read.Truncated {
		session.Ledger.RecordAutoExpandSuccess()
		return guardOutcome{allowed: true}
	}

	// Still truncated: try chunked hydration before giving up.
	hydrated, hydratedVersion, ok := hydrateByChunks(ctx, session, path)
	if !ok {
		return guardOutcome{blocked: pusherr.New(pusherr.EditGuardBlocked,
			"file is too large to fully observe; read narrower ranges before writing")}
	}
	session.Ledger.RecordRead(path, nil, false)
	session.SetVersion(path, hydratedVersion)
	session.Ledger.RecordAutoExpandSuccess()
	_ = hydrated
	return guardOutcome{allowed: true}
}

// hydrateByChunks implements Chunked Hydration (§4.3.7): read in windows of
// ~400 lines starting at line 1, stopping at the first window that returns
// fewer than a full window (EOF) or that is still truncated despite being a
// narrow range (unrecoverable payload-limit truncation).
func hydrateByChunks(ctx context.Context, session *Session, path string) (content string, version string, ok bool) {
	var b strings.Builder
	start := 1
	for {
		end := start + hydrationWindow - 1
		read, err := session.Sandbox.Read(ctx, sandboxclient.ReadRequest{Path: path, StartLine: start, EndLine: end})
		if err != nil {
			return "", "", false
		}
		version = read.Version
		lines := SplitLinesKeepTrailing(read.Content)
		b.WriteString(read.Content)

		if read.Truncated && len(lines) < hydrationWindow {
			// Payload-limit truncation on a narrow range: unrecoverable.
			return "", "", false
		}
		if len(lines) < hydrationWindow {
			return b.String(), version, true
		}
		if read.Truncated {
			return "", "", false
		}
		start = end + 1
	}
}

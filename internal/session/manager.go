package session

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/agentcore/soul/internal/config"
)

// Resolve picks the session id a CLI invocation should open (spec §6's
// kimi.json-backed --continue/--session semantics). cmd/soul enforces
// --continue and --session's mutual exclusion before calling this; Resolve
// itself just prefers continueFlag over an explicit sessionID over
// generating a fresh one.
//
// isNewConversation is true exactly when the returned id has no prior
// kimi.json entry: cmd/soul uses it to decide whether to seed the system
// prompt.
func Resolve(shareDir, workDir, sessionID string, continueFlag bool) (id string, isNewConversation bool, err error) {
	meta, err := config.LoadMetadata(shareDir)
	if err != nil {
		return "", false, fmt.Errorf("session: load metadata: %w", err)
	}

	if continueFlag {
		found, ok := meta.MostRecentForWorkDir(workDir)
		if !ok {
			return "", false, fmt.Errorf("session: no prior session found for work dir %s", workDir)
		}
		return found, false, nil
	}

	if sessionID != "" {
		_, existed := meta.Sessions[sessionID]
		return sessionID, !existed, nil
	}

	return uuid.NewString(), true, nil
}

// Touch records that id was just used in workDir, persisting kimi.json so a
// later --continue in the same work dir resolves back to it.
func Touch(shareDir, id, workDir string, now time.Time) error {
	meta, err := config.LoadMetadata(shareDir)
	if err != nil {
		return fmt.Errorf("session: load metadata: %w", err)
	}
	meta.Touch(id, workDir, now)
	return meta.Save(shareDir)
}

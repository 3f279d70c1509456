package sqlstore

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/m3rciful/meterdesk/internal/conversation"
)

// Sessions persists conversation sessions so dialogues survive restarts.
type Sessions struct {
	*Store
}

// Sessions returns the session store sharing this connection.
func (s *Store) Sessions() Sessions { return Sessions{s} }

type sessionRow struct {
	Channel      string `db:"channel"`
	UserID       string `db:"user_id"`
	State        string `db:"state"`
	Workflow     string `db:"workflow"`
	Lang         string `db:"lang"`
	Authorized   bool   `db:"authorized"`
	ControllerID int64  `db:"controller_id"`
	AreaID       int64  `db:"area_id"`
	Scratch      string `db:"scratch"`
	Prompt       string `db:"prompt"`
	Version      int64  `db:"version"`
	UpdatedAt    dbTime `db:"updated_at"`
}

// Load implements conversation.SessionStore.
func (s Sessions) Load(ctx context.Context, key conversation.Key) (conversation.Session, bool, error) {
	var row sessionRow
	err := s.db.GetContext(ctx, &row, s.rebind(`
		SELECT channel, user_id, state, workflow, lang, authorized, controller_id, area_id,
			scratch, prompt, version, updated_at
		FROM conversation_sessions WHERE channel = ? AND user_id = ?`),
		string(key.Channel), key.UserID)
	switch {
	case notFound(err):
		return conversation.Session{}, false, nil
	case err != nil:
		return conversation.Session{}, false, fmt.Errorf("load session: %w", err)
	}
	sess := conversation.Session{
		Key:          key,
		State:        conversation.State(row.State),
		Workflow:     conversation.Workflow(row.Workflow),
		Lang:         row.Lang,
		Authorized:   row.Authorized,
		ControllerID: row.ControllerID,
		AreaID:       row.AreaID,
		Version:      row.Version,
		UpdatedAt:    row.UpdatedAt.Time,
	}
	if err := json.Unmarshal([]byte(row.Scratch), &sess.Scratch); err != nil {
		return conversation.Session{}, false, fmt.Errorf("decode session scratch: %w", err)
	}
	if err := json.Unmarshal([]byte(row.Prompt), &sess.Prompt); err != nil {
		return conversation.Session{}, false, fmt.Errorf("decode session prompt: %w", err)
	}
	return sess, true, nil
}

// Save implements conversation.SessionStore with an optimistic version check.
func (s Sessions) Save(ctx context.Context, sess *conversation.Session) error {
	scratch, err := json.Marshal(sess.Scratch)
	if err != nil {
		return fmt.Errorf("encode session scratch: %w", err)
	}
	prompt := []byte("[]")
	if len(sess.Prompt) > 0 {
		if prompt, err = json.Marshal(sess.Prompt); err != nil {
			return fmt.Errorf("encode session prompt: %w", err)
		}
	}

	if sess.Version == 0 {
		_, err = s.db.ExecContext(ctx, s.rebind(`
			INSERT INTO conversation_sessions (channel, user_id, state, workflow, lang, authorized,
				controller_id, area_id, scratch, prompt, version, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, ?)`),
			string(sess.Key.Channel), sess.Key.UserID, string(sess.State), string(sess.Workflow),
			sess.Lang, sess.Authorized, sess.ControllerID, sess.AreaID,
			string(scratch), string(prompt), stamp(sess.UpdatedAt))
		if _, dup := uniqueViolation(err); dup {
			return conversation.ErrSessionConflict
		}
		if err != nil {
			return fmt.Errorf("insert session: %w", err)
		}
		sess.Version = 1
		return nil
	}

	res, err := s.db.ExecContext(ctx, s.rebind(`
		UPDATE conversation_sessions SET state = ?, workflow = ?, lang = ?, authorized = ?,
			controller_id = ?, area_id = ?, scratch = ?, prompt = ?, version = version + 1,
			updated_at = ?
		WHERE channel = ? AND user_id = ? AND version = ?`),
		string(sess.State), string(sess.Workflow), sess.Lang, sess.Authorized,
		sess.ControllerID, sess.AreaID, string(scratch), string(prompt), stamp(sess.UpdatedAt),
		string(sess.Key.Channel), sess.Key.UserID, sess.Version)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n == 0 {
		return conversation.ErrSessionConflict
	}
	sess.Version++
	return nil
}

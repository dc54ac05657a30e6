package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"storyforge/internal/generation"
	"storyforge/internal/scene"
	"storyforge/internal/services"
)

var _ generation.Recorder = (*Store)(nil)

// Attempt is one recorded transition.
type Attempt struct {
	ID         int64
	SessionID  string
	RequestID  string // correlation id of the recording invocation
	SceneID    int
	Kind       scene.AssetKind
	Status     scene.Status
	Error      string
	Bytes      int
	Elapsed    time.Duration
	RecordedAt time.Time
}

// Summary counts the final status of every pair in a session.
type Summary struct {
	SessionID string
	Pairs     int
	Succeeded int
	Failed    int
	InFlight  int
	Bytes     int64
	FirstSeen time.Time
	LastSeen  time.Time
}

// RecordTransition appends t to the ledger.
func (s *Store) RecordTransition(ctx context.Context, t generation.Transition) error {
	if strings.TrimSpace(t.SessionID) == "" {
		return errors.New("record transition: session id required")
	}
	at := t.At
	if at.IsZero() {
		at = time.Now()
	}
	var errText, requestID any
	if t.Err != nil {
		errText = t.Err.Error()
	}
	if id, ok := services.RequestIDFromContext(ctx); ok {
		requestID = id
	}
	err := s.execWithRetry(ctx,
		`INSERT INTO transitions (
            session_id, request_id, scene_id, kind, status, error_message, bytes, elapsed_ms, recorded_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.SessionID,
		requestID,
		t.SceneID,
		string(t.Kind),
		t.Status.String(),
		errText,
		t.Bytes,
		t.Elapsed.Milliseconds(),
		at.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("record transition: %w", err)
	}
	return nil
}

// timeLayout is fixed-width so recorded_at sorts lexically.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

const attemptColumns = "id, session_id, request_id, scene_id, kind, status, error_message, bytes, elapsed_ms, recorded_at"

// ListAttempts returns every transition of sessionID in insertion order.
func (s *Store) ListAttempts(ctx context.Context, sessionID string) ([]Attempt, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+attemptColumns+` FROM transitions WHERE session_id = ? ORDER BY id`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list attempts: %w", err)
	}
	defer rows.Close()

	var attempts []Attempt
	for rows.Next() {
		attempt, err := scanAttempt(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attempt: %w", err)
		}
		attempts = append(attempts, attempt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attempts: %w", err)
	}
	return attempts, nil
}

// Summary folds the session's transitions into final per-pair statuses.
// An unknown session yields a zero Summary and no error.
func (s *Store) Summary(ctx context.Context, sessionID string) (Summary, error) {
	attempts, err := s.ListAttempts(ctx, sessionID)
	if err != nil {
		return Summary{}, err
	}
	return summarize(sessionID, attempts), nil
}

func summarize(sessionID string, attempts []Attempt) Summary {
	summary := Summary{SessionID: sessionID}
	latest := make(map[scene.Key]Attempt)
	for _, attempt := range attempts {
		latest[scene.Key{SceneID: attempt.SceneID, Kind: attempt.Kind}] = attempt
		if summary.FirstSeen.IsZero() || attempt.RecordedAt.Before(summary.FirstSeen) {
			summary.FirstSeen = attempt.RecordedAt
		}
		if attempt.RecordedAt.After(summary.LastSeen) {
			summary.LastSeen = attempt.RecordedAt
		}
	}
	summary.Pairs = len(latest)
	for _, attempt := range latest {
		switch attempt.Status {
		case scene.Succeeded:
			summary.Succeeded++
			summary.Bytes += int64(attempt.Bytes)
		case scene.Failed:
			summary.Failed++
		case scene.InFlight:
			summary.InFlight++
		}
	}
	return summary
}

// RecentSessions lists the most recently active sessions, newest first.
func (s *Store) RecentSessions(ctx context.Context, limit int) ([]Summary, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT session_id, MAX(id) AS last_id FROM transitions
         GROUP BY session_id ORDER BY last_id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("recent sessions: %w", err)
	}
	var ids []string
	for rows.Next() {
		var (
			id     string
			lastID int64
		)
		if err := rows.Scan(&id, &lastID); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan session: %w", err)
		}
		ids = append(ids, id)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}

	summaries := make([]Summary, 0, len(ids))
	for _, id := range ids {
		summary, err := s.Summary(ctx, id)
		if err != nil {
			return nil, err
		}
		summaries = append(summaries, summary)
	}
	return summaries, nil
}

// Prune deletes transitions recorded before cutoff and reports how many rows
// were removed.
func (s *Store) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	var removed int64
	err := retryOnBusy(ctx, func() error {
		res, err := s.db.ExecContext(ctx, `DELETE FROM transitions WHERE recorded_at < ?`,
			cutoff.UTC().Format(timeLayout))
		if err != nil {
			return err
		}
		removed, err = res.RowsAffected()
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("prune transitions: %w", err)
	}
	return removed, nil
}

func scanAttempt(scanner interface{ Scan(dest ...any) error }) (Attempt, error) {
	var (
		attempt     Attempt
		kind        string
		statusStr   string
		errorText   sql.NullString
		requestID   sql.NullString
		elapsedMS   int64
		recordedRaw string
	)
	if err := scanner.Scan(
		&attempt.ID,
		&attempt.SessionID,
		&requestID,
		&attempt.SceneID,
		&kind,
		&statusStr,
		&errorText,
		&attempt.Bytes,
		&elapsedMS,
		&recordedRaw,
	); err != nil {
		return Attempt{}, err
	}
	status, err := scene.ParseStatus(statusStr)
	if err != nil {
		return Attempt{}, err
	}
	attempt.Kind = scene.AssetKind(kind)
	attempt.Status = status
	attempt.Error = errorText.String
	attempt.RequestID = requestID.String
	attempt.Elapsed = time.Duration(elapsedMS) * time.Millisecond
	if recorded, err := time.Parse(timeLayout, recordedRaw); err == nil {
		attempt.RecordedAt = recorded
	}
	return attempt, nil
}

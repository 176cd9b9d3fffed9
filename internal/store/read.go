package store

import (
	"context"
	"database/sql"
	"fmt"
)

// ReadSession returns one session. Returns sql.ErrNoRows if not found.
func (s *Store) ReadSession(ctx context.Context, token string) (Session, error) {
	var sess Session
	err := s.db.QueryRowContext(ctx, `
		SELECT token, graph, spec_hash, engine_version, ir_version
		FROM sessions
		WHERE token = ?
	`, token).Scan(&sess.Token, &sess.Graph, &sess.SpecHash, &sess.EngineVersion, &sess.IRVersion)
	if err != nil {
		return Session{}, err
	}
	return sess, nil
}

// ListSessions returns every session in the order they were written.
// Returns an empty slice (not nil) for an empty store.
func (s *Store) ListSessions(ctx context.Context) ([]Session, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT token, graph, spec_hash, engine_version, ir_version
		FROM sessions
		ORDER BY rowid ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		var sess Session
		if err := rows.Scan(&sess.Token, &sess.Graph, &sess.SpecHash, &sess.EngineVersion, &sess.IRVersion); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		sessions = append(sessions, sess)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return sessions, nil
}

// ReadEdits returns a session's edits ordered by seq.
func (s *Store) ReadEdits(ctx context.Context, session string) ([]Edit, error) {
	return s.queryEdits(ctx, `
		SELECT session, seq, op, args, status, link_id, error
		FROM edits
		WHERE session = ?
		ORDER BY seq ASC
	`, session)
}

// ReadRejectedEdits returns a session's rejected edits ordered by seq.
func (s *Store) ReadRejectedEdits(ctx context.Context, session string) ([]Edit, error) {
	return s.queryEdits(ctx, `
		SELECT session, seq, op, args, status, link_id, error
		FROM edits
		WHERE session = ? AND status = 'rejected'
		ORDER BY seq ASC
	`, session)
}

func (s *Store) queryEdits(ctx context.Context, query, session string) ([]Edit, error) {
	rows, err := s.db.QueryContext(ctx, query, session)
	if err != nil {
		return nil, fmt.Errorf("query edits: %w", err)
	}
	defer rows.Close()

	edits := []Edit{}
	for rows.Next() {
		var (
			e      Edit
			args   string
			status string
			linkID int64
		)
		if err := rows.Scan(&e.Session, &e.Seq, &e.Op, &args, &status, &linkID, &e.Error); err != nil {
			return nil, fmt.Errorf("scan edit: %w", err)
		}
		if e.Args, err = unmarshalArgs(args); err != nil {
			return nil, fmt.Errorf("edit seq %d: %w", e.Seq, err)
		}
		e.Status = EditStatus(status)
		e.LinkID = uint64(linkID)
		edits = append(edits, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate edits: %w", err)
	}
	return edits, nil
}

// ReadPasses returns a session's passes ordered by frame, each with its
// processor outcomes.
func (s *Store) ReadPasses(ctx context.Context, session string) ([]Pass, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, session, frame, seq, waves, complete, exhausted
		FROM passes
		WHERE session = ?
		ORDER BY frame ASC
	`, session)
	if err != nil {
		return nil, fmt.Errorf("query passes: %w", err)
	}

	passes := []Pass{}
	for rows.Next() {
		p, err := scanPass(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		passes = append(passes, p)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate passes: %w", err)
	}
	// Close before the per-pass queries: the store holds one connection.
	rows.Close()

	for i := range passes {
		if passes[i].Processors, err = s.readOutcomes(ctx, passes[i].ID); err != nil {
			return nil, err
		}
	}
	return passes, nil
}

// ReadPass returns one pass by frame. Returns sql.ErrNoRows if not found.
func (s *Store) ReadPass(ctx context.Context, session string, frame int64) (Pass, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, session, frame, seq, waves, complete, exhausted
		FROM passes
		WHERE session = ? AND frame = ?
	`, session, frame)
	p, err := scanPass(row)
	if err != nil {
		return Pass{}, err
	}
	if p.Processors, err = s.readOutcomes(ctx, p.ID); err != nil {
		return Pass{}, err
	}
	return p, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanPass(row scanner) (Pass, error) {
	var p Pass
	err := row.Scan(&p.ID, &p.Session, &p.Frame, &p.Seq, &p.Waves, &p.Complete, &p.Exhausted)
	if err == sql.ErrNoRows {
		return Pass{}, err
	}
	if err != nil {
		return Pass{}, fmt.Errorf("scan pass: %w", err)
	}
	return p, nil
}

func (s *Store) readOutcomes(ctx context.Context, passID int64) ([]ProcessorOutcome, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT processor, name, outcome, detail, digest
		FROM pass_processors
		WHERE pass_id = ?
		ORDER BY position ASC
	`, passID)
	if err != nil {
		return nil, fmt.Errorf("query pass processors: %w", err)
	}
	defer rows.Close()

	out := []ProcessorOutcome{}
	for rows.Next() {
		var o ProcessorOutcome
		if err := rows.Scan(&o.Processor, &o.Name, &o.Outcome, &o.Detail, &o.Digest); err != nil {
			return nil, fmt.Errorf("scan pass processor: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate pass processors: %w", err)
	}
	return out, nil
}

package store

import (
	"context"
	"fmt"
)

// WriteSession records a session. Writing the same token twice is a no-op.
func (s *Store) WriteSession(ctx context.Context, sess Session) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO sessions (token, graph, spec_hash, engine_version, ir_version)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(token) DO NOTHING
	`,
		sess.Token,
		sess.Graph,
		sess.SpecHash,
		sess.EngineVersion,
		sess.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("write session: %w", err)
	}
	return nil
}

// WriteEdit records an edit. Uses ON CONFLICT(session, seq) DO NOTHING, so
// rewriting the same edit is ignored. The session must exist.
func (s *Store) WriteEdit(ctx context.Context, e Edit) error {
	args, err := marshalArgs(e.Args)
	if err != nil {
		return fmt.Errorf("write edit: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO edits (session, seq, op, args, status, link_id, error)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session, seq) DO NOTHING
	`,
		e.Session,
		e.Seq,
		e.Op,
		args,
		string(e.Status),
		int64(e.LinkID),
		e.Error,
	)
	if err != nil {
		return fmt.Errorf("write edit: %w", err)
	}
	return nil
}

// WritePass records a pass and its processor outcomes in one transaction
// and returns the pass id. A second pass for the same (session, frame) is
// an error.
func (s *Store) WritePass(ctx context.Context, p Pass) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write pass: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	res, err := tx.ExecContext(ctx, `
		INSERT INTO passes (session, frame, seq, waves, complete, exhausted)
		VALUES (?, ?, ?, ?, ?, ?)
	`,
		p.Session,
		p.Frame,
		p.Seq,
		p.Waves,
		p.Complete,
		p.Exhausted,
	)
	if err != nil {
		return 0, fmt.Errorf("write pass frame %d: %w", p.Frame, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("write pass: last insert id: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO pass_processors (pass_id, position, processor, name, outcome, detail, digest)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("write pass: prepare: %w", err)
	}
	defer stmt.Close()

	for i, o := range p.Processors {
		if _, err := stmt.ExecContext(ctx, id, i, o.Processor, o.Name, o.Outcome, o.Detail, o.Digest); err != nil {
			return 0, fmt.Errorf("write pass: processor %s: %w", o.Name, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write pass: commit: %w", err)
	}
	return id, nil
}

package repository

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/podpairer/server/internal/model"
)

type ParticipantRepository interface {
	FindByID(ctx context.Context, id string) (*model.Participant, error)
	FindByTokenHash(ctx context.Context, tokenHash string) (*model.Participant, error)
	ListWaitingIDs(ctx context.Context) ([]string, error)
	CountWaiting(ctx context.Context) (int, error)
	SetQueueFlags(ctx context.Context, id string, flags model.QueueFlags) (*model.Participant, error)
	// SetWaitingMany toggles only the waiting flag.
	SetWaitingMany(ctx context.Context, ids []string, waiting bool) error
	MarkPodCompleted(ctx context.Context, ids []string, at time.Time) error
	// LockForUpdate row-locks the given participants until the surrounding
	// transaction ends. Only meaningful on a repository bound with WithTx.
	LockForUpdate(ctx context.Context, ids []string) ([]model.Participant, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) ParticipantRepository
}

type participantRepo struct {
	db sqlxDB
}

func NewParticipantRepository(db *sqlx.DB) ParticipantRepository {
	return &participantRepo{db: db}
}

func (r *participantRepo) WithTx(tx *sqlx.Tx) ParticipantRepository {
	return &participantRepo{db: tx}
}

func (r *participantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `SELECT * FROM participants WHERE id = $1`, id)
	return HandleNotFound(&p, err)
}

func (r *participantRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `SELECT * FROM participants WHERE token_hash = $1`, tokenHash)
	return HandleNotFound(&p, err)
}

func (r *participantRepo) ListWaitingIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM participants
		WHERE waiting
		ORDER BY updated_at, id
	`)
	return ids, err
}

func (r *participantRepo) CountWaiting(ctx context.Context) (int, error) {
	var count int
	err := r.db.GetContext(ctx, &count, `SELECT COUNT(*) FROM participants WHERE waiting`)
	return count, err
}

func (r *participantRepo) SetQueueFlags(ctx context.Context, id string, flags model.QueueFlags) (*model.Participant, error) {
	var p model.Participant
	err := r.db.GetContext(ctx, &p, `
		UPDATE participants SET
			waiting = $2,
			ready_for_rematch = $3,
			updated_at = NOW()
		WHERE id = $1
		RETURNING *
	`, id, flags.Waiting, flags.ReadyForRematch)
	return HandleNotFound(&p, err)
}

func (r *participantRepo) SetWaitingMany(ctx context.Context, ids []string, waiting bool) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET
			waiting = $2,
			updated_at = NOW()
		WHERE id = ANY($1::uuid[])
	`, pq.Array(ids), waiting)
	return err
}

func (r *participantRepo) MarkPodCompleted(ctx context.Context, ids []string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE participants SET
			waiting = FALSE,
			ready_for_rematch = FALSE,
			last_pod_at = $2,
			updated_at = NOW()
		WHERE id = ANY($1::uuid[])
	`, pq.Array(ids), at)
	return err
}

func (r *participantRepo) LockForUpdate(ctx context.Context, ids []string) ([]model.Participant, error) {
	var participants []model.Participant
	err := r.db.SelectContext(ctx, &participants, `
		SELECT * FROM participants
		WHERE id = ANY($1::uuid[])
		ORDER BY id
		FOR UPDATE
	`, pq.Array(ids))
	return participants, err
}

package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/podpairer/server/internal/model"
)

type PodRepository interface {
	// Create inserts a pending pod and its active members. A member that is
	// already active in another pod surfaces as a unique violation.
	Create(ctx context.Context, params model.CreatePodParams) (*model.Pod, error)
	FindByID(ctx context.Context, id string) (*model.Pod, error)
	// FindByIDForUpdate locks the pod row until the surrounding transaction ends.
	FindByIDForUpdate(ctx context.Context, id string) (*model.Pod, error)
	FindPendingByParticipant(ctx context.Context, participantID string) (*model.Pod, error)
	ListActiveParticipantIDs(ctx context.Context) ([]string, error)
	ListExpiredPendingIDs(ctx context.Context, now time.Time) ([]string, error)
	ConfirmMember(ctx context.Context, podID, participantID string) error
	RejectMember(ctx context.Context, podID, participantID string) error
	// Resolve moves a pending pod to status and deactivates its members.
	// It reports false when the pod was no longer pending.
	Resolve(ctx context.Context, podID string, status model.PodStatus, at time.Time) (bool, error)
	Delete(ctx context.Context, podID string) error
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) PodRepository
}

type podRepo struct {
	db sqlxDB
}

func NewPodRepository(db *sqlx.DB) PodRepository {
	return &podRepo{db: db}
}

func (r *podRepo) WithTx(tx *sqlx.Tx) PodRepository {
	return &podRepo{db: tx}
}

func (r *podRepo) Create(ctx context.Context, params model.CreatePodParams) (*model.Pod, error) {
	var pod model.Pod
	err := r.db.GetContext(ctx, &pod, `
		INSERT INTO pods (id, status, confirmation_deadline, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $4)
		RETURNING *
	`, params.ID, model.PodStatusPending, params.ConfirmationDeadline, params.CreatedAt)
	if err != nil {
		return nil, err
	}

	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pod_members (pod_id, position, participant_id)
		SELECT $1, t.ord - 1, t.pid
		FROM unnest($2::uuid[]) WITH ORDINALITY AS t(pid, ord)
	`, params.ID, pq.Array(params.MemberIDs))
	if err != nil {
		return nil, err
	}

	if err := r.loadMembers(ctx, &pod); err != nil {
		return nil, err
	}
	return &pod, nil
}

func (r *podRepo) FindByID(ctx context.Context, id string) (*model.Pod, error) {
	return r.find(ctx, `SELECT * FROM pods WHERE id = $1`, id)
}

func (r *podRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Pod, error) {
	return r.find(ctx, `SELECT * FROM pods WHERE id = $1 FOR UPDATE`, id)
}

func (r *podRepo) FindPendingByParticipant(ctx context.Context, participantID string) (*model.Pod, error) {
	return r.find(ctx, `
		SELECT p.* FROM pods p
		JOIN pod_members pm ON pm.pod_id = p.id
		WHERE pm.participant_id = $1 AND p.status = 'pending'
		ORDER BY p.created_at DESC
		LIMIT 1
	`, participantID)
}

func (r *podRepo) find(ctx context.Context, query string, args ...interface{}) (*model.Pod, error) {
	var pod model.Pod
	found, err := HandleNotFound(&pod, r.db.GetContext(ctx, &pod, query, args...))
	if err != nil || found == nil {
		return nil, err
	}
	if err := r.loadMembers(ctx, found); err != nil {
		return nil, err
	}
	return found, nil
}

func (r *podRepo) loadMembers(ctx context.Context, pod *model.Pod) error {
	var members []model.PodMember
	err := r.db.SelectContext(ctx, &members, `
		SELECT pm.*, pa.first_name, pa.last_name
		FROM pod_members pm
		JOIN participants pa ON pa.id = pm.participant_id
		WHERE pm.pod_id = $1
		ORDER BY pm.position
	`, pod.ID)
	if err != nil {
		return fmt.Errorf("load pod members: %w", err)
	}
	pod.Members = members
	return nil
}

func (r *podRepo) ListActiveParticipantIDs(ctx context.Context) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT participant_id FROM pod_members WHERE active
	`)
	return ids, err
}

func (r *podRepo) ListExpiredPendingIDs(ctx context.Context, now time.Time) ([]string, error) {
	var ids []string
	err := r.db.SelectContext(ctx, &ids, `
		SELECT id FROM pods
		WHERE status = 'pending' AND confirmation_deadline < $1
		ORDER BY confirmation_deadline
	`, now)
	return ids, err
}

func (r *podRepo) ConfirmMember(ctx context.Context, podID, participantID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pod_members SET confirmed = TRUE
		WHERE pod_id = $1 AND participant_id = $2
	`, podID, participantID)
	if err != nil {
		return err
	}
	return r.touch(ctx, podID)
}

func (r *podRepo) RejectMember(ctx context.Context, podID, participantID string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE pod_members SET rejected = TRUE
		WHERE pod_id = $1 AND participant_id = $2
	`, podID, participantID)
	return err
}

func (r *podRepo) Resolve(ctx context.Context, podID string, status model.PodStatus, at time.Time) (bool, error) {
	var completedAt *time.Time
	if status == model.PodStatusConfirmed {
		completedAt = &at
	}

	n, err := rowsAffected(r.db.ExecContext(ctx, `
		UPDATE pods SET
			status = $2,
			completed_at = $3,
			updated_at = $4
		WHERE id = $1 AND status = 'pending'
	`, podID, status, completedAt, at))
	if err != nil || n == 0 {
		return false, err
	}

	_, err = r.db.ExecContext(ctx, `
		UPDATE pod_members SET active = FALSE WHERE pod_id = $1
	`, podID)
	if err != nil {
		return false, err
	}
	return true, nil
}

func (r *podRepo) Delete(ctx context.Context, podID string) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM pods WHERE id = $1`, podID)
	return err
}

func (r *podRepo) touch(ctx context.Context, podID string) error {
	_, err := r.db.ExecContext(ctx, `UPDATE pods SET updated_at = NOW() WHERE id = $1`, podID)
	return err
}

package repository

import (
	"context"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/podpairer/server/internal/model"
)

type MatchRepository interface {
	Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error)
	// ListByParticipant returns the participant's matches, most recent first,
	// with member display names filled in.
	ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]model.Match, error)
	// FindMatchesAmong returns every match that involves any of participantIDs.
	FindMatchesAmong(ctx context.Context, participantIDs []string) ([]model.Match, error)
	// FindLastPodMembers maps each participant to the member list of their
	// most recent confirmed pod. Participants without one are absent.
	FindLastPodMembers(ctx context.Context, participantIDs []string) (map[string][]string, error)
	// WithTx returns a new repository that uses the given transaction
	WithTx(tx *sqlx.Tx) MatchRepository
}

type matchRepo struct {
	db sqlxDB
}

func NewMatchRepository(db *sqlx.DB) MatchRepository {
	return &matchRepo{db: db}
}

func (r *matchRepo) WithTx(tx *sqlx.Tx) MatchRepository {
	return &matchRepo{db: tx}
}

func (r *matchRepo) Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error) {
	var m model.Match
	err := r.db.GetContext(ctx, &m, `
		INSERT INTO matches (id, pod_id, member_ids, created_at)
		VALUES ($1, $2, $3::uuid[], $4)
		RETURNING *
	`, params.ID, params.PodID, pq.Array(params.MemberIDs), params.CreatedAt)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *matchRepo) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]model.Match, error) {
	var matches []model.Match
	err := r.db.SelectContext(ctx, &matches, `
		SELECT * FROM matches
		WHERE $1::uuid = ANY(member_ids)
		ORDER BY created_at DESC
		LIMIT $2 OFFSET $3
	`, participantID, limit, offset)
	if err != nil || len(matches) == 0 {
		return matches, err
	}

	var ids []string
	for _, m := range matches {
		ids = append(ids, m.MemberIDs...)
	}
	var players []model.MatchPlayer
	err = r.db.SelectContext(ctx, &players, `
		SELECT id, first_name, last_name FROM participants
		WHERE id = ANY($1::uuid[])
	`, pq.Array(ids))
	if err != nil {
		return nil, err
	}

	byID := make(map[string]model.MatchPlayer, len(players))
	for _, p := range players {
		byID[p.ID] = p
	}
	for i := range matches {
		for _, id := range matches[i].MemberIDs {
			if p, ok := byID[id]; ok {
				matches[i].Players = append(matches[i].Players, p)
			}
		}
	}
	return matches, nil
}

func (r *matchRepo) FindMatchesAmong(ctx context.Context, participantIDs []string) ([]model.Match, error) {
	var matches []model.Match
	err := r.db.SelectContext(ctx, &matches, `
		SELECT * FROM matches
		WHERE member_ids && $1::uuid[]
	`, pq.Array(participantIDs))
	return matches, err
}

func (r *matchRepo) FindLastPodMembers(ctx context.Context, participantIDs []string) (map[string][]string, error) {
	var rows []struct {
		ParticipantID string         `db:"participant_id"`
		MemberIDs     pq.StringArray `db:"member_ids"`
	}
	err := r.db.SelectContext(ctx, &rows, `
		SELECT DISTINCT ON (t.pid) t.pid AS participant_id, m.member_ids
		FROM matches m
		CROSS JOIN LATERAL unnest(m.member_ids) AS t(pid)
		WHERE t.pid = ANY($1::uuid[])
		ORDER BY t.pid, m.created_at DESC
	`, pq.Array(participantIDs))
	if err != nil {
		return nil, err
	}

	lastPods := make(map[string][]string, len(rows))
	for _, row := range rows {
		lastPods[row.ParticipantID] = row.MemberIDs
	}
	return lastPods, nil
}

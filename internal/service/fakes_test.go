package service

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/podpairer/server/internal/clock"
	"github.com/podpairer/server/internal/database"
	"github.com/podpairer/server/internal/model"
	"github.com/podpairer/server/internal/repository"
	"github.com/podpairer/server/internal/scoring"
)

// memStore is an in-memory stand-in for the Postgres schema. Writes made
// through a transaction-bound repo are journaled and undone if the
// transaction fails. Locks are not modelled; the onLock hooks let tests run
// a competing operation at the point a real row lock would be taken.
type memStore struct {
	mu           sync.Mutex
	order        []string
	participants map[string]*model.Participant
	pods         map[string]*model.Pod
	matches      []model.Match
	ratings      []model.Rating

	listWaitingErr error
	hideActive     bool
	onLockPod      func(podID string)
	onLockMembers  func(ids []string)

	undo     map[*sqlx.Tx][]func()
	failures map[string]error
}

func newMemStore() *memStore {
	return &memStore{
		participants: make(map[string]*model.Participant),
		pods:         make(map[string]*model.Pod),
		undo:         make(map[*sqlx.Tx][]func()),
		failures:     make(map[string]error),
	}
}

// failNext makes the next call to op ("matches.Create", ...) return err.
func (m *memStore) failNext(op string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.failures[op] = err
}

// injected consumes a failure set by failNext. Callers hold m.mu.
func (m *memStore) injected(op string) error {
	err := m.failures[op]
	delete(m.failures, op)
	return err
}

// journal records how to reverse a write made inside tx. Callers hold m.mu.
func (m *memStore) journal(tx *sqlx.Tx, undo func()) {
	if tx != nil {
		m.undo[tx] = append(m.undo[tx], undo)
	}
}

func (m *memStore) finish(tx *sqlx.Tx, commit bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	steps := m.undo[tx]
	delete(m.undo, tx)
	if commit {
		return
	}
	for i := len(steps) - 1; i >= 0; i-- {
		steps[i]()
	}
}

func (m *memStore) podCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.pods)
}

func (m *memStore) addParticipants(n int, waiting bool) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, n)
	for i := range ids {
		id := uuid.NewString()
		ids[i] = id
		m.order = append(m.order, id)
		m.participants[id] = &model.Participant{
			ID:        id,
			FirstName: "Player",
			LastName:  fmt.Sprintf("%d", len(m.order)),
			Email:     id + "@example.com",
			Waiting:   waiting,
		}
	}
	return ids
}

func (m *memStore) participant(id string) model.Participant {
	m.mu.Lock()
	defer m.mu.Unlock()
	return *m.participants[id]
}

func (m *memStore) pod(id string) *model.Pod {
	m.mu.Lock()
	defer m.mu.Unlock()
	if p, ok := m.pods[id]; ok {
		return clonePod(p)
	}
	return nil
}

func (m *memStore) matchCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matches)
}

func clonePod(p *model.Pod) *model.Pod {
	c := *p
	c.Members = append([]model.PodMember(nil), p.Members...)
	return &c
}

// fakeTransactor hands each transaction its own *sqlx.Tx identity so the
// repos can journal writes against it.
type fakeTransactor struct{ m *memStore }

func (t fakeTransactor) WithTx(ctx context.Context, fn database.TxFunc) (err error) {
	tx := new(sqlx.Tx)
	defer func() {
		if p := recover(); p != nil {
			t.m.finish(tx, false)
			panic(p)
		}
		t.m.finish(tx, err == nil)
	}()
	return fn(tx)
}

// participants

type fakeParticipantRepo struct {
	m  *memStore
	tx *sqlx.Tx
}

func (r *fakeParticipantRepo) WithTx(tx *sqlx.Tx) repository.ParticipantRepository {
	return &fakeParticipantRepo{m: r.m, tx: tx}
}

// save journals the current state of p. Callers hold m.mu.
func (r *fakeParticipantRepo) save(p *model.Participant) {
	prev := *p
	r.m.journal(r.tx, func() { *p = prev })
}

func (r *fakeParticipantRepo) FindByID(ctx context.Context, id string) (*model.Participant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if p, ok := r.m.participants[id]; ok {
		c := *p
		return &c, nil
	}
	return nil, nil
}

func (r *fakeParticipantRepo) FindByTokenHash(ctx context.Context, tokenHash string) (*model.Participant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.participants {
		if p.TokenHash != nil && *p.TokenHash == tokenHash {
			c := *p
			return &c, nil
		}
	}
	return nil, nil
}

func (r *fakeParticipantRepo) ListWaitingIDs(ctx context.Context) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.listWaitingErr != nil {
		return nil, r.m.listWaitingErr
	}
	var ids []string
	for _, id := range r.m.order {
		if r.m.participants[id].Waiting {
			ids = append(ids, id)
		}
	}
	return ids, nil
}

func (r *fakeParticipantRepo) CountWaiting(ctx context.Context) (int, error) {
	ids, err := r.ListWaitingIDs(ctx)
	return len(ids), err
}

func (r *fakeParticipantRepo) SetQueueFlags(ctx context.Context, id string, flags model.QueueFlags) (*model.Participant, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.participants[id]
	if !ok {
		return nil, nil
	}
	r.save(p)
	p.Waiting = flags.Waiting
	p.ReadyForRematch = flags.ReadyForRematch
	c := *p
	return &c, nil
}

func (r *fakeParticipantRepo) SetWaitingMany(ctx context.Context, ids []string, waiting bool) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("participants.SetWaitingMany"); err != nil {
		return err
	}
	for _, id := range ids {
		p := r.m.participants[id]
		r.save(p)
		p.Waiting = waiting
	}
	return nil
}

func (r *fakeParticipantRepo) MarkPodCompleted(ctx context.Context, ids []string, at time.Time) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("participants.MarkPodCompleted"); err != nil {
		return err
	}
	for _, id := range ids {
		p := r.m.participants[id]
		r.save(p)
		p.Waiting = false
		p.ReadyForRematch = false
		p.LastPodAt = &at
	}
	return nil
}

func (r *fakeParticipantRepo) LockForUpdate(ctx context.Context, ids []string) ([]model.Participant, error) {
	if hook := r.m.onLockMembers; hook != nil {
		r.m.onLockMembers = nil
		hook(ids)
	}
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.Participant
	for _, id := range ids {
		if p, ok := r.m.participants[id]; ok {
			out = append(out, *p)
		}
	}
	return out, nil
}

// pods

type fakePodRepo struct {
	m  *memStore
	tx *sqlx.Tx
}

func (r *fakePodRepo) WithTx(tx *sqlx.Tx) repository.PodRepository {
	return &fakePodRepo{m: r.m, tx: tx}
}

// save journals the stored pod id, or its absence. Callers hold m.mu.
func (r *fakePodRepo) save(id string) {
	prev, existed := r.m.pods[id]
	if existed {
		prev = clonePod(prev)
	}
	r.m.journal(r.tx, func() {
		if existed {
			r.m.pods[id] = prev
		} else {
			delete(r.m.pods, id)
		}
	})
}

func (r *fakePodRepo) Create(ctx context.Context, params model.CreatePodParams) (*model.Pod, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("pods.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.m.pods {
		for _, member := range existing.Members {
			for _, id := range params.MemberIDs {
				if member.Active && member.ParticipantID == id {
					return nil, &pq.Error{Code: "23505", Message: "duplicate key value violates unique constraint"}
				}
			}
		}
	}

	pod := &model.Pod{
		ID:                   params.ID,
		Status:               model.PodStatusPending,
		ConfirmationDeadline: params.ConfirmationDeadline,
		CreatedAt:            params.CreatedAt,
		UpdatedAt:            params.CreatedAt,
	}
	for i, id := range params.MemberIDs {
		p := r.m.participants[id]
		pod.Members = append(pod.Members, model.PodMember{
			PodID:         pod.ID,
			Position:      i,
			ParticipantID: id,
			Active:        true,
			FirstName:     p.FirstName,
			LastName:      p.LastName,
		})
	}
	r.save(pod.ID)
	r.m.pods[pod.ID] = pod
	return clonePod(pod), nil
}

func (r *fakePodRepo) FindByID(ctx context.Context, id string) (*model.Pod, error) {
	return r.m.pod(id), nil
}

func (r *fakePodRepo) FindByIDForUpdate(ctx context.Context, id string) (*model.Pod, error) {
	if hook := r.m.onLockPod; hook != nil {
		r.m.onLockPod = nil
		hook(id)
	}
	return r.m.pod(id), nil
}

func (r *fakePodRepo) FindPendingByParticipant(ctx context.Context, participantID string) (*model.Pod, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for _, p := range r.m.pods {
		if p.Status != model.PodStatusPending {
			continue
		}
		for _, member := range p.Members {
			if member.ParticipantID == participantID {
				return clonePod(p), nil
			}
		}
	}
	return nil, nil
}

func (r *fakePodRepo) ListActiveParticipantIDs(ctx context.Context) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if r.m.hideActive {
		return nil, nil
	}
	var ids []string
	for _, p := range r.m.pods {
		for _, member := range p.Members {
			if member.Active {
				ids = append(ids, member.ParticipantID)
			}
		}
	}
	return ids, nil
}

func (r *fakePodRepo) ListExpiredPendingIDs(ctx context.Context, now time.Time) ([]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var ids []string
	for _, p := range r.m.pods {
		if p.Status == model.PodStatusPending && p.ConfirmationDeadline.Before(now) {
			ids = append(ids, p.ID)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *fakePodRepo) ConfirmMember(ctx context.Context, podID, participantID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.save(podID)
	r.m.pods[podID].Member(participantID).Confirmed = true
	return nil
}

func (r *fakePodRepo) RejectMember(ctx context.Context, podID, participantID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.save(podID)
	r.m.pods[podID].Member(participantID).Rejected = true
	return nil
}

func (r *fakePodRepo) Resolve(ctx context.Context, podID string, status model.PodStatus, at time.Time) (bool, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	p, ok := r.m.pods[podID]
	if !ok || p.Status != model.PodStatusPending {
		return false, nil
	}
	r.save(podID)
	p.Status = status
	p.UpdatedAt = at
	if status == model.PodStatusConfirmed {
		p.CompletedAt = &at
	}
	for i := range p.Members {
		p.Members[i].Active = false
	}
	return true, nil
}

func (r *fakePodRepo) Delete(ctx context.Context, podID string) error {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	r.save(podID)
	delete(r.m.pods, podID)
	return nil
}

// matches

type fakeMatchRepo struct {
	m  *memStore
	tx *sqlx.Tx
}

func (r *fakeMatchRepo) WithTx(tx *sqlx.Tx) repository.MatchRepository {
	return &fakeMatchRepo{m: r.m, tx: tx}
}

func (r *fakeMatchRepo) Create(ctx context.Context, params model.CreateMatchParams) (*model.Match, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	if err := r.m.injected("matches.Create"); err != nil {
		return nil, err
	}
	for _, existing := range r.m.matches {
		if existing.PodID == params.PodID {
			return nil, &pq.Error{Code: "23505"}
		}
	}
	match := model.Match{
		ID:        params.ID,
		PodID:     params.PodID,
		MemberIDs: append([]string(nil), params.MemberIDs...),
		CreatedAt: params.CreatedAt,
	}
	r.m.matches = append(r.m.matches, match)
	r.m.journal(r.tx, func() {
		kept := r.m.matches[:0]
		for _, existing := range r.m.matches {
			if existing.ID != match.ID {
				kept = append(kept, existing)
			}
		}
		r.m.matches = kept
	})
	return &match, nil
}

func (r *fakeMatchRepo) ListByParticipant(ctx context.Context, participantID string, limit, offset int) ([]model.Match, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	var out []model.Match
	for i := len(r.m.matches) - 1; i >= 0; i-- {
		for _, id := range r.m.matches[i].MemberIDs {
			if id == participantID {
				out = append(out, r.m.matches[i])
				break
			}
		}
	}
	if offset >= len(out) {
		return nil, nil
	}
	out = out[offset:]
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *fakeMatchRepo) FindMatchesAmong(ctx context.Context, participantIDs []string) ([]model.Match, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]model.Match(nil), r.m.matches...), nil
}

func (r *fakeMatchRepo) FindLastPodMembers(ctx context.Context, participantIDs []string) (map[string][]string, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	last := make(map[string][]string)
	for _, match := range r.m.matches {
		for _, id := range match.MemberIDs {
			last[id] = match.MemberIDs
		}
	}
	return last, nil
}

// ratings

type fakeRatingRepo struct{ m *memStore }

func (r *fakeRatingRepo) Upsert(ctx context.Context, params model.UpsertRatingParams) (*model.Rating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	for i := range r.m.ratings {
		existing := &r.m.ratings[i]
		if existing.RaterID == params.RaterID && existing.RatedID == params.RatedID && existing.PodID == params.PodID {
			existing.Value = params.Value
			c := *existing
			return &c, nil
		}
	}
	rating := model.Rating{
		ID:      uuid.NewString(),
		RaterID: params.RaterID,
		RatedID: params.RatedID,
		PodID:   params.PodID,
		Value:   params.Value,
	}
	r.m.ratings = append(r.m.ratings, rating)
	return &rating, nil
}

func (r *fakeRatingRepo) FindLatestRatingsAmong(ctx context.Context, participantIDs []string) ([]model.Rating, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	return append([]model.Rating(nil), r.m.ratings...), nil
}

func (r *fakeRatingRepo) Summary(ctx context.Context, ratedID, viewerID string) (*model.RatingSummary, error) {
	r.m.mu.Lock()
	defer r.m.mu.Unlock()
	summary := &model.RatingSummary{}
	var sum int
	for _, rating := range r.m.ratings {
		if rating.RatedID != ratedID {
			continue
		}
		sum += rating.Value
		summary.TotalRatings++
		if rating.RaterID == viewerID {
			v := rating.Value
			summary.UserRating = &v
		}
	}
	if summary.TotalRatings > 0 {
		summary.AverageRating = float64(sum) / float64(summary.TotalRatings)
	}
	return summary, nil
}

// events and metrics

type recordingPublisher struct {
	mu     sync.Mutex
	events []publishedEvent
}

type publishedEvent struct {
	recipients []string
	event      model.PodEvent
}

func (p *recordingPublisher) PublishPodEvent(ctx context.Context, recipients []string, event model.PodEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, publishedEvent{recipients: recipients, event: event})
	return nil
}

func (p *recordingPublisher) ofType(t model.PodEventType) []publishedEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	var out []publishedEvent
	for _, e := range p.events {
		if e.event.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type countingRecorder struct {
	mu        sync.Mutex
	created   int
	resolved  map[model.PodStatus]int
	conflicts int
}

func (c *countingRecorder) RecordPodsCreated(n int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.created += n
}

func (c *countingRecorder) RecordPodResolved(status model.PodStatus) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.resolved == nil {
		c.resolved = make(map[model.PodStatus]int)
	}
	c.resolved[status]++
}

func (c *countingRecorder) RecordAssemblyConflict() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conflicts++
}

func (c *countingRecorder) RecordTick(string, time.Duration, error) {}

// countingRand wraps a seeded source and counts draws.
type countingRand struct {
	rng   *rand.Rand
	draws int
}

func (c *countingRand) Perm(n int) []int {
	c.draws++
	return c.rng.Perm(n)
}

var testNow = time.Date(2026, 10, 17, 12, 0, 0, 0, time.UTC)

type fixture struct {
	store     *memStore
	clock     *clock.Fake
	events    *recordingPublisher
	metrics   *countingRecorder
	rng       *countingRand
	assembler *PodAssembler
	pods      *PodService
	reaper    *TimeoutReaper
	queue     *QueueService
	ratings   *RatingService
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	store := newMemStore()
	participants := &fakeParticipantRepo{m: store}
	pods := &fakePodRepo{m: store}
	matches := &fakeMatchRepo{m: store}
	ratings := &fakeRatingRepo{m: store}

	f := &fixture{
		store:   store,
		clock:   clock.NewFake(testNow),
		events:  &recordingPublisher{},
		metrics: &countingRecorder{},
		rng:     &countingRand{rng: rand.New(rand.NewPCG(42, 7))},
	}
	f.assembler = NewPodAssembler(
		fakeTransactor{m: store}, participants, pods,
		NewHistorySource(matches, ratings),
		f.events, f.metrics, f.clock, f.rng,
		AssemblerConfig{
			ConfirmWindow: 2 * time.Minute,
			Trials:        10,
			Weights:       scoring.DefaultWeights(),
		},
	)
	f.pods = NewPodService(fakeTransactor{m: store}, participants, pods, matches, f.events, f.metrics, f.clock)
	f.reaper = NewTimeoutReaper(fakeTransactor{m: store}, participants, pods, f.events, f.metrics, f.clock)
	f.queue = NewQueueService(participants)
	f.ratings = NewRatingService(pods, ratings)
	return f
}

// assembleOne seeds four waiting participants and assembles them into a pod.
func (f *fixture) assembleOne(t *testing.T) *model.Pod {
	t.Helper()
	f.store.addParticipants(4, true)
	result, err := f.assembler.AssemblePods(context.Background())
	if err != nil || result.PodsCreated != 1 {
		t.Fatalf("assemble: result=%+v err=%v", result, err)
	}
	return result.Pods[0]
}

// confirmAll confirms pod for every member.
func (f *fixture) confirmAll(t *testing.T, pod *model.Pod) {
	t.Helper()
	for _, id := range pod.MemberIDs() {
		if _, err := f.pods.ConfirmPod(context.Background(), pod.ID, id); err != nil {
			t.Fatalf("confirm %s: %v", id, err)
		}
	}
}

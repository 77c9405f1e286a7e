package reminder

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailminder/internal/model"
)

var scanTime = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

type memStore struct {
	mu        sync.Mutex
	records   map[int64]*model.DueReminder
	queryErr  error
	staleIDs  map[int64]bool
	markErr   error
	onQuery   func()
	markCalls int
}

func newMemStore(records ...model.DueReminder) *memStore {
	s := &memStore{records: map[int64]*model.DueReminder{}, staleIDs: map[int64]bool{}}
	for i := range records {
		r := records[i]
		s.records[r.ID] = &r
	}
	return s
}

func (s *memStore) FindDueUndelivered(_ context.Context, now time.Time) ([]model.DueReminder, error) {
	if s.onQuery != nil {
		s.onQuery()
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.queryErr != nil {
		return nil, s.queryErr
	}
	var due []model.DueReminder
	for id := int64(1); id <= int64(len(s.records)); id++ {
		r, ok := s.records[id]
		if !ok || r.Delivered || r.ReminderAt == nil || r.ReminderAt.After(now) {
			continue
		}
		due = append(due, *r)
	}
	return due, nil
}

func (s *memStore) MarkDelivered(_ context.Context, d model.DueReminder, at time.Time) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markCalls++
	if s.markErr != nil {
		return false, s.markErr
	}
	if s.staleIDs[d.ID] {
		return false, nil
	}
	r := s.records[d.ID]
	if r.Delivered || !r.ReminderAt.Equal(*d.ReminderAt) {
		return false, nil
	}
	r.Delivered = true
	r.DeliveredAt = &at
	r.Version++
	return true, nil
}

// rearm 与 SetScheduleAndPriority 落库后的效果一致
func (s *memStore) rearm(id int64, when time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r := s.records[id]
	r.ReminderAt = &when
	r.Delivered = false
	r.DeliveredAt = nil
	r.Version++
}

type recordingNotifier struct {
	mu      sync.Mutex
	sent    []Message
	failFor map[string]int
}

func (n *recordingNotifier) Send(_ context.Context, to, subject, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.failFor[to] > 0 {
		n.failFor[to]--
		return errors.New("smtp: 451 temporary failure")
	}
	n.sent = append(n.sent, Message{To: to, Subject: subject, Body: body})
	return nil
}

type fakeGuard struct {
	held     map[string]bool
	released []string
}

func (g *fakeGuard) AcquireOnce(_ context.Context, scope, id string) bool {
	k := scope + ":" + id
	if g.held[k] {
		return false
	}
	g.held[k] = true
	return true
}

func (g *fakeGuard) Release(_ context.Context, scope, id string) {
	delete(g.held, scope+":"+id)
	g.released = append(g.released, id)
}

type fakeCounter struct{ counts map[string]int64 }

func (c *fakeCounter) IncrementAndGet(_ context.Context, key string) (int64, error) {
	c.counts[key]++
	return c.counts[key], nil
}

func (c *fakeCounter) Reset(_ context.Context, key string) error {
	delete(c.counts, key)
	return nil
}

func strPtr(s string) *string { return &s }

func at(t time.Time) *time.Time { return &t }

func due(id int64, email string, when *time.Time) model.DueReminder {
	return model.DueReminder{
		EmailMetadata: model.EmailMetadata{
			ID:         id,
			UserID:     10 + id,
			MessageID:  "msg-" + email,
			Subject:    strPtr("Invoice"),
			Sender:     strPtr("billing@example.com"),
			ReminderAt: when,
		},
		UserEmail: email,
	}
}

func TestScanDeliversExactlyTheDueSet(t *testing.T) {
	delivered := due(3, "c@example.com", at(scanTime.Add(-time.Hour)))
	delivered.Delivered = true

	store := newMemStore(
		due(1, "a@example.com", at(scanTime.Add(-time.Minute))),
		due(2, "b@example.com", at(scanTime.Add(time.Minute))),
		delivered,
		due(4, "d@example.com", nil),
		due(5, "e@example.com", at(scanTime)),
	)
	n := &recordingNotifier{}
	scanner := NewScanner(store, n, zap.NewNop())

	res, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 2, Sent: 2}, res)

	require.Len(t, n.sent, 2)
	assert.Equal(t, "a@example.com", n.sent[0].To)
	assert.Equal(t, "e@example.com", n.sent[1].To)
	assert.Equal(t, "MailMinder Reminder: Invoice", n.sent[0].Subject)
	assert.True(t, store.records[1].Delivered)
	assert.False(t, store.records[2].Delivered)
}

func TestScanDoesNotResendAfterSuccess(t *testing.T) {
	store := newMemStore(due(1, "a@example.com", at(scanTime.Add(-time.Minute))))
	n := &recordingNotifier{}
	scanner := NewScanner(store, n, zap.NewNop())

	_, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	res, err := scanner.ScanAndDeliver(context.Background(), scanTime.Add(time.Minute))
	require.NoError(t, err)

	assert.Equal(t, 0, res.Due)
	assert.Len(t, n.sent, 1)
}

func TestScanRetriesFailedSendNextTick(t *testing.T) {
	store := newMemStore(due(1, "a@example.com", at(scanTime.Add(-time.Minute))))
	n := &recordingNotifier{failFor: map[string]int{"a@example.com": 1}}
	guard := &fakeGuard{held: map[string]bool{}}
	counter := &fakeCounter{counts: map[string]int64{}}
	scanner := NewScanner(store, n, zap.NewNop(), WithSendGuard(guard), WithFailureCounter(counter))

	res, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 1, Failed: 1}, res)
	assert.False(t, store.records[1].Delivered)
	assert.Equal(t, 0, store.markCalls)
	assert.Len(t, guard.released, 1)
	assert.Len(t, counter.counts, 1)

	res, err = scanner.ScanAndDeliver(context.Background(), scanTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 1, Sent: 1}, res)
	assert.True(t, store.records[1].Delivered)
	assert.Empty(t, counter.counts, "success resets the failure counter")
}

func TestScanIsolatesFailures(t *testing.T) {
	store := newMemStore(
		due(1, "broken@example.com", at(scanTime.Add(-2*time.Minute))),
		due(2, "ok@example.com", at(scanTime.Add(-time.Minute))),
	)
	n := &recordingNotifier{failFor: map[string]int{"broken@example.com": 5}}
	scanner := NewScanner(store, n, zap.NewNop())

	res, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 2, Sent: 1, Failed: 1}, res)
	assert.False(t, store.records[1].Delivered)
	assert.True(t, store.records[2].Delivered)
}

func TestScanLeavesEditedRecordAlone(t *testing.T) {
	store := newMemStore(due(1, "a@example.com", at(scanTime.Add(-time.Minute))))
	store.staleIDs[1] = true
	scanner := NewScanner(store, &recordingNotifier{}, zap.NewNop())

	res, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 1, Stale: 1}, res)
	assert.False(t, store.records[1].Delivered)
}

func TestScanMarkFailureCountsAsFailed(t *testing.T) {
	store := newMemStore(due(1, "a@example.com", at(scanTime.Add(-time.Minute))))
	store.markErr = errors.New("connection refused")
	scanner := NewScanner(store, &recordingNotifier{}, zap.NewNop())

	res, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 1, Failed: 1}, res)
}

func TestScanSkipsRecordHeldByAnotherWorker(t *testing.T) {
	d := due(1, "a@example.com", at(scanTime.Add(-time.Minute)))
	store := newMemStore(d)
	guard := &fakeGuard{held: map[string]bool{guardScope + ":" + guardID(d): true}}
	n := &recordingNotifier{}
	scanner := NewScanner(store, n, zap.NewNop(), WithSendGuard(guard))

	res, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 1, Skipped: 1}, res)
	assert.Empty(t, n.sent)
}

func TestScanQueryFailure(t *testing.T) {
	store := newMemStore()
	store.queryErr = errors.New("db down")
	_, err := NewScanner(store, &recordingNotifier{}, zap.NewNop()).ScanAndDeliver(context.Background(), scanTime)
	require.Error(t, err)
}

func TestScanStopsWhenCancelled(t *testing.T) {
	store := newMemStore(
		due(1, "a@example.com", at(scanTime.Add(-time.Minute))),
		due(2, "b@example.com", at(scanTime.Add(-time.Minute))),
	)
	ctx, cancel := context.WithCancel(context.Background())
	store.onQuery = cancel
	n := &recordingNotifier{}

	res, err := NewScanner(store, n, zap.NewNop()).ScanAndDeliver(ctx, scanTime)
	require.NoError(t, err)
	assert.Equal(t, 2, res.Due)
	assert.Zero(t, res.Sent)
	assert.Empty(t, n.sent)
}

func TestGuardIDChangesWithReminderTime(t *testing.T) {
	a := due(1, "a@example.com", at(scanTime))
	b := due(1, "a@example.com", at(scanTime.Add(time.Hour)))
	assert.NotEqual(t, guardID(a), guardID(b))
}

func TestGuardIDChangesWithVersion(t *testing.T) {
	a := due(1, "a@example.com", at(scanTime))
	b := a
	b.Version = a.Version + 2
	assert.NotEqual(t, guardID(a), guardID(b))
}

func TestScanResendsReminderRearmedToSameTime(t *testing.T) {
	when := scanTime.Add(-time.Minute)
	d := due(1, "a@example.com", at(when))
	d.Version = 1
	store := newMemStore(d)
	guard := &fakeGuard{held: map[string]bool{}}
	n := &recordingNotifier{}
	scanner := NewScanner(store, n, zap.NewNop(), WithSendGuard(guard))

	res, err := scanner.ScanAndDeliver(context.Background(), scanTime)
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 1, Sent: 1}, res)
	assert.Empty(t, guard.released, "guard stays held after a successful send")

	store.rearm(1, when)

	res, err = scanner.ScanAndDeliver(context.Background(), scanTime.Add(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, ScanResult{Due: 1, Sent: 1}, res)
	assert.Len(t, n.sent, 2)
	assert.True(t, store.records[1].Delivered)
}

func TestSchedulerScansImmediately(t *testing.T) {
	store := newMemStore(due(1, "a@example.com", at(scanTime.Add(-time.Minute))))
	ctx, cancel := context.WithCancel(context.Background())
	calls := 0
	store.onQuery = func() {
		calls++
		cancel()
	}

	sched := NewScheduler(NewScanner(store, &recordingNotifier{}, zap.NewNop()), time.Hour, zap.NewNop())
	sched.now = func() time.Time { return scanTime }

	done := make(chan struct{})
	go func() {
		sched.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("scheduler did not stop after cancellation")
	}
	assert.Equal(t, 1, calls)
}

package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"mailminder/internal/apperr"
	"mailminder/internal/model"
	"mailminder/internal/provider"
	"mailminder/internal/service/metadata"
	"mailminder/pkg/outbox"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeMetadata struct {
	creds     provider.Credentials
	priority  metadata.PriorityInput
	schedule  metadata.ScheduleInput
	err       error
	listed    []model.EnrichedMessage
	upcoming  []model.EmailMetadata
	deletedID string
}

func (f *fakeMetadata) ListEnriched(_ context.Context, _ int64, creds provider.Credentials) ([]model.EnrichedMessage, error) {
	f.creds = creds
	return f.listed, f.err
}

func (f *fakeMetadata) SetPriority(_ context.Context, in metadata.PriorityInput) (*model.EmailMetadata, error) {
	f.priority = in
	if f.err != nil {
		return nil, f.err
	}
	p, _ := model.ParsePriority(in.Priority)
	return &model.EmailMetadata{ID: 1, UserID: in.UserID, MessageID: in.MessageID, Priority: &p}, nil
}

func (f *fakeMetadata) SetScheduleAndPriority(_ context.Context, in metadata.ScheduleInput) (*model.EmailMetadata, error) {
	f.schedule = in
	if f.err != nil {
		return nil, f.err
	}
	return &model.EmailMetadata{ID: 1, UserID: in.UserID, MessageID: in.MessageID}, nil
}

func (f *fakeMetadata) ListUpcoming(context.Context, int64) ([]model.EmailMetadata, error) {
	return f.upcoming, f.err
}

func (f *fakeMetadata) Get(_ context.Context, userID int64, messageID string) (*model.EmailMetadata, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.EmailMetadata{UserID: userID, MessageID: messageID}, nil
}

func (f *fakeMetadata) Delete(_ context.Context, _ int64, messageID string) error {
	f.deletedID = messageID
	return f.err
}

type fakeHistory struct{ limit int }

func (f *fakeHistory) ListByUser(_ context.Context, _ int64, limit int) ([]model.NotificationLog, error) {
	f.limit = limit
	return []model.NotificationLog{{EventID: "e1"}}, nil
}

type fakeReplayer struct{ err error }

func (f *fakeReplayer) ReplayEvent(context.Context, int64) error { return f.err }

func (f *fakeReplayer) ReplayFailedEvents(_ context.Context, limit int) (int, error) {
	return limit / 2, f.err
}

func newEngine(userID int64) *gin.Engine {
	r := gin.New()
	r.Use(func(c *gin.Context) {
		if userID > 0 {
			c.Set(ContextKeyUserID, userID)
		}
		c.Next()
	})
	return r
}

func do(r http.Handler, method, path, body string, headers map[string]string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func errorBody(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	var body map[string]string
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body["error"]
}

func TestStatusOf(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{apperr.NotFound("x"), http.StatusNotFound},
		{apperr.InvalidInput("x"), http.StatusBadRequest},
		{apperr.Unauthenticated("x"), http.StatusUnauthorized},
		{apperr.Unauthorized("x"), http.StatusForbidden},
		{apperr.Unavailable(errors.New("x"), "x"), http.StatusServiceUnavailable},
		{apperr.Internal(errors.New("x"), "x"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StatusOf(tt.err), tt.err.Error())
	}
}

func TestGetEmails(t *testing.T) {
	svc := &fakeMetadata{listed: []model.EnrichedMessage{{
		MessageSummary: model.MessageSummary{ID: "m1", Subject: "Hi"},
		Priority:       model.PriorityNone,
	}}}
	r := newEngine(7)
	r.GET("/emails", NewEmailHandler(svc, zap.NewNop()).GetEmails)

	w := do(r, http.MethodGet, "/emails", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = do(r, http.MethodGet, "/emails", "", map[string]string{HeaderProviderToken: "tok"})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "tok", svc.creds.AccessToken)

	var body struct {
		Emails []model.EnrichedMessage `json:"emails"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	require.Len(t, body.Emails, 1)
	assert.Equal(t, "m1", body.Emails[0].ID)

	svc.err = apperr.Unavailable(errors.New("dial tcp: refused"), "mail provider unavailable")
	w = do(r, http.MethodGet, "/emails", "", map[string]string{HeaderProviderToken: "tok"})
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Equal(t, "mail provider unavailable", errorBody(t, w))
}

func TestSetPriorityAndSchedule(t *testing.T) {
	svc := &fakeMetadata{}
	h := NewEmailHandler(svc, zap.NewNop())
	r := newEngine(7)
	r.POST("/emails/:messageId/priority", h.SetPriority)
	r.POST("/emails/:messageId/schedule", h.SetSchedule)

	w := do(r, http.MethodPost, "/emails/m1/priority", `{"priority":"high","subject":"S","sender":"a@b"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, int64(7), svc.priority.UserID)
	assert.Equal(t, "m1", svc.priority.MessageID)
	assert.Equal(t, "S", *svc.priority.Subject)

	w = do(r, http.MethodPost, "/emails/m1/schedule",
		`{"reminderDateTime":"2025-06-01T09:30","priority":"low","notes":"n","subject":"S","sender":"a@b"}`, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2025-06-01T09:30", svc.schedule.ReminderAt)
	assert.Equal(t, "n", *svc.schedule.Notes)

	w = do(r, http.MethodPost, "/emails/m1/schedule", `{not json`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	svc.err = apperr.InvalidInput("unknown priority")
	w = do(r, http.MethodPost, "/emails/m1/priority", `{"priority":"urgent"}`, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, "unknown priority", errorBody(t, w))
}

func TestInternalErrorsAreNotLeaked(t *testing.T) {
	svc := &fakeMetadata{err: apperr.Internal(errors.New("pq: password authentication failed"), "load metadata")}
	r := newEngine(7)
	r.GET("/emails/:messageId/metadata", NewEmailHandler(svc, zap.NewNop()).GetMetadata)

	w := do(r, http.MethodGet, "/emails/m1/metadata", "", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "internal server error", errorBody(t, w))
}

func TestDeleteMetadata(t *testing.T) {
	svc := &fakeMetadata{}
	r := newEngine(7)
	r.DELETE("/emails/:messageId/metadata", NewEmailHandler(svc, zap.NewNop()).DeleteMetadata)

	w := do(r, http.MethodDelete, "/emails/m9/metadata", "", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "m9", svc.deletedID)

	svc.err = apperr.NotFound("no metadata")
	w = do(r, http.MethodDelete, "/emails/m9/metadata", "", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestRequiresUser(t *testing.T) {
	r := newEngine(0)
	r.GET("/reminders/upcoming", NewReminderHandler(&fakeMetadata{}, &fakeHistory{}, zap.NewNop()).Upcoming)

	w := do(r, http.MethodGet, "/reminders/upcoming", "", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestReminderEndpoints(t *testing.T) {
	at := time.Date(2025, 6, 1, 9, 30, 0, 0, time.UTC)
	history := &fakeHistory{}
	h := NewReminderHandler(&fakeMetadata{upcoming: []model.EmailMetadata{{MessageID: "m1", ReminderAt: &at}}}, history, zap.NewNop())
	r := newEngine(7)
	r.GET("/reminders/upcoming", h.Upcoming)
	r.GET("/reminders/history", h.History)

	w := do(r, http.MethodGet, "/reminders/upcoming", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"message_id":"m1"`)

	do(r, http.MethodGet, "/reminders/history", "", nil)
	assert.Equal(t, defaultHistoryLimit, history.limit)
	do(r, http.MethodGet, "/reminders/history?limit=1000", "", nil)
	assert.Equal(t, maxHistoryLimit, history.limit)
	do(r, http.MethodGet, "/reminders/history?limit=abc", "", nil)
	assert.Equal(t, defaultHistoryLimit, history.limit)
}

func TestAdminReplay(t *testing.T) {
	replayer := &fakeReplayer{}
	h := NewAdminHandler(replayer, zap.NewNop())
	r := newEngine(1)
	r.POST("/admin/outbox/replay", h.ReplayOutboxEvent)
	r.POST("/admin/outbox/replay-failed", h.ReplayFailedEvents)

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPost, "/admin/outbox/replay", "", nil).Code)
	assert.Equal(t, http.StatusOK, do(r, http.MethodPost, "/admin/outbox/replay?id=3", "", nil).Code)

	w := do(r, http.MethodPost, "/admin/outbox/replay-failed?limit=10", "", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"success_count":5`)

	replayer.err = outbox.ErrEventNotFound
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/admin/outbox/replay?id=3", "", nil).Code)
}

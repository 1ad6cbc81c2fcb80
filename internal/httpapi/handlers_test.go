package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/DoyleJ11/facecap/internal/calibrate"
	"github.com/DoyleJ11/facecap/internal/config"
	"github.com/DoyleJ11/facecap/internal/engine"
	"github.com/DoyleJ11/facecap/internal/journal"
	"github.com/DoyleJ11/facecap/internal/metrics"
	"github.com/DoyleJ11/facecap/internal/session"
	"github.com/DoyleJ11/facecap/internal/store"
)

// fakeSession answers the inbox the way the session loop would, with a
// canned view and a canned command result.
type fakeSession struct {
	inbox chan session.Msg
	seen  chan session.Msg
	view  session.View
	err   error
}

func newFakeSession(t *testing.T) *fakeSession {
	t.Helper()
	f := &fakeSession{
		inbox: make(chan session.Msg),
		seen:  make(chan session.Msg, 16),
	}
	done := make(chan struct{})
	t.Cleanup(func() { close(done) })
	go func() {
		for {
			select {
			case <-done:
				return
			case m := <-f.inbox:
				f.seen <- m
				switch msg := m.(type) {
				case session.GetState:
					msg.Reply <- f.view
				case session.FromUser:
					msg.Reply <- f.err
				case session.SelectEndpoint:
					if strings.EqualFold(msg.Name, "cmu") {
						msg.Reply <- nil
					} else {
						msg.Reply <- config.ErrUnknownEndpoint
					}
				}
			}
		}
	}()
	return f
}

func (f *fakeSession) next(t *testing.T) session.Msg {
	t.Helper()
	select {
	case m := <-f.seen:
		return m
	case <-time.After(time.Second):
		t.Fatalf("timed out waiting for session message")
		return nil
	}
}

func newRouter(t *testing.T, f *fakeSession, board *Board) http.Handler {
	t.Helper()
	return newRouterWithJournal(t, f, board, journal.Nop{})
}

func newRouterWithJournal(t *testing.T, f *fakeSession, board *Board, jr journal.Journal) http.Handler {
	t.Helper()
	reg := prometheus.NewRegistry()
	metrics.New(reg).FramesSent.Inc()
	return SetupRoutes(f.inbox, board, jr, reg)
}

type failingJournal struct{ journal.Nop }

func (failingJournal) Recent(context.Context, int) ([]journal.Enrollment, error) {
	return nil, errors.New("connection refused")
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	h := newRouter(t, newFakeSession(t), NewBoard())
	assert.Equal(t, http.StatusOK, do(t, h, http.MethodGet, "/healthz", "").Code)
}

func TestCommands_PostToSession(t *testing.T) {
	cases := []struct {
		name   string
		method string
		path   string
		body   string
		want   engine.Command
	}{
		{"add person", http.MethodPost, "/people", `{"name":" ada "}`,
			engine.Command{Type: engine.CmdAddPerson, Name: "ada"}},
		{"training off", http.MethodPost, "/training", `{"enabled":false}`,
			engine.Command{Type: engine.CmdSetTraining}},
		{"target", http.MethodPost, "/target", `{"identity":2}`,
			engine.Command{Type: engine.CmdSetTarget, Identity: 2}},
		{"tsne", http.MethodPost, "/tsne", "",
			engine.Command{Type: engine.CmdRequestTSNE}},
		{"relabel", http.MethodPut, "/images/abc/identity", `{"identity":1}`,
			engine.Command{Type: engine.CmdUpdateIdentity, Hash: "abc", Identity: 1}},
		{"remove", http.MethodDelete, "/images/abc", "",
			engine.Command{Type: engine.CmdRemoveImage, Hash: "abc"}},
		{"register", http.MethodPost, "/register", "",
			engine.Command{Type: engine.CmdRegister}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			f := newFakeSession(t)
			h := newRouter(t, f, NewBoard())

			rec := do(t, h, tc.method, tc.path, tc.body)
			require.Equal(t, http.StatusNoContent, rec.Code, rec.Body.String())

			m, ok := f.next(t).(session.FromUser)
			require.True(t, ok)
			assert.Equal(t, tc.want, m.Cmd)
		})
	}
}

func TestSubmitInfo_RequiresEveryField(t *testing.T) {
	f := newFakeSession(t)
	h := newRouter(t, f, NewBoard())

	rec := do(t, h, http.MethodPost, "/info", `{"name":"Ada","mail":"ada@example.com","mobile":"","company":"CMU"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), ErrMissingFields.Error())
	select {
	case m := <-f.seen:
		t.Fatalf("expected nothing sent to the session, got %#v", m)
	case <-time.After(20 * time.Millisecond):
	}

	rec = do(t, h, http.MethodPost, "/info", `{"name":"Ada","mail":"ada@example.com","mobile":"555","company":"CMU"}`)
	assert.Equal(t, http.StatusNoContent, rec.Code)
	m := f.next(t).(session.FromUser)
	assert.Equal(t, engine.CmdSubmitInfo, m.Cmd.Type)
	assert.Equal(t, "555", m.Cmd.Info.Mobile)
}

func TestCommandErrors_MapToStatus(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{engine.ErrSubmitDisabled, http.StatusConflict},
		{engine.ErrNotStreaming, http.StatusConflict},
		{engine.ErrEmptyName, http.StatusBadRequest},
		{store.ErrIdentityOutOfRange, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.err.Error(), func(t *testing.T) {
			f := newFakeSession(t)
			f.err = tc.err
			h := newRouter(t, f, NewBoard())
			assert.Equal(t, tc.want, do(t, h, http.MethodPost, "/register", "").Code)
		})
	}
}

func TestBadJSON(t *testing.T) {
	h := newRouter(t, newFakeSession(t), NewBoard())
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/people", `{`).Code)
}

func TestSelectEndpoint(t *testing.T) {
	h := newRouter(t, newFakeSession(t), NewBoard())
	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/endpoint/CMU", "").Code)
	assert.Equal(t, http.StatusNotFound, do(t, h, http.MethodPost, "/endpoint/Mars", "").Code)
}

func TestSetVideo(t *testing.T) {
	f := newFakeSession(t)
	h := newRouter(t, f, NewBoard())

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodPost, "/video", `{"dir":"`+t.TempDir()+`"}`).Code)

	assert.Equal(t, http.StatusNoContent, do(t, h, http.MethodPost, "/video", `{"dir":""}`).Code)
	m, ok := f.next(t).(session.VideoReady)
	require.True(t, ok)
	assert.Nil(t, m.Source)
}

func TestGetState(t *testing.T) {
	f := newFakeSession(t)
	f.view = session.View{
		Endpoint: "CMU",
		Status:   engine.StatusStreaming,
		Phase:    engine.PhaseCollect,
		Credits:  1,
		Budget:   "open",
		Target:   store.Unknown,
		People:   []string{"ada"},
		Images: []store.Image{
			{Hash: "h1", Identity: 0},
			{Hash: "h2", Identity: store.Unknown},
		},
		Counts: map[int]int{0: 1, -1: 1},
		RTT:    &calibrate.Stats{MeanMs: 30, StdDevMs: 2, Samples: 5},
	}
	h := newRouter(t, f, NewBoard())

	rec := do(t, h, http.MethodGet, "/state", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got stateResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "synced_streaming", got.Status)
	assert.Equal(t, -1, got.Target)
	require.Len(t, got.Images, 2)
	assert.Equal(t, "ada", got.Images[0].Label)
	assert.Equal(t, "Unknown", got.Images[1].Label)
	require.NotNil(t, got.RTT)
	assert.Equal(t, 30.0, got.RTT.MeanMs)
	assert.Nil(t, got.Deadline)
}

func TestGetView_FollowsObservedEffects(t *testing.T) {
	b := NewBoard()
	h := newRouter(t, newFakeSession(t), b)

	v := session.View{Status: engine.StatusStreaming, People: []string{"ada"}}
	b.Observe(session.Event{Effect: engine.Effect{Type: engine.EffIdentities, Text: engine.NobodyDetected}, View: v})
	b.Observe(session.Event{Effect: engine.Effect{Type: engine.EffSubmit, Enabled: false}, View: v})
	b.Observe(session.Event{Effect: engine.Effect{Type: engine.EffNotice, Text: engine.UnableToDetect}, View: v})

	rec := do(t, h, http.MethodGet, "/view", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var got board
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Equal(t, "synced_streaming", got.Status)
	assert.Equal(t, []string{engine.NobodyDetected}, got.Identities)
	assert.False(t, got.SubmitEnabled)
	assert.Equal(t, engine.UnableToDetect, got.Notice)
	assert.Equal(t, 1, got.People)
}

func TestMetricsRoute(t *testing.T) {
	h := newRouter(t, newFakeSession(t), NewBoard())
	rec := do(t, h, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "facecap_frames_sent_total 1")
}

func TestListEnrollments(t *testing.T) {
	jr := &journal.Memory{}
	for i := int64(1); i <= 3; i++ {
		require.NoError(t, jr.Record(context.Background(), journal.Enrollment{
			CaptureID: i,
			Name:      fmt.Sprintf("user%d", i),
			Endpoint:  "CMU",
		}))
	}
	h := newRouterWithJournal(t, newFakeSession(t), NewBoard(), jr)

	rec := do(t, h, http.MethodGet, "/enrollments?limit=2", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var got []enrollmentResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	require.Len(t, got, 2)
	assert.Equal(t, int64(3), got[0].CaptureID)
	assert.Equal(t, "user2", got[1].Name)

	rec = do(t, h, http.MethodGet, "/enrollments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.Len(t, got, 3)

	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/enrollments?limit=0", "").Code)
	assert.Equal(t, http.StatusBadRequest, do(t, h, http.MethodGet, "/enrollments?limit=abc", "").Code)
}

func TestListEnrollments_EmptyAndFailing(t *testing.T) {
	h := newRouter(t, newFakeSession(t), NewBoard())
	rec := do(t, h, http.MethodGet, "/enrollments", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	h = newRouterWithJournal(t, newFakeSession(t), NewBoard(), failingJournal{})
	assert.Equal(t, http.StatusInternalServerError, do(t, h, http.MethodGet, "/enrollments", "").Code)
}

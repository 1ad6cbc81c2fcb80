package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/DoyleJ11/facecap/internal/config"
	"github.com/DoyleJ11/facecap/internal/engine"
	"github.com/DoyleJ11/facecap/internal/journal"
	"github.com/DoyleJ11/facecap/internal/session"
	"github.com/DoyleJ11/facecap/internal/store"
	"github.com/DoyleJ11/facecap/internal/stream"
	"github.com/DoyleJ11/facecap/internal/types"
)

const (
	replyTimeout = 2 * time.Second

	defaultEnrollments = 20
	maxEnrollments     = 100
)

var ErrMissingFields = errors.New("please fill in all the fields")

type stateResponse struct {
	Endpoint      string       `json:"endpoint"`
	Status        string       `json:"status"`
	Phase         string       `json:"phase"`
	Credits       int          `json:"credits"`
	Budget        string       `json:"budget"`
	CaptureID     int64        `json:"captureId"`
	Target        int          `json:"target"`
	VideoReady    bool         `json:"videoReady"`
	Warnings      int          `json:"warnings"`
	SubmitEnabled bool         `json:"submitEnabled"`
	Training      bool         `json:"training"`
	People        []string     `json:"people"`
	Images        []imageInfo  `json:"images"`
	Counts        map[int]int  `json:"counts"`
	RTT           *rttResponse `json:"rtt,omitempty"`
	FramesSent    int          `json:"framesSent"`
	Deadline      *time.Time   `json:"deadline,omitempty"`
}

type imageInfo struct {
	Hash     string `json:"hash"`
	Identity int    `json:"identity"`
	Label    string `json:"label"`
}

type rttResponse struct {
	MeanMs   float64 `json:"meanMs"`
	StdDevMs float64 `json:"stdDevMs"`
	Samples  int     `json:"samples"`
}

type enrollmentResponse struct {
	CaptureID int64     `json:"captureId"`
	Name      string    `json:"name"`
	Mail      string    `json:"mail"`
	Endpoint  string    `json:"endpoint"`
	CreatedAt time.Time `json:"createdAt"`
}

func toStateResponse(v session.View) stateResponse {
	resp := stateResponse{
		Endpoint:      v.Endpoint,
		Status:        string(v.Status),
		Phase:         string(v.Phase),
		Credits:       v.Credits,
		Budget:        v.Budget,
		CaptureID:     v.CaptureID,
		Target:        v.Target,
		VideoReady:    v.VideoReady,
		Warnings:      v.Warnings,
		SubmitEnabled: v.SubmitEnabled,
		Training:      v.Training,
		People:        v.People,
		Images:        make([]imageInfo, 0, len(v.Images)),
		Counts:        v.Counts,
		FramesSent:    v.FramesSent,
	}
	for _, img := range v.Images {
		label := "Unknown"
		if img.Identity >= 0 && img.Identity < len(v.People) {
			label = v.People[img.Identity]
		}
		resp.Images = append(resp.Images, imageInfo{Hash: img.Hash, Identity: img.Identity, Label: label})
	}
	if v.RTT != nil {
		resp.RTT = &rttResponse{MeanMs: v.RTT.MeanMs, StdDevMs: v.RTT.StdDevMs, Samples: v.RTT.Samples}
	}
	if !v.Deadline.IsZero() {
		d := v.Deadline
		resp.Deadline = &d
	}
	return resp
}

func Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func GetState(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
		defer cancel()

		reply := make(chan session.View, 1)
		if !post(ctx, inbox, session.GetState{Reply: reply}) {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		select {
		case v := <-reply:
			writeJSON(w, http.StatusOK, toStateResponse(v))
		case <-ctx.Done():
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		}
	}
}

func GetView(b *Board) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, b.snapshot())
	}
}

// ListEnrollments serves the newest journaled enrollments. ?limit caps
// the count, up to maxEnrollments.
func ListEnrollments(jr journal.Journal) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		limit := defaultEnrollments
		if raw := r.URL.Query().Get("limit"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 1 {
				http.Error(w, "limit must be a positive integer", http.StatusBadRequest)
				return
			}
			limit = min(n, maxEnrollments)
		}

		entries, err := jr.Recent(r.Context(), limit)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		resp := make([]enrollmentResponse, 0, len(entries))
		for _, e := range entries {
			resp = append(resp, enrollmentResponse{
				CaptureID: e.CaptureID,
				Name:      e.Name,
				Mail:      e.Mail,
				Endpoint:  e.Endpoint,
				CreatedAt: e.CreatedAt,
			})
		}
		writeJSON(w, http.StatusOK, resp)
	}
}

func SelectEndpoint(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		name := chi.URLParam(r, "name")
		ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
		defer cancel()

		reply := make(chan error, 1)
		if !post(ctx, inbox, session.SelectEndpoint{Name: name, Reply: reply}) {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		writeResult(ctx, w, reply)
	}
}

// SetVideo points the session at a directory of frames. An empty dir
// stops the video.
func SetVideo(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Dir string `json:"dir"`
		}
		if !decode(w, r, &body) {
			return
		}

		var src stream.Source
		if body.Dir != "" {
			dir, err := stream.OpenDir(body.Dir)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			src = dir
		}

		ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
		defer cancel()
		if !post(ctx, inbox, session.VideoReady{Source: src}) {
			http.Error(w, "session unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}

func AddPerson(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Name string `json:"name"`
		}
		if !decode(w, r, &body) {
			return
		}
		command(w, r, inbox, engine.Command{Type: engine.CmdAddPerson, Name: strings.TrimSpace(body.Name)})
	}
}

func SetTraining(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Enabled bool `json:"enabled"`
		}
		if !decode(w, r, &body) {
			return
		}
		command(w, r, inbox, engine.Command{Type: engine.CmdSetTraining, Enabled: body.Enabled})
	}
}

func SetTarget(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Identity int `json:"identity"`
		}
		if !decode(w, r, &body) {
			return
		}
		command(w, r, inbox, engine.Command{Type: engine.CmdSetTarget, Identity: body.Identity})
	}
}

func RequestTSNE(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command(w, r, inbox, engine.Command{Type: engine.CmdRequestTSNE})
	}
}

func UpdateIdentity(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Identity int `json:"identity"`
		}
		if !decode(w, r, &body) {
			return
		}
		command(w, r, inbox, engine.Command{
			Type:     engine.CmdUpdateIdentity,
			Hash:     chi.URLParam(r, "hash"),
			Identity: body.Identity,
		})
	}
}

func RemoveImage(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command(w, r, inbox, engine.Command{Type: engine.CmdRemoveImage, Hash: chi.URLParam(r, "hash")})
	}
}

func SubmitInfo(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var info types.Info
		if !decode(w, r, &info) {
			return
		}
		for _, f := range []string{info.Name, info.Mail, info.Mobile, info.Company} {
			if strings.TrimSpace(f) == "" {
				http.Error(w, ErrMissingFields.Error(), http.StatusBadRequest)
				return
			}
		}
		command(w, r, inbox, engine.Command{Type: engine.CmdSubmitInfo, Info: info})
	}
}

func Register(inbox chan<- session.Msg) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		command(w, r, inbox, engine.Command{Type: engine.CmdRegister})
	}
}

func command(w http.ResponseWriter, r *http.Request, inbox chan<- session.Msg, cmd engine.Command) {
	ctx, cancel := context.WithTimeout(r.Context(), replyTimeout)
	defer cancel()

	reply := make(chan error, 1)
	if !post(ctx, inbox, session.FromUser{Cmd: cmd, Reply: reply}) {
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
		return
	}
	writeResult(ctx, w, reply)
}

func writeResult(ctx context.Context, w http.ResponseWriter, reply <-chan error) {
	select {
	case err := <-reply:
		if err != nil {
			http.Error(w, err.Error(), statusFor(err))
			return
		}
		w.WriteHeader(http.StatusNoContent)
	case <-ctx.Done():
		http.Error(w, "session unavailable", http.StatusServiceUnavailable)
	}
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, config.ErrUnknownEndpoint):
		return http.StatusNotFound
	case errors.Is(err, engine.ErrSubmitDisabled), errors.Is(err, engine.ErrNotStreaming):
		return http.StatusConflict
	case errors.Is(err, engine.ErrEmptyName), errors.Is(err, store.ErrIdentityOutOfRange),
		errors.Is(err, engine.ErrUnsupportedCommand):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

func post(ctx context.Context, inbox chan<- session.Msg, m session.Msg) bool {
	select {
	case inbox <- m:
		return true
	case <-ctx.Done():
		return false
	}
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		http.Error(w, "invalid JSON body", http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

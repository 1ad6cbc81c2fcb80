package httpapi

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/DoyleJ11/facecap/internal/journal"
	"github.com/DoyleJ11/facecap/internal/session"
)

func SetupRoutes(inbox chan<- session.Msg, board *Board, jr journal.Journal, gatherer prometheus.Gatherer) http.Handler {
	r := chi.NewRouter()

	r.Get("/healthz", Healthz)
	r.Get("/state", GetState(inbox))
	r.Get("/view", GetView(board))
	r.Get("/enrollments", ListEnrollments(jr))
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	r.Post("/endpoint/{name}", SelectEndpoint(inbox))
	r.Post("/video", SetVideo(inbox))

	r.Post("/people", AddPerson(inbox))
	r.Post("/training", SetTraining(inbox))
	r.Post("/target", SetTarget(inbox))
	r.Post("/tsne", RequestTSNE(inbox))
	r.Put("/images/{hash}/identity", UpdateIdentity(inbox))
	r.Delete("/images/{hash}", RemoveImage(inbox))

	r.Post("/info", SubmitInfo(inbox))
	r.Post("/register", Register(inbox))
	return r
}

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/roach88/sqlscript/internal/agent"
	"github.com/roach88/sqlscript/internal/alert"
	"github.com/roach88/sqlscript/internal/sqlerr"
	"github.com/roach88/sqlscript/internal/urlqueue"
	"github.com/roach88/sqlscript/internal/value"
)

// Built-in routes, kept under "/-/" so they stay clear of configured calls.
const (
	HealthPath = "/-/health"
	AgentPath  = "/-/agents/{agent}"
	AlertPath  = "/-/alerts/{alert}"
	QueuePath  = "/-/queues/{queue}"
)

// WithAgents serves GET AgentPath: the agent's properties.
func WithAgents(agents ...*agent.Agent) Option {
	byName := make(map[string]*agent.Agent, len(agents))
	for _, a := range agents {
		byName[a.Name()] = a
	}
	return func(s *Server) {
		s.mounts = append(s.mounts, func(r chi.Router) {
			r.Get(AgentPath, func(w http.ResponseWriter, r *http.Request) {
				a, ok := byName[chi.URLParam(r, "agent")]
				if !ok {
					notFound(w, "agent", chi.URLParam(r, "agent"))
					return
				}
				out := value.NewObject()
				if err := a.Properties(r.Context(), out); err != nil {
					s.fail(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, out)
			})
		})
	}
}

// WithAlerts serves POST AlertPath: fires the alert with parameters taken
// from the request, and answers with the values its script selected.
func WithAlerts(alerts ...*alert.Alert) Option {
	byName := make(map[string]*alert.Alert, len(alerts))
	for _, a := range alerts {
		byName[a.Name()] = a
	}
	return func(s *Server) {
		s.mounts = append(s.mounts, func(r chi.Router) {
			r.Post(AlertPath, func(w http.ResponseWriter, r *http.Request) {
				a, ok := byName[chi.URLParam(r, "alert")]
				if !ok {
					notFound(w, "alert", chi.URLParam(r, "alert"))
					return
				}
				request, err := requestSource(r)
				if err != nil {
					s.fail(w, r, err)
					return
				}
				results, err := a.Fire(r.Context(), request)
				if err != nil {
					s.fail(w, r, err)
					return
				}
				writeJSON(w, http.StatusOK, results)
			})
		})
	}
}

// WithQueues serves POST QueuePath: enqueues the request described by the
// url, action and payload parameters.
func WithQueues(queues ...*urlqueue.Queue) Option {
	byName := make(map[string]*urlqueue.Queue, len(queues))
	for _, q := range queues {
		byName[q.Name()] = q
	}
	return func(s *Server) {
		s.mounts = append(s.mounts, func(r chi.Router) {
			r.Post(QueuePath, func(w http.ResponseWriter, r *http.Request) {
				q, ok := byName[chi.URLParam(r, "queue")]
				if !ok {
					notFound(w, "queue", chi.URLParam(r, "queue"))
					return
				}
				request, err := requestSource(r)
				if err != nil {
					s.fail(w, r, err)
					return
				}

				url, ok := request.Lookup("url")
				if !ok || url.String() == "" {
					s.fail(w, r, sqlerr.MissingParameter("url"))
					return
				}
				action := text(request, "action")
				payload := text(request, "payload")

				if err := q.Enqueue(r.Context(), url.String(), action, payload); err != nil {
					s.fail(w, r, err)
					return
				}
				writeJSON(w, http.StatusAccepted, map[string]int{"pending": q.Pending()})
			})
		})
	}
}

func text(src value.Source, key string) string {
	if v, ok := src.Lookup(key); ok {
		return v.String()
	}
	return ""
}

func notFound(w http.ResponseWriter, what, name string) {
	writeJSON(w, http.StatusNotFound, map[string]errorBody{"error": {
		Kind:    "NOT_FOUND",
		Message: what + " " + name + " not found",
	}})
}

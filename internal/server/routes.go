package server

import "net/http"

// setupRoutes configures the full HTTP surface described in §6: auth,
// queues, jobs, schedules, flows, webhooks, api keys, dashboard, the
// ambient health/version endpoints, and the websocket upgrade.
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()
	auth := s.authMiddleware

	mux.HandleFunc("/auth/register", s.app.AuthHandler.Register)
	mux.HandleFunc("/auth/login", s.app.AuthHandler.Login)
	mux.HandleFunc("/auth/logout", auth(s.app.AuthHandler.Logout))
	mux.HandleFunc("/auth/refresh-token", s.app.AuthHandler.RefreshToken)
	mux.HandleFunc("/auth/request-password-reset", s.app.AuthHandler.RequestPasswordReset)
	mux.HandleFunc("/auth/reset-password", s.app.AuthHandler.ResetPassword)
	mux.HandleFunc("/auth/me", auth(s.app.AuthHandler.Me))

	mux.HandleFunc("/queues", auth(s.app.QueueHandler.List))

	mux.HandleFunc("/jobs/", auth(s.handleJobRoutes))

	mux.HandleFunc("/flows", auth(s.handleFlowCollectionRoute))
	mux.HandleFunc("/flows/", s.handleFlowItemRoutes)

	mux.HandleFunc("/webhooks", auth(s.handleWebhookCollectionRoute))
	mux.HandleFunc("/webhooks/", auth(s.handleWebhookItemRoutes))

	mux.HandleFunc("/api-keys", auth(s.handleApiKeyCollectionRoute))
	mux.HandleFunc("/api-keys/", auth(s.handleApiKeyItemRoutes))

	mux.HandleFunc("/dashboard/stats", auth(s.app.DashboardHandler.Overview))
	mux.HandleFunc("/dashboard/scheduler-stats", auth(s.app.DashboardHandler.SchedulerStats))

	mux.HandleFunc("/healthz", s.app.SystemHandler.Healthz)
	mux.HandleFunc("/api/version", s.app.SystemHandler.Version)

	mux.HandleFunc("/ws", s.app.WebSocketHandler.Upgrade)

	if s.app.Config.Environment == "development" {
		mux.HandleFunc("/api/shutdown", s.ShutdownHandler)
	}

	return mux
}

// handleJobRoutes dispatches everything under /jobs/{queue}[/...], per
// §6's job and schedule rows. Path shapes:
//
//	/jobs/{queue}/submit
//	/jobs/{queue}           (list, GET only — "submit" is reserved above)
//	/jobs/{queue}/job/{id}
//	/jobs/{queue}/schedule
//	/jobs/{queue}/schedule/{id}
func (s *Server) handleJobRoutes(w http.ResponseWriter, r *http.Request) {
	queue, rest, ok := shiftPathSegment(r.URL.Path, "/jobs/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	switch {
	case rest == "/submit" && r.Method == http.MethodPost:
		s.app.JobHandler.Submit(w, r, queue)
	case rest == "" && r.Method == http.MethodGet:
		s.app.JobHandler.List(w, r, queue)
	case rest == "/schedule" && r.Method == http.MethodPost:
		s.app.ScheduleHandler.Create(w, r, queue)
	case rest == "/schedule" && r.Method == http.MethodGet:
		s.app.ScheduleHandler.List(w, r, queue)
	case len(rest) > len("/schedule/") && rest[:len("/schedule/")] == "/schedule/":
		key := rest[len("/schedule/"):]
		switch r.Method {
		case http.MethodGet:
			s.app.ScheduleHandler.Get(w, r, queue, key)
		case http.MethodDelete:
			s.app.ScheduleHandler.Remove(w, r, queue, key)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	case len(rest) > len("/job/") && rest[:len("/job/")] == "/job/":
		jobID := rest[len("/job/"):]
		switch r.Method {
		case http.MethodGet:
			s.app.JobHandler.Get(w, r, queue, jobID)
		case http.MethodDelete:
			s.app.JobHandler.Delete(w, r, queue, jobID)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
	default:
		http.NotFound(w, r)
	}
}

func (s *Server) handleFlowCollectionRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.FlowHandler.List, s.app.FlowHandler.Create)
}

// handleFlowItemRoutes serves the deliberately unauthenticated
// GET /flows/{id} alongside the authenticated
// PUT /flows/{id}/jobs/{jobId} and DELETE /flows/{id}.
func (s *Server) handleFlowItemRoutes(w http.ResponseWriter, r *http.Request) {
	flowID, rest, ok := shiftPathSegment(r.URL.Path, "/flows/")
	if !ok {
		http.NotFound(w, r)
		return
	}

	if rest == "" {
		switch r.Method {
		case http.MethodGet:
			s.app.FlowHandler.Get(w, r, flowID)
		case http.MethodDelete:
			s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
				s.app.FlowHandler.Delete(w, r, flowID)
			})(w, r)
		default:
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		}
		return
	}

	if len(rest) > len("/jobs/") && rest[:len("/jobs/")] == "/jobs/" && r.Method == http.MethodPut {
		jobID := rest[len("/jobs/"):]
		s.authMiddleware(func(w http.ResponseWriter, r *http.Request) {
			s.app.FlowHandler.ReportProgress(w, r, flowID, jobID)
		})(w, r)
		return
	}

	http.NotFound(w, r)
}

func (s *Server) handleWebhookCollectionRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.WebhookHandler.List, s.app.WebhookHandler.Create)
}

func (s *Server) handleWebhookItemRoutes(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/webhooks/")
	RouteResourceItem(w, r,
		func(w http.ResponseWriter, r *http.Request) { s.app.WebhookHandler.Get(w, r, id) },
		func(w http.ResponseWriter, r *http.Request) { s.app.WebhookHandler.Update(w, r, id) },
		func(w http.ResponseWriter, r *http.Request) { s.app.WebhookHandler.Delete(w, r, id) },
	)
}

func (s *Server) handleApiKeyCollectionRoute(w http.ResponseWriter, r *http.Request) {
	RouteResourceCollection(w, r, s.app.ApiKeyHandler.List, s.app.ApiKeyHandler.Create)
}

func (s *Server) handleApiKeyItemRoutes(w http.ResponseWriter, r *http.Request) {
	id := pathTail(r.URL.Path, "/api-keys/")
	RouteResourceItem(w, r,
		func(w http.ResponseWriter, r *http.Request) { s.app.ApiKeyHandler.Get(w, r, id) },
		func(w http.ResponseWriter, r *http.Request) { s.app.ApiKeyHandler.Update(w, r, id) },
		func(w http.ResponseWriter, r *http.Request) { s.app.ApiKeyHandler.Revoke(w, r, id) },
	)
}

// shiftPathSegment splits "{prefix}{segment}{rest}" into segment and
// rest (rest keeps its leading slash, or is "" if there is none), or
// returns ok=false if path does not start with prefix.
func shiftPathSegment(path, prefix string) (segment, rest string, ok bool) {
	if len(path) <= len(prefix) {
		return "", "", false
	}
	tail := path[len(prefix):]
	for i := 0; i < len(tail); i++ {
		if tail[i] == '/' {
			return tail[:i], tail[i:], true
		}
	}
	return tail, "", true
}

// pathTail returns everything after prefix.
func pathTail(path, prefix string) string {
	if len(path) <= len(prefix) {
		return ""
	}
	return path[len(prefix):]
}

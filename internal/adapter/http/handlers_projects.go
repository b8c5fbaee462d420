package adapthttp

import (
	"net/http"

	"ngoportal/internal/app"
	"ngoportal/internal/domain"
)

type projectRequest struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Cause       string `json:"cause"`
	GoalPaise   int64  `json:"goal_paise"`
	Active      bool   `json:"active"`
}

func (s *Server) handleProjects(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleListProjects(w, r)
	case http.MethodPost:
		s.requireRole(domain.RoleAdmin, s.handleCreateProject)(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleProjectByID(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r.URL.Path, "/projects/")
	if err != nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	switch r.Method {
	case http.MethodGet:
		s.handleGetProject(w, r, id)
	case http.MethodPut:
		s.requireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
			s.handleUpdateProject(w, r, id)
		})(w, r)
	case http.MethodDelete:
		s.requireRole(domain.RoleAdmin, func(w http.ResponseWriter, r *http.Request) {
			s.handleDeleteProject(w, r, id)
		})(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) handleListProjects(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") == ""
	items, err := s.projects.List(r.Context(), activeOnly, intQuery(r, "limit", 50))
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "projects": items})
}

func (s *Server) handleGetProject(w http.ResponseWriter, r *http.Request, id int64) {
	p, err := s.projects.Get(r.Context(), id)
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "project": p})
}

func (s *Server) handleCreateProject(w http.ResponseWriter, r *http.Request) {
	var req projectRequest
	if err := parseJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	p, err := s.projects.Create(r.Context(), app.ProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Cause:       req.Cause,
		GoalPaise:   req.GoalPaise,
		Active:      req.Active,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{"success": true, "project": p})
}

func (s *Server) handleUpdateProject(w http.ResponseWriter, r *http.Request, id int64) {
	var req projectRequest
	if err := parseJSON(r, &req); err != nil {
		s.writeDomainError(w, err)
		return
	}
	p, err := s.projects.Update(r.Context(), id, app.ProjectInput{
		Title:       req.Title,
		Description: req.Description,
		Cause:       req.Cause,
		GoalPaise:   req.GoalPaise,
		Active:      req.Active,
	})
	if err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "project": p})
}

func (s *Server) handleDeleteProject(w http.ResponseWriter, r *http.Request, id int64) {
	if err := s.projects.Delete(r.Context(), id); err != nil {
		s.writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true})
}

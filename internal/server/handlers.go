package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"strconv"

	"github.com/go-chi/chi/v5"

	"kblight/internal/core"
	"kblight/internal/effects"
	"kblight/internal/library"
	"kblight/internal/scheduler"
)

type jsonErr struct {
	Error string `json:"error"`
	Code  int    `json:"code"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, jsonErr{Error: msg, Code: status})
}

func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// statusFor maps domain errors onto HTTP status codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, library.ErrUnknownProfile),
		errors.Is(err, scheduler.ErrUnknownSchedule),
		errors.Is(err, os.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, effects.ErrWorkerStopped):
		return http.StatusServiceUnavailable
	}
	return http.StatusBadRequest
}

func (s *Server) fail(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("request failed")
	}
	writeError(w, status, err.Error())
}

func (s *Server) accepted(w http.ResponseWriter) {
	writeJSON(w, http.StatusAccepted, s.deps.Controller.State())
}

func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Controller.State())
}

func (s *Server) handleSetProfile(w http.ResponseWriter, r *http.Request) {
	var p core.Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile: "+err.Error())
		return
	}
	if err := s.deps.Controller.SetProfile(p); err != nil {
		s.fail(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.Refresh(); err != nil {
		s.fail(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	s.deps.Controller.Stop()
	s.accepted(w)
}

func (s *Server) handleListProfiles(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Profiles.All())
}

func (s *Server) handleGetProfile(w http.ResponseWriter, r *http.Request) {
	p, err := s.deps.Profiles.Get(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handlePutProfile(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "name")
	var p core.Profile
	if err := decodeJSON(r, &p); err != nil {
		writeError(w, http.StatusBadRequest, "invalid profile: "+err.Error())
		return
	}
	if err := s.deps.Profiles.Put(name, p); err != nil {
		s.fail(w, err)
		return
	}
	stored, err := s.deps.Profiles.Get(name)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Hub.Broadcast(NewMessage("profile_list", s.deps.Profiles.All()))
	writeJSON(w, http.StatusOK, stored)
}

func (s *Server) handleDeleteProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Profiles.Delete(chi.URLParam(r, "name")); err != nil {
		s.fail(w, err)
		return
	}
	s.Hub.Broadcast(NewMessage("profile_list", s.deps.Profiles.All()))
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleApplyProfile(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.ApplyProfile(chi.URLParam(r, "name")); err != nil {
		s.fail(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleRunCustom(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Controller.RunCustom(chi.URLParam(r, "name")); err != nil {
		s.fail(w, err)
		return
	}
	s.accepted(w)
}

func (s *Server) handleListScripts(w http.ResponseWriter, r *http.Request) {
	names, err := s.deps.Scripts.List()
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (s *Server) handleGetScript(w http.ResponseWriter, r *http.Request) {
	code, err := s.deps.Scripts.Code(chi.URLParam(r, "name"))
	if err != nil {
		s.fail(w, err)
		return
	}
	w.Header().Set("Content-Type", "text/x-lua; charset=utf-8")
	_, _ = io.WriteString(w, code)
}

func (s *Server) handlePutScript(w http.ResponseWriter, r *http.Request) {
	code, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := s.deps.Scripts.Save(chi.URLParam(r, "name"), string(code)); err != nil {
		s.fail(w, err)
		return
	}
	s.broadcastScripts()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDeleteScript(w http.ResponseWriter, r *http.Request) {
	if err := s.deps.Scripts.Delete(chi.URLParam(r, "name")); err != nil {
		s.fail(w, err)
		return
	}
	s.broadcastScripts()
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) broadcastScripts() {
	if names, err := s.deps.Scripts.List(); err == nil {
		s.Hub.Broadcast(NewMessage("script_list", names))
	}
}

type scheduleRequest struct {
	Spec    string `json:"spec"`
	Command string `json:"command"`
}

func (s *Server) handleListSchedules(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.deps.Schedules.All())
}

func (s *Server) handleAddSchedule(w http.ResponseWriter, r *http.Request) {
	var req scheduleRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule: "+err.Error())
		return
	}
	entry, err := s.deps.Schedules.Add(req.Spec, req.Command)
	if err != nil {
		s.fail(w, err)
		return
	}
	s.Hub.Broadcast(NewMessage("schedule_list", s.deps.Schedules.All()))
	writeJSON(w, http.StatusCreated, entry)
}

func (s *Server) handleDeleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.Atoi(chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid schedule id")
		return
	}
	if err := s.deps.Schedules.Remove(id); err != nil {
		s.fail(w, err)
		return
	}
	s.Hub.Broadcast(NewMessage("schedule_list", s.deps.Schedules.All()))
	w.WriteHeader(http.StatusNoContent)
}

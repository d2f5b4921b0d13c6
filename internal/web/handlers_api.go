package web

import (
	"encoding/json"
	"errors"
	"net/http"

	"zigbee-descriptors/internal/binder"
	"zigbee-descriptors/internal/descriptor"
	"zigbee-descriptors/internal/store"
)

// validationResponse is the body of a 422 response.
type validationResponse struct {
	Error    string          `json:"error"`
	Kind     string          `json:"kind"`
	Index    int             `json:"index"`
	Feature  descriptor.Kind `json:"feature,omitempty"`
	Endpoint string          `json:"endpoint,omitempty"`
}

// writeError maps binder and resolver errors to HTTP responses.
func (s *Server) writeError(w http.ResponseWriter, op string, err error) {
	var ve *descriptor.ValidationError
	switch {
	case errors.As(err, &ve):
		s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
			Error:    err.Error(),
			Kind:     descriptor.Reason(err),
			Index:    ve.Index,
			Feature:  ve.Kind,
			Endpoint: ve.Endpoint,
		})
	case errors.Is(err, binder.ErrInvalidIEEE):
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.Is(err, binder.ErrUnknownModel):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, store.ErrNotFound):
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "device not bound"})
	default:
		s.logger.Error(op, "err", err)
		s.writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
	}
}

func (s *Server) handleAPIListDefinitions(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.db.All())
}

func (s *Server) handleAPIGetDefinition(w http.ResponseWriter, r *http.Request) {
	def := s.db.Lookup(r.PathValue("model"))
	if def == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "definition not found"})
		return
	}
	s.writeJSON(w, http.StatusOK, def)
}

func (s *Server) handleAPIDefinitionProperties(w http.ResponseWriter, r *http.Request) {
	def := s.db.Lookup(r.PathValue("model"))
	if def == nil {
		s.writeJSON(w, http.StatusNotFound, map[string]string{"error": "definition not found"})
		return
	}
	props, err := s.db.Resolver().ResolveDescriptor(def.Descriptor())
	if err != nil {
		s.writeError(w, "resolve definition", err)
		return
	}
	s.writeJSON(w, http.StatusOK, props)
}

func (s *Server) handleAPIResolve(w http.ResponseWriter, r *http.Request) {
	var d descriptor.Descriptor
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&d); err != nil {
		// Attribute types, intervals and endpoint ids are checked while
		// decoding; those failures are validation errors too.
		if descriptor.Reason(err) != "other" {
			s.writeJSON(w, http.StatusUnprocessableEntity, validationResponse{
				Error: err.Error(),
				Kind:  descriptor.Reason(err),
				Index: -1,
			})
			return
		}
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	props, err := s.db.Resolver().ResolveDescriptor(d)
	if err != nil {
		s.writeError(w, "resolve", err)
		return
	}
	s.writeJSON(w, http.StatusOK, props)
}

func (s *Server) handleAPIListDevices(w http.ResponseWriter, r *http.Request) {
	sessions, err := s.binder.Sessions()
	if err != nil {
		s.writeError(w, "list sessions", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sessions)
}

func (s *Server) handleAPIGetDevice(w http.ResponseWriter, r *http.Request) {
	sess, err := s.binder.Session(r.PathValue("ieee"))
	if err != nil {
		s.writeError(w, "get session", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

type bindDeviceRequest struct {
	Model string `json:"model"`
}

func (s *Server) handleAPIBindDevice(w http.ResponseWriter, r *http.Request) {
	var req bindDeviceRequest
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Model == "" {
		s.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	sess, err := s.binder.Join(r.PathValue("ieee"), req.Model)
	if err != nil {
		s.writeError(w, "bind device", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleAPIRebindDevice(w http.ResponseWriter, r *http.Request) {
	sess, err := s.binder.Rebind(r.PathValue("ieee"))
	if err != nil {
		s.writeError(w, "rebind device", err)
		return
	}
	s.writeJSON(w, http.StatusOK, sess)
}

func (s *Server) handleAPIUnbindDevice(w http.ResponseWriter, r *http.Request) {
	ieee := r.PathValue("ieee")
	if err := s.binder.Leave(ieee); err != nil {
		s.writeError(w, "unbind device", err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleAPIListClusters(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.registry.All())
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("writeJSON encode failed", "err", err)
	}
}

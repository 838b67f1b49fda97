package api

import (
	"net/http"

	"github.com/safar/go-sales-ledger/internal/models"
	"github.com/safar/go-sales-ledger/internal/store"
)

type createUserRequest struct {
	Email string      `json:"email"`
	Name  string      `json:"name"`
	Role  models.Role `json:"role"`
}

func (s *Server) createUser(w http.ResponseWriter, r *http.Request) {
	var req createUserRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	user, err := store.CreateUser(r.Context(), s.db, req.Email, req.Name, req.Role)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusCreated, user)
}

func (s *Server) listUsers(w http.ResponseWriter, r *http.Request) {
	page, pageSize := pageParams(r)

	result, err := store.ListUsers(r.Context(), s.db, page, pageSize)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, result)
}

func (s *Server) getUser(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid user ID")
		return
	}

	user, err := store.GetUser(r.Context(), s.db, id)
	if err != nil {
		s.respondStoreError(w, r, err, http.StatusNotFound)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

package api

import (
	"net/http"

	"github.com/drsolutions/drsplan/pkg/models"
)

// handleListAccounts handles GET /accounts
func (s *Server) handleListAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.accounts.List(r.Context())
	if err != nil {
		s.writeServiceError(w, r, "load accounts", err)
		return
	}
	writeSuccess(w, "account list succeeded", accounts)
}

// handlePutAccount handles PUT /accounts with body {"account": {...}}
func (s *Server) handlePutAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Account *models.Account `json:"account"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.Account == nil {
		writeBadRequest(w, "account to create or update not received")
		return
	}

	account, err := s.accounts.Put(r.Context(), *req.Account)
	if err != nil {
		s.writeServiceError(w, r, "save account", err)
		return
	}
	writeSuccess(w, "new account added, AccountId: "+account.AccountID, account)
}

// handleDeleteAccount handles DELETE /accounts with body {"AccountId": "..."}
func (s *Server) handleDeleteAccount(w http.ResponseWriter, r *http.Request) {
	var req struct {
		AccountID string `json:"AccountId"`
	}
	if err := decodeBody(w, r, &req); err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if req.AccountID == "" {
		writeBadRequest(w, "error no AccountId specified in request")
		return
	}

	if err := s.accounts.Delete(r.Context(), req.AccountID); err != nil {
		s.writeServiceError(w, r, "delete account", err)
		return
	}
	writeSuccess(w, "deleted account with id:"+req.AccountID, nil)
}

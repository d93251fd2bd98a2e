package httpapi

import (
	"net/http"
	"time"

	"listing_orchestrator/internal/domain"
)

type accountResponse struct {
	ID              string               `json:"id"`
	ExternalLoginID string               `json:"external_login_id"`
	Status          domain.AccountStatus `json:"status"`
	HasCredential   bool                 `json:"has_credential"`
	HasSession      bool                 `json:"has_session"`
	LastCheckedAt   *time.Time           `json:"last_checked_at,omitempty"`
	InvalidReason   string               `json:"invalid_reason,omitempty"`
	DisplayName     string               `json:"display_name,omitempty"`
	ProfilePhotoRef string               `json:"profile_photo_ref,omitempty"`
	Stats           domain.AccountStats  `json:"stats"`
	ProjectTag      string               `json:"project_tag,omitempty"`
	CreatedAt       time.Time            `json:"created_at"`
}

// toAccountResponse never carries the credential secret or session handle.
func toAccountResponse(account *domain.Account) *accountResponse {
	return &accountResponse{
		ID:              account.ID,
		ExternalLoginID: account.ExternalLoginID,
		Status:          account.Status,
		HasCredential:   account.CredentialSecret != "",
		HasSession:      account.SessionHandle != "",
		LastCheckedAt:   account.LastCheckedAt,
		InvalidReason:   account.InvalidReason,
		DisplayName:     account.DisplayName,
		ProfilePhotoRef: account.ProfilePhotoRef,
		Stats:           account.Stats,
		ProjectTag:      account.ProjectTag,
		CreatedAt:       account.CreatedAt,
	}
}

func (s *Server) listAccounts(w http.ResponseWriter, r *http.Request) {
	accounts, err := s.svc.Accounts.ListAccounts(r.URL.Query().Get("project"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	resp := make([]*accountResponse, 0, len(accounts))
	for _, account := range accounts {
		resp = append(resp, toAccountResponse(account))
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) getAccount(w http.ResponseWriter, r *http.Request) {
	account, err := s.svc.Accounts.GetAccount(r.PathValue("id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

func (s *Server) importAccounts(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Text string `json:"text"`
	}
	if !decode(w, r, &payload) {
		return
	}
	res, err := s.svc.Accounts.ImportAccounts(payload.Text)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

func (s *Server) validateAccounts(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountIDs []string `json:"account_ids"`
	}
	if !decode(w, r, &payload) {
		return
	}
	checks, err := s.svc.Accounts.ValidateAccounts(r.Context(), payload.AccountIDs)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checks)
}

// checkHealth answers once every account was checked or the check was stopped.
func (s *Server) checkHealth(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountIDs []string `json:"account_ids"`
	}
	if r.ContentLength != 0 && !decode(w, r, &payload) {
		return
	}
	checks, err := s.svc.Accounts.CheckHealth(r.Context(), payload.AccountIDs)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, checks)
}

func (s *Server) stopHealthCheck(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"stopped": s.svc.Accounts.StopHealthCheck()})
}

func (s *Server) updateProject(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountIDs []string `json:"account_ids"`
		Project    string   `json:"project"`
	}
	if !decode(w, r, &payload) {
		return
	}
	n, err := s.svc.Accounts.UpdateProjectTag(payload.AccountIDs, payload.Project)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"updated": n})
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Accounts.DeleteAccount(r.PathValue("id")); err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) verifyAccount(w http.ResponseWriter, r *http.Request) {
	check, err := s.svc.Accounts.VerifyAccount(r.Context(), r.PathValue("id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, check)
}

func (s *Server) importCookies(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Cookies string `json:"cookies"`
	}
	if !decode(w, r, &payload) {
		return
	}
	check, err := s.svc.Accounts.ImportCookies(r.Context(), r.PathValue("id"), payload.Cookies)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, check)
}

func (s *Server) loginAccount(w http.ResponseWriter, r *http.Request) {
	check, err := s.svc.Accounts.Login(r.Context(), r.PathValue("id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, check)
}

func (s *Server) fetchProfile(w http.ResponseWriter, r *http.Request) {
	account, err := s.svc.Accounts.FetchProfile(r.Context(), r.PathValue("id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, toAccountResponse(account))
}

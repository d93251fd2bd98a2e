package httpapi

import (
	"net/http"
	"time"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/usecase"
)

func (s *Server) scanItems(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountIDs []string        `json:"account_ids"`
		Kind       domain.ScanKind `json:"kind"`
	}
	if !decode(w, r, &payload) {
		return
	}
	report, err := s.svc.Maintenance.ScanItems(r.Context(), payload.AccountIDs, payload.Kind)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if report.Items == nil {
		report.Items = []domain.ScannedItem{}
	}
	respondJSON(w, http.StatusOK, report)
}

type executeRequest struct {
	Items           []domain.ScannedItem `json:"items"`
	Action          domain.ItemAction    `json:"action"`
	DelayMinSeconds float64              `json:"delay_min_seconds"`
	DelayMaxSeconds float64              `json:"delay_max_seconds"`
}

// executeItems runs the batch within the request; StopExecution ends it early.
func (s *Server) executeItems(w http.ResponseWriter, r *http.Request) {
	var payload executeRequest
	if !decode(w, r, &payload) {
		return
	}
	delay := usecase.DelayRange{
		Min: time.Duration(payload.DelayMinSeconds * float64(time.Second)),
		Max: time.Duration(payload.DelayMaxSeconds * float64(time.Second)),
	}
	outcomes, err := s.svc.Maintenance.ExecuteItems(r.Context(), payload.Items, delay, payload.Action)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcomes)
}

func (s *Server) executeItem(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Item   domain.ScannedItem `json:"item"`
		Action domain.ItemAction  `json:"action"`
	}
	if !decode(w, r, &payload) {
		return
	}
	outcome, err := s.svc.Maintenance.ExecuteItem(r.Context(), payload.Item, payload.Action)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, outcome)
}

func (s *Server) stopExecution(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string]bool{"stopped": s.svc.Maintenance.StopExecution()})
}

func (s *Server) scrapeKeywords(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountID string   `json:"account_id"`
		Keywords  []string `json:"keywords"`
	}
	if !decode(w, r, &payload) {
		return
	}
	results, err := s.svc.Discovery.ScrapeKeywords(r.Context(), payload.AccountID, payload.Keywords)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, results)
}

func (s *Server) scrapeGroups(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		AccountID string `json:"account_id"`
	}
	if !decode(w, r, &payload) {
		return
	}
	groups, err := s.svc.Discovery.ScrapeGroups(r.Context(), payload.AccountID)
	if err != nil {
		respondFailure(w, err)
		return
	}
	if groups == nil {
		groups = []*domain.GroupTarget{}
	}
	respondJSON(w, http.StatusOK, groups)
}

func (s *Server) searchLocations(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	locations, err := s.svc.Discovery.SearchLocations(r.Context(), q.Get("account_id"), q.Get("q"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	if locations == nil {
		locations = []*domain.SavedLocation{}
	}
	respondJSON(w, http.StatusOK, locations)
}

func (s *Server) listGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.svc.Discovery.Groups(r.URL.Query().Get("account_id"))
	if err != nil {
		respondFailure(w, err)
		return
	}
	if groups == nil {
		groups = []*domain.GroupTarget{}
	}
	respondJSON(w, http.StatusOK, groups)
}

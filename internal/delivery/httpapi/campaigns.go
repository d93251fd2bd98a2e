package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"listing_orchestrator/internal/domain"
	"listing_orchestrator/internal/logger"
	"listing_orchestrator/internal/usecase"
)

// campaignRequest accepts delays in seconds on top of the stored shape.
type campaignRequest struct {
	domain.Campaign
	DelayMinSeconds *float64 `json:"delay_min_seconds,omitempty"`
	DelayMaxSeconds *float64 `json:"delay_max_seconds,omitempty"`
}

func (c *campaignRequest) campaign() *domain.Campaign {
	out := c.Campaign
	if c.DelayMinSeconds != nil {
		out.DelayMin = time.Duration(*c.DelayMinSeconds * float64(time.Second))
	}
	if c.DelayMaxSeconds != nil {
		out.DelayMax = time.Duration(*c.DelayMaxSeconds * float64(time.Second))
	}
	return &out
}

func (s *Server) startCampaign(w http.ResponseWriter, r *http.Request) {
	var payload campaignRequest
	if !decode(w, r, &payload) {
		return
	}
	s.launch(w, payload.campaign())
}

// launch starts c in the background and answers 202 with its id.
func (s *Server) launch(w http.ResponseWriter, c *domain.Campaign) {
	handle, err := s.svc.Orchestrator.StartCampaign(s.baseCtx, c)
	if err != nil {
		respondFailure(w, err)
		return
	}
	go func() {
		summary, err := handle.Wait()
		if err != nil {
			logger.Error("Campaign ended with error", zap.String("campaign_id", handle.ID), zap.Error(err))
			return
		}
		logger.Info("Campaign summary",
			zap.String("campaign_id", handle.ID),
			zap.Int("succeeded", summary.Succeeded),
			zap.Int("failed", summary.Failed),
			zap.Int("skipped", summary.Skipped),
			zap.Int("aborted", summary.Aborted))
	}()
	respondJSON(w, http.StatusAccepted, map[string]string{"campaign_id": handle.ID, "status": "started"})
}

func (s *Server) runStoredCampaign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	campaigns, err := s.svc.Records.Campaigns()
	if err != nil {
		respondFailure(w, err)
		return
	}
	for _, c := range campaigns {
		if c.ID == id {
			s.launch(w, c)
			return
		}
	}
	respondFailure(w, fmt.Errorf("campaign %s: %w", id, domain.ErrNotFound))
}

func (s *Server) estimateCampaign(w http.ResponseWriter, r *http.Request) {
	var payload campaignRequest
	if !decode(w, r, &payload) {
		return
	}
	estimate, err := s.svc.Orchestrator.EstimateCampaign(payload.campaign())
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"items":         estimate.Items,
		"accounts":      estimate.Accounts,
		"per_account":   estimate.PerAccount,
		"best_seconds":  estimate.Best.Seconds(),
		"worst_seconds": estimate.Worst.Seconds(),
		"summary":       estimate.String(),
	})
}

func (s *Server) runningCampaigns(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, map[string][]string{"running": s.svc.Orchestrator.RunningCampaigns()})
}

func (s *Server) stopCampaign(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if !s.svc.Orchestrator.StopCampaign(id) {
		respondError(w, http.StatusNotFound, fmt.Sprintf("campaign %s is not running", id))
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "stopping"})
}

func (s *Server) listCampaigns(w http.ResponseWriter, r *http.Request) {
	campaigns, err := s.svc.Records.Campaigns()
	if err != nil {
		respondFailure(w, err)
		return
	}
	if campaigns == nil {
		campaigns = []*domain.Campaign{}
	}
	respondJSON(w, http.StatusOK, campaigns)
}

func (s *Server) saveCampaign(w http.ResponseWriter, r *http.Request) {
	var payload campaignRequest
	if !decode(w, r, &payload) {
		return
	}
	saved, err := s.svc.Records.SaveCampaign(payload.campaign())
	if err != nil {
		respondFailure(w, err)
		return
	}
	s.syncSchedules()
	respondJSON(w, http.StatusCreated, saved)
}

func (s *Server) deleteCampaign(w http.ResponseWriter, r *http.Request) {
	if err := s.svc.Records.DeleteCampaign(r.PathValue("id")); err != nil {
		respondFailure(w, err)
		return
	}
	s.syncSchedules()
	respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
}

func (s *Server) syncSchedules() {
	if s.svc.Schedules == nil {
		return
	}
	if err := s.svc.Schedules.SyncCampaigns(); err != nil {
		logger.Error("Failed to refresh campaign schedules", zap.Error(err))
	}
}

func (s *Server) listHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.svc.Records.History(domain.HistoryLog(r.PathValue("log")))
	if err != nil {
		respondFailure(w, err)
		return
	}
	if entries == nil {
		entries = []*domain.HistoryEntry{}
	}
	respondJSON(w, http.StatusOK, entries)
}

// deleteHistory removes the listed entries, or the whole log with ?all=true.
func (s *Server) deleteHistory(w http.ResponseWriter, r *http.Request) {
	log := domain.HistoryLog(r.PathValue("log"))
	if r.URL.Query().Get("all") == "true" {
		if err := s.svc.Records.ClearHistory(log); err != nil {
			respondFailure(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "cleared"})
		return
	}
	var payload idsRequest
	if !decode(w, r, &payload) {
		return
	}
	n, err := s.svc.Records.DeleteHistory(log, payload.IDs)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) quotaUsage(w http.ResponseWriter, r *http.Request) {
	usage, err := s.svc.Quota.Usage()
	if err != nil {
		respondFailure(w, err)
		return
	}
	if usage == nil {
		usage = []domain.QuotaCounter{}
	}
	respondJSON(w, http.StatusOK, usage)
}

func (s *Server) quotaCheck(w http.ResponseWriter, r *http.Request) {
	var payload struct {
		Kind  string `json:"kind"`
		Count int    `json:"count"`
	}
	if !decode(w, r, &payload) {
		return
	}
	if payload.Kind == "" {
		payload.Kind = usecase.QuotaKindPosting
	}
	decision, err := s.svc.Quota.CheckTrialLimit(payload.Kind, payload.Count)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, decision)
}

// streamEvents relays progress events as server-sent events until the client leaves.
func (s *Server) streamEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, http.StatusInternalServerError, "streaming unsupported")
		return
	}
	events, cancel := s.svc.Orchestrator.Events().Subscribe()
	defer cancel()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	keepAlive := time.NewTicker(15 * time.Second)
	defer keepAlive.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.baseCtx.Done():
			return
		case <-keepAlive.C:
			fmt.Fprint(w, ": ping\n\n")
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				logger.Debug("Event stream closed", zap.Error(err))
				return
			}
			flusher.Flush()
		}
	}
}

func writeEvent(w io.Writer, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data)
	return err
}

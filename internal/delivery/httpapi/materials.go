package httpapi

import (
	"net/http"

	"listing_orchestrator/internal/domain"
)

func (s *Server) listMaterials(w http.ResponseWriter, r *http.Request) {
	materials, err := s.svc.Materials.ListMaterials()
	if err != nil {
		respondFailure(w, err)
		return
	}
	if materials == nil {
		materials = []*domain.Material{}
	}
	respondJSON(w, http.StatusOK, materials)
}

func (s *Server) addMaterials(w http.ResponseWriter, r *http.Request) {
	var materials []*domain.Material
	if !decode(w, r, &materials) {
		return
	}
	added, err := s.svc.Materials.AddMaterials(r.Context(), materials)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, added)
}

// deleteMaterials removes the listed ids, or everything with ?all=true.
func (s *Server) deleteMaterials(w http.ResponseWriter, r *http.Request) {
	if r.URL.Query().Get("all") == "true" {
		if err := s.svc.Materials.DeleteAllMaterials(); err != nil {
			respondFailure(w, err)
			return
		}
		respondJSON(w, http.StatusOK, map[string]string{"status": "deleted"})
		return
	}
	var payload idsRequest
	if !decode(w, r, &payload) {
		return
	}
	n, err := s.svc.Materials.DeleteMaterials(payload.IDs)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

func (s *Server) listLocations(w http.ResponseWriter, r *http.Request) {
	locations, err := s.svc.Materials.ListLocations()
	if err != nil {
		respondFailure(w, err)
		return
	}
	if locations == nil {
		locations = []*domain.SavedLocation{}
	}
	respondJSON(w, http.StatusOK, locations)
}

func (s *Server) saveLocations(w http.ResponseWriter, r *http.Request) {
	var locations []*domain.SavedLocation
	if !decode(w, r, &locations) {
		return
	}
	n, err := s.svc.Materials.SaveLocations(locations)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"saved": n})
}

func (s *Server) deleteLocations(w http.ResponseWriter, r *http.Request) {
	var payload idsRequest
	if !decode(w, r, &payload) {
		return
	}
	n, err := s.svc.Materials.DeleteLocations(payload.IDs)
	if err != nil {
		respondFailure(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"deleted": n})
}

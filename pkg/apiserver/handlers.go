package apiserver

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/leasestore/leasestore/pkg/backend"
	"github.com/leasestore/leasestore/pkg/db"
	"github.com/leasestore/leasestore/pkg/model"
	"github.com/leasestore/leasestore/pkg/version"
)

const maxHostnameLength = 253

type handler struct {
	backend backend.Backend
}

func newHandler(b backend.Backend) *handler {
	return &handler{
		backend: b,
	}
}

func (h *handler) root(w http.ResponseWriter, r *http.Request) {
	v := version.Get()
	if err := json.NewEncoder(w).Encode(v); err != nil {
		w.WriteHeader(500)
		_, _ = w.Write([]byte(`{"success": false}`))
	}
}

func (h *handler) listLeases(w http.ResponseWriter, r *http.Request) {
	leases := make([]model.LeaseResponse, 0)
	it := h.backend.ActiveLeases()
	for it.Next() {
		lease := it.Lease()
		leases = append(leases, leaseResponse(&lease))
	}
	if err := it.Err(); err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, leases, http.StatusOK)
}

func (h *handler) createLease(w http.ResponseWriter, r *http.Request) {
	var input model.LeaseRequest
	decoder := json.NewDecoder(r.Body)
	err := decoder.Decode(&input)
	if err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	if err := validateLease(&input); err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	var entry *db.LeaseEntry
	if input.IP != "" {
		entry, err = h.backend.Assign(input.Mac, input.IP, input.Hostname)
	} else {
		entry, err = h.backend.Allocate(input.Mac, "", input.Hostname)
	}
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, leaseResponse(entry), http.StatusCreated)
}

func (h *handler) getLease(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mac, err := model.NormalizeMAC(vars["mac"])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	entry, err := h.backend.Lookup(mac)
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, leaseResponse(entry), http.StatusOK)
}

func (h *handler) deleteLease(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mac, err := model.NormalizeMAC(vars["mac"])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	released, err := h.backend.Release(mac)
	if err != nil {
		handleError(w, err)
		return
	}
	if !released {
		writeError(w, http.StatusNotFound, db.ErrNotFound)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *handler) getLeaseHistory(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	mac, err := model.NormalizeMAC(vars["mac"])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	entries, err := h.backend.History(mac)
	if err != nil {
		handleError(w, err)
		return
	}

	history := make([]model.LeaseResponse, 0, len(entries))
	for i := range entries {
		history = append(history, leaseResponse(&entries[i]))
	}
	writeSuccess(w, history, http.StatusOK)
}

func (h *handler) getIP(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	ip, err := model.NormalizeIPv4(vars["ip"])
	if err != nil {
		writeError(w, http.StatusUnprocessableEntity, err)
		return
	}

	entry, err := h.backend.LookupByIP(ip)
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, leaseResponse(entry), http.StatusOK)
}

func (h *handler) getStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.backend.Stats()
	if err != nil {
		handleError(w, err)
		return
	}

	writeSuccess(w, stats, http.StatusOK)
}

func validateLease(input *model.LeaseRequest) error {
	mac, err := model.NormalizeMAC(input.Mac)
	if err != nil {
		return err
	}
	input.Mac = mac

	if input.IP != "" {
		ip, err := model.NormalizeIPv4(input.IP)
		if err != nil {
			return err
		}
		input.IP = ip
	}

	if len(input.Hostname) > maxHostnameLength {
		return fmt.Errorf("hostname must be at most %v characters", maxHostnameLength)
	}

	return nil
}

func leaseResponse(entry *db.LeaseEntry) model.LeaseResponse {
	return model.LeaseResponse{
		ID:        entry.ID,
		Mac:       entry.MacAddr,
		IP:        entry.IPAddr,
		Hostname:  entry.Hostname,
		Deleted:   entry.Deleted,
		ExpiresAt: entry.ExpiresAt,
		CreatedAt: entry.CreatedAt,
	}
}

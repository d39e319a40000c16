package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/lanwake/internal/address"
	"github.com/nerrad567/lanwake/internal/audit"
	"github.com/nerrad567/lanwake/internal/device"
	"github.com/nerrad567/lanwake/internal/monitor"
	"github.com/nerrad567/lanwake/internal/wol"
)

// DeviceView is a device together with its current status.
type DeviceView struct {
	device.Device
	Status monitor.Status `json:"status"`
}

// deviceRequest is the body of POST and PATCH /devices. Absent fields are
// left unchanged on PATCH; label and hardware_address are required on POST.
type deviceRequest struct {
	Label           *string   `json:"label"`
	HardwareAddress *string   `json:"hardware_address"`
	Endpoints       *[]string `json:"endpoints"`
	WakeTargets     *[]string `json:"wake_targets"`
}

// changes parses the request into a device.Changes.
func (req deviceRequest) changes() (device.Changes, error) {
	var c device.Changes
	c.Label = req.Label

	if req.HardwareAddress != nil {
		hw, err := address.ParseHardwareAddress(*req.HardwareAddress)
		if err != nil {
			return c, err
		}
		c.HardwareAddress = &hw
	}

	if req.Endpoints != nil {
		endpoints := make([]address.HostEndpoint, 0, len(*req.Endpoints))
		for _, text := range *req.Endpoints {
			ep, err := address.ParseEndpoint(text, 0)
			if err != nil {
				return c, err
			}
			endpoints = append(endpoints, ep)
		}
		c.Endpoints = &endpoints
	}

	if req.WakeTargets != nil {
		targets := make([]wol.Destination, 0, len(*req.WakeTargets))
		for _, text := range *req.WakeTargets {
			dest, err := wol.ParseDestination(text)
			if err != nil {
				return c, fmt.Errorf("%w: %w", device.ErrInvalidDevice, err)
			}
			targets = append(targets, dest)
		}
		c.WakeTargets = &targets
	}

	return c, nil
}

// fields lists the fields present in the request.
func (req deviceRequest) fields() map[string]any {
	var names []string
	if req.Label != nil {
		names = append(names, "label")
	}
	if req.HardwareAddress != nil {
		names = append(names, "hardware_address")
	}
	if req.Endpoints != nil {
		names = append(names, "endpoints")
	}
	if req.WakeTargets != nil {
		names = append(names, "wake_targets")
	}
	return map[string]any{"fields": names}
}

type moveRequest struct {
	Index *int `json:"index"`
}

func (s *Server) view(d device.Device) DeviceView {
	return DeviceView{Device: d, Status: s.monitor.Status(d.ID)}
}

// handleListDevices returns every device in display order with its status.
func (s *Server) handleListDevices(w http.ResponseWriter, _ *http.Request) {
	snap := s.registry.List()
	statuses := s.monitor.Statuses()

	views := make([]DeviceView, len(snap.Devices))
	for i, d := range snap.Devices {
		st, ok := statuses[d.ID]
		if !ok {
			st = monitor.StatusUnknown
		}
		views[i] = DeviceView{Device: d, Status: st}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"version": snap.Version,
		"devices": views,
		"count":   len(views),
	})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, err := s.registry.Get(chi.URLParam(r, "id"))
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(d))
}

// handleCreateDevice registers a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Label == nil || req.HardwareAddress == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "label and hardware_address are required")
		return
	}

	c, err := req.changes()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	var endpoints []address.HostEndpoint
	if c.Endpoints != nil {
		endpoints = *c.Endpoints
	}
	var targets []wol.Destination
	if c.WakeTargets != nil {
		targets = *c.WakeTargets
	}

	id, err := s.registry.Add(r.Context(), *c.Label, *c.HardwareAddress, endpoints, targets)
	if err != nil {
		if id != "" {
			s.logger.Error("device registered but not saved", "device_id", id, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	d, err := s.registry.Get(id)
	if err != nil {
		// Removed concurrently between Add and Get.
		writeDomainError(w, err)
		return
	}
	s.auditLog(r, audit.ActionCreate, id, map[string]any{
		"label":            d.Label,
		"hardware_address": d.HardwareAddress.String(),
	})
	w.Header().Set("Location", "/api/v1/devices/"+id)
	writeJSON(w, http.StatusCreated, s.view(d))
}

// handleUpdateDevice applies a partial update.
func (s *Server) handleUpdateDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req deviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	c, err := req.changes()
	if err != nil {
		writeDomainError(w, err)
		return
	}

	if !c.IsEmpty() {
		if err := s.registry.Update(r.Context(), id, c); err != nil {
			writeDomainError(w, err)
			return
		}
		s.auditLog(r, audit.ActionUpdate, id, req.fields())
	}

	d, err := s.registry.Get(id)
	if err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, s.view(d))
}

// handleDeleteDevice removes a device and stops monitoring it.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.Remove(r.Context(), id); err != nil {
		writeDomainError(w, err)
		return
	}
	s.auditLog(r, audit.ActionDelete, id, nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleMoveDevice moves a device to a new display position.
func (s *Server) handleMoveDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req moveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Index == nil {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "index is required")
		return
	}

	if err := s.registry.Reorder(r.Context(), id, *req.Index); err != nil {
		writeDomainError(w, err)
		return
	}
	s.auditLog(r, audit.ActionMove, id, map[string]any{"index": *req.Index})

	snap := s.registry.List()
	writeJSON(w, http.StatusOK, map[string]any{
		"version": snap.Version,
		"order":   snap.Keys(),
	})
}

// handleWakeDevice sends the magic packet for a device.
func (s *Server) handleWakeDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	err := s.waker.Wake(r.Context(), id)
	if err != nil {
		if !errors.Is(err, device.ErrDeviceNotFound) {
			s.logger.Warn("wake request failed", "device_id", id, "error", err)
		}
		writeDomainError(w, err)
		return
	}

	s.logger.Info("wake requested",
		"device_id", id,
		"requested_by", subjectFromContext(r.Context()),
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"device_id": id,
		"result":    "sent",
	})
}

// handleGetDeviceStatus returns one device's current status.
func (s *Server) handleGetDeviceStatus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if _, err := s.registry.Get(id); err != nil {
		writeDomainError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"device_id": id,
		"status":    s.monitor.Status(id),
	})
}

// handleListStatuses returns every monitored device's status.
func (s *Server) handleListStatuses(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"statuses": s.monitor.Statuses(),
	})
}

package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/tsinghua-fib-lab/green-corridor/entity"
)

// envelope 统一响应结构
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
	Path    string `json:"path,omitempty"`
}

type stateRequest struct {
	State entity.LightState `json:"state"`
}

type locationRequest struct {
	Latitude  *float64   `json:"latitude"`
	Longitude *float64   `json:"longitude"`
	Heading   *float64   `json:"heading"`
	Speed     *float64   `json:"speed"`
	Timestamp *time.Time `json:"timestamp"`
}

type overrideRequest struct {
	SignalID  string   `json:"signalId"`
	VehicleID string   `json:"vehicleId"`
	Duration  *float64 `json:"duration"` // 秒
}

func (s *Server) health(w http.ResponseWriter, r *http.Request) {
	now := s.clock.Now()
	mode := "production"
	if s.mockMode {
		mode = "mock"
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":    "OK",
		"service":   ServiceName,
		"mode":      mode,
		"timestamp": now.UTC().Format(time.RFC3339),
		"uptime":    now.Sub(s.startedAt).Seconds(),
	})
}

func (s *Server) registerSignal(w http.ResponseWriter, r *http.Request) {
	var req entity.SignalRequest
	if !decode(w, r, &req) {
		return
	}
	signal, err := s.signals.Register(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Signal initialized successfully", Data: map[string]any{"signal": signal}})
}

func (s *Server) listSignals(w http.ResponseWriter, r *http.Request) {
	signals := s.signals.Signals()
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"count": len(signals), "signals": signals}})
}

func (s *Server) getSignal(w http.ResponseWriter, r *http.Request) {
	signal, err := s.signals.Signal(chi.URLParam(r, "signalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"signal": signal}})
}

func (s *Server) setSignalState(w http.ResponseWriter, r *http.Request) {
	var req stateRequest
	if !decode(w, r, &req) {
		return
	}
	signal, err := s.signals.SetState(chi.URLParam(r, "signalID"), req.State)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Signal state updated", Data: map[string]any{"signal": signal}})
}

func (s *Server) resetSignal(w http.ResponseWriter, r *http.Request) {
	signal, err := s.signals.Reset(chi.URLParam(r, "signalID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Signal reset successfully", Data: map[string]any{"signal": signal}})
}

func (s *Server) deleteSignal(w http.ResponseWriter, r *http.Request) {
	if err := s.signals.Delete(chi.URLParam(r, "signalID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Signal deleted successfully"})
}

func (s *Server) createCorridor(w http.ResponseWriter, r *http.Request) {
	var req entity.CorridorRequest
	if !decode(w, r, &req) {
		return
	}
	corridor, err := s.corridors.CreateCorridor(req)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, envelope{Success: true, Message: "Green corridor created successfully", Data: map[string]any{"corridor": corridor}})
}

func (s *Server) listCorridors(w http.ResponseWriter, r *http.Request) {
	corridors := s.corridors.Corridors()
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"count": len(corridors), "corridors": corridors}})
}

func (s *Server) getCorridor(w http.ResponseWriter, r *http.Request) {
	corridor, err := s.corridors.Corridor(chi.URLParam(r, "vehicleID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Data: map[string]any{"corridor": corridor}})
}

func (s *Server) clearCorridor(w http.ResponseWriter, r *http.Request) {
	if err := s.corridors.ClearCorridor(chi.URLParam(r, "vehicleID")); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Green corridor cleared successfully"})
}

func (s *Server) updateLocation(w http.ResponseWriter, r *http.Request) {
	var req locationRequest
	if !decode(w, r, &req) {
		return
	}
	if req.Latitude == nil || req.Longitude == nil {
		writeError(w, r, fmt.Errorf("%w: latitude and longitude are required", entity.ErrValidation))
		return
	}
	loc := entity.VehicleLocation{
		Location: entity.Location{Latitude: *req.Latitude, Longitude: *req.Longitude},
		Heading:  req.Heading,
		Speed:    req.Speed,
	}
	if req.Timestamp != nil {
		loc.Timestamp = *req.Timestamp
	}
	res, err := s.corridors.UpdateLocation(chi.URLParam(r, "vehicleID"), loc)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Vehicle location updated", Data: res})
}

func (s *Server) overrideSignal(w http.ResponseWriter, r *http.Request) {
	var req overrideRequest
	if !decode(w, r, &req) {
		return
	}
	if req.SignalID == "" || req.VehicleID == "" {
		writeError(w, r, fmt.Errorf("%w: signal ID and vehicle ID are required", entity.ErrValidation))
		return
	}
	var d time.Duration
	if req.Duration != nil {
		if *req.Duration <= 0 {
			writeError(w, r, fmt.Errorf("%w: duration must be positive, got %v", entity.ErrValidation, *req.Duration))
			return
		}
		d = time.Duration(*req.Duration * float64(time.Second))
	}
	lease, err := s.corridors.OverrideSignal(req.SignalID, req.VehicleID, d)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, envelope{Success: true, Message: "Signal overridden successfully", Data: map[string]any{"override": lease}})
}

// decode 解析JSON请求体，失败时直接写出400
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(v); err != nil {
		writeError(w, r, fmt.Errorf("%w: malformed request body: %v", entity.ErrValidation, err))
		return false
	}
	return true
}

// writeError 按错误类别映射状态码；未分类错误记录日志并返回500
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, entity.ErrValidation):
		status = http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, entity.ErrConflict):
		status = http.StatusConflict
	default:
		log.Errorf("%s %s failed: %v", r.Method, r.URL.Path, err)
	}
	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	writeJSON(w, status, envelope{Message: message})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warnf("failed to write response: %v", err)
	}
}

package server

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"go.uber.org/zap"

	"github.com/witnz/ledgerd/internal/consensus"
	"github.com/witnz/ledgerd/internal/ledger"
)

type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message,omitempty"`
	Leader  string `json:"leader,omitempty"`
}

var kindStatus = map[ledger.Kind]int{
	ledger.KindOwnerOnly:         http.StatusForbidden,
	ledger.KindNotAdmin:          http.StatusForbidden,
	ledger.KindNotFound:          http.StatusNotFound,
	ledger.KindAlreadyExists:     http.StatusConflict,
	ledger.KindRecordLocked:      http.StatusConflict,
	ledger.KindMaxAdminsReached:  http.StatusConflict,
	ledger.KindRateLimited:       http.StatusTooManyRequests,
	ledger.KindInvalidValue:      http.StatusBadRequest,
	ledger.KindInvalidPermission: http.StatusBadRequest,
	ledger.KindBatchTooLarge:     http.StatusBadRequest,
	ledger.KindContractPaused:    http.StatusLocked,
}

type leaderReporter interface {
	Leader() string
}

type statsReporter interface {
	Stats() map[string]string
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var le *ledger.Error
	if errors.As(err, &le) {
		status, ok := kindStatus[le.Kind]
		if !ok {
			status = http.StatusBadRequest
		}
		writeJSON(w, status, errorResponse{Error: string(le.Kind), Message: le.Message})
		return
	}

	if errors.Is(err, consensus.ErrNotLeader) {
		resp := errorResponse{Error: "not-leader", Message: err.Error()}
		if lr, ok := s.applier.(leaderReporter); ok {
			resp.Leader = lr.Leader()
		}
		writeJSON(w, http.StatusServiceUnavailable, resp)
		return
	}

	s.logger.Error("request failed",
		zap.String("method", r.Method),
		zap.String("path", r.URL.Path),
		zap.Error(err))
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal", Message: "internal error"})
}

func badRequest(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: string(ledger.KindInvalidValue), Message: message})
}

// decodeBody reads a JSON body into v. An empty body leaves v untouched.
func decodeBody(r *http.Request, v interface{}) error {
	if r.Body == nil || r.ContentLength == 0 {
		return nil
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// writeDecodeError reports a malformed body. Permission parse failures keep
// their ledger kind.
func (s *Server) writeDecodeError(w http.ResponseWriter, r *http.Request, err error) {
	var le *ledger.Error
	if errors.As(err, &le) {
		s.writeError(w, r, le)
		return
	}
	badRequest(w, "malformed request body: "+err.Error())
}

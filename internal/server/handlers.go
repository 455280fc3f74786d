package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/witnz/ledgerd/internal/auth"
	"github.com/witnz/ledgerd/internal/ledger"
	"github.com/witnz/ledgerd/internal/storage"
)

type statusResponse struct {
	Status string `json:"status"`
}

var okResponse = statusResponse{Status: "ok"}

type pausedResponse struct {
	Paused bool `json:"paused"`
}

type adminResponse struct {
	*storage.AdminEntry
	PermissionNames []string `json:"permission_names"`
}

type activityResponse struct {
	Identity string                 `json:"identity"`
	Height   uint64                 `json:"height"`
	Allowed  bool                   `json:"allowed"`
	Activity *storage.ActivityEntry `json:"activity"`
}

// apply submits one mutation as the authenticated caller. On failure the
// error response has already been written.
func (s *Server) apply(w http.ResponseWriter, r *http.Request, op string, args interface{}) (interface{}, bool) {
	cmd, err := ledger.NewCommand(op, auth.PrincipalFrom(r.Context()), args)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	result, err := s.applier.Apply(r.Context(), cmd)
	if err != nil {
		s.writeError(w, r, err)
		return nil, false
	}
	return result, true
}

func (s *Server) togglePause(w http.ResponseWriter, r *http.Request) {
	result, done := s.apply(w, r, ledger.OpTogglePause, nil)
	if !done {
		return
	}
	paused, _ := result.(bool)
	writeJSON(w, http.StatusOK, pausedResponse{Paused: paused})
}

func (s *Server) emergencyStop(w http.ResponseWriter, r *http.Request) {
	if _, done := s.apply(w, r, ledger.OpEmergencyStop, nil); !done {
		return
	}
	writeJSON(w, http.StatusOK, pausedResponse{Paused: true})
}

func (s *Server) isPaused(w http.ResponseWriter, r *http.Request) {
	paused, err := s.ledger.IsPaused()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, pausedResponse{Paused: paused})
}

func (s *Server) addAdmin(w http.ResponseWriter, r *http.Request) {
	var args ledger.AdminArgs
	if err := decodeBody(r, &args); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	if _, done := s.apply(w, r, ledger.OpAddAdmin, args); !done {
		return
	}
	writeJSON(w, http.StatusCreated, okResponse)
}

func (s *Server) updateAdminPermissions(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Permissions ledger.Permission `json:"permissions"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	args := ledger.AdminArgs{Identity: chi.URLParam(r, "identity"), Permissions: body.Permissions}
	if _, done := s.apply(w, r, ledger.OpUpdatePermissions, args); !done {
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) deactivateAdmin(w http.ResponseWriter, r *http.Request) {
	args := ledger.AdminArgs{Identity: chi.URLParam(r, "identity")}
	if _, done := s.apply(w, r, ledger.OpDeactivateAdmin, args); !done {
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) getAdmin(w http.ResponseWriter, r *http.Request) {
	entry, err := s.ledger.GetAdmin(chi.URLParam(r, "identity"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, adminResponse{
		AdminEntry:      entry,
		PermissionNames: ledger.Permission(entry.Permissions).Names(),
	})
}

func (s *Server) hasPermission(w http.ResponseWriter, r *http.Request) {
	required, err := ledger.ParsePermission(r.URL.Query().Get("require"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	identity := chi.URLParam(r, "identity")
	allowed, err := s.ledger.HasPermission(identity, required)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"identity": identity,
		"required": required.Names(),
		"allowed":  allowed,
	})
}

func (s *Server) getAdminCount(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.AdminCount()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"count": n})
}

// getActivity answers check_rate_limit at ?height=, or at the current height
// when it is omitted, along with the stored activity entry.
func (s *Server) getActivity(w http.ResponseWriter, r *http.Request) {
	identity := chi.URLParam(r, "identity")

	height, err := s.ledger.Height()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if raw := r.URL.Query().Get("height"); raw != "" {
		height, err = strconv.ParseUint(raw, 10, 64)
		if err != nil {
			badRequest(w, "height must be an unsigned integer")
			return
		}
	}

	allowed, err := s.ledger.CheckRateLimit(identity, height)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	entry, err := s.ledger.GetUserActivity(identity)
	if err != nil && !errors.Is(err, ledger.ErrNotFound) {
		s.writeError(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, activityResponse{
		Identity: identity,
		Height:   height,
		Allowed:  allowed,
		Activity: entry,
	})
}

func (s *Server) storeRecord(w http.ResponseWriter, r *http.Request) {
	var in ledger.StoreInput
	if err := decodeBody(r, &in); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	in.Key = chi.URLParam(r, "key")

	result, done := s.apply(w, r, ledger.OpStoreData, in)
	if !done {
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *Server) getRecord(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.GetData(chi.URLParam(r, "key"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) lockRecord(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Locked *bool `json:"locked"`
	}
	if err := decodeBody(r, &body); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	if body.Locked == nil {
		badRequest(w, "locked is required")
		return
	}

	args := ledger.LockArgs{Key: chi.URLParam(r, "key"), Locked: *body.Locked}
	if _, done := s.apply(w, r, ledger.OpLockData, args); !done {
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"key": args.Key, "locked": args.Locked})
}

func (s *Server) hasTag(w http.ResponseWriter, r *http.Request) {
	found, err := s.ledger.HasTag(chi.URLParam(r, "key"), chi.URLParam(r, "tag"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"has_tag": found})
}

func (s *Server) batchStore(w http.ResponseWriter, r *http.Request) {
	var args ledger.BatchArgs
	if err := decodeBody(r, &args); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	if _, done := s.apply(w, r, ledger.OpBatchStore, args); !done {
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"stored": len(args.Items)})
}

func (s *Server) getOperation(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		badRequest(w, "operation id must be an unsigned integer")
		return
	}
	op, err := s.ledger.GetOperation(id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, op)
}

// getOperations returns one slot per requested id, null where none exists.
func (s *Server) getOperations(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get("ids")
	if raw == "" {
		badRequest(w, "ids is required")
		return
	}

	parts := strings.Split(raw, ",")
	ids := make([]uint64, 0, len(parts))
	for _, p := range parts {
		id, err := strconv.ParseUint(strings.TrimSpace(p), 10, 64)
		if err != nil {
			badRequest(w, "ids must be unsigned integers")
			return
		}
		ids = append(ids, id)
	}

	ops, err := s.ledger.GetOperations(ids)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, ops)
}

func (s *Server) getTotalOperations(w http.ResponseWriter, r *http.Request) {
	n, err := s.ledger.TotalOperations()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"total": n})
}

func (s *Server) createSnapshot(w http.ResponseWriter, r *http.Request) {
	var args ledger.BackupArgs
	if err := decodeBody(r, &args); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	if args.SnapshotID == "" {
		args.SnapshotID = uuid.NewString()
	}

	result, done := s.apply(w, r, ledger.OpCreateBackup, args)
	if !done {
		return
	}
	writeJSON(w, http.StatusCreated, result)
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	snap, err := s.ledger.GetSnapshot(chi.URLParam(r, "id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

func (s *Server) addCategory(w http.ResponseWriter, r *http.Request) {
	var args ledger.CategoryArgs
	if err := decodeBody(r, &args); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	args.Category = chi.URLParam(r, "category")

	if _, done := s.apply(w, r, ledger.OpAddCategory, args); !done {
		return
	}
	writeJSON(w, http.StatusCreated, okResponse)
}

func (s *Server) deactivateCategory(w http.ResponseWriter, r *http.Request) {
	args := ledger.CategoryArgs{Category: chi.URLParam(r, "category")}
	if _, done := s.apply(w, r, ledger.OpDeactivateCategory, args); !done {
		return
	}
	writeJSON(w, http.StatusOK, okResponse)
}

func (s *Server) getCategory(w http.ResponseWriter, r *http.Request) {
	rec, err := s.ledger.GetCategory(chi.URLParam(r, "category"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) updateVersion(w http.ResponseWriter, r *http.Request) {
	var args ledger.VersionArgs
	if err := decodeBody(r, &args); err != nil {
		s.writeDecodeError(w, r, err)
		return
	}
	if _, done := s.apply(w, r, ledger.OpUpdateVersion, args); !done {
		return
	}
	writeJSON(w, http.StatusOK, map[string]uint64{"version": args.Version})
}

type clusterResponse struct {
	Mode         string            `json:"mode"`
	Leader       string            `json:"leader,omitempty"`
	AppliedIndex uint64            `json:"applied_index"`
	Stats        map[string]string `json:"stats,omitempty"`
}

func (s *Server) getCluster(w http.ResponseWriter, r *http.Request) {
	applied, err := s.ledger.AppliedIndex()
	if err != nil {
		s.writeError(w, r, err)
		return
	}

	resp := clusterResponse{Mode: "single-node", AppliedIndex: applied}
	if sr, ok := s.applier.(statsReporter); ok {
		resp.Mode = "raft"
		resp.Stats = sr.Stats()
	}
	if lr, ok := s.applier.(leaderReporter); ok {
		resp.Leader = lr.Leader()
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) getInfo(w http.ResponseWriter, r *http.Request) {
	info, err := s.ledger.Info()
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

package gateway

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"

	"github.com/0x0wen/MediLock/internal/access"
	"github.com/0x0wen/MediLock/internal/marketplace"
	"github.com/0x0wen/MediLock/internal/records"
	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/types"
)

// Handlers contains the HTTP handlers for every ledger operation
type Handlers struct {
	registry    *registry.Service
	records     *records.Service
	access      *access.Service
	marketplace *marketplace.Service
	logger      *logger.Logger
}

// NewHandlers creates the ledger HTTP handlers
func NewHandlers(reg *registry.Service, rec *records.Service, acc *access.Service, market *marketplace.Service, log *logger.Logger) *Handlers {
	return &Handlers{
		registry:    reg,
		records:     rec,
		access:      acc,
		marketplace: market,
		logger:      log,
	}
}

// RegisterRoutes registers all ledger routes with the router
func (h *Handlers) RegisterRoutes(router *mux.Router) {
	v1 := router.PathPrefix("/api/v1").Subrouter()
	v1.Use(RequestIDMiddleware, PrincipalMiddleware, LoggingMiddleware(h.logger))

	v1.HandleFunc("/participants", h.Register).Methods(http.MethodPost)
	v1.HandleFunc("/participants/{principal}", h.LookupParticipant).Methods(http.MethodGet)

	v1.HandleFunc("/records", h.AddRecord).Methods(http.MethodPost)
	v1.HandleFunc("/records/{patient}/{seq}", h.GetRecord).Methods(http.MethodGet)
	v1.HandleFunc("/records/{patient}/{seq}/logs", h.ListAccessLog).Methods(http.MethodGet)
	v1.HandleFunc("/patients/{principal}/records", h.ListPatientRecords).Methods(http.MethodGet)

	v1.HandleFunc("/access/requests", h.RequestAccess).Methods(http.MethodPost)
	v1.HandleFunc("/access/requests/respond", h.RespondAccess).Methods(http.MethodPost)
	v1.HandleFunc("/access/requests/{doctor}/{patient}", h.GetAccessRequest).Methods(http.MethodGet)
	v1.HandleFunc("/doctors/{principal}/requests", h.ListDoctorRequests).Methods(http.MethodGet)
	v1.HandleFunc("/patients/{principal}/requests", h.ListPatientRequests).Methods(http.MethodGet)

	v1.HandleFunc("/access/logs", h.LogAccess).Methods(http.MethodPost)

	v1.HandleFunc("/pools", h.CreatePool).Methods(http.MethodPost)
	v1.HandleFunc("/pools/contribute", h.Contribute).Methods(http.MethodPost)
	v1.HandleFunc("/pools/withdraw", h.Withdraw).Methods(http.MethodPost)
	v1.HandleFunc("/pools/fund", h.FundPool).Methods(http.MethodPost)
	v1.HandleFunc("/pools/{creator}/{id}", h.GetPool).Methods(http.MethodGet)
	v1.HandleFunc("/pools/{creator}/{id}/contributions", h.ListContributions).Methods(http.MethodGet)
}

type registerRequest struct {
	Role    types.Role    `json:"role"`
	Profile types.Profile `json:"profile"`
}

// Register handles participant registration
func (h *Handlers) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeBody(w, r, &req) {
		return
	}

	participant, err := h.registry.Register(r.Context(), PrincipalFromContext(r.Context()), req.Role, req.Profile)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, participant)
}

// LookupParticipant handles participant lookup
func (h *Handlers) LookupParticipant(w http.ResponseWriter, r *http.Request) {
	participant, err := h.registry.Lookup(r.Context(), mux.Vars(r)["principal"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, participant)
}

type addRecordRequest struct {
	PatientPrincipal string `json:"patient_principal"`
	Seq              uint64 `json:"seq"`
	ContentPointer   string `json:"content_pointer"`
	Metadata         string `json:"metadata"`
}

// AddRecord handles record creation; the authoring doctor is the caller
func (h *Handlers) AddRecord(w http.ResponseWriter, r *http.Request) {
	var req addRecordRequest
	if !decodeBody(w, r, &req) {
		return
	}

	record, err := h.records.AddRecord(r.Context(), PrincipalFromContext(r.Context()), req.PatientPrincipal, req.Seq, req.ContentPointer, req.Metadata)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, record)
}

// GetRecord handles record lookup
func (h *Handlers) GetRecord(w http.ResponseWriter, r *http.Request) {
	recordID, ok := recordIDFromVars(w, r)
	if !ok {
		return
	}
	record, err := h.records.GetRecord(r.Context(), recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, record)
}

// ListPatientRecords handles listing a patient's records
func (h *Handlers) ListPatientRecords(w http.ResponseWriter, r *http.Request) {
	list, err := h.records.ListByPatient(r.Context(), mux.Vars(r)["principal"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type requestAccessRequest struct {
	PatientPrincipal string    `json:"patient_principal"`
	Scope            string    `json:"scope"`
	ExpiresAt        time.Time `json:"expires_at"`
}

// RequestAccess handles access request creation; the doctor is the caller
func (h *Handlers) RequestAccess(w http.ResponseWriter, r *http.Request) {
	var req requestAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}

	request, err := h.access.RequestAccess(r.Context(), PrincipalFromContext(r.Context()), req.PatientPrincipal, req.Scope, req.ExpiresAt)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, request)
}

type respondAccessRequest struct {
	DoctorPrincipal  string `json:"doctor_principal"`
	PatientPrincipal string `json:"patient_principal"`
	Approve          bool   `json:"approve"`
}

// RespondAccess handles the patient's decision; the responder is the caller
func (h *Handlers) RespondAccess(w http.ResponseWriter, r *http.Request) {
	var req respondAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}

	request, err := h.access.RespondAccess(r.Context(), req.DoctorPrincipal, req.PatientPrincipal, PrincipalFromContext(r.Context()), req.Approve)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// GetAccessRequest handles access request lookup
func (h *Handlers) GetAccessRequest(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	request, err := h.access.GetRequest(r.Context(), vars["doctor"], vars["patient"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, request)
}

// ListDoctorRequests lists every request filed by a doctor
func (h *Handlers) ListDoctorRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.access.ListForDoctor(r.Context(), mux.Vars(r)["principal"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// ListPatientRequests lists every request naming a patient
func (h *Handlers) ListPatientRequests(w http.ResponseWriter, r *http.Request) {
	list, err := h.access.ListForPatient(r.Context(), mux.Vars(r)["principal"])
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

type logAccessRequest struct {
	RecordID string `json:"record_id"`
	Action   string `json:"action"`
	Nonce    string `json:"nonce"`
}

// LogAccess handles access logging; the actor is the caller
func (h *Handlers) LogAccess(w http.ResponseWriter, r *http.Request) {
	var req logAccessRequest
	if !decodeBody(w, r, &req) {
		return
	}

	entry, err := h.access.LogAccess(r.Context(), req.RecordID, PrincipalFromContext(r.Context()), req.Action, req.Nonce)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, entry)
}

// ListAccessLog lists a record's log entries
func (h *Handlers) ListAccessLog(w http.ResponseWriter, r *http.Request) {
	recordID, ok := recordIDFromVars(w, r)
	if !ok {
		return
	}
	entries, err := h.access.ListLog(r.Context(), recordID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

type createPoolRequest struct {
	PoolID         uint64 `json:"pool_id"`
	Name           string `json:"name"`
	Description    string `json:"description"`
	PricePerRecord uint64 `json:"price_per_record"`
	TotalNeeded    uint64 `json:"total_needed"`
}

// CreatePool handles pool creation; the creator is the caller
func (h *Handlers) CreatePool(w http.ResponseWriter, r *http.Request) {
	var req createPoolRequest
	if !decodeBody(w, r, &req) {
		return
	}

	pool, err := h.marketplace.CreatePool(r.Context(), PrincipalFromContext(r.Context()), req.PoolID, req.Name, req.Description, req.PricePerRecord, req.TotalNeeded)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, pool)
}

type contributeRequest struct {
	CreatorPrincipal string `json:"creator_principal"`
	PoolID           uint64 `json:"pool_id"`
	RecordID         string `json:"record_id"`
}

// Contribute handles attaching a record to a pool; the contributor is the caller
func (h *Handlers) Contribute(w http.ResponseWriter, r *http.Request) {
	var req contributeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	contribution, err := h.marketplace.Contribute(r.Context(), PrincipalFromContext(r.Context()), req.CreatorPrincipal, req.PoolID, req.RecordID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, contribution)
}

type withdrawRequest struct {
	CreatorPrincipal string `json:"creator_principal"`
	PoolID           uint64 `json:"pool_id"`
	ContributionID   uint64 `json:"contribution_id"`
}

// Withdraw handles contribution settlement; the contributor is the caller
func (h *Handlers) Withdraw(w http.ResponseWriter, r *http.Request) {
	var req withdrawRequest
	if !decodeBody(w, r, &req) {
		return
	}

	contribution, err := h.marketplace.Withdraw(r.Context(), PrincipalFromContext(r.Context()), req.CreatorPrincipal, req.PoolID, req.ContributionID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, contribution)
}

type fundPoolRequest struct {
	CreatorPrincipal string `json:"creator_principal"`
	PoolID           uint64 `json:"pool_id"`
	Amount           uint64 `json:"amount"`
}

// FundPool handles escrow funding; the caller must be the pool creator
func (h *Handlers) FundPool(w http.ResponseWriter, r *http.Request) {
	var req fundPoolRequest
	if !decodeBody(w, r, &req) {
		return
	}

	balance, err := h.marketplace.FundPool(r.Context(), PrincipalFromContext(r.Context()), req.CreatorPrincipal, req.PoolID, req.Amount)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"escrow_balance": balance})
}

// GetPool handles pool lookup
func (h *Handlers) GetPool(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	poolID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "pool id must be numeric", "code": types.ErrCodeInvalidInput})
		return
	}
	pool, err := h.marketplace.GetPool(r.Context(), vars["creator"], poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, pool)
}

// ListContributions lists a pool's contributions
func (h *Handlers) ListContributions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	poolID, err := strconv.ParseUint(vars["id"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "pool id must be numeric", "code": types.ErrCodeInvalidInput})
		return
	}
	list, err := h.marketplace.ListContributions(r.Context(), vars["creator"], poolID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func recordIDFromVars(w http.ResponseWriter, r *http.Request) (string, bool) {
	vars := mux.Vars(r)
	seq, err := strconv.ParseUint(vars["seq"], 10, 64)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"error": "record seq must be numeric", "code": types.ErrCodeInvalidInput})
		return "", false
	}
	return types.MakeRecordID(vars["patient"], seq), true
}

func decodeBody(w http.ResponseWriter, r *http.Request, into interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(into); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{
			"error": "invalid request body",
			"code":  types.ErrCodeInvalidInput,
		})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	kind := types.KindOf(err)

	switch kind {
	case types.ErrorKindNotFound:
		status = http.StatusNotFound
	case types.ErrorKindAlreadyExists, types.ErrorKindPoolFull, types.ErrorKindAlreadyPaid, types.ErrorKindInvalidState:
		status = http.StatusConflict
	case types.ErrorKindUnauthorizedRole, types.ErrorKindUnauthorizedAccess, types.ErrorKindAccessDenied, types.ErrorKindAccessExpired:
		status = http.StatusForbidden
	case types.ErrorKindValidation:
		status = http.StatusBadRequest
	}

	body := map[string]interface{}{
		"kind":  string(kind),
		"error": err.Error(),
	}
	var le *types.LedgerError
	if errors.As(err, &le) {
		body["code"] = le.Code
		body["error"] = le.Message
		if le.Details != nil {
			body["details"] = le.Details
		}
	}
	writeJSON(w, status, body)
}

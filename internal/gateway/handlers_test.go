package gateway

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0wen/MediLock/internal/access"
	"github.com/0x0wen/MediLock/internal/marketplace"
	"github.com/0x0wen/MediLock/internal/records"
	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

func setupTestRouter(t *testing.T) *mux.Router {
	t.Helper()
	st := store.NewMemory()
	log := logger.New("error")
	bus := events.NewBus()

	handlers := NewHandlers(
		registry.NewService(st, log, bus),
		records.NewService(st, log, bus),
		access.NewService(st, log, bus, nil),
		marketplace.NewService(st, log, bus, marketplace.NewMemoryVault(nil)),
		log,
	)

	router := mux.NewRouter()
	handlers.RegisterRoutes(router)
	return router
}

func doRequest(t *testing.T, router *mux.Router, method, path, principal string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	if principal != "" {
		req.Header.Set(PrincipalHeader, principal)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func registerParticipant(t *testing.T, router *mux.Router, principal string, role types.Role) {
	t.Helper()
	rec := doRequest(t, router, http.MethodPost, "/api/v1/participants", principal, registerRequest{
		Role:    role,
		Profile: types.Profile{FullName: principal, Email: principal + "@example.com"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegisterEndpoint(t *testing.T) {
	router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/participants", "did:sol:p1", registerRequest{
		Role:    types.RolePatient,
		Profile: types.Profile{FullName: "Ani", Email: "ani@example.com"},
	})
	assert.Equal(t, http.StatusCreated, rec.Code)

	var participant types.Participant
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &participant))
	assert.Equal(t, "did:sol:p1", participant.Principal)

	// Duplicate registration maps to 409.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/participants", "did:sol:p1", registerRequest{
		Role:    types.RolePatient,
		Profile: types.Profile{FullName: "Ani", Email: "ani@example.com"},
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Lookup round trip.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/participants/did:sol:p1", "did:sol:p1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/participants/did:sol:ghost", "did:sol:p1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestMissingPrincipalRejected(t *testing.T) {
	router := setupTestRouter(t)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/participants", "", registerRequest{
		Role:    types.RolePatient,
		Profile: types.Profile{FullName: "Ani", Email: "ani@example.com"},
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestAccessWorkflowOverHTTP(t *testing.T) {
	router := setupTestRouter(t)
	registerParticipant(t, router, "did:sol:doc1", types.RoleDoctor)
	registerParticipant(t, router, "did:sol:p1", types.RolePatient)

	// Doctor adds a record for the patient.
	rec := doRequest(t, router, http.MethodPost, "/api/v1/records", "did:sol:doc1", addRecordRequest{
		PatientPrincipal: "did:sol:p1",
		Seq:              0,
		ContentPointer:   "cid-0",
		Metadata:         "labs",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// A patient cannot author a record: 403.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/records", "did:sol:p1", addRecordRequest{
		PatientPrincipal: "did:sol:p1",
		Seq:              1,
		ContentPointer:   "cid-1",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	// Doctor requests access, patient approves.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/access/requests", "did:sol:doc1", requestAccessRequest{
		PatientPrincipal: "did:sol:p1",
		Scope:            "labs",
		ExpiresAt:        time.Now().Add(time.Hour),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodPost, "/api/v1/access/requests/respond", "did:sol:p1", respondAccessRequest{
		DoctorPrincipal:  "did:sol:doc1",
		PatientPrincipal: "did:sol:p1",
		Approve:          true,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Doctor logs a read.
	recordID := types.MakeRecordID("did:sol:p1", 0)
	rec = doRequest(t, router, http.MethodPost, "/api/v1/access/logs", "did:sol:doc1", logAccessRequest{
		RecordID: recordID,
		Action:   "read",
		Nonce:    "1",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	// Nonce reuse maps to 409.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/access/logs", "did:sol:doc1", logAccessRequest{
		RecordID: recordID,
		Action:   "read",
		Nonce:    "1",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// The log lists one entry.
	rec = doRequest(t, router, http.MethodGet, "/api/v1/records/did:sol:p1/0/logs", "did:sol:doc1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var entries []types.AccessLogEntry
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &entries))
	assert.Len(t, entries, 1)
}

func TestMarketplaceOverHTTP(t *testing.T) {
	router := setupTestRouter(t)
	registerParticipant(t, router, "did:sol:doc1", types.RoleDoctor)
	registerParticipant(t, router, "did:sol:p1", types.RolePatient)
	registerParticipant(t, router, "did:sol:buyer", types.RolePatient)

	rec := doRequest(t, router, http.MethodPost, "/api/v1/records", "did:sol:doc1", addRecordRequest{
		PatientPrincipal: "did:sol:p1",
		Seq:              0,
		ContentPointer:   "cid-0",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodPost, "/api/v1/pools", "did:sol:buyer", createPoolRequest{
		PoolID:         1,
		Name:           "study",
		PricePerRecord: 10,
		TotalNeeded:    1,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	rec = doRequest(t, router, http.MethodPost, "/api/v1/pools/fund", "did:sol:buyer", fundPoolRequest{
		CreatorPrincipal: "did:sol:buyer",
		PoolID:           1,
		Amount:           10,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	recordID := types.MakeRecordID("did:sol:p1", 0)
	rec = doRequest(t, router, http.MethodPost, "/api/v1/pools/contribute", "did:sol:p1", contributeRequest{
		CreatorPrincipal: "did:sol:buyer",
		PoolID:           1,
		RecordID:         recordID,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var contribution types.Contribution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contribution))

	// Pool is now full.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/pools/contribute", "did:sol:p1", contributeRequest{
		CreatorPrincipal: "did:sol:buyer",
		PoolID:           1,
		RecordID:         recordID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodPost, "/api/v1/pools/withdraw", "did:sol:p1", withdrawRequest{
		CreatorPrincipal: "did:sol:buyer",
		PoolID:           1,
		ContributionID:   contribution.ID,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	// Second withdrawal maps to 409.
	rec = doRequest(t, router, http.MethodPost, "/api/v1/pools/withdraw", "did:sol:p1", withdrawRequest{
		CreatorPrincipal: "did:sol:buyer",
		PoolID:           1,
		ContributionID:   contribution.ID,
	})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = doRequest(t, router, http.MethodGet, "/api/v1/pools/did:sol:buyer/1/contributions", "did:sol:buyer", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var contributions []types.Contribution
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &contributions))
	require.Len(t, contributions, 1)
	assert.True(t, contributions[0].Paid)
}

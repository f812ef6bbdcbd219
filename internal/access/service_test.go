package access

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/0x0wen/MediLock/internal/records"
	"github.com/0x0wen/MediLock/internal/registry"
	"github.com/0x0wen/MediLock/pkg/events"
	"github.com/0x0wen/MediLock/pkg/logger"
	"github.com/0x0wen/MediLock/pkg/store"
	"github.com/0x0wen/MediLock/pkg/types"
)

const (
	doctorPrincipal  = "did:sol:doctor1"
	patientPrincipal = "did:sol:patient1"
	strangerDoctor   = "did:sol:doctor2"
)

type fixture struct {
	access  *Service
	records *records.Service
	sink    *capturingSink
}

type capturingSink struct {
	events []events.Event
}

func (c *capturingSink) Publish(event events.Event) {
	c.events = append(c.events, event)
}

func setupFixture(t *testing.T) *fixture {
	t.Helper()
	st := store.NewMemory()
	log := logger.New("debug")
	bus := events.NewBus()
	sink := &capturingSink{}
	bus.Subscribe(sink)

	reg := registry.NewService(st, log, bus)
	ctx := context.Background()
	for _, p := range []struct {
		principal string
		role      types.Role
	}{
		{doctorPrincipal, types.RoleDoctor},
		{strangerDoctor, types.RoleDoctor},
		{patientPrincipal, types.RolePatient},
	} {
		_, err := reg.Register(ctx, p.principal, p.role, types.Profile{FullName: p.principal, Email: p.principal + "@example.com"})
		require.NoError(t, err)
	}

	return &fixture{
		access:  NewService(st, log, bus, nil),
		records: records.NewService(st, log, bus),
		sink:    sink,
	}
}

func (f *fixture) addRecord(t *testing.T) *types.MedicalRecord {
	t.Helper()
	record, err := f.records.AddRecord(context.Background(), doctorPrincipal, patientPrincipal, 0, "cid-0", "labs")
	require.NoError(t, err)
	return record
}

func TestRequestAccess_Lifecycle(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	req, err := f.access.RequestAccess(ctx, doctorPrincipal, patientPrincipal, "labs", time.Now().Add(time.Hour))
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, req.Status)
	assert.True(t, req.RespondedAt.IsZero())

	// A second request for the same pair collides, whatever its scope.
	_, err = f.access.RequestAccess(ctx, doctorPrincipal, patientPrincipal, "imaging", time.Now().Add(time.Hour))
	assert.Equal(t, types.ErrorKindAlreadyExists, types.KindOf(err))

	resp, err := f.access.RespondAccess(ctx, doctorPrincipal, patientPrincipal, patientPrincipal, true)
	require.NoError(t, err)
	assert.Equal(t, types.StatusApproved, resp.Status)
	assert.False(t, resp.RespondedAt.IsZero())

	// Round trip: the stored request carries exactly what was written.
	got, err := f.access.GetRequest(ctx, doctorPrincipal, patientPrincipal)
	require.NoError(t, err)
	assert.Equal(t, "labs", got.Scope)
	assert.Equal(t, types.StatusApproved, got.Status)
}

func TestRequestAccess_RoleGuards(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.access.RequestAccess(ctx, patientPrincipal, patientPrincipal, "labs", time.Now().Add(time.Hour))
	assert.Equal(t, types.ErrorKindUnauthorizedRole, types.KindOf(err))

	_, err = f.access.RequestAccess(ctx, doctorPrincipal, strangerDoctor, "labs", time.Now().Add(time.Hour))
	assert.Equal(t, types.ErrorKindUnauthorizedRole, types.KindOf(err))
}

func TestRespondAccess_OnlyPatientMayRespond(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.access.RequestAccess(ctx, doctorPrincipal, patientPrincipal, "labs", time.Now().Add(time.Hour))
	require.NoError(t, err)

	// The requesting doctor cannot approve their own request.
	_, err = f.access.RespondAccess(ctx, doctorPrincipal, patientPrincipal, doctorPrincipal, true)
	assert.Equal(t, types.ErrorKindUnauthorizedAccess, types.KindOf(err))

	// Status is unchanged after the rejected response.
	got, err := f.access.GetRequest(ctx, doctorPrincipal, patientPrincipal)
	require.NoError(t, err)
	assert.Equal(t, types.StatusPending, got.Status)
}

func TestRespondAccess_TerminalStates(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.access.RequestAccess(ctx, doctorPrincipal, patientPrincipal, "labs", time.Now().Add(time.Hour))
	require.NoError(t, err)

	_, err = f.access.RespondAccess(ctx, doctorPrincipal, patientPrincipal, patientPrincipal, false)
	require.NoError(t, err)

	// Re-responding to a terminal request is rejected.
	_, err = f.access.RespondAccess(ctx, doctorPrincipal, patientPrincipal, patientPrincipal, true)
	assert.Equal(t, types.ErrorKindInvalidState, types.KindOf(err))

	got, err := f.access.GetRequest(ctx, doctorPrincipal, patientPrincipal)
	require.NoError(t, err)
	assert.Equal(t, types.StatusDenied, got.Status)
}

// Scenario: register, request, approve, log twice with distinct nonces,
// reject the nonce reuse in between.
func TestLogAccess_ApprovedDoctor(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	record := f.addRecord(t)

	_, err := f.access.RequestAccess(ctx, doctorPrincipal, patientPrincipal, "labs", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.access.RespondAccess(ctx, doctorPrincipal, patientPrincipal, patientPrincipal, true)
	require.NoError(t, err)

	entry, err := f.access.LogAccess(ctx, record.ID, doctorPrincipal, "read", "1")
	require.NoError(t, err)
	assert.Equal(t, record.ID, entry.RecordID)

	// Same nonce collides and writes nothing.
	_, err = f.access.LogAccess(ctx, record.ID, doctorPrincipal, "read", "1")
	assert.Equal(t, types.ErrorKindAlreadyExists, types.KindOf(err))

	_, err = f.access.LogAccess(ctx, record.ID, doctorPrincipal, "read", "2")
	require.NoError(t, err)

	entries, err := f.access.ListLog(ctx, record.ID)
	require.NoError(t, err)
	assert.Len(t, entries, 2)
}

func TestLogAccess_ExpiredApproval(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	record := f.addRecord(t)

	_, err := f.access.RequestAccess(ctx, doctorPrincipal, patientPrincipal, "labs", time.Now().Add(-time.Second))
	require.NoError(t, err)
	_, err = f.access.RespondAccess(ctx, doctorPrincipal, patientPrincipal, patientPrincipal, true)
	require.NoError(t, err)

	_, err = f.access.LogAccess(ctx, record.ID, doctorPrincipal, "read", "1")
	assert.Equal(t, types.ErrorKindAccessExpired, types.KindOf(err))

	// No entry was written for the denied access.
	entries, err := f.access.ListLog(ctx, record.ID)
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestLogAccess_NeverApproved(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	record := f.addRecord(t)

	// No request at all.
	_, err := f.access.LogAccess(ctx, record.ID, strangerDoctor, "read", "1")
	assert.Equal(t, types.ErrorKindAccessDenied, types.KindOf(err))

	// Pending request is still denied, not expired.
	_, err = f.access.RequestAccess(ctx, strangerDoctor, patientPrincipal, "labs", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.access.LogAccess(ctx, record.ID, strangerDoctor, "read", "2")
	assert.Equal(t, types.ErrorKindAccessDenied, types.KindOf(err))
}

func TestLogAccess_PatientSelf(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	record := f.addRecord(t)

	// The patient needs no access request to read their own record.
	entry, err := f.access.LogAccess(ctx, record.ID, patientPrincipal, "read", "self-1")
	require.NoError(t, err)
	assert.Equal(t, patientPrincipal, entry.ActorPrincipal)
}

func TestLogAccess_Validation(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()
	record := f.addRecord(t)

	_, err := f.access.LogAccess(ctx, record.ID, patientPrincipal, "", "1")
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))

	_, err = f.access.LogAccess(ctx, record.ID, patientPrincipal, "read", "")
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))

	_, err = f.access.LogAccess(ctx, record.ID, patientPrincipal, "read", "a/b")
	assert.Equal(t, types.ErrorKindValidation, types.KindOf(err))

	_, err = f.access.LogAccess(ctx, "missing/0", patientPrincipal, "read", "1")
	assert.Equal(t, types.ErrorKindNotFound, types.KindOf(err))
}

func TestListForDoctorAndPatient(t *testing.T) {
	f := setupFixture(t)
	ctx := context.Background()

	_, err := f.access.RequestAccess(ctx, doctorPrincipal, patientPrincipal, "labs", time.Now().Add(time.Hour))
	require.NoError(t, err)
	_, err = f.access.RequestAccess(ctx, strangerDoctor, patientPrincipal, "imaging", time.Now().Add(time.Hour))
	require.NoError(t, err)

	forDoctor, err := f.access.ListForDoctor(ctx, doctorPrincipal)
	require.NoError(t, err)
	assert.Len(t, forDoctor, 1)
	assert.Equal(t, "labs", forDoctor[0].Scope)

	forPatient, err := f.access.ListForPatient(ctx, patientPrincipal)
	require.NoError(t, err)
	assert.Len(t, forPatient, 2)
}

package db

import (
	"bytes"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/ukydev/fleet-compliance/internal/models"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process implementation of every collection interface, used
// by the memory store backend and by tests. Values are copied in and out so
// callers never share state with the store. It is safe for concurrent use.
type Memory struct {
	mu          sync.Mutex
	types       map[primitive.ObjectID]models.CredentialType
	instances   map[primitive.ObjectID]models.CredentialInstance
	bySubject   map[models.SubjectRef]primitive.ObjectID
	progress    map[primitive.ObjectID]models.Progress
	assignments map[[2]primitive.ObjectID]models.BrokerAssignment
	audit       []models.AuditEntry
	drivers     map[primitive.ObjectID]models.Driver
	vehicles    map[primitive.ObjectID]models.Vehicle
	users       map[primitive.ObjectID]models.User
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		types:       make(map[primitive.ObjectID]models.CredentialType),
		instances:   make(map[primitive.ObjectID]models.CredentialInstance),
		bySubject:   make(map[models.SubjectRef]primitive.ObjectID),
		progress:    make(map[primitive.ObjectID]models.Progress),
		assignments: make(map[[2]primitive.ObjectID]models.BrokerAssignment),
		drivers:     make(map[primitive.ObjectID]models.Driver),
		vehicles:    make(map[primitive.ObjectID]models.Vehicle),
		users:       make(map[primitive.ObjectID]models.User),
	}
}

// NewMemoryStore returns a Store whose collections all share one Memory.
func NewMemoryStore() Store {
	m := NewMemory()
	return Store{
		CredentialTypes: m,
		Instances:       m,
		Progress:        m,
		Assignments:     m,
		Audit:           m,
		Drivers:         m,
		Vehicles:        m,
		Users:           m,
	}
}

func lessID(a, b primitive.ObjectID) bool {
	return bytes.Compare(a[:], b[:]) < 0
}

func copyType(ct models.CredentialType) models.CredentialType {
	ct.VehicleTypes = append([]string(nil), ct.VehicleTypes...)
	ct.Instructions = ct.Instructions.Clone()
	if ct.RequiresDriverAction != nil {
		ct.RequiresDriverAction = models.DriverAction(*ct.RequiresDriverAction)
	}
	return ct
}

func copyInstance(inst models.CredentialInstance) *models.CredentialInstance {
	if inst.FormData != nil {
		fd := make(map[string]string, len(inst.FormData))
		for k, v := range inst.FormData {
			fd[k] = v
		}
		inst.FormData = fd
	}
	inst.DocumentRefs = append([]string(nil), inst.DocumentRefs...)
	return &inst
}

// InsertCredentialType stores ct and assigns its ID when unset.
func (m *Memory) InsertCredentialType(_ context.Context, ct *models.CredentialType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ct.ID.IsZero() {
		ct.ID = primitive.NewObjectID()
	}
	m.types[ct.ID] = copyType(*ct)
	return nil
}

func (m *Memory) FindCredentialTypeByID(_ context.Context, tenantID, id primitive.ObjectID) (*models.CredentialType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.types[id]
	if !ok || ct.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := copyType(ct)
	return &out, nil
}

func (m *Memory) FindCredentialTypes(_ context.Context, filter CredentialTypeFilter) ([]models.CredentialType, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CredentialType{}
	for _, ct := range m.types {
		if ct.TenantID != filter.TenantID {
			continue
		}
		if filter.Category != "" && ct.Category != filter.Category {
			continue
		}
		if filter.ActiveOnly && !ct.IsActive {
			continue
		}
		out = append(out, copyType(ct))
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].DisplayOrder != out[j].DisplayOrder {
			return out[i].DisplayOrder < out[j].DisplayOrder
		}
		if out[i].Name != out[j].Name {
			return out[i].Name < out[j].Name
		}
		return lessID(out[i].ID, out[j].ID)
	})
	return out, nil
}

func (m *Memory) UpdateCredentialType(_ context.Context, ct models.CredentialType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	existing, ok := m.types[ct.ID]
	if !ok || existing.TenantID != ct.TenantID {
		return ErrNotFound
	}
	m.types[ct.ID] = copyType(ct)
	return nil
}

func (m *Memory) SetDisplayOrder(_ context.Context, tenantID, id primitive.ObjectID, order int, now time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	ct, ok := m.types[id]
	if !ok || ct.TenantID != tenantID {
		return ErrNotFound
	}
	ct.DisplayOrder = order
	ct.UpdatedAt = now
	m.types[id] = ct
	return nil
}

// EnsureInstance returns the instance for ref, creating it under the store
// lock so concurrent callers observe a single instance.
func (m *Memory) EnsureInstance(_ context.Context, tenantID primitive.ObjectID, ref models.SubjectRef, now time.Time) (*models.CredentialInstance, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if id, ok := m.bySubject[ref]; ok {
		return copyInstance(m.instances[id]), false, nil
	}
	inst := models.CredentialInstance{
		ID:         primitive.NewObjectID(),
		TenantID:   tenantID,
		SubjectRef: ref,
		Status:     models.InstanceNotSubmitted,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	m.instances[inst.ID] = inst
	m.bySubject[ref] = inst.ID
	return copyInstance(inst), true, nil
}

func (m *Memory) FindInstance(_ context.Context, tenantID primitive.ObjectID, ref models.SubjectRef) (*models.CredentialInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.bySubject[ref]
	if !ok || m.instances[id].TenantID != tenantID {
		return nil, ErrNotFound
	}
	return copyInstance(m.instances[id]), nil
}

func (m *Memory) FindInstanceByID(_ context.Context, tenantID, id primitive.ObjectID) (*models.CredentialInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok || inst.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return copyInstance(inst), nil
}

func (m *Memory) FindInstancesBySubject(_ context.Context, tenantID primitive.ObjectID, kind models.CredentialCategory, subjectID primitive.ObjectID) ([]models.CredentialInstance, error) {
	return m.findInstances(func(inst models.CredentialInstance) bool {
		return inst.TenantID == tenantID && inst.Kind == kind && inst.SubjectID == subjectID
	}), nil
}

func (m *Memory) FindInstancesByStatus(_ context.Context, tenantID primitive.ObjectID, statuses []models.InstanceStatus) ([]models.CredentialInstance, error) {
	want := make(map[models.InstanceStatus]bool, len(statuses))
	for _, s := range statuses {
		want[s] = true
	}
	return m.findInstances(func(inst models.CredentialInstance) bool {
		return inst.TenantID == tenantID && want[inst.Status]
	}), nil
}

func (m *Memory) findInstances(match func(models.CredentialInstance) bool) []models.CredentialInstance {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.CredentialInstance{}
	for _, inst := range m.instances {
		if match(inst) {
			out = append(out, *copyInstance(inst))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].UpdatedAt.Equal(out[j].UpdatedAt) {
			return out[i].UpdatedAt.Before(out[j].UpdatedAt)
		}
		return lessID(out[i].ID, out[j].ID)
	})
	return out
}

// UpdateReview applies u under the store lock.
func (m *Memory) UpdateReview(_ context.Context, id primitive.ObjectID, u models.ReviewUpdate, now time.Time) (*models.CredentialInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	u.Apply(&inst, now)
	m.instances[id] = inst
	return copyInstance(inst), nil
}

func (m *Memory) MarkSubmitted(_ context.Context, id primitive.ObjectID, sub models.Submission) (*models.CredentialInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	inst, ok := m.instances[id]
	if !ok {
		return nil, ErrNotFound
	}
	at := sub.SubmittedAt
	inst.Status = models.InstanceSubmitted
	inst.SubmittedAt = &at
	inst.FormData = sub.FormData
	inst.DocumentRefs = sub.DocumentRefs
	inst.RejectionReason = ""
	if sub.DriverExpirationDate != nil {
		inst.DriverExpirationDate = sub.DriverExpirationDate
	}
	inst.SubmissionVersion++
	inst.UpdatedAt = at
	stored := copyInstance(inst)
	m.instances[id] = *stored
	return copyInstance(inst), nil
}

func (m *Memory) FindProgress(_ context.Context, instanceID primitive.ObjectID) (*models.Progress, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.progress[instanceID]
	if !ok {
		return nil, ErrNotFound
	}
	return p.Clone(), nil
}

func (m *Memory) UpsertProgress(_ context.Context, p models.Progress) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if existing, ok := m.progress[p.InstanceID]; ok {
		p.ID = existing.ID
	} else if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	m.progress[p.InstanceID] = *p.Clone()
	return nil
}

func (m *Memory) DeleteProgress(_ context.Context, instanceID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.progress, instanceID)
	return nil
}

func (m *Memory) FindAssignmentsByDriver(_ context.Context, tenantID, driverID primitive.ObjectID) ([]models.BrokerAssignment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.BrokerAssignment{}
	for _, a := range m.assignments {
		if a.TenantID == tenantID && a.DriverID == driverID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].BrokerID, out[j].BrokerID) })
	return out, nil
}

func (m *Memory) UpsertAssignment(_ context.Context, a models.BrokerAssignment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := [2]primitive.ObjectID{a.DriverID, a.BrokerID}
	if existing, ok := m.assignments[key]; ok {
		a.ID = existing.ID
	} else if a.ID.IsZero() {
		a.ID = primitive.NewObjectID()
	}
	m.assignments[key] = a
	return nil
}

func (m *Memory) AppendAudit(_ context.Context, e models.AuditEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e.ID.IsZero() {
		e.ID = primitive.NewObjectID()
	}
	m.audit = append(m.audit, e)
	return nil
}

func (m *Memory) FindAuditByInstance(_ context.Context, tenantID, instanceID primitive.ObjectID) ([]models.AuditEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.AuditEntry{}
	for _, e := range m.audit {
		if e.TenantID == tenantID && e.InstanceID == instanceID {
			out = append(out, e)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].At.Before(out[j].At) })
	return out, nil
}

func (m *Memory) InsertDriver(_ context.Context, d *models.Driver) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if d.ID.IsZero() {
		d.ID = primitive.NewObjectID()
	}
	m.drivers[d.ID] = *d
	return nil
}

func (m *Memory) FindDriverByID(_ context.Context, tenantID, id primitive.ObjectID) (*models.Driver, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.drivers[id]
	if !ok || d.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &d, nil
}

func (m *Memory) InsertVehicle(_ context.Context, v *models.Vehicle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}
	m.vehicles[v.ID] = *v
	return nil
}

func (m *Memory) FindVehicleByID(_ context.Context, tenantID, id primitive.ObjectID) (*models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return &v, nil
}

func (m *Memory) FindVehiclesByOwner(_ context.Context, tenantID, driverID primitive.ObjectID) ([]models.Vehicle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Vehicle{}
	for _, v := range m.vehicles {
		if v.TenantID == tenantID && v.OwnerDriverID != nil && *v.OwnerDriverID == driverID {
			out = append(out, v)
		}
	}
	sort.Slice(out, func(i, j int) bool { return lessID(out[i].ID, out[j].ID) })
	return out, nil
}

func (m *Memory) UpdateVehicleStatus(_ context.Context, tenantID, id primitive.ObjectID, status models.VehicleStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.vehicles[id]
	if !ok || v.TenantID != tenantID {
		return ErrNotFound
	}
	v.Status = status
	m.vehicles[id] = v
	return nil
}

func (m *Memory) InsertUser(_ context.Context, user models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Username == user.Username || u.Email == user.Email {
			return ErrDuplicate
		}
	}
	if user.ID.IsZero() {
		user.ID = primitive.NewObjectID()
	}
	now := time.Now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.IsActive = true
	m.users[user.ID] = user
	return nil
}

func (m *Memory) FindUserByID(_ context.Context, id string) (*models.User, error) {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, ErrNotFound
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[objectID]
	if !ok {
		return nil, ErrNotFound
	}
	return &u, nil
}

func (m *Memory) FindUserByUsername(_ context.Context, username string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Username == username })
}

func (m *Memory) FindUserByEmail(_ context.Context, email string) (*models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Email == email })
}

func (m *Memory) findUser(match func(models.User) bool) (*models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if match(u) {
			return &u, nil
		}
	}
	return nil, ErrNotFound
}

func (m *Memory) FindUsersByTenant(_ context.Context, tenantID primitive.ObjectID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.users {
		if u.TenantID == tenantID {
			out = append(out, u)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Username < out[j].Username })
	return out, nil
}

func (m *Memory) UpdateUser(_ context.Context, id string, user models.User) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[objectID]; !ok {
		return ErrNotFound
	}
	user.ID = objectID
	user.UpdatedAt = time.Now()
	m.users[objectID] = user
	return nil
}

func (m *Memory) UpdateLastLogin(_ context.Context, id string) error {
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[objectID]
	if !ok {
		return ErrNotFound
	}
	now := time.Now()
	u.LastLogin = &now
	u.UpdatedAt = now
	m.users[objectID] = u
	return nil
}

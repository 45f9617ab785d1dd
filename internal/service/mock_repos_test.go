package service

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/nclamvn/english-center-cms/internal/model"
	"github.com/nclamvn/english-center-cms/internal/repository"
	pkgerrors "github.com/nclamvn/english-center-cms/pkg/errors"
)

// ── 内存存储：所有 mock repo 共享 ──

type memStore struct {
	classes     map[string]*model.Class
	students    map[string]*model.Student
	enrollments []model.Enrollment
	sessions    map[string]*model.Session
	attendances map[string]*model.AttendanceRecord // key: sessionID/studentID
	logs        []model.AttendanceChangeLog
	plans       []*model.BillingPlan
	charges     map[string]*model.Charge
	audits      []model.AuditLog

	// failUpsert 中的学员保存考勤时返回错误
	failUpsert map[string]bool
	// beforeChargeInsert 在插入收费单前调用，用于模拟并发写入
	beforeChargeInsert func(charge *model.Charge)
}

func newMemStore() *memStore {
	return &memStore{
		classes:     make(map[string]*model.Class),
		students:    make(map[string]*model.Student),
		sessions:    make(map[string]*model.Session),
		attendances: make(map[string]*model.AttendanceRecord),
		charges:     make(map[string]*model.Charge),
		failUpsert:  make(map[string]bool),
	}
}

func (m *memStore) repository() *repository.Repository {
	return &repository.Repository{
		Class:         &mockClassRepo{m},
		Enrollment:    &mockEnrollmentRepo{m},
		Session:       &mockSessionRepo{m},
		Attendance:    &mockAttendanceRepo{m},
		AttendanceLog: &mockAttendanceLogRepo{m},
		BillingPlan:   &mockBillingPlanRepo{m},
		Charge:        &mockChargeRepo{m},
		AuditLog:      &mockAuditLogRepo{m},
		Tx:            &mockTransactor{m},
	}
}

func attendanceKey(sessionID, studentID string) string { return sessionID + "/" + studentID }

// ── Mock Transactor ──

type mockTransactor struct{ m *memStore }

func (t *mockTransactor) WithinTransaction(_ context.Context, fn func(tx *repository.Repository) error) error {
	return fn(t.m.repository())
}

// ── Mock ClassRepository ──

type mockClassRepo struct{ m *memStore }

func (r *mockClassRepo) GetByID(_ context.Context, id string) (*model.Class, error) {
	if c, ok := r.m.classes[id]; ok {
		cp := *c
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

// ── Mock EnrollmentRepository ──

type mockEnrollmentRepo struct{ m *memStore }

func (r *mockEnrollmentRepo) ListActiveByClass(_ context.Context, classID string) ([]model.Enrollment, error) {
	var result []model.Enrollment
	for _, e := range r.m.enrollments {
		if e.ClassID != classID || e.Status != model.EnrollmentStatusActive {
			continue
		}
		if st, ok := r.m.students[e.StudentID]; ok {
			cp := *st
			e.Student = &cp
		}
		result = append(result, e)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Student == nil || result[j].Student == nil {
			return false
		}
		return result[i].Student.FullName < result[j].Student.FullName
	})
	return result, nil
}

// ── Mock SessionRepository ──

type mockSessionRepo struct{ m *memStore }

func (r *mockSessionRepo) Create(_ context.Context, session *model.Session) error {
	if session.SessionID == "" {
		session.SessionID = uuid.NewString()
	}
	cp := *session
	r.m.sessions[session.SessionID] = &cp
	return nil
}

func (r *mockSessionRepo) GetByID(_ context.Context, id string) (*model.Session, error) {
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	if c, ok := r.m.classes[s.ClassID]; ok {
		cc := *c
		cp.Class = &cc
	}
	return &cp, nil
}

func (r *mockSessionRepo) GetByIDForUpdate(_ context.Context, id string) (*model.Session, error) {
	s, ok := r.m.sessions[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *s
	return &cp, nil
}

func (r *mockSessionRepo) ListByClassAndPeriod(_ context.Context, classID string, from, to time.Time) ([]model.Session, error) {
	lo, hi := from.Format(time.DateOnly), to.Format(time.DateOnly)
	var result []model.Session
	for _, s := range r.m.sessions {
		d := s.Date.Format(time.DateOnly)
		if s.ClassID != classID || d < lo || d > hi || s.Status == model.SessionStatusCancelled {
			continue
		}
		result = append(result, *s)
	}
	sort.Slice(result, func(i, j int) bool {
		di, dj := result[i].Date.Format(time.DateOnly), result[j].Date.Format(time.DateOnly)
		if di != dj {
			return di < dj
		}
		return result[i].StartTime < result[j].StartTime
	})
	return result, nil
}

func (r *mockSessionRepo) UpdateLock(_ context.Context, session *model.Session) error {
	s, ok := r.m.sessions[session.SessionID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	s.LockedAt = session.LockedAt
	s.LockedBy = session.LockedBy
	s.LockReason = session.LockReason
	s.UpdatedBy = session.UpdatedBy
	return nil
}

func (r *mockSessionRepo) TransitionStatus(_ context.Context, id, from, to string, updatedBy *string) (bool, error) {
	s, ok := r.m.sessions[id]
	if !ok || s.Status != from {
		return false, nil
	}
	s.Status = to
	s.UpdatedBy = updatedBy
	return true, nil
}

// ── Mock AttendanceRepository ──

type mockAttendanceRepo struct{ m *memStore }

func (r *mockAttendanceRepo) GetBySessionAndStudent(_ context.Context, sessionID, studentID string) (*model.AttendanceRecord, error) {
	if a, ok := r.m.attendances[attendanceKey(sessionID, studentID)]; ok {
		cp := *a
		return &cp, nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockAttendanceRepo) Upsert(_ context.Context, record *model.AttendanceRecord) error {
	if r.m.failUpsert[record.StudentID] {
		return errors.New("connection reset")
	}
	key := attendanceKey(record.SessionID, record.StudentID)
	if existing, ok := r.m.attendances[key]; ok {
		record.AttendanceID = existing.AttendanceID
		record.CreatedAt = existing.CreatedAt
	} else {
		record.AttendanceID = uuid.NewString()
		record.CreatedAt = record.MarkedAt
	}
	record.UpdatedAt = record.MarkedAt
	cp := *record
	r.m.attendances[key] = &cp
	return nil
}

func (r *mockAttendanceRepo) ListBySession(_ context.Context, sessionID string) ([]model.AttendanceRecord, error) {
	var result []model.AttendanceRecord
	for _, a := range r.m.attendances {
		if a.SessionID != sessionID {
			continue
		}
		cp := *a
		if st, ok := r.m.students[a.StudentID]; ok {
			s := *st
			cp.Student = &s
		}
		result = append(result, cp)
	}
	return result, nil
}

func (r *mockAttendanceRepo) ListBySessions(_ context.Context, sessionIDs []string) ([]model.AttendanceRecord, error) {
	ids := make(map[string]bool, len(sessionIDs))
	for _, id := range sessionIDs {
		ids[id] = true
	}
	var result []model.AttendanceRecord
	for _, a := range r.m.attendances {
		if ids[a.SessionID] {
			result = append(result, *a)
		}
	}
	return result, nil
}

// ── Mock AttendanceChangeLogRepository ──

type mockAttendanceLogRepo struct{ m *memStore }

func (r *mockAttendanceLogRepo) Create(_ context.Context, log *model.AttendanceChangeLog) error {
	log.LogID = uuid.NewString()
	r.m.logs = append(r.m.logs, *log)
	return nil
}

func (r *mockAttendanceLogRepo) ListBySession(_ context.Context, sessionID string) ([]model.AttendanceChangeLog, error) {
	byID := make(map[string]*model.AttendanceRecord)
	for _, a := range r.m.attendances {
		byID[a.AttendanceID] = a
	}
	var result []model.AttendanceChangeLog
	// 倒序遍历，ChangedAt 相同时后写入的排前
	for i := len(r.m.logs) - 1; i >= 0; i-- {
		l := r.m.logs[i]
		a, ok := byID[l.AttendanceID]
		if !ok || a.SessionID != sessionID {
			continue
		}
		cp := *a
		if st, ok := r.m.students[a.StudentID]; ok {
			s := *st
			cp.Student = &s
		}
		l.Attendance = &cp
		result = append(result, l)
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].ChangedAt.After(result[j].ChangedAt) })
	return result, nil
}

// ── Mock BillingPlanRepository ──

type mockBillingPlanRepo struct{ m *memStore }

func (r *mockBillingPlanRepo) ListActiveByClass(_ context.Context, classID string) ([]model.BillingPlan, error) {
	var result []model.BillingPlan
	for _, p := range r.m.plans {
		if p.ClassID == classID && p.Status == model.EntityStatusActive {
			result = append(result, *p)
		}
	}
	return result, nil
}

func (r *mockBillingPlanRepo) DeactivateByClass(_ context.Context, classID string, updatedBy *string) error {
	for _, p := range r.m.plans {
		if p.ClassID == classID && p.Status == model.EntityStatusActive {
			p.Status = model.EntityStatusInactive
			p.UpdatedBy = updatedBy
		}
	}
	return nil
}

func (r *mockBillingPlanRepo) Create(_ context.Context, plan *model.BillingPlan) error {
	if plan.BillingPlanID == "" {
		plan.BillingPlanID = uuid.NewString()
	}
	cp := *plan
	r.m.plans = append(r.m.plans, &cp)
	return nil
}

// ── Mock ChargeRepository ──

type mockChargeRepo struct{ m *memStore }

func (r *mockChargeRepo) withStudent(c model.Charge) *model.Charge {
	if st, ok := r.m.students[c.StudentID]; ok {
		s := *st
		c.Student = &s
	}
	return &c
}

func (r *mockChargeRepo) GetByID(_ context.Context, id string) (*model.Charge, error) {
	if c, ok := r.m.charges[id]; ok {
		return r.withStudent(*c), nil
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *mockChargeRepo) Create(_ context.Context, charge *model.Charge) error {
	for _, c := range r.m.charges {
		if c.ChargeID == charge.ChargeID ||
			(c.StudentID == charge.StudentID && c.ClassID == charge.ClassID && c.PeriodStart.Equal(charge.PeriodStart)) {
			return pkgerrors.ErrDuplicate
		}
	}
	cp := *charge
	cp.Student = nil
	r.m.charges[charge.ChargeID] = &cp
	return nil
}

func (r *mockChargeRepo) CreateIfAbsent(ctx context.Context, charge *model.Charge) (bool, error) {
	if hook := r.m.beforeChargeInsert; hook != nil {
		r.m.beforeChargeInsert = nil
		hook(charge)
	}
	if err := r.Create(ctx, charge); err != nil {
		if errors.Is(err, pkgerrors.ErrDuplicate) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (r *mockChargeRepo) UpdateCalculation(_ context.Context, charge *model.Charge) error {
	c, ok := r.m.charges[charge.ChargeID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	c.Amount = charge.Amount
	c.CalcJSON = charge.CalcJSON
	c.PeriodEnd = charge.PeriodEnd
	c.UpdatedBy = charge.UpdatedBy
	c.Version++
	charge.Version++
	return nil
}

func (r *mockChargeRepo) UpdateStatus(_ context.Context, charge *model.Charge) error {
	c, ok := r.m.charges[charge.ChargeID]
	if !ok || c.Version != charge.Version {
		return pkgerrors.ErrOptimisticLock
	}
	c.Status = charge.Status
	c.UpdatedBy = charge.UpdatedBy
	c.Version++
	charge.Version = c.Version
	return nil
}

func (r *mockChargeRepo) List(_ context.Context, filter repository.ChargeFilter, offset, limit int) ([]model.Charge, int64, error) {
	var all []model.Charge
	for _, c := range r.m.charges {
		if filter.ClassID != "" && c.ClassID != filter.ClassID {
			continue
		}
		if filter.StudentID != "" && c.StudentID != filter.StudentID {
			continue
		}
		if filter.PeriodStart != nil && !c.PeriodStart.Equal(*filter.PeriodStart) {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		all = append(all, *r.withStudent(*c))
	}
	sort.Slice(all, func(i, j int) bool { return all[i].StudentID < all[j].StudentID })
	total := int64(len(all))
	if offset >= len(all) {
		return nil, total, nil
	}
	all = all[offset:]
	if limit > 0 && limit < len(all) {
		all = all[:limit]
	}
	return all, total, nil
}

// ── Mock AuditLogRepository ──

type mockAuditLogRepo struct{ m *memStore }

func (r *mockAuditLogRepo) Create(_ context.Context, log *model.AuditLog) error {
	log.AuditLogID = uuid.NewString()
	r.m.audits = append(r.m.audits, *log)
	return nil
}

// ── 测试数据 ──

type fixture struct {
	store    *memStore
	repo     *repository.Repository
	classID  string
	students []string // 按姓名排序
}

// newFixture 一个班级、三名在读学员（另有一名已退班）
func newFixture() *fixture {
	m := newMemStore()
	f := &fixture{store: m, repo: m.repository(), classID: uuid.NewString()}
	m.classes[f.classID] = &model.Class{ClassID: f.classID, Name: "IELTS 6.5 - K12", Status: model.EntityStatusActive}

	for _, name := range []string{"An Nguyen", "Binh Tran", "Chi Le"} {
		id := uuid.NewString()
		m.students[id] = &model.Student{StudentID: id, FullName: name, Status: model.EntityStatusActive}
		m.enrollments = append(m.enrollments, model.Enrollment{
			EnrollmentID: uuid.NewString(), ClassID: f.classID, StudentID: id, Status: model.EnrollmentStatusActive,
		})
		f.students = append(f.students, id)
	}
	dropped := uuid.NewString()
	m.students[dropped] = &model.Student{StudentID: dropped, FullName: "Dung Pham", Status: model.EntityStatusActive}
	m.enrollments = append(m.enrollments, model.Enrollment{
		EnrollmentID: uuid.NewString(), ClassID: f.classID, StudentID: dropped, Status: model.EnrollmentStatusDropped,
	})
	return f
}

func (f *fixture) addSession(date, start, end, status string) *model.Session {
	d, _ := time.Parse(time.DateOnly, date)
	s := &model.Session{
		SessionID: uuid.NewString(),
		ClassID:   f.classID,
		Date:      d,
		StartTime: start,
		EndTime:   end,
		Mode:      model.SessionModeOffline,
		Room:      "P.201",
		Status:    status,
	}
	f.store.sessions[s.SessionID] = s
	return s
}

func (f *fixture) addPlan(price int64, rules model.BillingRules) *model.BillingPlan {
	p := &model.BillingPlan{
		BillingPlanID:   uuid.NewString(),
		ClassID:         f.classID,
		PricePerSession: price,
		Status:          model.EntityStatusActive,
	}
	p.Rules = datatypes.NewJSONType(rules)
	f.store.plans = append(f.store.plans, p)
	return p
}

func (f *fixture) mark(sessionID, studentID string, status model.AttendanceStatus, note *string) *model.AttendanceRecord {
	a := &model.AttendanceRecord{
		AttendanceID: uuid.NewString(),
		SessionID:    sessionID,
		StudentID:    studentID,
		Status:       status,
		Note:         note,
		MarkedBy:     "teacher-001",
		MarkedAt:     time.Date(2026, 3, 1, 8, 0, 0, 0, time.UTC),
	}
	f.store.attendances[attendanceKey(sessionID, studentID)] = a
	return a
}

func (f *fixture) auditsFor(entity, action string) []model.AuditLog {
	var result []model.AuditLog
	for _, a := range f.store.audits {
		if a.Entity == entity && a.Action == action {
			result = append(result, a)
		}
	}
	return result
}

package service

import (
	"context"
	"errors"
	"strings"

	"github.com/rs/zerolog"

	"github.com/iliyamo/trip-report-tracker/internal/external"
	"github.com/iliyamo/trip-report-tracker/internal/model"
	"github.com/iliyamo/trip-report-tracker/internal/repository"
)

// StaffDirectory resolves staff records of the legacy system.
type StaffDirectory interface {
	StaffBySerial(ctx context.Context, serialNo string) (model.Staff, error)
	StaffByCode(ctx context.Context, staffCd string) (model.Staff, error)
}

// UserWithStaff pairs a user with the staff record it is linked to, if
// the record could be resolved.
type UserWithStaff struct {
	model.User
	Staff *model.Staff `json:"staff"`
}

// UserService manages the link between local users and legacy staff.
type UserService struct {
	users UserStore
	staff StaffDirectory
	log   zerolog.Logger
}

func NewUserService(users UserStore, staff StaffDirectory, log zerolog.Logger) *UserService {
	return &UserService{users: users, staff: staff, log: log.With().Str("component", "user_staff").Logger()}
}

// LinkStaffBySerial links userID to the staff member with serialNo.  A
// missing user or staff record is an invalid request.
func (s *UserService) LinkStaffBySerial(ctx context.Context, userID uint64, serialNo string) (UserWithStaff, error) {
	serialNo = strings.TrimSpace(serialNo)
	if serialNo == "" {
		return UserWithStaff{}, invalid("serial_no", "is required")
	}
	st, err := s.lookup(ctx, func(d StaffDirectory) (model.Staff, error) { return d.StaffBySerial(ctx, serialNo) })
	if err != nil {
		return UserWithStaff{}, err
	}
	return s.link(ctx, userID, st)
}

// LinkStaffByCode links userID to the staff member with staffCd.
func (s *UserService) LinkStaffByCode(ctx context.Context, userID uint64, staffCd string) (UserWithStaff, error) {
	staffCd = strings.TrimSpace(staffCd)
	if staffCd == "" {
		return UserWithStaff{}, invalid("staff_cd", "is required")
	}
	st, err := s.lookup(ctx, func(d StaffDirectory) (model.Staff, error) { return d.StaffByCode(ctx, staffCd) })
	if err != nil {
		return UserWithStaff{}, err
	}
	return s.link(ctx, userID, st)
}

func (s *UserService) lookup(ctx context.Context, find func(StaffDirectory) (model.Staff, error)) (model.Staff, error) {
	if s.staff == nil {
		return model.Staff{}, external.ErrUnavailable
	}
	st, err := find(s.staff)
	if errors.Is(err, external.ErrNotFound) {
		return model.Staff{}, invalid("staff", "not found")
	}
	return st, err
}

func (s *UserService) link(ctx context.Context, userID uint64, st model.Staff) (UserWithStaff, error) {
	serial := st.SerialNo
	if err := s.users.SetStaffSerialNo(ctx, userID, &serial); err != nil {
		if errors.Is(err, repository.ErrUserNotFound) {
			return UserWithStaff{}, invalid("user", "not found")
		}
		return UserWithStaff{}, err
	}
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserWithStaff{}, err
	}
	return UserWithStaff{User: u, Staff: &st}, nil
}

// UnlinkStaff clears the staff link of userID.
func (s *UserService) UnlinkStaff(ctx context.Context, userID uint64) error {
	return s.users.SetStaffSerialNo(ctx, userID, nil)
}

// GetWithStaff returns the user and its linked staff record.  Failing to
// resolve the staff record degrades to a nil Staff.
func (s *UserService) GetWithStaff(ctx context.Context, userID uint64) (UserWithStaff, error) {
	u, err := s.users.GetByID(ctx, userID)
	if err != nil {
		return UserWithStaff{}, err
	}
	return UserWithStaff{User: u, Staff: s.resolve(ctx, u)}, nil
}

// ListWithStaff returns every user with its linked staff record.
func (s *UserService) ListWithStaff(ctx context.Context) ([]UserWithStaff, error) {
	users, err := s.users.List(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]UserWithStaff, 0, len(users))
	for _, u := range users {
		out = append(out, UserWithStaff{User: u, Staff: s.resolve(ctx, u)})
	}
	return out, nil
}

func (s *UserService) resolve(ctx context.Context, u model.User) *model.Staff {
	if u.StaffSerialNo == nil || *u.StaffSerialNo == "" || s.staff == nil {
		return nil
	}
	st, err := s.staff.StaffBySerial(ctx, *u.StaffSerialNo)
	if err != nil {
		s.log.Warn().Err(err).Uint64("user_id", u.ID).Str("serial_no", *u.StaffSerialNo).Msg("staff lookup failed")
		return nil
	}
	return &st
}

package service

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"curaledger/internal/events"
	"curaledger/internal/events/mocks"
	"curaledger/internal/verifier/store"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/requestcontext"
)

type VerifierServiceSuite struct {
	suite.Suite
	ctrl      *gomock.Controller
	publisher *mocks.MockPublisher
	store     *store.InMemory
	service   *Service
	ctx       context.Context
	admin     domain.Actor
}

func TestVerifierServiceSuite(t *testing.T) {
	suite.Run(t, new(VerifierServiceSuite))
}

func (s *VerifierServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.publisher = mocks.NewMockPublisher(s.ctrl)
	s.store = store.NewInMemory()
	svc, err := New(s.store,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(s.publisher),
	)
	s.Require().NoError(err)
	s.service = svc
	s.ctx = requestcontext.WithTime(context.Background(), time.Date(2026, 1, 10, 9, 0, 0, 0, time.UTC))
	s.admin = domain.Actor{ID: "admin", Roles: []domain.Role{domain.RoleAdmin}}
}

func (s *VerifierServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *VerifierServiceSuite) expectEvent(t events.Type, subject string) {
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, e events.Event) error {
			s.Equal(t, e.Type)
			s.Equal(subject, e.Subject)
			return nil
		})
}

func (s *VerifierServiceSuite) TestNew() {
	_, err := New(nil)
	s.Require().Error(err)
	s.Contains(err.Error(), "verifier store is required")
}

func (s *VerifierServiceSuite) TestAdd() {
	s.Run("admin adds an active verifier", func() {
		s.expectEvent(events.VerifierAdded, "dr-ada")
		v, err := s.service.Add(s.ctx, s.admin, "dr-ada", " doctor ")
		s.Require().NoError(err)
		s.True(v.Active)
		s.Equal("doctor", v.Kind)

		active, err := s.service.IsActive(s.ctx, "dr-ada")
		s.Require().NoError(err)
		s.True(active)
	})

	s.Run("re-adding an active verifier conflicts", func() {
		_, err := s.service.Add(s.ctx, s.admin, "dr-ada", "doctor")
		s.True(dErrors.HasCode(err, dErrors.CodeConflict))
	})

	s.Run("non-admin is unauthorized", func() {
		donor := domain.Actor{ID: "donor-1", Roles: []domain.Role{domain.RoleDonor}}
		_, err := s.service.Add(s.ctx, donor, "dr-bob", "doctor")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("empty kind is a validation error", func() {
		_, err := s.service.Add(s.ctx, s.admin, "dr-bob", "  ")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})
}

func (s *VerifierServiceSuite) TestRemoveAndReactivate() {
	s.expectEvent(events.VerifierAdded, "ngo-1")
	_, err := s.service.Add(s.ctx, s.admin, "ngo-1", "ngo")
	s.Require().NoError(err)

	s.expectEvent(events.VerifierRemoved, "ngo-1")
	v, err := s.service.Remove(s.ctx, s.admin, "ngo-1")
	s.Require().NoError(err)
	s.False(v.Active)

	count, err := s.service.ActiveCount(s.ctx)
	s.Require().NoError(err)
	s.Zero(count)

	_, err = s.service.Remove(s.ctx, s.admin, "ngo-1")
	s.True(dErrors.HasCode(err, dErrors.CodeConflict), "removing twice conflicts")

	later := requestcontext.WithTime(s.ctx, requestcontext.Now(s.ctx).Add(time.Hour))
	s.expectEvent(events.VerifierAdded, "ngo-1")
	v, err = s.service.Add(later, s.admin, "ngo-1", "hospital")
	s.Require().NoError(err)
	s.True(v.Active)
	s.Equal("hospital", v.Kind)
	s.True(v.UpdatedAt.After(v.AddedAt), "re-activation keeps the original added_at")
}

func (s *VerifierServiceSuite) TestRemoveUnknown() {
	_, err := s.service.Remove(s.ctx, s.admin, "ghost")
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))

	active, err := s.service.IsActive(s.ctx, "ghost")
	s.Require().NoError(err)
	s.False(active)
}

func (s *VerifierServiceSuite) TestListAndCount() {
	for _, id := range []domain.ActorID{"v3", "v1", "v2"} {
		s.expectEvent(events.VerifierAdded, string(id))
		_, err := s.service.Add(s.ctx, s.admin, id, "doctor")
		s.Require().NoError(err)
	}
	s.expectEvent(events.VerifierRemoved, "v2")
	_, err := s.service.Remove(s.ctx, s.admin, "v2")
	s.Require().NoError(err)

	all, err := s.service.List(s.ctx)
	s.Require().NoError(err)
	s.Require().Len(all, 3)
	s.Equal(domain.ActorID("v1"), all[0].ID)

	count, err := s.service.ActiveCount(s.ctx)
	s.Require().NoError(err)
	s.Equal(uint64(2), count)
}

package service

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	donorstore "curaledger/internal/donation/store"
	"curaledger/internal/events"
	"curaledger/internal/ledger/models"
	"curaledger/internal/ledger/store"
	"curaledger/internal/transfer"
	"curaledger/internal/transfer/mocks"
	"curaledger/pkg/domain"
	dErrors "curaledger/pkg/domain-errors"
	"curaledger/pkg/requestcontext"
)

type DonationServiceSuite struct {
	suite.Suite
	ctrl     *gomock.Controller
	executor *mocks.MockExecutor
	cases    *store.InMemory
	donors   *donorstore.InMemory
	recorder *events.Recorder
	service  *Service
	ctx      context.Context
	now      time.Time
	donor    domain.Actor
	admin    domain.Actor
}

func TestDonationServiceSuite(t *testing.T) {
	suite.Run(t, new(DonationServiceSuite))
}

func (s *DonationServiceSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())
	s.executor = mocks.NewMockExecutor(s.ctrl)
	s.cases = store.NewInMemory()
	s.donors = donorstore.NewInMemory()
	s.recorder = events.NewRecorder()
	s.service = s.newService(models.DefaultPolicy())
	s.now = time.Date(2026, 6, 1, 10, 0, 0, 0, time.UTC)
	s.ctx = requestcontext.WithTime(context.Background(), s.now)
	s.donor = domain.Actor{ID: "donor-1", Roles: []domain.Role{domain.RoleDonor}}
	s.admin = domain.Actor{ID: "admin", Roles: []domain.Role{domain.RoleAdmin}}
}

func (s *DonationServiceSuite) TearDownTest() {
	s.ctrl.Finish()
}

func (s *DonationServiceSuite) newService(policy models.Policy) *Service {
	svc, err := New(s.cases, s.donors, s.executor,
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithPublisher(s.recorder),
		WithPolicy(policy),
	)
	s.Require().NoError(err)
	return svc
}

// openCase stores a case and, when verified is set, moves it to Verified with
// an open escrow the way a passing vote does.
func (s *DonationServiceSuite) openCase(id domain.CaseID, verified bool) {
	c, err := models.NewCase(id, domain.ActorID("patient-"+string(id)), "Dialysis", "", 10_000_000, s.now)
	s.Require().NoError(err)
	s.Require().NoError(s.cases.CreateIfPatientAvailable(context.Background(), c))
	if !verified {
		return
	}
	_, err = s.cases.Execute(context.Background(), id, func(agg *models.Aggregate) error {
		agg.Case.ApplyDecision(models.CaseStatusVerified, s.now)
		agg.OpenEscrow(s.now)
		return nil
	})
	s.Require().NoError(err)
}

func (s *DonationServiceSuite) donate(id domain.CaseID, asset domain.AssetID, amount uint64) (*Result, error) {
	return s.service.RecordDonation(s.ctx, s.donor, DonateRequest{CaseID: id, Asset: asset, Amount: amount})
}

func (s *DonationServiceSuite) expectTransfer() {
	s.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(nil)
}

func (s *DonationServiceSuite) TestNew() {
	_, err := New(nil, s.donors, s.executor)
	s.Error(err)
	_, err = New(s.cases, nil, s.executor)
	s.Error(err)
	_, err = New(s.cases, s.donors, nil)
	s.Error(err)
}

func (s *DonationServiceSuite) TestFundingThreshold() {
	s.openCase("CASE0001", true)

	s.Run("one below target plus slack is not funded", func() {
		s.expectTransfer()
		res, err := s.donate("CASE0001", domain.NativeAsset, 10_999_999)
		s.Require().NoError(err)
		s.False(res.Case.Funded)
	})

	s.Run("reaching target plus slack funds the case", func() {
		s.expectTransfer()
		res, err := s.donate("CASE0001", domain.NativeAsset, 1)
		s.Require().NoError(err)
		s.True(res.Case.Funded)
		s.Equal(uint64(11_000_000), res.Escrow.Balances.Native)
	})

	s.Run("funded case refuses further donations", func() {
		_, err := s.donate("CASE0001", domain.NativeAsset, 1)
		s.True(dErrors.HasCode(err, dErrors.CodeCaseFunded))
	})
}

func (s *DonationServiceSuite) TestTransferIntent() {
	s.openCase("CASE0001", true)
	s.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).DoAndReturn(
		func(_ context.Context, intents []transfer.Intent) error {
			s.Require().Len(intents, 1)
			s.Equal("donor-1", intents[0].From)
			s.Equal(models.EscrowAccount("CASE0001"), intents[0].To)
			s.Equal(domain.AssetID("usdc"), intents[0].Asset)
			s.Equal(uint64(250), intents[0].Amount)
			s.NotEmpty(intents[0].Reference)
			return nil
		})

	res, err := s.donate("CASE0001", "usdc", 250)
	s.Require().NoError(err)
	s.Equal(res.Donation.ID.String(), s.recorder.OfType(events.DonationRecorded)[0].Subject)
}

func (s *DonationServiceSuite) TestRaisedIsExactSumPerAsset() {
	s.openCase("CASE0001", true)
	donations := []struct {
		asset  domain.AssetID
		amount uint64
	}{
		{domain.NativeAsset, 1_000},
		{"usdc", 300},
		{"eurc", 40},
		{"usdc", 700},
		{domain.NativeAsset, 5},
	}
	for _, d := range donations {
		s.expectTransfer()
		_, err := s.donate("CASE0001", d.asset, d.amount)
		s.Require().NoError(err)
	}

	agg, err := s.cases.Load(context.Background(), "CASE0001")
	s.Require().NoError(err)
	s.Equal(uint64(1_005), agg.Case.Raised.Native)
	s.Equal(uint64(1_000), agg.Case.Raised.Of("usdc"))
	s.Equal(uint64(40), agg.Case.Raised.Of("eurc"))
	s.Equal(agg.Case.Raised, agg.Escrow.Balances)
	s.Equal([]domain.AssetID{domain.NativeAsset, "usdc", "eurc"}, agg.Case.Raised.Assets())

	list, err := s.cases.ListDonations(context.Background(), "CASE0001")
	s.Require().NoError(err)
	s.Len(list, len(donations))
}

func (s *DonationServiceSuite) TestPreconditions() {
	s.openCase("CASE0001", false)

	s.Run("unverified case", func() {
		_, err := s.donate("CASE0001", domain.NativeAsset, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeCaseNotVerified))
	})

	s.Run("zero amount", func() {
		_, err := s.donate("CASE0001", domain.NativeAsset, 0)
		s.True(dErrors.HasCode(err, dErrors.CodeInvalidAmount))
	})

	s.Run("unknown case", func() {
		_, err := s.donate("CASE0404", domain.NativeAsset, 10)
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("anonymous donor", func() {
		_, err := s.service.RecordDonation(s.ctx, domain.Actor{}, DonateRequest{CaseID: "CASE0001", Asset: domain.NativeAsset, Amount: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("token capacity", func() {
		s.openCase("CASE0002", true)
		policy := models.DefaultPolicy()
		policy.MaxTokenAssets = 1
		svc := s.newService(policy)

		s.expectTransfer()
		_, err := svc.RecordDonation(s.ctx, s.donor, DonateRequest{CaseID: "CASE0002", Asset: "usdc", Amount: 1})
		s.Require().NoError(err)
		_, err = svc.RecordDonation(s.ctx, s.donor, DonateRequest{CaseID: "CASE0002", Asset: "eurc", Amount: 1})
		s.True(dErrors.HasCode(err, dErrors.CodeCapacityExceeded))
	})
}

func (s *DonationServiceSuite) TestTransferFailureAbortsDonation() {
	s.openCase("CASE0001", true)
	s.executor.EXPECT().Execute(gomock.Any(), gomock.Any()).Return(errors.New("custody offline"))

	_, err := s.donate("CASE0001", domain.NativeAsset, 500)
	s.True(dErrors.HasCode(err, dErrors.CodeInternal))

	agg, err := s.cases.Load(context.Background(), "CASE0001")
	s.Require().NoError(err)
	s.Equal(uint64(0), agg.Case.Raised.Native)
	s.Equal(uint64(0), agg.Escrow.Balances.Native)
	list, err := s.cases.ListDonations(context.Background(), "CASE0001")
	s.Require().NoError(err)
	s.Empty(list)
	s.Empty(s.recorder.OfType(events.DonationRecorded))

	_, err = s.service.GetDonor(s.ctx, s.donor.ID)
	s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
}

func (s *DonationServiceSuite) TestDonorBookkeeping() {
	s.Run("totals accumulate across cases", func() {
		s.openCase("CASE0001", true)
		s.openCase("CASE0002", true)
		for _, id := range []domain.CaseID{"CASE0001", "CASE0002", "CASE0001"} {
			s.expectTransfer()
			res, err := s.donate(id, domain.NativeAsset, 100)
			s.Require().NoError(err)
			s.NoError(res.DonorErr)
		}
		d, err := s.service.GetDonor(s.ctx, s.donor.ID)
		s.Require().NoError(err)
		s.Equal(uint64(300), d.TotalDonated)
		s.Equal([]domain.CaseID{"CASE0001", "CASE0002"}, d.Cases)
	})

	s.Run("full donor record keeps the donation", func() {
		s.SetupTest()
		policy := models.DefaultPolicy()
		policy.MaxDonorCases = 1
		s.service = s.newService(policy)
		s.openCase("CASE0001", true)
		s.openCase("CASE0002", true)

		s.expectTransfer()
		_, err := s.donate("CASE0001", domain.NativeAsset, 100)
		s.Require().NoError(err)

		s.expectTransfer()
		res, err := s.donate("CASE0002", domain.NativeAsset, 100)
		s.Require().NoError(err)
		s.True(dErrors.HasCode(res.DonorErr, dErrors.CodeCapacityExceeded))
		s.Equal(uint64(100), res.Case.Raised.Native)
		s.Require().NotNil(res.Donor)
		s.Equal(uint64(200), res.Donor.TotalDonated)

		d, err := s.service.GetDonor(s.ctx, s.donor.ID)
		s.Require().NoError(err)
		s.Equal(uint64(200), d.TotalDonated)
		s.Equal([]domain.CaseID{"CASE0001"}, d.Cases)
	})
}

func (s *DonationServiceSuite) TestRecognizeDonor() {
	s.openCase("CASE0001", true)
	s.expectTransfer()
	_, err := s.donate("CASE0001", domain.NativeAsset, 100)
	s.Require().NoError(err)

	s.Run("non-admin", func() {
		_, err := s.service.RecognizeDonor(s.ctx, s.donor, s.donor.ID, "CASE0001", "Gold")
		s.True(dErrors.HasCode(err, dErrors.CodeUnauthorized))
	})

	s.Run("unknown donor", func() {
		_, err := s.service.RecognizeDonor(s.ctx, s.admin, "donor-404", "CASE0001", "Gold")
		s.True(dErrors.HasCode(err, dErrors.CodeNotFound))
	})

	s.Run("case the donor never supported", func() {
		_, err := s.service.RecognizeDonor(s.ctx, s.admin, s.donor.ID, "CASE0009", "Gold")
		s.True(dErrors.HasCode(err, dErrors.CodeValidation))
	})

	s.Run("label is stored and announced", func() {
		r, err := s.service.RecognizeDonor(s.ctx, s.admin, s.donor.ID, "CASE0001", " Gold ")
		s.Require().NoError(err)
		s.Equal("Gold", r.Label)
		s.Equal(s.admin.ID, r.GrantedBy)

		d, err := s.service.GetDonor(s.ctx, s.donor.ID)
		s.Require().NoError(err)
		s.Len(d.Recognitions, 1)
		s.Len(s.recorder.OfType(events.DonorRecognized), 1)
	})
}

//go:build integration

package store_test

import (
	"context"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"curaledger/internal/donation/models"
	"curaledger/internal/donation/store"
	"curaledger/pkg/domain"
	"curaledger/pkg/testutil/containers"
)

type PostgresStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	store    *store.PostgresStore
	now      time.Time
}

func TestPostgresStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(PostgresStoreSuite))
}

func (s *PostgresStoreSuite) SetupSuite() {
	mgr := containers.GetManager()
	s.postgres = mgr.GetPostgres(s.T())
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *PostgresStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), "donor_recognitions", "donor_cases", "donors"))
	s.now = time.Now().UTC().Truncate(time.Microsecond)
}

func (s *PostgresStoreSuite) contribute(id domain.ActorID, caseID domain.CaseID, amount uint64) error {
	_, err := s.store.Mutate(context.Background(), id, func(current *models.Donor) (*models.Donor, error) {
		if current == nil {
			current = models.NewDonor(id, s.now)
		}
		if err := current.ApplyContribution(caseID, amount, 20, s.now); err != nil {
			return nil, err
		}
		return current, nil
	})
	return err
}

func (s *PostgresStoreSuite) TestContributionsAndRecognition() {
	ctx := context.Background()
	s.Require().NoError(s.contribute("donor-1", "CASE0002", 100))
	s.Require().NoError(s.contribute("donor-1", "CASE0001", 50))
	s.Require().NoError(s.contribute("donor-1", "CASE0002", math.MaxUint64-150))

	_, err := s.store.Mutate(ctx, "donor-1", func(current *models.Donor) (*models.Donor, error) {
		if _, err := current.Recognize("CASE0001", "Gold", "admin", s.now); err != nil {
			return nil, err
		}
		return current, nil
	})
	s.Require().NoError(err)

	d, err := s.store.FindByID(ctx, "donor-1")
	s.Require().NoError(err)
	s.Equal(uint64(math.MaxUint64), d.TotalDonated)
	s.Equal([]domain.CaseID{"CASE0002", "CASE0001"}, d.Cases, "first-donation order")
	s.Require().Len(d.Recognitions, 1)
	s.Equal("Gold", d.Recognitions[0].Label)

	s.Run("overflow leaves the total unchanged", func() {
		s.Error(s.contribute("donor-1", "CASE0001", 1))
		again, err := s.store.FindByID(ctx, "donor-1")
		s.Require().NoError(err)
		s.Equal(uint64(math.MaxUint64), again.TotalDonated)
	})
}

func (s *PostgresStoreSuite) TestMissingDonor() {
	_, err := s.store.FindByID(context.Background(), "donor-nobody")
	s.ErrorIs(err, store.ErrNotFound)
}

func (s *PostgresStoreSuite) TestConcurrentFirstContributions() {
	const goroutines = 12
	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s.NoError(s.contribute("donor-race", domain.CaseID(fmt.Sprintf("CASE%04d", i%3+1)), 10))
		}(i)
	}
	wg.Wait()

	d, err := s.store.FindByID(context.Background(), "donor-race")
	s.Require().NoError(err)
	s.Equal(uint64(goroutines*10), d.TotalDonated)
	s.Len(d.Cases, 3)
}

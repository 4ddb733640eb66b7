package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/core/services"
	"github.com/SscSPs/money_transfer_saga/internal/repositories/memory"
	"github.com/stretchr/testify/suite"
)

type AuditServiceTestSuite struct {
	suite.Suite
	store   *memory.Store
	service portssvc.AuditSvc
}

func (suite *AuditServiceTestSuite) SetupTest() {
	suite.store = memory.NewStore()
	suite.service = services.NewAuditService(suite.store.Provider(), "audit-test")
}

func balanceEvent(t *testing.T, prev, next string, version int64) domain.Event {
	t.Helper()
	evt, err := domain.NewEvent(domain.BalanceUpdated, "ACC1", "TXN1", domain.BalanceUpdatedV1{
		AccountNumber:   "ACC1",
		TransactionID:   "TXN1",
		PreviousBalance: dec(prev),
		NewBalance:      dec(next),
		Amount:          dec(next).Sub(dec(prev)),
		OperationType:   domain.OperationFor(dec(next).Sub(dec(prev))),
		Version:         version,
	}, time.Now())
	if err != nil {
		t.Fatal(err)
	}
	return evt
}

func (suite *AuditServiceTestSuite) TestHandleBalanceUpdated_BuildsChain() {
	ctx := context.Background()

	suite.Require().NoError(suite.service.HandleBalanceUpdated(ctx, balanceEvent(suite.T(), "100", "70", 1)))
	suite.Require().NoError(suite.service.HandleBalanceUpdated(ctx, balanceEvent(suite.T(), "70", "100", 2)))

	audits := suite.store.Audits()
	suite.Require().Len(audits, 2)
	suite.False(audits[0].ChainBroken)
	suite.False(audits[1].ChainBroken)
	suite.Equal(domain.Credit, audits[1].OperationType)
}

func (suite *AuditServiceTestSuite) TestHandleBalanceUpdated_FlagsBrokenChain() {
	ctx := context.Background()

	suite.Require().NoError(suite.service.HandleBalanceUpdated(ctx, balanceEvent(suite.T(), "100", "70", 1)))
	suite.Require().NoError(suite.service.HandleBalanceUpdated(ctx, balanceEvent(suite.T(), "60", "50", 3)))

	audits := suite.store.Audits()
	suite.Require().Len(audits, 2)
	suite.True(audits[1].ChainBroken)
}

func (suite *AuditServiceTestSuite) TestHandleBalanceUpdated_Deduplicates() {
	ctx := context.Background()
	evt := balanceEvent(suite.T(), "100", "70", 1)

	suite.Require().NoError(suite.service.HandleBalanceUpdated(ctx, evt))
	suite.Require().NoError(suite.service.HandleBalanceUpdated(ctx, evt))

	suite.Len(suite.store.Audits(), 1)
}

func (suite *AuditServiceTestSuite) TestHandlers_RejectWrongPayload() {
	ctx := context.Background()
	created, err := domain.NewEvent(domain.AccountCreated, "ACC1", "", domain.AccountCreatedV1{AccountNumber: "ACC1"}, time.Now())
	suite.Require().NoError(err)

	suite.ErrorIs(suite.service.HandleBalanceUpdated(ctx, created), apperrors.ErrValidation)
	suite.NoError(suite.service.HandleAccountCreated(ctx, created))

	created.SchemaVersion = 9
	suite.ErrorIs(suite.service.HandleAccountCreated(ctx, created), apperrors.ErrValidation)
}

func TestAuditServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AuditServiceTestSuite))
}

package services_test

import (
	"context"
	"testing"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portssvc "github.com/SscSPs/money_transfer_saga/internal/core/ports/services"
	"github.com/SscSPs/money_transfer_saga/internal/core/services"
	"github.com/SscSPs/money_transfer_saga/internal/dto"
	"github.com/SscSPs/money_transfer_saga/internal/repositories/memory"
	"github.com/stretchr/testify/suite"
)

type AccountServiceTestSuite struct {
	suite.Suite
	store   *memory.Store
	service portssvc.AccountSvcFacade
}

func (suite *AccountServiceTestSuite) SetupTest() {
	suite.store = memory.NewStore()
	ledger := services.NewLedgerService(suite.store.Provider(), services.WithLedgerRetry(5, time.Microsecond))
	suite.service = services.NewAccountService(suite.store.Provider(), ledger)
}

func (suite *AccountServiceTestSuite) TestCreateAccount_Success() {
	ctx := context.Background()
	req := dto.CreateAccountRequest{
		CustomerID:     "CUST1",
		AccountType:    domain.Savings,
		Currency:       "EUR",
		InitialBalance: dec("50"),
	}

	account, err := suite.service.CreateAccount(ctx, req)

	suite.Require().NoError(err)
	suite.Regexp(`^ACC[0-9A-F]{12}$`, account.AccountNumber)
	suite.Equal(domain.AccountActive, account.Status)
	suite.Equal(int64(0), account.Version)
	suite.True(dec("50").Equal(account.Balance))

	stored, err := suite.service.GetAccountByNumber(ctx, account.AccountNumber)
	suite.Require().NoError(err)
	suite.Equal(account.AccountID, stored.AccountID)
	suite.Equal([]domain.EventType{domain.AccountCreated}, eventTypes(suite.store))
}

func (suite *AccountServiceTestSuite) TestCreateAccount_Validation() {
	ctx := context.Background()
	tests := []struct {
		name string
		req  dto.CreateAccountRequest
	}{
		{"missing customer", dto.CreateAccountRequest{AccountType: domain.Checking, Currency: "USD"}},
		{"bad type", dto.CreateAccountRequest{CustomerID: "C", AccountType: "CRYPTO", Currency: "USD"}},
		{"bad currency", dto.CreateAccountRequest{CustomerID: "C", AccountType: domain.Checking, Currency: "US"}},
		{"negative balance", dto.CreateAccountRequest{CustomerID: "C", AccountType: domain.Checking, Currency: "USD", InitialBalance: dec("-1")}},
		{"sub-scale balance", dto.CreateAccountRequest{CustomerID: "C", AccountType: domain.Checking, Currency: "USD", InitialBalance: dec("0.00001")}},
	}

	for _, tt := range tests {
		suite.Run(tt.name, func() {
			_, err := suite.service.CreateAccount(ctx, tt.req)
			suite.ErrorIs(err, apperrors.ErrValidation)
		})
	}
	suite.Empty(suite.store.OutboxRecords())
}

func (suite *AccountServiceTestSuite) TestGetAccountByNumber_NotFound() {
	_, err := suite.service.GetAccountByNumber(context.Background(), "ACCMISSING")
	suite.ErrorIs(err, apperrors.ErrNotFound)
}

func (suite *AccountServiceTestSuite) TestListAccountsByCustomer() {
	ctx := context.Background()
	seedAccount(suite.T(), suite.store, "ACC1", "0", domain.AccountActive)
	seedAccount(suite.T(), suite.store, "ACC2", "0", domain.AccountActive)

	accounts, err := suite.service.ListAccountsByCustomer(ctx, "CUST1")
	suite.Require().NoError(err)
	suite.Len(accounts, 2)

	none, err := suite.service.ListAccountsByCustomer(ctx, "OTHER")
	suite.Require().NoError(err)
	suite.Empty(none)

	_, err = suite.service.ListAccountsByCustomer(ctx, "")
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *AccountServiceTestSuite) TestUpdateAccountStatus() {
	ctx := context.Background()
	seedAccount(suite.T(), suite.store, "ACC1", "0", domain.AccountActive)

	updated, err := suite.service.UpdateAccountStatus(ctx, "ACC1", "SUSPENDED")
	suite.Require().NoError(err)
	suite.Equal(domain.AccountSuspended, updated.Status)
	suite.Equal(int64(0), updated.Version, "status changes leave the balance version alone")

	// same status is accepted without a new event
	_, err = suite.service.UpdateAccountStatus(ctx, "ACC1", "SUSPENDED")
	suite.Require().NoError(err)
	suite.Equal([]domain.EventType{domain.AccountStatusUpdated}, eventTypes(suite.store))

	_, err = suite.service.UpdateAccountStatus(ctx, "ACC1", "CLOSED")
	suite.Require().NoError(err)
	_, err = suite.service.UpdateAccountStatus(ctx, "ACC1", "ACTIVE")
	suite.ErrorIs(err, apperrors.ErrInvalidTransition)
	_, err = suite.service.UpdateAccountStatus(ctx, "ACC1", "FROZEN")
	suite.ErrorIs(err, apperrors.ErrValidation)
}

func (suite *AccountServiceTestSuite) TestAdjustBalance() {
	ctx := context.Background()
	seedAccount(suite.T(), suite.store, "ACC1", "10", domain.AccountActive)

	account, err := suite.service.AdjustBalance(ctx, "ACC1", dto.AdjustBalanceRequest{Amount: dec("15"), OperationType: domain.Credit, Reference: "DEP-1"})
	suite.Require().NoError(err)
	suite.True(dec("25").Equal(account.Balance))

	// retried deposit with the same reference is applied once
	account, err = suite.service.AdjustBalance(ctx, "ACC1", dto.AdjustBalanceRequest{Amount: dec("15"), OperationType: domain.Credit, Reference: "DEP-1"})
	suite.Require().NoError(err)
	suite.True(dec("25").Equal(account.Balance))

	account, err = suite.service.AdjustBalance(ctx, "ACC1", dto.AdjustBalanceRequest{Amount: dec("5"), OperationType: domain.Debit})
	suite.Require().NoError(err)
	suite.True(dec("20").Equal(account.Balance))

	_, err = suite.service.AdjustBalance(ctx, "ACC1", dto.AdjustBalanceRequest{Amount: dec("21"), OperationType: domain.Debit})
	suite.ErrorIs(err, apperrors.ErrInsufficientFunds)
	_, err = suite.service.AdjustBalance(ctx, "ACC1", dto.AdjustBalanceRequest{Amount: dec("0"), OperationType: domain.Credit})
	suite.ErrorIs(err, apperrors.ErrValidation)
	_, err = suite.service.AdjustBalance(ctx, "ACC1", dto.AdjustBalanceRequest{Amount: dec("1"), OperationType: "REVERSE"})
	suite.ErrorIs(err, apperrors.ErrValidation)
	_, err = suite.service.AdjustBalance(ctx, "ACC1", dto.AdjustBalanceRequest{Amount: dec("1.00005"), OperationType: domain.Credit})
	suite.ErrorIs(err, apperrors.ErrValidation)
	suite.True(dec("20").Equal(balanceOf(suite.T(), suite.store, "ACC1")))
}

func (suite *AccountServiceTestSuite) TestDeleteAccount() {
	ctx := context.Background()
	seedAccount(suite.T(), suite.store, "ACC1", "0", domain.AccountActive)
	seedAccount(suite.T(), suite.store, "ACC2", "0", domain.AccountActive)

	now := time.Now().UTC()
	suite.Require().NoError(suite.store.SaveTransaction(ctx, domain.Transaction{
		TransactionID:     "TXN1",
		FromAccountNumber: "ACC1",
		ToAccountNumber:   "ACC3",
		Amount:            dec("1"),
		Currency:          "USD",
		Status:            domain.StatusDebited,
		AuditFields:       domain.AuditFields{CreatedAt: now, UpdatedAt: now},
	}))

	err := suite.service.DeleteAccount(ctx, "ACC1")
	suite.ErrorIs(err, apperrors.ErrAccountInUse)

	suite.Require().NoError(suite.service.DeleteAccount(ctx, "ACC2"))
	_, err = suite.service.GetAccountByNumber(ctx, "ACC2")
	suite.ErrorIs(err, apperrors.ErrNotFound)

	suite.ErrorIs(suite.service.DeleteAccount(ctx, "ACC2"), apperrors.ErrNotFound)
}

func TestAccountServiceTestSuite(t *testing.T) {
	suite.Run(t, new(AccountServiceTestSuite))
}

// Package memory is a process-local implementation of every repository port, used for local
// mode and service tests. A single mutex serializes units of work; a failed unit of work is
// rolled back by restoring a snapshot.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/SscSPs/money_transfer_saga/internal/apperrors"
	"github.com/SscSPs/money_transfer_saga/internal/core/domain"
	portsrepo "github.com/SscSPs/money_transfer_saga/internal/core/ports/repositories"
	"github.com/shopspring/decimal"
)

type txKey struct{}

type state struct {
	accounts     map[string]domain.Account
	transactions map[string]domain.Transaction
	entries      map[domain.StepKey]domain.LedgerEntry
	outbox       []domain.OutboxRecord
	processed    map[string]time.Time
	audits       []domain.BalanceAudit
	deadLetters  []domain.DeadLetter
}

func newState() *state {
	return &state{
		accounts:     make(map[string]domain.Account),
		transactions: make(map[string]domain.Transaction),
		entries:      make(map[domain.StepKey]domain.LedgerEntry),
		processed:    make(map[string]time.Time),
	}
}

func (s *state) clone() *state {
	c := &state{
		accounts:     make(map[string]domain.Account, len(s.accounts)),
		transactions: make(map[string]domain.Transaction, len(s.transactions)),
		entries:      make(map[domain.StepKey]domain.LedgerEntry, len(s.entries)),
		outbox:       append([]domain.OutboxRecord(nil), s.outbox...),
		processed:    make(map[string]time.Time, len(s.processed)),
		audits:       append([]domain.BalanceAudit(nil), s.audits...),
		deadLetters:  append([]domain.DeadLetter(nil), s.deadLetters...),
	}
	for k, v := range s.accounts {
		c.accounts[k] = v
	}
	for k, v := range s.transactions {
		c.transactions[k] = v
	}
	for k, v := range s.entries {
		c.entries[k] = v
	}
	for k, v := range s.processed {
		c.processed[k] = v
	}
	return c
}

// Store holds all state in memory.
type Store struct {
	mu    sync.Mutex
	state *state
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{state: newState()}
}

// Provider exposes the store through every repository port.
func (s *Store) Provider() portsrepo.RepositoryProvider {
	return portsrepo.RepositoryProvider{
		UnitOfWork:      s,
		AccountRepo:     s,
		TransactionRepo: s,
		LedgerRepo:      s,
		OutboxRepo:      s,
		ProcessedRepo:   s,
		AuditRepo:       s,
		DeadLetterRepo:  s,
	}
}

var (
	_ portsrepo.UnitOfWork                  = (*Store)(nil)
	_ portsrepo.AccountRepositoryFacade     = (*Store)(nil)
	_ portsrepo.TransactionRepositoryFacade = (*Store)(nil)
	_ portsrepo.LedgerEntryRepository       = (*Store)(nil)
	_ portsrepo.OutboxRepositoryFacade      = (*Store)(nil)
	_ portsrepo.ProcessedEventRepository    = (*Store)(nil)
	_ portsrepo.BalanceAuditRepository      = (*Store)(nil)
	_ portsrepo.DeadLetterRepository        = (*Store)(nil)
)

func inTx(ctx context.Context) bool {
	v, _ := ctx.Value(txKey{}).(bool)
	return v
}

// lock takes the store mutex unless ctx already belongs to a unit of work holding it.
func (s *Store) lock(ctx context.Context) func() {
	if inTx(ctx) {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

// WithinTx runs fn holding the store lock. Nested calls join the outer unit of work.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if inTx(ctx) {
		return fn(ctx)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.state.clone()
	if err := fn(context.WithValue(ctx, txKey{}, true)); err != nil {
		s.state = snapshot
		return err
	}
	return nil
}

// --- accounts

func (s *Store) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	defer s.lock(ctx)()
	acc, ok := s.state.accounts[accountNumber]
	if !ok {
		return nil, apperrors.ErrAccountNotFound
	}
	return &acc, nil
}

func (s *Store) ListAccountsByCustomer(ctx context.Context, customerID string) ([]domain.Account, error) {
	defer s.lock(ctx)()
	accounts := make([]domain.Account, 0)
	for _, acc := range s.state.accounts {
		if acc.CustomerID == customerID {
			accounts = append(accounts, acc)
		}
	}
	sort.Slice(accounts, func(i, j int) bool { return accounts[i].CreatedAt.Before(accounts[j].CreatedAt) })
	return accounts, nil
}

func (s *Store) SaveAccount(ctx context.Context, account domain.Account) error {
	defer s.lock(ctx)()
	if _, exists := s.state.accounts[account.AccountNumber]; exists {
		return fmt.Errorf("account %s: %w", account.AccountNumber, apperrors.ErrDuplicate)
	}
	s.state.accounts[account.AccountNumber] = account
	return nil
}

func (s *Store) UpdateAccountStatus(ctx context.Context, accountNumber string, status domain.AccountStatus, now time.Time) error {
	defer s.lock(ctx)()
	acc, ok := s.state.accounts[accountNumber]
	if !ok {
		return apperrors.ErrAccountNotFound
	}
	acc.Status = status
	acc.UpdatedAt = now
	s.state.accounts[accountNumber] = acc
	return nil
}

func (s *Store) DeleteAccount(ctx context.Context, accountNumber string) error {
	defer s.lock(ctx)()
	if _, ok := s.state.accounts[accountNumber]; !ok {
		return apperrors.ErrAccountNotFound
	}
	delete(s.state.accounts, accountNumber)
	return nil
}

func (s *Store) UpdateBalance(ctx context.Context, accountNumber string, balance decimal.Decimal, expectedVersion int64, now time.Time) (int64, error) {
	defer s.lock(ctx)()
	acc, ok := s.state.accounts[accountNumber]
	if !ok {
		return 0, apperrors.ErrAccountNotFound
	}
	if acc.Version != expectedVersion || !acc.IsActive() {
		return 0, fmt.Errorf("account %s is %s at version %d, expected %d: %w", accountNumber, acc.Status, acc.Version, expectedVersion, apperrors.ErrVersionConflict)
	}
	acc.Balance = balance
	acc.Version++
	acc.UpdatedAt = now
	s.state.accounts[accountNumber] = acc
	return acc.Version, nil
}

// --- transactions

func (s *Store) FindTransactionByID(ctx context.Context, transactionID string) (*domain.Transaction, error) {
	defer s.lock(ctx)()
	txn, ok := s.state.transactions[transactionID]
	if !ok {
		return nil, apperrors.ErrTransactionNotFound
	}
	return &txn, nil
}

func (s *Store) ListTransactionsByAccount(ctx context.Context, accountNumber string, direction domain.TransactionDirection) ([]domain.Transaction, error) {
	defer s.lock(ctx)()
	txns := make([]domain.Transaction, 0)
	for _, txn := range s.state.transactions {
		if txn.Involves(accountNumber, direction) {
			txns = append(txns, txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].CreatedAt.After(txns[j].CreatedAt) })
	return txns, nil
}

func (s *Store) ListStaleTransactions(ctx context.Context, statuses []domain.TransactionStatus, updatedBefore time.Time, limit int) ([]domain.Transaction, error) {
	defer s.lock(ctx)()
	wanted := make(map[domain.TransactionStatus]bool, len(statuses))
	for _, st := range statuses {
		wanted[st] = true
	}
	txns := make([]domain.Transaction, 0)
	for _, txn := range s.state.transactions {
		if wanted[txn.Status] && txn.UpdatedAt.Before(updatedBefore) {
			txns = append(txns, txn)
		}
	}
	sort.Slice(txns, func(i, j int) bool { return txns[i].UpdatedAt.Before(txns[j].UpdatedAt) })
	if limit > 0 && len(txns) > limit {
		txns = txns[:limit]
	}
	return txns, nil
}

func (s *Store) CountActiveTransactions(ctx context.Context, accountNumber string) (int, error) {
	defer s.lock(ctx)()
	count := 0
	for _, txn := range s.state.transactions {
		if !txn.Status.IsTerminal() && txn.Involves(accountNumber, domain.DirectionAny) {
			count++
		}
	}
	return count, nil
}

func (s *Store) SaveTransaction(ctx context.Context, txn domain.Transaction) error {
	defer s.lock(ctx)()
	if _, exists := s.state.transactions[txn.TransactionID]; exists {
		return apperrors.ErrDuplicateTransaction
	}
	s.state.transactions[txn.TransactionID] = txn
	return nil
}

func (s *Store) UpdateTransactionStatus(ctx context.Context, change domain.StatusChange) error {
	defer s.lock(ctx)()
	txn, ok := s.state.transactions[change.TransactionID]
	if !ok {
		return apperrors.ErrTransactionNotFound
	}
	if txn.Version != change.ExpectedVersion || txn.Status != change.From {
		return fmt.Errorf("transaction %s is %s at version %d: %w", txn.TransactionID, txn.Status, txn.Version, apperrors.ErrVersionConflict)
	}
	s.state.transactions[change.TransactionID] = change.Apply(txn)
	return nil
}

// --- ledger entries

func (s *Store) FindEntry(ctx context.Context, key domain.StepKey) (*domain.LedgerEntry, error) {
	defer s.lock(ctx)()
	entry, ok := s.state.entries[key]
	if !ok {
		return nil, apperrors.ErrNotFound
	}
	return &entry, nil
}

func (s *Store) SaveEntry(ctx context.Context, entry domain.LedgerEntry) error {
	defer s.lock(ctx)()
	key := domain.StepKey{TransactionID: entry.TransactionID, Step: entry.Step}
	if _, exists := s.state.entries[key]; exists {
		return fmt.Errorf("ledger entry %s/%s: %w", key.TransactionID, key.Step, apperrors.ErrDuplicate)
	}
	s.state.entries[key] = entry
	return nil
}

// --- outbox

func (s *Store) SaveOutboxRecord(ctx context.Context, record domain.OutboxRecord) error {
	defer s.lock(ctx)()
	for _, existing := range s.state.outbox {
		if existing.EventID == record.EventID {
			return fmt.Errorf("outbox event %s: %w", record.EventID, apperrors.ErrDuplicate)
		}
	}
	s.state.outbox = append(s.state.outbox, record)
	return nil
}

// ClaimDue skips every row behind an unpublished row of the same partition key that is not due.
func (s *Store) ClaimDue(ctx context.Context, now time.Time, lease time.Duration, limit int) ([]domain.OutboxRecord, error) {
	defer s.lock(ctx)()
	claimed := make([]domain.OutboxRecord, 0, limit)
	held := make(map[string]bool)
	for i := range s.state.outbox {
		rec := &s.state.outbox[i]
		if rec.Published {
			continue
		}
		if held[rec.PartitionKey] {
			continue
		}
		if rec.NextAttemptAt.After(now) {
			held[rec.PartitionKey] = true
			continue
		}
		if len(claimed) >= limit {
			break
		}
		rec.NextAttemptAt = now.Add(lease)
		claimed = append(claimed, *rec)
	}
	return claimed, nil
}

func (s *Store) MarkPublished(ctx context.Context, eventID string, at time.Time) error {
	defer s.lock(ctx)()
	rec, err := s.outboxRecord(eventID)
	if err != nil {
		return err
	}
	rec.Published = true
	rec.PublishedAt = &at
	return nil
}

func (s *Store) MarkFailed(ctx context.Context, eventID string, attempts int, lastError string, nextAttemptAt time.Time) error {
	defer s.lock(ctx)()
	rec, err := s.outboxRecord(eventID)
	if err != nil {
		return err
	}
	rec.Attempts = attempts
	rec.LastError = lastError
	rec.NextAttemptAt = nextAttemptAt
	return nil
}

func (s *Store) outboxRecord(eventID string) (*domain.OutboxRecord, error) {
	for i := range s.state.outbox {
		if s.state.outbox[i].EventID == eventID {
			return &s.state.outbox[i], nil
		}
	}
	return nil, fmt.Errorf("outbox event %s: %w", eventID, apperrors.ErrNotFound)
}

// OutboxRecords returns a copy of the outbox in insertion order.
func (s *Store) OutboxRecords() []domain.OutboxRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.OutboxRecord(nil), s.state.outbox...)
}

// --- consumers

func (s *Store) MarkProcessed(ctx context.Context, processed domain.ProcessedEvent) (bool, error) {
	defer s.lock(ctx)()
	key := processed.ConsumerGroup + "|" + processed.EventID
	if _, seen := s.state.processed[key]; seen {
		return false, nil
	}
	s.state.processed[key] = processed.ProcessedAt
	return true, nil
}

func (s *Store) LastAudit(ctx context.Context, accountNumber string) (*domain.BalanceAudit, error) {
	defer s.lock(ctx)()
	for i := len(s.state.audits) - 1; i >= 0; i-- {
		if s.state.audits[i].AccountNumber == accountNumber {
			audit := s.state.audits[i]
			return &audit, nil
		}
	}
	return nil, apperrors.ErrNotFound
}

func (s *Store) SaveAudit(ctx context.Context, audit domain.BalanceAudit) error {
	defer s.lock(ctx)()
	s.state.audits = append(s.state.audits, audit)
	return nil
}

// Audits returns the recorded audit chain in insertion order.
func (s *Store) Audits() []domain.BalanceAudit {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.BalanceAudit(nil), s.state.audits...)
}

func (s *Store) SaveDeadLetter(ctx context.Context, letter domain.DeadLetter) error {
	defer s.lock(ctx)()
	s.state.deadLetters = append(s.state.deadLetters, letter)
	return nil
}

// ListDeadLetters returns the newest letters first.
func (s *Store) ListDeadLetters(ctx context.Context, limit int) ([]domain.DeadLetter, error) {
	defer s.lock(ctx)()
	letters := make([]domain.DeadLetter, 0, len(s.state.deadLetters))
	for i := len(s.state.deadLetters) - 1; i >= 0; i-- {
		if limit > 0 && len(letters) == limit {
			break
		}
		letters = append(letters, s.state.deadLetters[i])
	}
	return letters, nil
}

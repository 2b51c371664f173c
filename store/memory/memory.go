// Package memory provides in-memory store implementations (for testing/dev).
package memory

import (
	"context"
	"sort"
	"sync"

	"github.com/warp/leave-ledger/accrual"
	"github.com/warp/leave-ledger/ledger"
)

type yearKey struct {
	EmployeeID ledger.EmployeeID
	Year       int
}

// Store keeps every document behind one mutex. Clones go out, clones come
// in: callers never share memory with persisted state, so the optimistic
// version check behaves exactly like the sqlite store's conditional UPDATE.
type Store struct {
	mu       sync.RWMutex
	years    map[yearKey]*ledger.LeaveYear
	txs      map[ledger.EmployeeID][]ledger.Transaction
	profiles map[ledger.EmployeeID]accrual.EmployeeLeaveProfile
	rules    map[string]accrual.AccrualRule
}

func NewStore() *Store {
	return &Store{
		years:    make(map[yearKey]*ledger.LeaveYear),
		txs:      make(map[ledger.EmployeeID][]ledger.Transaction),
		profiles: make(map[ledger.EmployeeID]accrual.EmployeeLeaveProfile),
		rules:    make(map[string]accrual.AccrualRule),
	}
}

// =============================================================================
// YEAR STORE
// =============================================================================

func (s *Store) GetYear(_ context.Context, employeeID ledger.EmployeeID, year int) (*ledger.LeaveYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ly, ok := s.years[yearKey{EmployeeID: employeeID, Year: year}]
	if !ok {
		return nil, ledger.ErrYearNotFound
	}
	return ly.Clone(), nil
}

func (s *Store) CreateYear(_ context.Context, ly *ledger.LeaveYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := yearKey{EmployeeID: ly.EmployeeID, Year: ly.Year}
	if _, ok := s.years[k]; ok {
		return ledger.ErrYearExists
	}
	if ly.IsCurrent {
		for ok, other := range s.years {
			if ok.EmployeeID == ly.EmployeeID && other.IsCurrent {
				other.IsCurrent = false
			}
		}
	}
	s.years[k] = ly.Clone()
	return nil
}

func (s *Store) UpdateYear(_ context.Context, ly *ledger.LeaveYear) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := yearKey{EmployeeID: ly.EmployeeID, Year: ly.Year}
	stored, ok := s.years[k]
	if !ok {
		return ledger.ErrYearNotFound
	}
	if stored.Version != ly.Version {
		return ledger.ErrVersionConflict
	}
	ly.Version++
	s.years[k] = ly.Clone()
	return nil
}

func (s *Store) YearsByCompany(_ context.Context, companyID ledger.CompanyID, year int) ([]*ledger.LeaveYear, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*ledger.LeaveYear
	for k, ly := range s.years {
		if k.Year == year && ly.CompanyID == companyID {
			result = append(result, ly.Clone())
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].EmployeeID < result[j].EmployeeID
	})
	return result, nil
}

// =============================================================================
// TRANSACTION LOG
// =============================================================================

func (s *Store) Append(_ context.Context, tx ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.txs[tx.EmployeeID] = append(s.txs[tx.EmployeeID], tx)
	return nil
}

func (s *Store) AppendBatch(_ context.Context, txs []ledger.Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, tx := range txs {
		s.txs[tx.EmployeeID] = append(s.txs[tx.EmployeeID], tx)
	}
	return nil
}

// History returns entries newest first, ties broken by insertion order.
func (s *Store) History(_ context.Context, employeeID ledger.EmployeeID, year *int) ([]ledger.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []ledger.Transaction
	for _, tx := range s.txs[employeeID] {
		if year != nil && tx.Year != *year {
			continue
		}
		result = append(result, tx)
	}
	sort.SliceStable(result, func(i, j int) bool {
		return result[i].CreatedAt.After(result[j].CreatedAt)
	})
	return result, nil
}

// =============================================================================
// PROFILE / RULE STORES
// =============================================================================

func (s *Store) GetProfile(_ context.Context, employeeID ledger.EmployeeID) (*accrual.EmployeeLeaveProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[employeeID]
	if !ok {
		return nil, ledger.ErrProfileNotFound
	}
	return &p, nil
}

func (s *Store) SaveProfile(_ context.Context, profile accrual.EmployeeLeaveProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[ledger.EmployeeID(profile.EmployeeID)] = profile
	return nil
}

func (s *Store) GetRule(_ context.Context, id string) (*accrual.AccrualRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.rules[id]
	if !ok {
		return nil, ledger.ErrRuleNotFound
	}
	return &r, nil
}

func (s *Store) ActiveRules(_ context.Context, companyID ledger.CompanyID) ([]accrual.AccrualRule, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []accrual.AccrualRule
	for _, r := range s.rules {
		if r.Active && r.CompanyID == string(companyID) {
			result = append(result, r)
		}
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].MinServiceMonths < result[j].MinServiceMonths
	})
	return result, nil
}

func (s *Store) SaveRule(_ context.Context, rule accrual.AccrualRule) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = rule
	return nil
}

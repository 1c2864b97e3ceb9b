package service

import "sync"

// loanLocker serializes work on a single loan. Allocation and reconciliation
// both hold it for the whole time they touch a loan's installments.
type loanLocker struct {
	mu    sync.Mutex
	locks map[int64]*loanLock
}

type loanLock struct {
	mu   sync.Mutex
	refs int
}

func newLoanLocker() *loanLocker {
	return &loanLocker{locks: make(map[int64]*loanLock)}
}

// Lock blocks until the loan is free and returns its unlock function.
func (l *loanLocker) Lock(loanID int64) func() {
	l.mu.Lock()
	lk, ok := l.locks[loanID]
	if !ok {
		lk = &loanLock{}
		l.locks[loanID] = lk
	}
	lk.refs++
	l.mu.Unlock()

	lk.mu.Lock()
	return func() {
		lk.mu.Unlock()
		l.mu.Lock()
		lk.refs--
		if lk.refs == 0 {
			delete(l.locks, loanID)
		}
		l.mu.Unlock()
	}
}

package dbconn

import (
	"context"
	"sync"

	"github.com/nsxbet/sql-rewriter/pkg/types"
	"github.com/pkg/errors"
)

// ErrNoMockResult is returned when a Mock runs out of queued results
var ErrNoMockResult = errors.New("mock connection has no queued result")

type mockQuery struct {
	rows []Row
	err  error
}

type mockExec struct {
	res ExecResult
	err error
}

// Mock is a Connection that records every statement and replays queued results in order
type Mock struct {
	backend types.Engine

	mu      sync.Mutex
	log     []Statement
	queries []mockQuery
	execs   []mockExec
}

var _ Connection = (*Mock)(nil)

// NewMock creates a mock connection pretending to talk to backend
func NewMock(backend types.Engine) *Mock {
	return &Mock{backend: backend}
}

// AppendQueryResults queues result sets for QueryOne and QueryAll
func (m *Mock) AppendQueryResults(results ...[]Row) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, rows := range results {
		m.queries = append(m.queries, mockQuery{rows: rows})
	}
	return m
}

// AppendQueryError queues a failing query
func (m *Mock) AppendQueryError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.queries = append(m.queries, mockQuery{err: err})
	return m
}

// AppendExecResults queues results for Execute and ExecuteUnprepared
func (m *Mock) AppendExecResults(results ...ExecResult) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, res := range results {
		m.execs = append(m.execs, mockExec{res: res})
	}
	return m
}

// AppendExecError queues a failing exec
func (m *Mock) AppendExecError(err error) *Mock {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.execs = append(m.execs, mockExec{err: err})
	return m
}

// Statements returns the statements executed so far
func (m *Mock) Statements() []Statement {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Statement(nil), m.log...)
}

func (m *Mock) Backend() types.Engine   { return m.backend }
func (m *Mock) SupportsReturning() bool { return SupportsReturning(m.backend) }
func (m *Mock) IsMock() bool            { return true }

func (m *Mock) Execute(_ context.Context, stmt Statement) (ExecResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, stmt)
	if len(m.execs) == 0 {
		return ExecResult{}, ErrNoMockResult
	}
	next := m.execs[0]
	m.execs = m.execs[1:]
	return next.res, next.err
}

func (m *Mock) ExecuteUnprepared(ctx context.Context, sql string) (ExecResult, error) {
	return m.Execute(ctx, Statement{SQL: sql})
}

func (m *Mock) QueryOne(ctx context.Context, stmt Statement) (*Row, error) {
	rows, err := m.QueryAll(ctx, stmt)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	return &rows[0], nil
}

func (m *Mock) QueryAll(_ context.Context, stmt Statement) ([]Row, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.log = append(m.log, stmt)
	if len(m.queries) == 0 {
		return nil, ErrNoMockResult
	}
	next := m.queries[0]
	m.queries = m.queries[1:]
	return next.rows, next.err
}

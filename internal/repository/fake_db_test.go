package repository

import (
	"context"
	"strings"

	"github.com/forgo/progression/internal/database"
)

type call struct {
	query string
	vars  map[string]interface{}
}

// fakeDB answers queries from canned statement results, matched by
// substring, and records every call
type fakeDB struct {
	responses map[string][]interface{}
	errs      map[string]error
	calls     []call
}

func newFakeDB() *fakeDB {
	return &fakeDB{
		responses: map[string][]interface{}{},
		errs:      map[string]error{},
	}
}

// on registers the rows returned by the first statement of a matching query
func (f *fakeDB) on(fragment string, rows ...map[string]interface{}) {
	list := make([]interface{}, 0, len(rows))
	for _, r := range rows {
		list = append(list, r)
	}
	f.responses[fragment] = []interface{}{map[string]interface{}{"status": "OK", "result": list}}
}

func (f *fakeDB) fail(fragment string, err error) {
	f.errs[fragment] = err
}

func (f *fakeDB) last() call {
	if len(f.calls) == 0 {
		return call{}
	}
	return f.calls[len(f.calls)-1]
}

func (f *fakeDB) Connect(context.Context) error { return nil }
func (f *fakeDB) Close() error                  { return nil }
func (f *fakeDB) Ping(context.Context) error    { return nil }

func (f *fakeDB) Query(_ context.Context, query string, vars map[string]interface{}) ([]interface{}, error) {
	f.calls = append(f.calls, call{query: query, vars: vars})
	for fragment, err := range f.errs {
		if strings.Contains(query, fragment) {
			return nil, err
		}
	}
	for fragment, resp := range f.responses {
		if strings.Contains(query, fragment) {
			return resp, nil
		}
	}
	return []interface{}{map[string]interface{}{"status": "OK", "result": []interface{}{}}}, nil
}

func (f *fakeDB) QueryOne(ctx context.Context, query string, vars map[string]interface{}) (interface{}, error) {
	results, err := f.Query(ctx, query, vars)
	if err != nil {
		return nil, err
	}
	rows := statementRows(results, 0)
	if len(rows) == 0 {
		return nil, database.ErrNotFound
	}
	return rows[0], nil
}

func (f *fakeDB) Execute(ctx context.Context, query string, vars map[string]interface{}) error {
	_, err := f.Query(ctx, query, vars)
	return err
}

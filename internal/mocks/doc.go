// Package mocks provides shared test doubles.
//
// The store doubles keep their data in memory and share one dataset per
// NewStores call, so project reads see tasks and owners the way the SQL
// schema would. Function fields override individual methods when a test
// needs to inject a failure:
//
//	stores := mocks.NewStores()
//	stores.Projects.DeleteFn = func(ctx context.Context, id uuid.UUID) error {
//	    return errors.New("boom")
//	}
package mocks

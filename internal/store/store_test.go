package store

import (
	"errors"
	"testing"
)

type fakeRows struct {
	rows [][]any
	idx  int
	err  error
}

func (f *fakeRows) Next() bool {
	if f.idx >= len(f.rows) {
		return false
	}
	f.idx++
	return true
}

func (f *fakeRows) Scan(dest ...any) error {
	row := f.rows[f.idx-1]
	if len(dest) != len(row) {
		return errors.New("column count mismatch")
	}
	*dest[0].(*string) = row[0].(string)
	*dest[1].(*string) = row[1].(string)
	*dest[2].(*string) = row[2].(string)
	*dest[3].(*bool) = row[3].(bool)
	return nil
}

func (f *fakeRows) Err() error { return f.err }

func TestScanRegistrations(t *testing.T) {
	rows := &fakeRows{rows: [][]any{
		{"reg-1", "token-1", "user-1", true},
		{"reg-2", "token-2", "user-2", true},
	}}

	regs, err := scanRegistrations(rows)
	if err != nil {
		t.Fatalf("scanRegistrations: %v", err)
	}
	if len(regs) != 2 {
		t.Fatalf("len=%d want 2", len(regs))
	}
	if regs[0].ID != "reg-1" || regs[0].Token != "token-1" || regs[0].UserID != "user-1" || !regs[0].Active {
		t.Fatalf("regs[0]=%+v", regs[0])
	}
	if regs[1].ID != "reg-2" {
		t.Fatalf("regs[1]=%+v", regs[1])
	}
}

func TestScanRegistrationsEmpty(t *testing.T) {
	regs, err := scanRegistrations(&fakeRows{})
	if err != nil {
		t.Fatalf("scanRegistrations: %v", err)
	}
	if len(regs) != 0 {
		t.Fatalf("len=%d want 0", len(regs))
	}
}

func TestScanRegistrationsRowError(t *testing.T) {
	rows := &fakeRows{err: errors.New("connection reset")}
	if _, err := scanRegistrations(rows); err == nil {
		t.Fatal("expected row error to propagate")
	}
}

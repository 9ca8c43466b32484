package syncer

import (
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
)

type row struct {
	ID     string
	Status string
}

func cloneRows(rows []row) []row { return append([]row(nil), rows...) }

func setStatus(id, status string) func([]row) []row {
	return func(rows []row) []row {
		for i := range rows {
			if rows[i].ID == id {
				rows[i].Status = status
			}
		}
		return rows
	}
}

func TestMutateKeepsChangeOnCommit(t *testing.T) {
	o := NewOptimistic([]row{{ID: "r1", Status: "SUBMITTED"}}, cloneRows)

	err := o.Mutate(context.Background(), setStatus("r1", "APPROVED"), func(context.Context) error {
		require.Equal(t, "APPROVED", o.Get()[0].Status, "applied before the commit")
		return nil
	})
	require.NoError(t, err)
	require.Equal(t, "APPROVED", o.Get()[0].Status)
}

func TestMutateRollsBackAndSurfacesError(t *testing.T) {
	o := NewOptimistic([]row{{ID: "r1", Status: "SUBMITTED"}}, cloneRows)
	commitErr := errors.New("cannot move request from SUBMITTED to CLOSED")

	err := o.Mutate(context.Background(), setStatus("r1", "CLOSED"), func(context.Context) error {
		return commitErr
	})
	require.Same(t, commitErr, err)
	require.Equal(t, "cannot move request from SUBMITTED to CLOSED", err.Error())
	require.Equal(t, "SUBMITTED", o.Get()[0].Status)
}

func TestGetReturnsCopy(t *testing.T) {
	o := NewOptimistic([]row{{ID: "r1", Status: "SUBMITTED"}}, cloneRows)
	rows := o.Get()
	rows[0].Status = "TAMPERED"
	require.Equal(t, "SUBMITTED", o.Get()[0].Status)

	o.Set([]row{{ID: "r2", Status: "APPROVED"}})
	require.Equal(t, "r2", o.Get()[0].ID)
}

func TestFailedMutateKeepsNewerServerRead(t *testing.T) {
	o := NewOptimistic([]row{{ID: "r1", Status: "SUBMITTED"}}, cloneRows)

	err := o.Mutate(context.Background(), setStatus("r1", "APPROVED"), func(context.Context) error {
		// a poll lands while the write is in flight
		o.Set([]row{{ID: "r1", Status: "REJECTED"}})
		return errors.New("conflict")
	})
	require.Error(t, err)
	require.Equal(t, []row{{ID: "r1", Status: "REJECTED"}}, o.Get())
}

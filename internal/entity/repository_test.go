package entity_test

import (
	"context"
	"testing"

	"github.com/machine-hub/server/internal/entity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryRepository(t *testing.T) {
	t.Parallel()
	testRepository(t, entity.NewMemory())
}

// testRepository runs the behaviour shared by every backing store against repo.
func testRepository(t *testing.T, repo *entity.Repository) {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, repo.Ping(ctx), "Ping should succeed")

	acme := entity.Customer{Organization: entity.Organization{Name: "Acme Laundry", Email: "ops@acme.test"}}
	require.NoError(t, repo.Customers.Create(ctx, &acme), "Create customer")
	require.NotZero(t, acme.ID, "Create should assign an id")

	other := entity.Customer{Organization: entity.Organization{Name: "Other"}}
	require.NoError(t, repo.Customers.Create(ctx, &other), "Create second customer")

	maker := entity.Management{Organization: entity.Organization{Name: "Maker Ltd"}}
	require.NoError(t, repo.Management.Create(ctx, &maker), "Create management")

	t.Run("get and update", func(t *testing.T) {
		got, err := repo.Customers.Get(ctx, acme.ID)
		require.NoError(t, err)
		assert.Equal(t, acme, got)

		changed := got
		changed.Phone = "555-0100"
		require.NoError(t, repo.Customers.Update(ctx, acme.ID, &changed))
		got, err = repo.Customers.Get(ctx, acme.ID)
		require.NoError(t, err)
		assert.Equal(t, "555-0100", got.Phone)
		assert.Equal(t, acme.ID, got.ID)
	})

	t.Run("missing rows", func(t *testing.T) {
		_, err := repo.Customers.Get(ctx, 999999)
		require.ErrorIs(t, err, entity.ErrNotFound)

		c := entity.Customer{Organization: entity.Organization{Name: "ghost"}}
		require.ErrorIs(t, repo.Customers.Update(ctx, 999999, &c), entity.ErrNotFound)
		require.ErrorIs(t, repo.Customers.Delete(ctx, 999999), entity.ErrNotFound)
	})

	machine := entity.MachineModel{
		MachineName: "Dispenser", ModelNumber: "DX-100", Description: "chemical dispenser",
		DefaultWarrantyMonths: 12, Phase: "3", Volts: "415", Amps: "16", Frequency: "50",
		SWVersion: "1.0", PCBVersion: "A", FWVersion: "2.1", DesignVersion: "r3", Make: maker.ID,
	}
	require.NoError(t, repo.Machines.Create(ctx, &machine), "Create machine")

	t.Run("unique model number", func(t *testing.T) {
		dup := machine
		dup.ID = 0
		require.ErrorIs(t, repo.Machines.Create(ctx, &dup), entity.ErrConflict)
	})

	t.Run("foreign keys", func(t *testing.T) {
		orphan := machine
		orphan.ModelNumber = "DX-404"
		orphan.Make = 999999
		require.ErrorIs(t, repo.Machines.Create(ctx, &orphan), entity.ErrConflict)
	})

	newSerial := func(serial string, customer int64) entity.SerialNumber {
		return entity.SerialNumber{
			SerialNumber: serial, DateOfManufacturing: "2024-01-01", AdditionalWarrantyMonths: "6",
			WarrantyEndDate: "2025-07-01", ProductWarranty: "18", SWVersion: "1.0", PCBVersion: "A",
			FWVersion: "2.1", DesignVersion: "r3", ModelNumber: machine.ID, CustomerID: customer,
		}
	}
	s1 := newSerial("SN-001", acme.ID)
	s2 := newSerial("SN-002", other.ID)
	require.NoError(t, repo.Serials.Create(ctx, &s1))
	require.NoError(t, repo.Serials.Create(ctx, &s2))

	t.Run("serial exists", func(t *testing.T) {
		ok, err := repo.SerialExists(ctx, "SN-001")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = repo.SerialExists(ctx, "SN-999")
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("list with filter", func(t *testing.T) {
		got, err := repo.Serials.List(ctx, entity.Where("customer_id", acme.ID))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "SN-001", got[0].SerialNumber)

		all, err := repo.Serials.List(ctx)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Less(t, all[0].ID, all[1].ID, "List should order by id")

		_, err = repo.Serials.List(ctx, entity.Where("no_such_column", 1))
		require.Error(t, err)
	})

	t.Run("machines with serials", func(t *testing.T) {
		empty := machine
		empty.ID = 0
		empty.ModelNumber = "DX-200"
		require.NoError(t, repo.Machines.Create(ctx, &empty))

		all, err := repo.MachinesWithSerials(ctx, nil)
		require.NoError(t, err)
		require.Len(t, all, 2)
		assert.Len(t, all[0].SerialNumbers, 2)
		assert.NotNil(t, all[1].SerialNumbers, "machines without units list an empty slice")
		assert.Empty(t, all[1].SerialNumbers)

		mine, err := repo.MachinesWithSerials(ctx, &acme.ID)
		require.NoError(t, err)
		require.Len(t, mine, 1)
		assert.Equal(t, machine.ID, mine[0].ID)
		assert.Equal(t, []entity.SerialRef{{ID: s1.ID, SerialNumber: "SN-001"}}, mine[0].SerialNumbers)
	})

	t.Run("users", func(t *testing.T) {
		u := entity.CustomerUser{
			User:       entity.User{Name: "Ann", Username: "ann", Password: "hash", Designation: "Lead", Privilege: "Admin"},
			CustomerID: acme.ID,
		}
		require.NoError(t, repo.CustomerUsers.Create(ctx, &u))

		dup := u
		dup.ID = 0
		require.ErrorIs(t, repo.CustomerUsers.Create(ctx, &dup), entity.ErrConflict, "usernames are unique")

		m := entity.ManagementUser{
			User:         entity.User{Name: "Bo", Username: "bo", Password: "hash", Designation: "CTO", Privilege: "Admin"},
			ManagementID: maker.ID,
		}
		require.NoError(t, repo.ManagementUsers.Create(ctx, &m))

		got, err := repo.CustomerUsers.List(ctx, entity.Where("customer_id", acme.ID))
		require.NoError(t, err)
		require.Len(t, got, 1)
		assert.Equal(t, "hash", got[0].Password)
	})

	t.Run("delete cascades", func(t *testing.T) {
		require.NoError(t, repo.Customers.Delete(ctx, acme.ID))

		serials, err := repo.Serials.List(ctx)
		require.NoError(t, err)
		require.Len(t, serials, 1, "customer's serials should be deleted with it")
		assert.Equal(t, "SN-002", serials[0].SerialNumber)

		users, err := repo.CustomerUsers.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, users, "customer's users should be deleted with it")

		require.NoError(t, repo.Management.Delete(ctx, maker.ID))
		machines, err := repo.Machines.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, machines, "maker's machines should be deleted with it")

		serials, err = repo.Serials.List(ctx)
		require.NoError(t, err)
		assert.Empty(t, serials, "machine serials should be deleted transitively")
	})

	require.NoError(t, repo.Close())
}

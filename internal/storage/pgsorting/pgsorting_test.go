package pgsorting

import (
	"context"
	"testing"
	"time"

	"github.com/BearBump/SortBox/internal/models"
	"github.com/BearBump/SortBox/internal/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
)

func startPostgres(t *testing.T) *Storage {
	t.Helper()
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "postgres:15-alpine",
		ExposedPorts: []string{"5432/tcp"},
		Env: map[string]string{
			"POSTGRES_USER":     "admin",
			"POSTGRES_PASSWORD": "admin",
			"POSTGRES_DB":       "sorting_test",
		},
		WaitingFor: wait.ForLog("database system is ready to accept connections").
			WithOccurrence(2).
			WithStartupTimeout(60 * time.Second),
	}
	pgC, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = pgC.Terminate(ctx) })

	host, err := pgC.Host(ctx)
	require.NoError(t, err)
	port, err := pgC.MappedPort(ctx, "5432/tcp")
	require.NoError(t, err)

	dsn := "postgres://admin:admin@" + host + ":" + port.Port() + "/sorting_test?sslmode=disable"
	st, err := New(dsn)
	require.NoError(t, err)
	t.Cleanup(st.Close)
	return st
}

func insertBag(t *testing.T, st *Storage, b *models.Bag) {
	t.Helper()
	require.NoError(t, st.InBagTx(context.Background(), func(tx storage.BagTx) error {
		return tx.InsertBag(context.Background(), b)
	}))
}

func TestPGSorting_RepoFlow(t *testing.T) {
	if testing.Short() {
		t.Skip("needs docker")
	}
	ctx := context.Background()
	st := startPostgres(t)

	sep := &models.Socket{SocketID: "SEP", Name: "Separator", Color: "#010101", IsActive: true, SupportsSource: true, Users: []string{"bob", "alice"}}
	require.NoError(t, st.CreateSocket(ctx, sep))
	require.NotZero(t, sep.ID)

	got, err := st.GetSocketByCode(ctx, "SEP")
	require.NoError(t, err)
	require.Equal(t, []string{"alice", "bob"}, got.Users)

	dup := &models.Socket{SocketID: "SEP", Name: "Again", Color: "#010101"}
	require.ErrorIs(t, st.CreateSocket(ctx, dup), models.ErrConflict)

	agr := &models.BagType{
		Name: "Agregat", Code: "AGR", Color: "#808080", Order: 1, Source: models.BagSourceIn,
		IsActive: true, SocketID: sep.ID,
		Parameters: models.NewParameterSet(models.ParameterStandard, models.ParameterExtra),
	}
	require.NoError(t, st.CreateBagType(ctx, agr))

	spare := &models.BagType{Name: "Spare", Code: "SPR", Color: "#808080", Order: 2, Source: models.BagSourceOut, IsActive: true, SocketID: sep.ID}
	require.NoError(t, st.CreateBagType(ctx, spare))

	types, err := st.ListBagTypes(ctx, models.BagTypeFilter{SocketID: sep.ID, Source: models.BagSourceIn, ActiveOnly: true})
	require.NoError(t, err)
	require.Len(t, types, 1)
	require.True(t, types[0].AllowsExtra())

	cat := &models.BagTypeCategory{Name: "Cotton", Color: "#00ff00", IsActive: true}
	require.NoError(t, st.CreateCategory(ctx, cat))
	sub := &models.BagSubtype{BagTypeID: spare.ID, CategoryID: &cat.ID, Name: "White", Order: 1, Color: "#808080", IsActive: true}
	require.NoError(t, st.CreateSubtype(ctx, sub))

	gotSub, err := st.GetSubtype(ctx, sub.ID)
	require.NoError(t, err)
	require.Equal(t, "#00ff00", gotSub.EffectiveColor())

	// порядок по позиции в списке
	require.NoError(t, st.Reorder(ctx, models.OrderKindBagType, []int64{spare.ID, agr.ID}))
	all, err := st.ListBagTypes(ctx, models.BagTypeFilter{SocketID: sep.ID})
	require.NoError(t, err)
	require.Equal(t, spare.ID, all[0].ID)

	now := time.Now().UTC().Truncate(time.Millisecond)
	first := &models.Bag{
		BagID: "BAG_000001", SocketID: sep.ID, BagTypeID: agr.ID, Source: models.BagSourceIn,
		WeightKg:   decimal.NewNullDecimal(decimal.RequireFromString("12.50")),
		ReceivedAt: now.Add(-time.Minute), UpdatedAt: now.Add(-time.Minute),
	}
	insertBag(t, st, first)

	var pending *models.Bag
	require.NoError(t, st.InBagTx(ctx, func(tx storage.BagTx) error {
		ids, err := tx.ListSequentialBagIDs(ctx)
		require.NoError(t, err)
		require.Equal(t, []string{"BAG_000001"}, ids)

		exists, err := tx.BagIDExists(ctx, "BAG_000001")
		require.NoError(t, err)
		require.True(t, exists)

		pending, err = tx.LockLatestPending(ctx, sep.ID, models.BagSourceIn, 0)
		if err != nil || pending == nil {
			return err
		}
		pending.AutoProcess(now)
		return tx.UpdateBagProcessing(ctx, pending)
	}))
	require.NotNil(t, pending)
	require.Equal(t, first.ID, pending.ID)

	reloaded, err := st.GetBag(ctx, first.ID)
	require.NoError(t, err)
	require.True(t, reloaded.Processed)
	require.True(t, reloaded.AutoProcessedByNextBag)
	require.Equal(t, int64(60), *reloaded.ProcessingTimeSeconds)
	require.True(t, reloaded.WeightKg.Decimal.Equal(decimal.RequireFromString("12.5")))
	require.Equal(t, "SEP", reloaded.SocketCode)
	require.Equal(t, models.BagSourceIn, reloaded.Source)

	// нет ожидающих мешков
	require.NoError(t, st.InBagTx(ctx, func(tx storage.BagTx) error {
		p, err := tx.LockLatestPending(ctx, sep.ID, models.BagSourceIn, 0)
		require.Nil(t, p)
		return err
	}))

	pendingList, err := st.ListBags(ctx, models.BagFilter{Status: models.BagStatusPending})
	require.NoError(t, err)
	require.Empty(t, pendingList)

	sb := (&models.SortedBagInput{BagID: first.ID, Destination: models.DestinationRetail, TrackingNumber: "TN-1"}).NewSortedBag(now)
	require.NoError(t, st.CreateSortedBag(ctx, sb))
	again := (&models.SortedBagInput{BagID: first.ID, Destination: models.DestinationOutlet}).NewSortedBag(now)
	require.ErrorIs(t, st.CreateSortedBag(ctx, again), models.ErrConflict)

	shipped, err := st.ModifySortedBagByTracking(ctx, "TN-1", func(sb *models.SortedBag) error {
		sb.Status = models.ShipmentStatusShipped
		sb.ApplyStatus(now.Add(time.Hour))
		return nil
	})
	require.NoError(t, err)
	require.NotNil(t, shipped.ShippedAt)

	// тип с мешками удалить нельзя
	require.ErrorIs(t, st.DeleteBagType(ctx, agr.ID), models.ErrReferenced)

	// тип без мешков удаляется вместе с подтипами
	require.NoError(t, st.DeleteBagType(ctx, spare.ID))
	_, err = st.GetSubtype(ctx, sub.ID)
	require.ErrorIs(t, err, models.ErrNotFound)

	stats, err := st.DashboardStats(ctx)
	require.NoError(t, err)
	require.Equal(t, 1, stats.TotalBags)
	require.Equal(t, 1, stats.SortedBags)

	impact, err := st.SocketImpact(ctx, sep.ID)
	require.NoError(t, err)
	require.Equal(t, models.SocketImpact{BagTypes: 1, Subtypes: 0, Bags: 1, SortedBags: 1}, impact)

	// удаление сокета каскадом уносит типы, мешки и отгрузки
	require.NoError(t, st.DeleteSocket(ctx, sep.ID))
	_, err = st.GetBag(ctx, first.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
	_, err = st.GetSortedBag(ctx, sb.ID)
	require.ErrorIs(t, err, models.ErrNotFound)
}

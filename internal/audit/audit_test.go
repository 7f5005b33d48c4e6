package audit

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/juju/clock/testclock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"subadmin/internal/store"
	"subadmin/internal/types"
)

func newTestService(t *testing.T) (*Service, *store.Store) {
	t.Helper()
	clk := testclock.NewClock(time.Date(2025, 2, 1, 12, 0, 0, 0, time.UTC))
	s, err := store.NewSeeded(store.WithLatency(store.NoLatency()), store.WithClock(clk))
	require.NoError(t, err)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(s, logger), s
}

// appendEntry writes an entry the way owning services do, inside a store
// transaction stamped with the store clock.
func appendEntry(t *testing.T, st *store.Store, entity types.EntityType, id, action string, actor types.Actor) types.AuditLogEntry {
	t.Helper()
	var entry types.AuditLogEntry
	require.NoError(t, st.Update(context.Background(), store.Audit, func(tx *store.Tx) error {
		entry = NewEntry(entity, id, action, actor, tx.Now(), nil)
		tx.AppendAudit(entry)
		return nil
	}))
	return entry
}

func TestNewEntry(t *testing.T) {
	at := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	actor := types.Actor{ID: "usr_005"}

	a := NewEntry(types.EntityInvoice, "inv_1", types.AuditInvoicePaid, actor, at, map[string]any{"amount": 10})
	b := NewEntry(types.EntityInvoice, "inv_1", types.AuditInvoicePaid, actor, at, nil)

	assert.True(t, strings.HasPrefix(a.ID, "log_"))
	assert.NotEqual(t, a.ID, b.ID)
	assert.Equal(t, "usr_005", a.UserID)
	assert.Equal(t, at, a.Timestamp)
}

func TestService_ListNewestFirst(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	entry := appendEntry(t, st, types.EntityUser, "usr_001", types.AuditUserStatusChanged, types.Actor{ID: "usr_006"})

	res, err := svc.List(ctx, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.Total)
	assert.Equal(t, entry.ID, res.Data[0].ID, "newest entry first")
	assert.Equal(t, "usr_006", res.Data[0].UserID)
	assert.Equal(t, "log_002", res.Data[1].ID)
	assert.Equal(t, "log_001", res.Data[2].ID)
}

func TestService_ListFilters(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	res, err := svc.List(ctx, Filter{Entity: types.EntityRequest, EntityID: "REQ-2025-002"})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "log_001", res.Data[0].ID)
	assert.Equal(t, 2, res.TotalAll)

	res, err = svc.List(ctx, Filter{Action: types.AuditInvoicePaid})
	require.NoError(t, err)
	require.Len(t, res.Data, 1)
	assert.Equal(t, "inv_001", res.Data[0].EntityID)

	res, err = svc.List(ctx, Filter{UserID: "usr_404"})
	require.NoError(t, err)
	assert.Empty(t, res.Data)

	res, err = svc.List(ctx, Filter{Limit: 1})
	require.NoError(t, err)
	assert.Len(t, res.Data, 1)
	assert.Equal(t, 2, res.Total)
}

func TestService_ListTiesKeepInsertOrderNewestFirst(t *testing.T) {
	svc, st := newTestService(t)
	ctx := context.Background()

	first := appendEntry(t, st, types.EntityAccount, "1", types.AuditAccountSuspended, types.Actor{ID: "usr_005"})
	second := appendEntry(t, st, types.EntityAccount, "1", types.AuditAccountReactivated, types.Actor{ID: "usr_005"})

	res, err := svc.List(ctx, Filter{Entity: types.EntityAccount})
	require.NoError(t, err)
	require.Len(t, res.Data, 2)
	assert.Equal(t, second.ID, res.Data[0].ID)
	assert.Equal(t, first.ID, res.Data[1].ID)
}

func TestService_ExportRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	var buf bytes.Buffer

	n, err := svc.Export(context.Background(), &buf, Filter{})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	entries, err := ReadExport(&buf)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "log_002", entries[0].ID)
	assert.Equal(t, "INR", entries[0].Meta["currency"])
}

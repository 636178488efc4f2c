package sqlite

import (
	"context"
	"database/sql"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	"github.com/99minutos/authgate/internal/core/domain"
	"github.com/99minutos/authgate/internal/core/service"
)

// newTestStore returns an initialised store backed by a temp file. bcrypt
// runs at its minimum cost to keep the suite fast.
func newTestStore(t *testing.T) (*UserStore, string) {
	t.Helper()

	path := filepath.Join(t.TempDir(), "auth.db")
	store := NewUserStore(Config{Path: path}, service.NewBcryptHasher(4), time.Second, zerolog.Nop())
	require.NoError(t, store.Initialize(t.Context()))
	t.Cleanup(func() { _ = store.Shutdown(context.Background()) })
	return store, path
}

func TestInitialize_SeedsBootstrapAdmin(t *testing.T) {
	store, _ := newTestStore(t)

	all, err := store.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 1)
	require.Equal(t, domain.BootstrapUsername, all[0].Username)
	require.Equal(t, domain.RoleAdmin, all[0].Role)
	require.True(t, all[0].IsActive)

	admin, err := store.GetByUsername(t.Context(), domain.BootstrapUsername)
	require.NoError(t, err)
	require.True(t, service.NewBcryptHasher(4).Verify(domain.BootstrapPassword, admin.PasswordHash))
}

func TestInitialize_IsIdempotentAcrossRestarts(t *testing.T) {
	store, path := newTestStore(t)
	_, err := store.CreateAccount(t.Context(), "alice", "hash", domain.RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.Shutdown(t.Context()))

	reopened := NewUserStore(Config{Path: path}, service.NewBcryptHasher(4), time.Second, zerolog.Nop())
	require.NoError(t, reopened.Initialize(t.Context()))
	t.Cleanup(func() { _ = reopened.Shutdown(context.Background()) })

	all, err := reopened.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 2)
}

func TestInitialize_ConcurrentStartSeedsOnce(t *testing.T) {
	path := filepath.Join(t.TempDir(), "auth.db")

	var wg sync.WaitGroup
	stores := make([]*UserStore, 3)
	errs := make([]error, len(stores))
	for i := range stores {
		stores[i] = NewUserStore(Config{Path: path}, service.NewBcryptHasher(4), time.Second, zerolog.Nop())
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = stores[i].Initialize(context.Background())
		}(i)
	}
	wg.Wait()

	for i, s := range stores {
		if errs[i] == nil {
			t.Cleanup(func() { _ = s.Shutdown(context.Background()) })
		}
	}

	var ok *UserStore
	for i, err := range errs {
		if err == nil {
			ok = stores[i]
			break
		}
	}
	require.NotNil(t, ok, "at least one initializer must succeed")

	all, err := ok.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 1)
}

func TestInitialize_MigratesLegacyTableWithoutRole(t *testing.T) {
	path := filepath.Join(t.TempDir(), "legacy.db")

	legacy, err := sql.Open("sqlite3", path)
	require.NoError(t, err)
	_, err = legacy.Exec(`
		CREATE TABLE accounts (
			id            INTEGER PRIMARY KEY AUTOINCREMENT,
			username      TEXT NOT NULL UNIQUE,
			password_hash TEXT NOT NULL,
			created_at    TEXT NOT NULL,
			updated_at    TEXT NOT NULL
		);
		INSERT INTO accounts (username, password_hash, created_at, updated_at)
		VALUES ('legacy', 'hash', '2024-01-01T00:00:00Z', '2024-01-01T00:00:00Z');
	`)
	require.NoError(t, err)
	require.NoError(t, legacy.Close())

	store := NewUserStore(Config{Path: path}, service.NewBcryptHasher(4), time.Second, zerolog.Nop())
	require.NoError(t, store.Initialize(t.Context()))
	t.Cleanup(func() { _ = store.Shutdown(context.Background()) })

	all, err := store.ListAll(t.Context())
	require.NoError(t, err)
	require.Len(t, all, 1, "existing data must be kept and no bootstrap account seeded")
	require.Equal(t, "legacy", all[0].Username)
	require.Equal(t, domain.RoleUser, all[0].Role)
	require.True(t, all[0].IsActive)
	require.Equal(t, 2024, all[0].CreatedAt.Year())
}

func TestOperations_FailBeforeInitialize(t *testing.T) {
	store := NewUserStore(Config{Path: filepath.Join(t.TempDir(), "x.db")}, service.NewBcryptHasher(4), time.Second, zerolog.Nop())
	ctx := t.Context()

	_, err := store.CreateAccount(ctx, "bob", "hash", domain.RoleUser)
	require.ErrorIs(t, err, domain.ErrNotInitialized)
	_, err = store.GetByUsername(ctx, "bob")
	require.ErrorIs(t, err, domain.ErrNotInitialized)
	_, err = store.GetByID(ctx, 1)
	require.ErrorIs(t, err, domain.ErrNotInitialized)
	_, err = store.ListAll(ctx)
	require.ErrorIs(t, err, domain.ErrNotInitialized)
	require.ErrorIs(t, store.UpdateRole(ctx, 1, domain.RoleAdmin), domain.ErrNotInitialized)
	require.ErrorIs(t, store.RecordLogin(ctx, 1), domain.ErrNotInitialized)
	require.ErrorIs(t, store.SetPassword(ctx, 1, "h"), domain.ErrNotInitialized)
	require.ErrorIs(t, store.Deactivate(ctx, 1), domain.ErrNotInitialized)
	require.ErrorIs(t, store.DeleteHard(ctx, 1), domain.ErrNotInitialized)
}

func TestOperations_FailAfterShutdown(t *testing.T) {
	store, _ := newTestStore(t)
	require.NoError(t, store.Shutdown(t.Context()))

	_, err := store.ListAll(t.Context())
	require.ErrorIs(t, err, domain.ErrNotInitialized)
}

func TestCreateAccount_DuplicateUsername(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateAccount(ctx, "alice", "hash", domain.RoleUser)
	require.NoError(t, err)

	_, err = store.CreateAccount(ctx, "alice", "hash2", domain.RoleAdmin)
	require.ErrorIs(t, err, domain.ErrDuplicateUsername)

	require.NoError(t, store.Deactivate(ctx, id))
	_, err = store.CreateAccount(ctx, "alice", "hash3", domain.RoleUser)
	require.ErrorIs(t, err, domain.ErrDuplicateUsername, "uniqueness spans inactive accounts")
}

func TestCreateAccount_UsernameIsCaseSensitive(t *testing.T) {
	store, _ := newTestStore(t)

	_, err := store.CreateAccount(t.Context(), "Alice", "hash", domain.RoleUser)
	require.NoError(t, err)
	_, err = store.CreateAccount(t.Context(), "alice", "hash", domain.RoleUser)
	require.NoError(t, err)
}

func TestDeactivate_HidesFromLookupsButNotList(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateAccount(ctx, "carol", "hash", domain.RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.Deactivate(ctx, id))

	_, err = store.GetByUsername(ctx, "carol")
	require.ErrorIs(t, err, domain.ErrNotFound)
	_, err = store.GetByID(ctx, id)
	require.ErrorIs(t, err, domain.ErrNotFound)

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	var found bool
	for _, v := range all {
		if v.ID == id {
			found = true
			require.False(t, v.IsActive)
		}
	}
	require.True(t, found, "deactivated account must stay listed")
}

func TestListAll_NewestFirst(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	base := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, name := range []string{"first", "second", "third"} {
		at := base.Add(time.Duration(i) * time.Millisecond)
		store.now = func() time.Time { return at }
		_, err := store.CreateAccount(ctx, name, "hash", domain.RoleUser)
		require.NoError(t, err)
	}

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	require.Equal(t, "third", all[0].Username)
	require.Equal(t, "second", all[1].Username)
	require.Equal(t, "first", all[2].Username)
}

func TestUpdateFields_PartialUpdate(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	created := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return created }
	id, err := store.CreateAccount(ctx, "dave", "hash", domain.RoleUser)
	require.NoError(t, err)

	later := created.Add(time.Hour)
	store.now = func() time.Time { return later }
	role := domain.RoleAdmin
	require.NoError(t, store.UpdateFields(ctx, id, domain.AccountUpdate{Role: &role}))

	v, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.Equal(t, "dave", v.Username)
	require.Equal(t, domain.RoleAdmin, v.Role)
	require.True(t, v.IsActive)
	require.True(t, later.Equal(v.UpdatedAt), "updated_at must move")
	require.True(t, created.Equal(v.CreatedAt), "created_at must not move")

	name := "david"
	require.NoError(t, store.UpdateFields(ctx, id, domain.AccountUpdate{Username: &name}))
	_, err = store.GetByUsername(ctx, "dave")
	require.ErrorIs(t, err, domain.ErrNotFound)
	renamed, err := store.GetByUsername(ctx, "david")
	require.NoError(t, err)
	require.Equal(t, domain.RoleAdmin, renamed.Role)
}

func TestUpdateFields_RenameCollision(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateAccount(ctx, "erin", "hash", domain.RoleUser)
	require.NoError(t, err)

	taken := domain.BootstrapUsername
	err = store.UpdateFields(ctx, id, domain.AccountUpdate{Username: &taken})
	require.ErrorIs(t, err, domain.ErrDuplicateUsername)
}

func TestMutations_UnknownID(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	require.ErrorIs(t, store.UpdateRole(ctx, 999, domain.RoleAdmin), domain.ErrNotFound)
	require.ErrorIs(t, store.SetPassword(ctx, 999, "h"), domain.ErrNotFound)
	require.ErrorIs(t, store.Deactivate(ctx, 999), domain.ErrNotFound)
	require.ErrorIs(t, store.DeleteHard(ctx, 999), domain.ErrNotFound)
	require.ErrorIs(t, store.RecordLogin(ctx, 999), domain.ErrNotFound)
}

func TestRecordLoginAndSetPassword(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateAccount(ctx, "frank", "old", domain.RoleUser)
	require.NoError(t, err)

	v, err := store.GetByID(ctx, id)
	require.NoError(t, err)
	require.Nil(t, v.LastLoginAt)

	require.NoError(t, store.RecordLogin(ctx, id))
	require.NoError(t, store.SetPassword(ctx, id, "new"))

	a, err := store.GetByUsername(ctx, "frank")
	require.NoError(t, err)
	require.NotNil(t, a.LastLoginAt)
	require.Equal(t, "new", a.PasswordHash)
}

func TestDeleteHard_RemovesRow(t *testing.T) {
	store, _ := newTestStore(t)
	ctx := t.Context()

	id, err := store.CreateAccount(ctx, "gina", "hash", domain.RoleUser)
	require.NoError(t, err)
	require.NoError(t, store.DeleteHard(ctx, id))

	all, err := store.ListAll(ctx)
	require.NoError(t, err)
	for _, v := range all {
		require.NotEqual(t, id, v.ID)
	}

	_, err = store.CreateAccount(ctx, "gina", "hash", domain.RoleUser)
	require.NoError(t, err, "a purged username can be reused")
}

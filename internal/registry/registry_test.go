package registry

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/contentsync/internal/resource"
	"github.com/roach88/contentsync/internal/service"
	"github.com/roach88/contentsync/internal/testutil"
)

func TestEnsure_CreatesOnFirstUse(t *testing.T) {
	svc := testutil.NewFakeService()
	r := New(svc)

	id, err := r.Ensure(context.Background(), "places")
	require.NoError(t, err)
	require.NotEmpty(t, id)

	creates := svc.Creates()
	require.Len(t, creates, 1)
	assert.Equal(t, "places", creates[0].Name)
	assert.Equal(t, resource.KindContainer, creates[0].Kind)
	assert.Equal(t, resource.RootID, creates[0].Parent)
}

func TestEnsure_Idempotent(t *testing.T) {
	svc := testutil.NewFakeService()
	r := New(svc)
	ctx := context.Background()

	first, err := r.Ensure(ctx, "x")
	require.NoError(t, err)
	second, err := r.Ensure(ctx, "x")
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, svc.Calls("Create"), "second call must not create again")
	assert.Equal(t, 1, svc.Calls("ChildrenOf"), "second call must be served from cache")
}

func TestEnsure_FindsExistingContainer(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.PageSize = 1
	// Page size 1 forces the match onto the second page.
	svc.MustAdd(resource.RootID, "other", resource.KindContainer, nil)
	existing := svc.MustAdd(resource.RootID, "media", resource.KindContainer, nil)

	r := New(svc)
	id, err := r.Ensure(context.Background(), "media")
	require.NoError(t, err)

	assert.Equal(t, existing.ID, id)
	assert.Equal(t, 0, svc.Calls("Create"))
}

func TestEnsure_IgnoresLeafWithSameName(t *testing.T) {
	svc := testutil.NewFakeService()
	container := svc.MustAdd(resource.RootID, "folder", resource.KindContainer, nil)
	svc.MustAdd(container.ID, "media", resource.KindLeaf, nil)

	r := New(svc)
	id, err := r.Ensure(context.Background(), "media")
	require.NoError(t, err)
	assert.NotEqual(t, container.ID, id)
	assert.Equal(t, 1, svc.Calls("Create"))
}

func TestEnsure_ConcurrentCallersShareOneID(t *testing.T) {
	svc := testutil.NewFakeService()
	release := svc.HoldRoot()
	r := New(svc)

	const callers = 2
	ids := make([]resource.ID, callers)
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = r.Ensure(context.Background(), "x")
		}()
	}

	// Let both callers reach the service before it answers.
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	for i := range callers {
		require.NoError(t, errs[i])
	}
	assert.Equal(t, ids[0], ids[1])
	assert.LessOrEqual(t, svc.Calls("Create"), 1)
}

func TestEnsure_CreateFailureFallsBackToServiceWinner(t *testing.T) {
	svc := testutil.NewFakeService()
	var winner resource.Meta
	svc.CreateErr = func(req resource.CreateRequest) error {
		// Another process creates the container between our traversal and create.
		winner = svc.MustAdd(req.Parent, req.Name, resource.KindContainer, nil)
		return service.ErrExists
	}

	r := New(svc)
	id, err := r.Ensure(context.Background(), "homescreen")
	require.NoError(t, err)
	assert.Equal(t, winner.ID, id)

	cached, ok := r.Lookup("homescreen")
	assert.True(t, ok)
	assert.Equal(t, winner.ID, cached)
}

func TestEnsure_UnresolvableWhenCreateFails(t *testing.T) {
	svc := testutil.NewFakeService()
	boom := errors.New("disk full")
	svc.CreateErr = func(resource.CreateRequest) error { return boom }

	r := New(svc)
	id, err := r.Ensure(context.Background(), "places")

	assert.Empty(t, id)
	assert.ErrorIs(t, err, ErrUnresolvable)
	assert.ErrorIs(t, err, boom)
	_, ok := r.Lookup("places")
	assert.False(t, ok, "failed resolution must not be cached")
}

func TestHas_DoesNotCreate(t *testing.T) {
	svc := testutil.NewFakeService()
	r := New(svc)
	ctx := context.Background()

	assert.False(t, r.Has(ctx, "homescreen"))
	assert.Equal(t, 0, svc.Calls("Create"))

	svc.MustAdd(resource.RootID, "homescreen", resource.KindContainer, nil)
	assert.True(t, r.Has(ctx, "homescreen"))
}

func TestHas_CachedBindingSkipsService(t *testing.T) {
	svc := testutil.NewFakeService()
	r := New(svc)
	ctx := context.Background()

	_, err := r.Ensure(ctx, "places")
	require.NoError(t, err)
	before := svc.Calls("ChildByName")

	assert.True(t, r.Has(ctx, "places"))
	assert.Equal(t, before, svc.Calls("ChildByName"))
}

func TestEnsure_NormalizesNames(t *testing.T) {
	svc := testutil.NewFakeService()
	r := New(svc)
	ctx := context.Background()

	a, err := r.Ensure(ctx, "café")
	require.NoError(t, err)
	b, err := r.Ensure(ctx, " café")
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, 1, svc.Calls("Create"))
}

func TestEnsure_CancelledCallerDoesNotFailOthers(t *testing.T) {
	svc := testutil.NewFakeService()
	release := svc.HoldRoot()
	r := New(svc)

	ctxA, cancelA := context.WithCancel(context.Background())
	var wg sync.WaitGroup
	var idA, idB resource.ID
	var errA, errB error

	wg.Add(1)
	go func() {
		defer wg.Done()
		idA, errA = r.Ensure(ctxA, "places")
	}()
	// A owns the flight before B joins it.
	time.Sleep(20 * time.Millisecond)
	wg.Add(1)
	go func() {
		defer wg.Done()
		idB, errB = r.Ensure(context.Background(), "places")
	}()
	time.Sleep(20 * time.Millisecond)

	cancelA()
	time.Sleep(20 * time.Millisecond)
	release()
	wg.Wait()

	assert.ErrorIs(t, errA, context.Canceled)
	assert.Empty(t, idA)
	require.NoError(t, errB)
	assert.NotEmpty(t, idB)

	cached, ok := r.Lookup("places")
	require.True(t, ok)
	assert.Equal(t, idB, cached)
}

func TestEnsure_CancelledCallerReturnsPromptly(t *testing.T) {
	svc := testutil.NewFakeService()
	release := svc.HoldRoot()
	r := New(svc)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := r.Ensure(ctx, "media")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// The abandoned flight still binds the name once the service answers.
	release()
	id, err := r.Ensure(context.Background(), "media")
	require.NoError(t, err)
	assert.NotEmpty(t, id)
	assert.Equal(t, 1, svc.Calls("Create"))
}

func TestHas_LogsServiceFailures(t *testing.T) {
	svc := testutil.NewFakeService()
	svc.MustAdd(resource.RootID, "homescreen", resource.KindContainer, nil)
	svc.ChildByNameErr = func(resource.ID, string) error {
		return errors.New("connection reset")
	}

	var buf bytes.Buffer
	r := New(svc, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	assert.False(t, r.Has(context.Background(), "homescreen"))
	assert.Contains(t, buf.String(), "level=WARN")
	assert.Contains(t, buf.String(), "connection reset")
	assert.Equal(t, 0, svc.Calls("Create"))
}

func TestHas_MissingContainerIsQuiet(t *testing.T) {
	svc := testutil.NewFakeService()

	var buf bytes.Buffer
	r := New(svc, WithLogger(slog.New(slog.NewTextHandler(&buf, nil))))

	assert.False(t, r.Has(context.Background(), "homescreen"))
	assert.Empty(t, buf.String())
}

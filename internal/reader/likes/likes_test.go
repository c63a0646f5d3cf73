package likes

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/reader/cache"
	"github.com/marginaliapress/marginalia-server/internal/reader/client"
	"github.com/marginaliapress/marginalia-server/internal/reader/identity"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChapterID = "north-wind/01-the-harbor"

// fakeAPI is a minimal in-memory engagement API that counts calls.
type fakeAPI struct {
	mu       sync.Mutex
	statuses map[string]domain.LikeStatus
	failNext bool
	block    chan struct{}

	fetches atomic.Int32
	toggles atomic.Int32
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{statuses: make(map[string]domain.LikeStatus)}
}

func (f *fakeAPI) set(target domain.Target, status domain.LikeStatus) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statuses[target.Key()] = status
}

func (f *fakeAPI) setBlock(ch chan struct{}) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.block = ch
}

func (f *fakeAPI) setFailNext() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = true
}

func (f *fakeAPI) handler() http.Handler {
	writeStatus := func(w http.ResponseWriter, key string, status domain.LikeStatus) {
		data, _ := json.Marshal(map[string]any{
			"target_key": key,
			"total":      status.Total,
			"is_liked":   status.IsLiked,
		})
		w.Header().Set("Content-Type", "application/json")
		w.Write(data)
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		block := f.block
		fail := f.failNext
		f.failNext = false
		f.mu.Unlock()

		if block != nil {
			<-block
		}
		if fail {
			w.WriteHeader(http.StatusInternalServerError)
			w.Write([]byte(`{"code":"INTERNAL","message":"boom"}`))
			return
		}

		switch r.URL.Path {
		case "/api/v1/likes":
			f.fetches.Add(1)
			key := r.URL.Query().Get("target")
			f.mu.Lock()
			status := f.statuses[key]
			f.mu.Unlock()
			writeStatus(w, key, status)

		case "/api/v1/likes/toggle":
			f.toggles.Add(1)
			var body struct {
				TargetKey string `json:"target_key"`
				Action    string `json:"action"`
			}
			json.UnmarshalRead(r.Body, &body)

			f.mu.Lock()
			status := f.statuses[body.TargetKey]
			if body.Action == "like" && !status.IsLiked {
				status.Total++
				status.IsLiked = true
			} else if body.Action == "unlike" && status.IsLiked {
				status.Total--
				status.IsLiked = false
			}
			f.statuses[body.TargetKey] = status
			f.mu.Unlock()
			writeStatus(w, body.TargetKey, status)

		default:
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`{"code":"NOT_FOUND","message":"no route"}`))
		}
	})
}

func setupController(t *testing.T, api *fakeAPI, scope identity.Scope) *Controller {
	t.Helper()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	c := client.New(srv.URL, "rdr-test", nil)
	return NewController(c, cache.New(scope, nil), nil)
}

func TestReveal_LazyLoad(t *testing.T) {
	api := newFakeAPI()
	ctrl := setupController(t, api, identity.NewMemoryScope())

	// Nothing fetched until a line is interacted with.
	assert.Equal(t, int32(0), api.fetches.Load())

	target := domain.LineTarget(testChapterID, 12)
	api.set(target, domain.LikeStatus{Total: 3})

	status, ok := ctrl.Reveal(context.Background(), target)
	require.True(t, ok)
	assert.Equal(t, 3, status.Total)
	assert.False(t, status.IsLiked)
	assert.Equal(t, int32(1), api.fetches.Load())

	// Second reveal answers from memory.
	status, ok = ctrl.Reveal(context.Background(), target)
	require.True(t, ok)
	assert.Equal(t, 3, status.Total)
	assert.Equal(t, int32(1), api.fetches.Load())

	// Untouched lines never fetch.
	_, known := ctrl.Status(domain.LineTarget(testChapterID, 13))
	assert.False(t, known)
	assert.Equal(t, int32(1), api.fetches.Load())
}

func TestReveal_FailureIsNeutralAndRetried(t *testing.T) {
	api := newFakeAPI()
	ctrl := setupController(t, api, identity.NewMemoryScope())
	target := domain.LineTarget(testChapterID, 1)
	api.set(target, domain.LikeStatus{Total: 2})

	api.setFailNext()

	// 5xx reads are retried by the client and then fall back to neutral
	// only if all attempts fail; a single transient failure recovers.
	status, ok := ctrl.Reveal(context.Background(), target)
	require.True(t, ok)
	assert.Equal(t, 2, status.Total)
}

func TestToggle_UnknownTargetRevealsOnly(t *testing.T) {
	api := newFakeAPI()
	ctrl := setupController(t, api, identity.NewMemoryScope())
	target := domain.LineTarget(testChapterID, 4)
	api.set(target, domain.LikeStatus{Total: 9})

	// First click reveals the count, it does not register a like.
	status, err := ctrl.Toggle(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 9, status.Total)
	assert.False(t, status.IsLiked)
	assert.Equal(t, int32(1), api.fetches.Load())
	assert.Equal(t, int32(0), api.toggles.Load())

	// Second click toggles.
	status, err = ctrl.Toggle(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 10, status.Total)
	assert.True(t, status.IsLiked)
	assert.Equal(t, int32(1), api.toggles.Load())
}

func TestToggle_ServerIsAuthoritative(t *testing.T) {
	api := newFakeAPI()
	ctrl := setupController(t, api, identity.NewMemoryScope())
	target := domain.LineTarget(testChapterID, 2)

	// Another reader likes the line between our reveal and our toggle.
	api.set(target, domain.LikeStatus{Total: 3})
	_, ok := ctrl.Reveal(context.Background(), target)
	require.True(t, ok)
	api.set(target, domain.LikeStatus{Total: 6})

	status, err := ctrl.Toggle(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 7, status.Total)
	assert.True(t, status.IsLiked)

	displayed, known := ctrl.Status(target)
	require.True(t, known)
	assert.Equal(t, 7, displayed.Total)
}

func TestToggle_RollbackRestoresExactPriorState(t *testing.T) {
	api := newFakeAPI()
	scope := identity.NewMemoryScope()
	ctrl := setupController(t, api, scope)
	target := domain.LineTarget(testChapterID, 7)
	api.set(target, domain.LikeStatus{Total: 5, IsLiked: true})

	before, ok := ctrl.Reveal(context.Background(), target)
	require.True(t, ok)

	api.setFailNext()

	after, err := ctrl.Toggle(context.Background(), target)
	require.Error(t, err)
	assert.Equal(t, before, after)

	displayed, known := ctrl.Status(target)
	require.True(t, known)
	assert.Equal(t, before, displayed)

	// The durable cache rolled back too.
	cached, found := cache.New(scope, nil).Get(target)
	require.True(t, found)
	assert.Equal(t, before, cached)
}

func TestToggle_SerializedPerTarget(t *testing.T) {
	api := newFakeAPI()
	ctrl := setupController(t, api, identity.NewMemoryScope())
	target := domain.LineTarget(testChapterID, 3)
	api.set(target, domain.LikeStatus{Total: 1})

	_, ok := ctrl.Reveal(context.Background(), target)
	require.True(t, ok)

	gate := make(chan struct{})
	api.setBlock(gate)

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctrl.Toggle(context.Background(), target)
	}()

	// Wait for the optimistic flip to land, then click again.
	require.Eventually(t, func() bool {
		status, known := ctrl.Status(target)
		return known && status.IsLiked
	}, time.Second, time.Millisecond)

	status, err := ctrl.Toggle(context.Background(), target)
	require.NoError(t, err)
	assert.True(t, status.IsLiked, "suppressed toggle returns the in-flight optimistic state")

	close(gate)
	<-done

	assert.Equal(t, int32(1), api.toggles.Load())
}

func TestToggle_NoIdentityIsNoOp(t *testing.T) {
	api := newFakeAPI()
	srv := httptest.NewServer(api.handler())
	t.Cleanup(srv.Close)

	anon := client.New(srv.URL, "", nil)
	ctrl := NewController(anon, cache.New(identity.NewMemoryScope(), nil), nil)

	_, err := ctrl.Toggle(context.Background(), domain.LineTarget(testChapterID, 1))
	require.NoError(t, err)
	assert.Equal(t, int32(0), api.fetches.Load())
	assert.Equal(t, int32(0), api.toggles.Load())
}

func TestLikeFlow_SurvivesReload(t *testing.T) {
	api := newFakeAPI()
	scope := identity.NewMemoryScope()
	ctrl := setupController(t, api, scope)
	target := domain.LineTarget("c1/01-one", 12)
	api.set(target, domain.LikeStatus{Total: 3})

	_, ok := ctrl.Reveal(context.Background(), target)
	require.True(t, ok)

	status, err := ctrl.Toggle(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, domain.LikeStatus{Total: 4, IsLiked: true}, status)

	// A fresh controller over the same device scope shows the persisted
	// state with no network call.
	fetchesBefore := api.fetches.Load()
	reloaded := setupController(t, api, scope)
	status, ok = reloaded.Reveal(context.Background(), target)
	require.True(t, ok)
	assert.Equal(t, domain.LikeStatus{Total: 4, IsLiked: true}, status)
	assert.Equal(t, fetchesBefore, api.fetches.Load())
}

func TestFlip_FloorsAtZero(t *testing.T) {
	got := flip(domain.LikeStatus{Total: 0, IsLiked: true})
	assert.Equal(t, domain.LikeStatus{Total: 0, IsLiked: false}, got)

	got = flip(domain.LikeStatus{Total: 0, IsLiked: false})
	assert.Equal(t, domain.LikeStatus{Total: 1, IsLiked: true}, got)
}

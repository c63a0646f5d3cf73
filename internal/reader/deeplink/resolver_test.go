package deeplink

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	"github.com/marginaliapress/marginalia-server/internal/reader/client"
	"github.com/marginaliapress/marginalia-server/internal/reader/comments"
	"github.com/marginaliapress/marginalia-server/internal/reader/panel"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testChapterID = "north-wind/01-the-harbor"
	pageOrigin    = "https://marginalia.press"
)

// threadServer serves comment lists per target key and counts fetches.
type threadServer struct {
	mu       sync.Mutex
	byTarget map[string][]client.Comment
	fetches  int
	// appearAfter makes a comment visible only from the Nth fetch on.
	appearAfter map[string]int
}

func newThreadServer() *threadServer {
	return &threadServer{
		byTarget:    make(map[string][]client.Comment),
		appearAfter: make(map[string]int),
	}
}

func (s *threadServer) add(target domain.Target, id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := target.Key()
	s.byTarget[key] = append(s.byTarget[key], client.Comment{
		ID: id, ChapterID: target.ChapterID, Body: "A note.", AuthorName: "Ayşe",
	})
}

func (s *threadServer) fetchCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.fetches
}

func (s *threadServer) handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		s.fetches++

		visible := []client.Comment{}
		for _, c := range s.byTarget[r.URL.Query().Get("target")] {
			if after, gated := s.appearAfter[c.ID]; gated && s.fetches < after {
				continue
			}
			visible = append(visible, c)
		}
		data, _ := json.Marshal(map[string][]client.Comment{"comments": visible})
		w.Write(data)
	})
}

func setupResolver(t *testing.T, srv *threadServer, opts ...Option) (*Resolver, *panel.Controller) {
	t.Helper()
	ts := httptest.NewServer(srv.handler())
	t.Cleanup(ts.Close)

	engine := comments.NewEngine(client.New(ts.URL, "rdr-test", nil), nil)
	panelCtrl := panel.NewController(testChapterID, func(ctx context.Context, target domain.Target) error {
		_, err := engine.Load(ctx, target)
		return err
	}, nil)

	return NewResolver(panelCtrl, engine, pageOrigin, nil, opts...), panelCtrl
}

func TestResolve_OpensPanelAndHighlights(t *testing.T) {
	srv := newThreadServer()
	target := domain.LineTarget(testChapterID, 12)
	srv.add(target, "cmt-1")

	resolver, panelCtrl := setupResolver(t, srv)

	ok := resolver.Resolve(context.Background(), Request{
		ChapterID: testChapterID, LineIndex: 12, CommentID: "cmt-1",
	})
	require.True(t, ok)
	assert.Equal(t, panel.OpenForLine(12), panelCtrl.State())

	id, active := resolver.Highlighted()
	require.True(t, active)
	assert.Equal(t, "cmt-1", id)
}

func TestResolve_HighlightExpires(t *testing.T) {
	srv := newThreadServer()
	target := domain.ChapterTarget(testChapterID)
	srv.add(target, "cmt-1")

	resolver, _ := setupResolver(t, srv, WithHighlightDuration(20*time.Millisecond))

	require.True(t, resolver.Resolve(context.Background(), Request{
		ChapterID: testChapterID, CommentID: "cmt-1",
	}))
	_, active := resolver.Highlighted()
	require.True(t, active)

	assert.Eventually(t, func() bool {
		_, active := resolver.Highlighted()
		return !active
	}, time.Second, 5*time.Millisecond)
}

func TestResolve_ChapterCommentKeepsPanelClosed(t *testing.T) {
	srv := newThreadServer()
	srv.add(domain.ChapterTarget(testChapterID), "cmt-1")

	resolver, panelCtrl := setupResolver(t, srv)

	ok := resolver.Resolve(context.Background(), Request{
		ChapterID: testChapterID, CommentID: "cmt-1",
	})
	require.True(t, ok)
	assert.Equal(t, panel.Closed, panelCtrl.State())
}

func TestResolve_MissingCommentRetriesOnceThenGivesUp(t *testing.T) {
	srv := newThreadServer()
	resolver, _ := setupResolver(t, srv)

	ok := resolver.Resolve(context.Background(), Request{
		ChapterID: testChapterID, LineIndex: 3, CommentID: "cmt-gone",
	})
	assert.False(t, ok)

	// Panel open triggered one engine load, the resolver two more: the
	// initial locate and its single retry.
	assert.Equal(t, 3, srv.fetchCount())

	_, active := resolver.Highlighted()
	assert.False(t, active)
}

func TestResolve_CommentFoundOnRetry(t *testing.T) {
	srv := newThreadServer()
	target := domain.LineTarget(testChapterID, 5)
	srv.add(target, "cmt-late")
	srv.mu.Lock()
	// The panel's own load plus the resolver's first locate miss it.
	srv.appearAfter["cmt-late"] = 3
	srv.mu.Unlock()

	resolver, _ := setupResolver(t, srv)

	ok := resolver.Resolve(context.Background(), Request{
		ChapterID: testChapterID, LineIndex: 5, CommentID: "cmt-late",
	})
	assert.True(t, ok)
}

func TestResolve_InvalidRequestIsNoOp(t *testing.T) {
	srv := newThreadServer()
	resolver, panelCtrl := setupResolver(t, srv)

	assert.False(t, resolver.Resolve(context.Background(), Request{CommentID: "cmt-1"}))
	assert.False(t, resolver.Resolve(context.Background(), Request{ChapterID: testChapterID}))
	assert.Equal(t, panel.Closed, panelCtrl.State())
	assert.Equal(t, 0, srv.fetchCount())
}

func TestHandleMessage_OriginCheckIsUnconditional(t *testing.T) {
	srv := newThreadServer()
	srv.add(domain.LineTarget(testChapterID, 2), "cmt-1")

	resolver, _ := setupResolver(t, srv)
	payload := []byte(`{"chapter_id":"north-wind/01-the-harbor","line_index":2,"comment_id":"cmt-1"}`)

	// A foreign origin is dropped before anything else happens, even
	// with a perfectly valid payload.
	assert.False(t, resolver.HandleMessage(context.Background(), "https://evil.example", payload))
	assert.Equal(t, 0, srv.fetchCount())

	assert.True(t, resolver.HandleMessage(context.Background(), pageOrigin, payload))
}

func TestHandleMessage_MalformedPayload(t *testing.T) {
	srv := newThreadServer()
	resolver, _ := setupResolver(t, srv)

	assert.False(t, resolver.HandleMessage(context.Background(), pageOrigin, []byte("{not json")))
	assert.Equal(t, 0, srv.fetchCount())
}

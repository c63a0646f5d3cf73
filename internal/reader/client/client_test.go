package client

import (
	"context"
	"encoding/json/v2"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

	"github.com/marginaliapress/marginalia-server/internal/domain"
	domainerrors "github.com/marginaliapress/marginalia-server/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testChapterID = "north-wind/01-the-harbor"

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	data, _ := json.Marshal(v)
	w.Write(data)
}

func TestGetLikeStatus(t *testing.T) {
	target := domain.LineTarget(testChapterID, 3)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "/api/v1/likes", r.URL.Path)
		assert.Equal(t, target.Key(), r.URL.Query().Get("target"))
		writeJSON(w, http.StatusOK, likeStatusPayload{
			TargetKey: target.Key(), Total: 4, IsLiked: true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "rdr-test", nil)
	status, err := c.GetLikeStatus(context.Background(), target)
	require.NoError(t, err)
	assert.Equal(t, 4, status.Total)
	assert.True(t, status.IsLiked)
}

func TestGetLikeStatus_RetriesTransientFailure(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		if calls.Add(1) < 3 {
			writeJSON(w, http.StatusServiceUnavailable,
				apiError{Code: "UNAVAILABLE", Message: "warming up"})
			return
		}
		writeJSON(w, http.StatusOK, likeStatusPayload{Total: 1})
	}))
	defer srv.Close()

	c := New(srv.URL, "rdr-test", nil)
	status, err := c.GetLikeStatus(context.Background(), domain.ChapterTarget(testChapterID))
	require.NoError(t, err)
	assert.Equal(t, 1, status.Total)
	assert.Equal(t, int32(3), calls.Load())
}

func TestGetLikeStatus_NoRetryOnNotFound(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		calls.Add(1)
		writeJSON(w, http.StatusNotFound,
			apiError{Code: "NOT_FOUND", Message: "chapter \"missing\" not found"})
	}))
	defer srv.Close()

	c := New(srv.URL, "rdr-test", nil)
	_, err := c.GetLikeStatus(context.Background(), domain.ChapterTarget("missing/00-x"))
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrNotFound))
	assert.Equal(t, int32(1), calls.Load())
}

func TestToggleLike_SendsIntendedAction(t *testing.T) {
	target := domain.LineTarget(testChapterID, 1)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/likes/toggle", r.URL.Path)
		assert.Equal(t, "rdr-test", r.Header.Get("X-Reader-ID"))

		var body map[string]string
		require.NoError(t, json.UnmarshalRead(r.Body, &body))
		assert.Equal(t, target.Key(), body["target_key"])
		assert.Equal(t, "like", body["action"])

		writeJSON(w, http.StatusOK, likeStatusPayload{
			TargetKey: target.Key(), Total: 1, IsLiked: true,
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "rdr-test", nil)
	status, err := c.ToggleLike(context.Background(), target, domain.ActionLike)
	require.NoError(t, err)
	assert.True(t, status.IsLiked)
	assert.Equal(t, 1, status.Total)
}

func TestToggleLike_ForbiddenCarriesServerMessage(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		writeJSON(w, http.StatusForbidden,
			apiError{Code: "FORBIDDEN", Message: "a reader identity is required"})
	}))
	defer srv.Close()

	c := New(srv.URL, "", nil)
	_, err := c.ToggleLike(context.Background(), domain.ChapterTarget(testChapterID), domain.ActionLike)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrForbidden))
	assert.Contains(t, err.Error(), "reader identity")
}

func TestGetChapterEngagement(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, testChapterID, r.URL.Query().Get("chapter"))
		writeJSON(w, http.StatusOK, ChapterEngagement{
			Chapter: likeStatusPayload{
				TargetKey: domain.ChapterTarget(testChapterID).Key(), Total: 5, IsLiked: true,
			},
			Lines: []likeStatusPayload{
				{TargetKey: domain.LineTarget(testChapterID, 2).Key(), Total: 3},
			},
		})
	}))
	defer srv.Close()

	c := New(srv.URL, "rdr-test", nil)
	statuses, err := c.GetChapterEngagement(context.Background(), testChapterID)
	require.NoError(t, err)
	require.Len(t, statuses, 2)

	chapter := statuses[domain.ChapterTarget(testChapterID).Key()]
	assert.Equal(t, 5, chapter.Total)
	assert.True(t, chapter.IsLiked)

	line := statuses[domain.LineTarget(testChapterID, 2).Key()]
	assert.Equal(t, 3, line.Total)
	assert.False(t, line.IsLiked)
}

func TestCommentRoundTrip(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/api/v1/comments":
			var req CreateCommentRequest
			require.NoError(t, json.UnmarshalRead(r.Body, &req))
			writeJSON(w, http.StatusCreated, Comment{
				ID:         "cmt-1",
				ChapterID:  req.ChapterID,
				LineIndex:  req.LineIndex,
				AuthorName: req.AuthorName,
				Body:       req.Body,
				Mine:       true,
			})
		case r.Method == http.MethodGet && r.URL.Path == "/api/v1/comments":
			writeJSON(w, http.StatusOK, map[string][]Comment{
				"comments": {{ID: "cmt-1", Body: "Lovely passage.", Mine: true}},
			})
		case r.Method == http.MethodDelete && r.URL.Path == "/api/v1/comments/cmt-1":
			writeJSON(w, http.StatusOK, map[string]bool{"deleted": true})
		default:
			writeJSON(w, http.StatusNotFound, apiError{Code: "NOT_FOUND", Message: "no route"})
		}
	}))
	defer srv.Close()

	c := New(srv.URL, "rdr-test", nil)
	line := 3

	created, err := c.CreateComment(context.Background(), CreateCommentRequest{
		ChapterID:  testChapterID,
		LineIndex:  &line,
		AuthorName: "Ayşe",
		Body:       "Lovely passage.",
	})
	require.NoError(t, err)
	assert.Equal(t, "cmt-1", created.ID)
	assert.True(t, created.Mine)
	require.NotNil(t, created.LineIndex)
	assert.Equal(t, 3, *created.LineIndex)

	comments, err := c.ListComments(context.Background(), domain.LineTarget(testChapterID, 3))
	require.NoError(t, err)
	require.Len(t, comments, 1)
	assert.Equal(t, "Lovely passage.", comments[0].Body)

	require.NoError(t, c.DeleteComment(context.Background(), "cmt-1"))
}

func TestDo_UnreachableServer(t *testing.T) {
	c := New("http://127.0.0.1:1", "rdr-test", nil)

	_, err := c.ToggleLike(context.Background(), domain.ChapterTarget(testChapterID), domain.ActionLike)
	require.Error(t, err)
	assert.True(t, domainerrors.Is(err, domainerrors.ErrUnavailable))
}

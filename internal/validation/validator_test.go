package validation_test

import (
	"errors"
	"net/http"
	"testing"

	domainerrors "github.com/marginaliapress/marginalia-server/internal/errors"
	"github.com/marginaliapress/marginalia-server/internal/validation"
	"github.com/stretchr/testify/assert"
)

type TestRequest struct {
	ChapterID  string `json:"chapter_id" validate:"required"`
	AuthorName string `json:"author_name" validate:"required,max=80"`
	LineIndex  int    `json:"line_index" validate:"gte=0"`
}

func TestValidator_ValidateSuccess(t *testing.T) {
	v := validation.New()

	req := TestRequest{
		ChapterID:  "north-wind/01-the-harbor",
		AuthorName: "Ayşe",
		LineIndex:  3,
	}

	err := v.Validate(req)
	assert.NoError(t, err)
}

func TestValidator_ValidateErrors(t *testing.T) {
	v := validation.New()

	tests := []struct {
		name       string
		req        TestRequest
		wantErrMsg string
	}{
		{
			name: "missing required field",
			req: TestRequest{
				ChapterID:  "",
				AuthorName: "Ayşe",
			},
			wantErrMsg: "chapter_id",
		},
		{
			name: "author name too long",
			req: TestRequest{
				ChapterID:  "north-wind/01-the-harbor",
				AuthorName: string(make([]byte, 81)),
			},
			wantErrMsg: "author_name",
		},
		{
			name: "negative line index",
			req: TestRequest{
				ChapterID:  "north-wind/01-the-harbor",
				AuthorName: "Ayşe",
				LineIndex:  -1,
			},
			wantErrMsg: "line_index",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := v.Validate(tt.req)
			assert.Error(t, err)

			var domainErr *domainerrors.Error
			if assert.True(t, errors.As(err, &domainErr)) {
				assert.Equal(t, http.StatusBadRequest, domainErr.HTTPStatus())
				details, ok := domainErr.Details.(map[string]string)
				if assert.True(t, ok, "details should carry field errors") {
					assert.Contains(t, details, tt.wantErrMsg)
				}
			}
		})
	}
}

func TestValidator_JSONFieldNames(t *testing.T) {
	v := validation.New()

	err := v.Validate(TestRequest{AuthorName: "Ayşe"})
	assert.Error(t, err)

	var domainErr *domainerrors.Error
	assert.True(t, errors.As(err, &domainErr))

	// Should use the JSON tag name, not the struct field name.
	details, ok := domainErr.Details.(map[string]string)
	if assert.True(t, ok) {
		assert.Contains(t, details, "chapter_id")
		assert.NotContains(t, details, "ChapterID")
	}
}

package errors

import (
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCloneKeepsIdentity(t *testing.T) {
	err := Clone(ErrNotFound, "course not found")
	assert.Equal(t, "course not found", err.Message)
	assert.Equal(t, http.StatusNotFound, err.Status)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.False(t, errors.Is(err, ErrForbidden))
	assert.Equal(t, "resource not found", ErrNotFound.Message)
}

func TestFromErrorWrapsUnknown(t *testing.T) {
	appErr := FromError(sql.ErrConnDone)
	assert.Equal(t, ErrInternal.Code, appErr.Code)
	assert.True(t, errors.Is(appErr, sql.ErrConnDone))

	wrapped := fmt.Errorf("load: %w", Clone(ErrValidation, "bad"))
	assert.Equal(t, ErrValidation.Code, FromError(wrapped).Code)
	assert.Nil(t, FromError(nil))
}

package validator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aimd54/levellist/pkg/apperror"
)

type sample struct {
	Name     string `validate:"required,max=5"`
	Progress int    `validate:"min=1,max=100"`
	VideoRef string `validate:"omitempty,url"`
}

func TestStruct(t *testing.T) {
	require.NoError(t, Struct(sample{Name: "ok", Progress: 50}))

	err := Struct(sample{Name: "", Progress: 101, VideoRef: "not a url"})
	require.Error(t, err)
	assert.ErrorIs(t, err, apperror.ErrInvalidInput)
	assert.Contains(t, err.Error(), "name is required")
	assert.Contains(t, err.Error(), "progress must be at most 100")
	assert.Contains(t, err.Error(), "video_ref must be a valid URL")
}

func TestToSnake(t *testing.T) {
	assert.Equal(t, "min_completion_percent", toSnake("MinCompletionPercent"))
	assert.Equal(t, "user_id", toSnake("UserID"))
	assert.Equal(t, "name", toSnake("Name"))
}

package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

func TestRecorder(t *testing.T) {
	r := NewRecorder()
	ctx := context.Background()

	require.NoError(t, r.Publish(ctx, mediaingest.Event{ID: "1", Type: mediaingest.EventTypeImageUploaded}))
	require.NoError(t, r.Publish(ctx, mediaingest.Event{ID: "2", Type: mediaingest.EventTypeImageProcessed}))

	assert.Len(t, r.Events(), 2)
	processed := r.OfType(mediaingest.EventTypeImageProcessed)
	require.Len(t, processed, 1)
	assert.Equal(t, "2", processed[0].ID)

	r.FailWith(errors.New("down"))
	require.Error(t, r.Publish(ctx, mediaingest.Event{ID: "3"}))
	assert.Len(t, r.Events(), 2)

	r.FailWith(nil)
	require.NoError(t, r.Publish(ctx, mediaingest.Event{ID: "3"}))
	assert.Len(t, r.Events(), 3)
}

package memory

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

func TestRepository_PutGetImage(t *testing.T) {
	repo := New()
	ctx := context.Background()
	processed := time.Now().UTC()

	rec := &mediaingest.ImageRecord{
		ID:          "img1",
		TenantID:    "t1",
		AlbumID:     "a1",
		Filename:    "x.jpg",
		Variants:    []mediaingest.Variant{{Label: "md", Key: "public/t1/a1/img1/md/x.jpg", Width: 800, Height: 600}},
		ProcessedAt: &processed,
	}
	require.NoError(t, repo.PutImage(ctx, rec))

	got, err := repo.GetImage(ctx, "t1", "img1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)

	// stored copy is isolated from caller mutation
	rec.Variants[0].Width = 1
	got.Filename = "changed"
	again, err := repo.GetImage(ctx, "t1", "img1")
	require.NoError(t, err)
	assert.Equal(t, 800, again.Variants[0].Width)
	assert.Equal(t, "x.jpg", again.Filename)

	assert.Equal(t, 1, repo.Puts("t1", "img1"))
	assert.Equal(t, 1, repo.Count())
}

func TestRepository_TenantIsolation(t *testing.T) {
	repo := New()
	ctx := context.Background()
	require.NoError(t, repo.PutImage(ctx, &mediaingest.ImageRecord{ID: "img1", TenantID: "t1"}))

	_, err := repo.GetImage(ctx, "t2", "img1")
	assert.ErrorIs(t, err, mediaingest.ErrImageNotFound)
}

func TestRepository_Albums(t *testing.T) {
	repo := New()
	repo.PutAlbum(mediaingest.Album{TenantID: "t1", AlbumID: "a1", Name: "Trip"})

	album, err := repo.GetAlbum(context.Background(), "t1", "a1")
	require.NoError(t, err)
	assert.Equal(t, "Trip", album.Name)

	_, err = repo.GetAlbum(context.Background(), "t2", "a1")
	assert.ErrorIs(t, err, mediaingest.ErrAlbumNotFound)
}

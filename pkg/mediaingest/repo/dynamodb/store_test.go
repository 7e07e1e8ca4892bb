package dynamodb

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// fakeTable keeps items keyed by table name and the string values of the key
type fakeTable struct {
	items  map[string]map[string]types.AttributeValue
	gets   []*dynamodb.GetItemInput
	putErr error
}

func newFakeTable() *fakeTable {
	return &fakeTable{items: map[string]map[string]types.AttributeValue{}}
}

func itemKey(table string, key map[string]types.AttributeValue, sortAttr string) string {
	tenant := key["tenantId"].(*types.AttributeValueMemberS).Value
	id := key[sortAttr].(*types.AttributeValueMemberS).Value
	return table + "/" + tenant + "/" + id
}

func sortAttr(key map[string]types.AttributeValue) string {
	if _, ok := key["imageId"]; ok {
		return "imageId"
	}
	return "albumId"
}

func (f *fakeTable) GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	f.gets = append(f.gets, params)
	k := itemKey(aws.ToString(params.TableName), params.Key, sortAttr(params.Key))
	return &dynamodb.GetItemOutput{Item: f.items[k]}, nil
}

func (f *fakeTable) PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	if f.putErr != nil {
		return nil, f.putErr
	}
	k := itemKey(aws.ToString(params.TableName), params.Item, sortAttr(params.Item))
	f.items[k] = params.Item
	return &dynamodb.PutItemOutput{}, nil
}

func TestNew_Validation(t *testing.T) {
	_, err := New(nil, "images", "albums")
	require.Error(t, err)

	_, err = New(newFakeTable(), "", "albums")
	require.Error(t, err)
}

func TestStore_PutGetImage(t *testing.T) {
	table := newFakeTable()
	store, err := New(table, "images", "albums")
	require.NoError(t, err)
	ctx := context.Background()

	processed := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	rec := &mediaingest.ImageRecord{
		ID:          "i1",
		TenantID:    "t1",
		AlbumID:     "a1",
		Filename:    "x.jpg",
		ContentType: "image/jpeg",
		SizeBytes:   2048,
		Width:       1200,
		Height:      800,
		CreatedAt:   processed.Add(-time.Minute),
		OriginalKey: "public/t1/a1/i1/original/x.jpg",
		Variants: []mediaingest.Variant{
			{Label: "md", Key: "public/t1/a1/i1/md/x.jpg", Width: 800, Height: 533, SizeBytes: 512},
		},
		ProcessedAt: &processed,
	}
	require.NoError(t, store.PutImage(ctx, rec))

	got, err := store.GetImage(ctx, "t1", "i1")
	require.NoError(t, err)
	assert.Equal(t, rec.ID, got.ID)
	assert.Equal(t, rec.Variants, got.Variants)
	assert.True(t, rec.CreatedAt.Equal(got.CreatedAt))
	require.NotNil(t, got.ProcessedAt)
	assert.True(t, processed.Equal(*got.ProcessedAt))

	last := table.gets[len(table.gets)-1]
	assert.True(t, aws.ToBool(last.ConsistentRead))
}

func TestStore_GetImageNotFound(t *testing.T) {
	store, err := New(newFakeTable(), "images", "albums")
	require.NoError(t, err)

	_, err = store.GetImage(context.Background(), "t1", "missing")
	assert.ErrorIs(t, err, mediaingest.ErrImageNotFound)
}

func TestStore_PutImageError(t *testing.T) {
	table := newFakeTable()
	table.putErr = errors.New("throttled")
	store, err := New(table, "images", "albums")
	require.NoError(t, err)

	err = store.PutImage(context.Background(), &mediaingest.ImageRecord{ID: "i1", TenantID: "t1"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "throttled")
}

func TestStore_GetAlbum(t *testing.T) {
	table := newFakeTable()
	item, err := attributevalue.MarshalMap(albumItem{TenantID: "t1", AlbumID: "a1", Name: "Holidays"})
	require.NoError(t, err)
	_, err = table.PutItem(context.Background(), &dynamodb.PutItemInput{TableName: aws.String("albums"), Item: item})
	require.NoError(t, err)

	store, err := New(table, "images", "albums")
	require.NoError(t, err)

	album, err := store.GetAlbum(context.Background(), "t1", "a1")
	require.NoError(t, err)
	assert.Equal(t, &mediaingest.Album{TenantID: "t1", AlbumID: "a1", Name: "Holidays"}, album)

	_, err = store.GetAlbum(context.Background(), "t2", "a1")
	assert.ErrorIs(t, err, mediaingest.ErrAlbumNotFound)
}

func TestStore_GetAlbumWithoutTable(t *testing.T) {
	store, err := New(newFakeTable(), "images", "")
	require.NoError(t, err)

	_, err = store.GetAlbum(context.Background(), "t1", "a1")
	require.Error(t, err)
}

func TestStore_PutImageUsesCamelCaseVariantAttributes(t *testing.T) {
	table := newFakeTable()
	store, err := New(table, "images", "albums")
	require.NoError(t, err)

	require.NoError(t, store.PutImage(context.Background(), &mediaingest.ImageRecord{
		ID:       "i1",
		TenantID: "t1",
		Variants: []mediaingest.Variant{{Label: "md", Key: "public/t1/a1/i1/md/x.jpg", Width: 800, Height: 533, SizeBytes: 512}},
	}))

	item := table.items["images/t1/i1"]
	require.NotNil(t, item)
	list, ok := item["variants"].(*types.AttributeValueMemberL)
	require.True(t, ok)
	require.Len(t, list.Value, 1)

	variant, ok := list.Value[0].(*types.AttributeValueMemberM)
	require.True(t, ok)
	for _, attr := range []string{"label", "key", "width", "height", "sizeBytes"} {
		assert.Contains(t, variant.Value, attr)
	}
	assert.NotContains(t, variant.Value, "Label")
}

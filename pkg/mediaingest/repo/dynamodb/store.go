// Package dynamodb stores ImageRecords in DynamoDB and resolves albums from an
// album table. Both tables use tenantId as partition key; the image table uses
// imageId and the album table albumId as sort key.
package dynamodb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/tendant/simple-media/pkg/mediaingest"
)

// API is the subset of the DynamoDB client used by Store
type API interface {
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
}

// Store implements mediaingest.ImageMetadataStore and mediaingest.AlbumLookup
type Store struct {
	client     API
	imageTable string
	albumTable string
}

// New creates a store over the given tables
func New(client API, imageTable, albumTable string) (*Store, error) {
	if client == nil {
		return nil, errors.New("dynamodb client is required")
	}
	if imageTable == "" {
		return nil, errors.New("image table is required")
	}
	return &Store{client: client, imageTable: imageTable, albumTable: albumTable}, nil
}

type imageItem struct {
	TenantID    string        `dynamodbav:"tenantId"`
	ImageID     string        `dynamodbav:"imageId"`
	AlbumID     string        `dynamodbav:"albumId"`
	Filename    string        `dynamodbav:"filename"`
	ContentType string        `dynamodbav:"contentType"`
	SizeBytes   int64         `dynamodbav:"sizeBytes"`
	Width       int           `dynamodbav:"width"`
	Height      int           `dynamodbav:"height"`
	CreatedAt   time.Time     `dynamodbav:"createdAt"`
	OriginalKey string        `dynamodbav:"originalKey"`
	Variants    []variantItem `dynamodbav:"variants"`
	ProcessedAt *time.Time    `dynamodbav:"processedAt,omitempty"`
}

type variantItem struct {
	Label     string `dynamodbav:"label"`
	Key       string `dynamodbav:"key"`
	Width     int    `dynamodbav:"width"`
	Height    int    `dynamodbav:"height"`
	SizeBytes int64  `dynamodbav:"sizeBytes"`
}

type albumItem struct {
	TenantID string `dynamodbav:"tenantId"`
	AlbumID  string `dynamodbav:"albumId"`
	Name     string `dynamodbav:"name"`
}

func toItem(rec *mediaingest.ImageRecord) imageItem {
	variants := make([]variantItem, 0, len(rec.Variants))
	for _, v := range rec.Variants {
		variants = append(variants, variantItem{
			Label:     v.Label,
			Key:       v.Key,
			Width:     v.Width,
			Height:    v.Height,
			SizeBytes: v.SizeBytes,
		})
	}
	return imageItem{
		TenantID:    rec.TenantID,
		ImageID:     rec.ID,
		AlbumID:     rec.AlbumID,
		Filename:    rec.Filename,
		ContentType: rec.ContentType,
		SizeBytes:   rec.SizeBytes,
		Width:       rec.Width,
		Height:      rec.Height,
		CreatedAt:   rec.CreatedAt,
		OriginalKey: rec.OriginalKey,
		Variants:    variants,
		ProcessedAt: rec.ProcessedAt,
	}
}

func (item imageItem) record() *mediaingest.ImageRecord {
	var variants []mediaingest.Variant
	for _, v := range item.Variants {
		variants = append(variants, mediaingest.Variant{
			Label:     v.Label,
			Key:       v.Key,
			Width:     v.Width,
			Height:    v.Height,
			SizeBytes: v.SizeBytes,
		})
	}
	return &mediaingest.ImageRecord{
		ID:          item.ImageID,
		TenantID:    item.TenantID,
		AlbumID:     item.AlbumID,
		Filename:    item.Filename,
		ContentType: item.ContentType,
		SizeBytes:   item.SizeBytes,
		Width:       item.Width,
		Height:      item.Height,
		CreatedAt:   item.CreatedAt,
		OriginalKey: item.OriginalKey,
		Variants:    variants,
		ProcessedAt: item.ProcessedAt,
	}
}

// GetImage returns the record or mediaingest.ErrImageNotFound
func (s *Store) GetImage(ctx context.Context, tenantID, imageID string) (*mediaingest.ImageRecord, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.imageTable),
		Key: map[string]types.AttributeValue{
			"tenantId": &types.AttributeValueMemberS{Value: tenantID},
			"imageId":  &types.AttributeValueMemberS{Value: imageID},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("get image %s: %w", imageID, err)
	}
	if len(out.Item) == 0 {
		return nil, mediaingest.ErrImageNotFound
	}

	var item imageItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode image %s: %w", imageID, err)
	}
	return item.record(), nil
}

// PutImage overwrites the item unconditionally
func (s *Store) PutImage(ctx context.Context, rec *mediaingest.ImageRecord) error {
	av, err := attributevalue.MarshalMap(toItem(rec))
	if err != nil {
		return fmt.Errorf("encode image %s: %w", rec.ID, err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.imageTable),
		Item:      av,
	})
	if err != nil {
		return fmt.Errorf("put image %s: %w", rec.ID, err)
	}
	return nil
}

// GetAlbum returns the album or mediaingest.ErrAlbumNotFound
func (s *Store) GetAlbum(ctx context.Context, tenantID, albumID string) (*mediaingest.Album, error) {
	if s.albumTable == "" {
		return nil, errors.New("album table is not configured")
	}

	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.albumTable),
		Key: map[string]types.AttributeValue{
			"tenantId": &types.AttributeValueMemberS{Value: tenantID},
			"albumId":  &types.AttributeValueMemberS{Value: albumID},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("get album %s: %w", albumID, err)
	}
	if len(out.Item) == 0 {
		return nil, mediaingest.ErrAlbumNotFound
	}

	var item albumItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return nil, fmt.Errorf("decode album %s: %w", albumID, err)
	}
	return &mediaingest.Album{TenantID: item.TenantID, AlbumID: item.AlbumID, Name: item.Name}, nil
}

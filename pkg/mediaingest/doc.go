// Package mediaingest implements the image ingestion pipeline: clients receive a
// scoped upload credential for the media bucket, upload raw bytes directly to
// object storage, and a storage-notification driven worker derives resized
// variants, republishes them under the public prefix, persists an ImageRecord,
// emits an ImageProcessed event, and removes the raw upload.
//
// Basic usage:
//
//	worker, err := mediaingest.NewWorker(
//	    mediaingest.WithBlobStore(store),
//	    mediaingest.WithMetadataStore(images),
//	    mediaingest.WithEventPublisher(publisher),
//	    mediaingest.WithVariantGenerator(imaging.New()),
//	)
//	listener := mediaingest.NewStorageEventListener("media-bucket", worker)
//	err = listener.HandleBatch(ctx, mediaingest.RecordsFromS3Event(evt))
//
// Every persisted side effect is an overwrite keyed by image ID, so at-least-once
// delivery of the same notification converges to the same end state.
package mediaingest

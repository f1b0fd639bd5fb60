package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultGridFSTimeout bounds a GridFS call whose context carries no deadline.
const DefaultGridFSTimeout = 2 * time.Minute

// GridFSStore keeps images in the application's Mongo database. Keys are the
// hex GridFS file ids.
type GridFSStore struct {
	db   *mongo.Database
	opts *options.BucketOptions
}

func NewGridFSStore(db *mongo.Database, bucketName string) (*GridFSStore, error) {
	s := &GridFSStore{db: db, opts: options.GridFSBucket().SetName(bucketName)}
	if _, err := s.bucket(context.Background()); err != nil {
		return nil, err
	}
	return s, nil
}

// bucket opens a bucket whose read and write deadlines follow ctx. Buckets
// carry their deadlines as state, so each call gets its own.
func (s *GridFSStore) bucket(ctx context.Context) (*gridfs.Bucket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	b, err := gridfs.NewBucket(s.db, s.opts)
	if err != nil {
		return nil, fmt.Errorf("opening gridfs bucket: %w", err)
	}
	deadline, ok := ctx.Deadline()
	if !ok {
		deadline = time.Now().Add(DefaultGridFSTimeout)
	}
	if err := b.SetReadDeadline(deadline); err != nil {
		return nil, err
	}
	if err := b.SetWriteDeadline(deadline); err != nil {
		return nil, err
	}
	return b, nil
}

func (s *GridFSStore) Put(ctx context.Context, obj Object) (Ref, error) {
	data, contentType, err := readObject(obj)
	if err != nil {
		return Ref{}, err
	}
	bucket, err := s.bucket(ctx)
	if err != nil {
		return Ref{}, err
	}

	name := obj.Name
	if name == "" {
		name = "image" + extensionFor(contentType)
	}
	opts := options.GridFSUpload().SetMetadata(bson.D{{Key: "contentType", Value: contentType}})

	id, err := bucket.UploadFromStream(name, bytes.NewReader(data), opts)
	if err != nil {
		return Ref{}, fmt.Errorf("uploading to gridfs: %w", err)
	}

	return Ref{Key: id.Hex(), ContentType: contentType, Size: int64(len(data))}, nil
}

// Get opens a download stream. The deadline taken from ctx also bounds reads
// from the returned stream.
func (s *GridFSStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	id, err := primitive.ObjectIDFromHex(key)
	if err != nil {
		return nil, ErrNotFound
	}
	bucket, err := s.bucket(ctx)
	if err != nil {
		return nil, err
	}
	stream, err := bucket.OpenDownloadStream(id)
	if err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("opening gridfs stream: %w", err)
	}
	return stream, nil
}

func (s *GridFSStore) Delete(ctx context.Context, key string) error {
	id, err := primitive.ObjectIDFromHex(key)
	if err != nil {
		return ErrNotFound
	}
	bucket, err := s.bucket(ctx)
	if err != nil {
		return err
	}
	if err := bucket.DeleteContext(ctx, id); err != nil {
		if errors.Is(err, gridfs.ErrFileNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("deleting gridfs file: %w", err)
	}
	return nil
}

// Package stage keeps uploaded report files in an S3-compatible bucket,
// grouped into optional batch sub-paths.
package stage

import (
	"context"
	"mime"
	"path"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/annual-report-eval/internal/config"
)

// Object is one staged file.
type Object struct {
	Key          string    `json:"key"`
	Name         string    `json:"name"`
	Batch        string    `json:"batch,omitempty"`
	Size         int64     `json:"size"`
	LastModified time.Time `json:"last_modified"`
}

// Stage uploads and lists files under a bucket prefix.
type Stage struct {
	client *minio.Client
	bucket string
	prefix string
}

// New connects to the bucket in cfg, creating it when missing.
func New(ctx context.Context, cfg config.StageConfig) (*Stage, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, eris.Wrap(err, "stage: new client")
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, eris.Wrapf(err, "stage: check bucket %s", cfg.Bucket)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{Region: cfg.Region}); err != nil {
			return nil, eris.Wrapf(err, "stage: make bucket %s", cfg.Bucket)
		}
		zap.L().Info("stage: created bucket", zap.String("bucket", cfg.Bucket))
	}

	return &Stage{client: client, bucket: cfg.Bucket, prefix: strings.Trim(cfg.Prefix, "/")}, nil
}

// Upload copies the local file into the stage, under batch when given.
func (s *Stage) Upload(ctx context.Context, localPath, batch string) (*Object, error) {
	key, err := ObjectKey(s.prefix, batch, filepath.Base(localPath))
	if err != nil {
		return nil, err
	}

	info, err := s.client.FPutObject(ctx, s.bucket, key, localPath, minio.PutObjectOptions{
		ContentType: contentType(localPath),
	})
	if err != nil {
		return nil, eris.Wrapf(err, "stage: upload %s", localPath)
	}

	zap.L().Info("stage: uploaded file",
		zap.String("key", key),
		zap.Int64("size", info.Size),
	)
	return &Object{
		Key:          key,
		Name:         filepath.Base(localPath),
		Batch:        batch,
		Size:         info.Size,
		LastModified: info.LastModified,
	}, nil
}

// Download copies the object at key to localPath.
func (s *Stage) Download(ctx context.Context, key, localPath string) error {
	if err := s.client.FGetObject(ctx, s.bucket, key, localPath, minio.GetObjectOptions{}); err != nil {
		return eris.Wrapf(err, "stage: download %s", key)
	}
	return nil
}

// List returns the staged files, all of them when batch is empty, sorted
// by key.
func (s *Stage) List(ctx context.Context, batch string) ([]Object, error) {
	prefix, err := listPrefix(s.prefix, batch)
	if err != nil {
		return nil, err
	}

	var out []Object
	for obj := range s.client.ListObjects(ctx, s.bucket, minio.ListObjectsOptions{Prefix: prefix, Recursive: true}) {
		if obj.Err != nil {
			return nil, eris.Wrap(obj.Err, "stage: list objects")
		}
		o := Object{Key: obj.Key, Size: obj.Size, LastModified: obj.LastModified}
		o.Batch, o.Name = SplitKey(s.prefix, obj.Key)
		out = append(out, o)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// ObjectKey builds "<prefix>/batch/<batch>/<name>", or "<prefix>/<name>"
// without a batch.
func ObjectKey(prefix, batch, name string) (string, error) {
	if name == "" || name == "." || strings.ContainsAny(name, `/\`) {
		return "", eris.Errorf("stage: invalid file name %q", name)
	}
	if err := validBatch(batch); err != nil {
		return "", err
	}
	parts := []string{}
	if prefix != "" {
		parts = append(parts, prefix)
	}
	if batch != "" {
		parts = append(parts, "batch", batch)
	}
	parts = append(parts, name)
	return path.Join(parts...), nil
}

// SplitKey returns the batch and file name of key.
func SplitKey(prefix, key string) (batch, name string) {
	rest := strings.TrimPrefix(key, strings.Trim(prefix, "/")+"/")
	if prefix == "" {
		rest = key
	}
	if strings.HasPrefix(rest, "batch/") {
		rest = strings.TrimPrefix(rest, "batch/")
		if i := strings.IndexByte(rest, '/'); i >= 0 {
			return rest[:i], rest[i+1:]
		}
	}
	return "", rest
}

func listPrefix(prefix, batch string) (string, error) {
	if err := validBatch(batch); err != nil {
		return "", err
	}
	p := prefix
	if batch != "" {
		p = path.Join(prefix, "batch", batch)
	}
	if p != "" {
		p += "/"
	}
	return p, nil
}

func validBatch(batch string) error {
	if batch == "" {
		return nil
	}
	for _, r := range batch {
		ok := r == '-' || r == '_' || r == '.' ||
			(r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9')
		if !ok {
			return eris.Errorf("stage: invalid batch name %q", batch)
		}
	}
	if batch == "." || batch == ".." {
		return eris.Errorf("stage: invalid batch name %q", batch)
	}
	return nil
}

func contentType(name string) string {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".jsonl":
		return "application/x-ndjson"
	case ".csv":
		return "text/csv"
	case ".xlsx":
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	}
	if t := mime.TypeByExtension(filepath.Ext(name)); t != "" {
		return t
	}
	return "application/octet-stream"
}

package normalizer

import (
	"bytes"
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"

	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/awsutil"
	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/common/logging"
)

// S3API is the part of the S3 client the loader uses.
type S3API interface {
	GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// Loader reads referenced normalizer configurations. References are a
// plain path, a file:// URL or an s3://bucket/key URL; the document is
// YAML when the name ends in .yaml or .yml, JSON when it ends in .json,
// and otherwise sniffed. Nothing is cached between calls.
type Loader struct {
	aws      awsutil.Settings
	readFile func(string) ([]byte, error)
	logger   logging.Logger

	s3Once sync.Once
	s3     S3API
	s3Err  error
}

// LoaderOption configures a Loader.
type LoaderOption func(*Loader)

// WithS3Client uses client for s3:// references.
func WithS3Client(client S3API) LoaderOption {
	return func(l *Loader) {
		l.s3 = client
		l.s3Once.Do(func() {})
	}
}

// WithAWSSettings configures the lazily created S3 client.
func WithAWSSettings(settings awsutil.Settings) LoaderOption {
	return func(l *Loader) { l.aws = settings }
}

// WithLogger sets the loader's logger.
func WithLogger(logger logging.Logger) LoaderOption {
	return func(l *Loader) { l.logger = logger }
}

// NewLoader creates a Loader. Without WithS3Client an S3 client is built
// from the default AWS configuration on the first s3:// reference.
func NewLoader(opts ...LoaderOption) *Loader {
	l := &Loader{readFile: os.ReadFile}
	for _, opt := range opts {
		opt(l)
	}
	l.logger = logging.OrGlobal(l.logger)
	return l
}

// Load fetches and parses the document ref points at.
func (l *Loader) Load(ctx context.Context, ref string) (*canonical.Map, error) {
	data, name, err := l.read(ctx, ref)
	if err != nil {
		return nil, err
	}

	doc, err := parseDocument(data, name)
	if err != nil {
		return nil, errors.ConfigError(fmt.Sprintf("normalizer config_ref %q: %v", ref, err))
	}
	l.logger.WithContext(ctx).Debug("Loaded normalizer config",
		logging.String("config_ref", ref),
		logging.Int("bytes", len(data)))
	return doc, nil
}

func (l *Loader) read(ctx context.Context, ref string) ([]byte, string, error) {
	u, err := url.Parse(ref)
	if err != nil || u.Scheme == "" {
		return l.readPath(ref)
	}

	switch u.Scheme {
	case "file":
		path := u.Path
		if u.Host != "" {
			path = u.Host + path
		}
		return l.readPath(path)
	case "s3":
		return l.readS3(ctx, ref, u.Host, strings.TrimPrefix(u.Path, "/"))
	default:
		return nil, "", errors.ConfigError(fmt.Sprintf("normalizer config_ref %q: unsupported scheme %q", ref, u.Scheme))
	}
}

func (l *Loader) readPath(path string) ([]byte, string, error) {
	data, err := l.readFile(path)
	if err != nil {
		return nil, "", errors.ConfigError(fmt.Sprintf("normalizer config_ref %q: %v", path, err))
	}
	return data, path, nil
}

func (l *Loader) readS3(ctx context.Context, ref, bucket, key string) ([]byte, string, error) {
	if bucket == "" || key == "" {
		return nil, "", errors.ConfigError(fmt.Sprintf("normalizer config_ref %q: expected s3://bucket/key", ref))
	}

	client, err := l.s3Client(ctx)
	if err != nil {
		return nil, "", err
	}

	out, err := client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, "", errors.CancelledError("config load", ctx.Err())
		}
		var noKey *types.NoSuchKey
		if stderrors.As(err, &noKey) {
			return nil, "", errors.ConfigError(fmt.Sprintf("normalizer config_ref %q does not exist", ref))
		}
		return nil, "", errors.TransportError(fmt.Sprintf("failed to read normalizer config_ref %q", ref), err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, "", errors.TransportError(fmt.Sprintf("failed to read normalizer config_ref %q", ref), err)
	}
	return data, key, nil
}

func (l *Loader) s3Client(ctx context.Context) (S3API, error) {
	l.s3Once.Do(func() {
		cfg, err := awsutil.LoadConfig(ctx, l.aws)
		if err != nil {
			l.s3Err = err
			return
		}
		l.s3 = s3.NewFromConfig(cfg, func(o *s3.Options) {
			// custom endpoints (LocalStack, MinIO) only route path-style
			o.UsePathStyle = l.aws.Endpoint != ""
		})
	})
	return l.s3, l.s3Err
}

func parseDocument(data []byte, name string) (*canonical.Map, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml":
		return canonical.ParseYAMLObject(data)
	case ".json":
		return canonical.ParseJSONObject(data)
	}
	if trimmed := bytes.TrimSpace(data); len(trimmed) > 0 && trimmed[0] == '{' {
		return canonical.ParseJSONObject(data)
	}
	return canonical.ParseYAMLObject(data)
}

// Conflict is a nested key both configuration sources set differently.
// The inline value wins because the whole group is replaced.
type Conflict struct {
	Group      string
	Key        string
	Referenced any
	Inline     any
}

func (c Conflict) String() string {
	return c.Group + "." + c.Key
}

// Build merges Defaults, the referenced document and the inline document
// into a validated Config. Inline groups replace referenced groups whole;
// within a group, keys the winning document leaves out fall back to the
// defaults. Either document may be nil.
func Build(referenced, inline *canonical.Map) (*Config, []Conflict, error) {
	merged := canonical.Merge(referenced, inline)

	data, err := json.Marshal(merged)
	if err != nil {
		return nil, nil, errors.InternalError("failed to encode normalizer config", err)
	}

	cfg := Defaults()
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(cfg); err != nil {
		return nil, nil, errors.ConfigError(fmt.Sprintf("invalid normalizer config: %v", err))
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}
	return cfg, Conflicts(referenced, inline), nil
}

// Conflicts lists nested keys set to different values by both documents in
// a group they share.
func Conflicts(referenced, inline *canonical.Map) []Conflict {
	var out []Conflict
	inline.Range(func(group string, value any) bool {
		inGroup, ok := value.(*canonical.Map)
		if !ok {
			return true
		}
		refValue, _ := referenced.Get(group)
		refGroup, ok := refValue.(*canonical.Map)
		if !ok {
			return true
		}
		inGroup.Range(func(key string, v any) bool {
			if rv, ok := refGroup.Get(key); ok && !canonical.Equal(rv, v) {
				out = append(out, Conflict{Group: group, Key: key, Referenced: rv, Inline: v})
			}
			return true
		})
		return true
	})
	return out
}

// Resolve loads ref when set, builds the Config and logs any conflicts.
func (l *Loader) Resolve(ctx context.Context, inline *canonical.Map, ref string) (*Config, []Conflict, error) {
	var referenced *canonical.Map
	if ref != "" {
		doc, err := l.Load(ctx, ref)
		if err != nil {
			return nil, nil, err
		}
		referenced = doc
	}

	cfg, conflicts, err := Build(referenced, inline)
	if err != nil {
		return nil, nil, err
	}

	if len(conflicts) > 0 {
		keys := make([]string, len(conflicts))
		for i, c := range conflicts {
			keys[i] = c.String()
		}
		l.logger.WithContext(ctx).Warn("Inline normalizer config overrides referenced nested keys",
			logging.String("config_ref", ref),
			logging.Strings("keys", keys))
	}
	return cfg, conflicts, nil
}

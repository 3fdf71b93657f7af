package normalizer

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/common/logging"
)

func TestMapping_PreservesOrder(t *testing.T) {
	var m Mapping
	require.NoError(t, json.Unmarshal([]byte(`{"zeta": "", "alpha": "-A", "mid": null}`), &m))
	assert.Equal(t, Mapping{{"zeta", ""}, {"alpha", "-A"}, {"mid", ""}}, m)

	target, ok := m.Get("alpha")
	assert.True(t, ok)
	assert.Equal(t, "-A", target)

	out, err := json.Marshal(m)
	require.NoError(t, err)
	assert.Equal(t, `{"zeta":"","alpha":"-A","mid":""}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"a": 1}`), &m))
	assert.Error(t, json.Unmarshal([]byte(`["a"]`), &m))
}

func TestCategories_Decode(t *testing.T) {
	var c Categories
	require.NoError(t, json.Unmarshal([]byte(`{"rights": ["territories", "window"], "ops": "notes"}`), &c))
	assert.Equal(t, Categories{
		{Name: "rights", Fields: []string{"territories", "window"}},
		{Name: "ops", Fields: []string{"notes"}},
	}, c)

	out, err := json.Marshal(c)
	require.NoError(t, err)
	assert.Equal(t, `{"rights":["territories","window"],"ops":["notes"]}`, string(out))

	assert.Error(t, json.Unmarshal([]byte(`{"rights": [1]}`), &c))
}

func TestBuild_DefaultsAndOverrides(t *testing.T) {
	cfg, conflicts, err := Build(nil, nil)
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, Defaults(), cfg)

	cfg, _, err = Build(nil, mustJSON(t, `{
		"default_language": "fr-FR",
		"classification": {"genres_field": "categories"},
		"title_mappings": {"name": "TitleDisplayUnlimited"}
	}`))
	require.NoError(t, err)
	assert.Equal(t, "fr-FR", cfg.DefaultLanguage)
	assert.Equal(t, "categories", cfg.Classification.GenresField)
	assert.Equal(t, "is_movie", cfg.Classification.IsMovieField, "unset keys of a group keep their defaults")
	assert.Equal(t, Mapping{{"name", "TitleDisplayUnlimited"}}, cfg.TitleMappings, "mappings are replaced whole")
	assert.Equal(t, Defaults().People, cfg.People)
}

func TestBuild_InlineOverridesReferencedPerGroup(t *testing.T) {
	referenced := mustJSON(t, `{
		"source_namespace_prefix": "REF",
		"default_language": "de-DE",
		"classification": {"genres_field": "genre_list", "is_movie_field": "movie"},
		"identifier_mappings": {"content_id": "", "legacy": "-OLD"}
	}`)
	inline := mustJSON(t, `{
		"source_namespace_prefix": "INLINE",
		"classification": {"genres_field": "tags"},
		"identifier_mappings": {"content_id": "-NEW"}
	}`)

	cfg, conflicts, err := Build(referenced, inline)
	require.NoError(t, err)

	assert.Equal(t, "INLINE", cfg.SourceNamespacePrefix)
	assert.Equal(t, "de-DE", cfg.DefaultLanguage)
	assert.Equal(t, "tags", cfg.Classification.GenresField)
	assert.Equal(t, "is_movie", cfg.Classification.IsMovieField,
		"the inline group replaces the referenced group whole")
	assert.Equal(t, Mapping{{"content_id", "-NEW"}}, cfg.IdentifierMappings)

	var keys []string
	for _, c := range conflicts {
		keys = append(keys, c.String())
	}
	assert.Equal(t, []string{"classification.genres_field", "identifier_mappings.content_id"}, keys)
	assert.Equal(t, "genre_list", conflicts[0].Referenced)
	assert.Equal(t, "tags", conflicts[0].Inline)
}

func TestBuild_Errors(t *testing.T) {
	tests := []struct {
		name   string
		inline string
		want   string
	}{
		{"unknown key", `{"identifer_mappings": {}}`, "unknown field"},
		{"wrong type", `{"include_raw_source": "yes"}`, "invalid normalizer config"},
		{"title target", `{"title_mappings": {"title": "Headline"}}`, `title_mappings target "Headline"`},
		{"no identity", `{"primary_id_field": "", "ref_id_field": " "}`, "one of primary_id_field or ref_id_field is required"},
		{"empty target", `{"video_mappings": {"codec": ""}}`, "video_mappings target"},
		{"no language", `{"default_language": ""}`, "default_language is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Build(nil, mustJSON(t, tt.inline))
			require.Error(t, err)
			assert.True(t, errors.IsType(err, errors.ErrTypeConfig), err.Error())
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoader_Files(t *testing.T) {
	yamlPath := writeFile(t, "acme.yaml", `
source_namespace_prefix: ACME
identifier_mappings:
  content_id: ""
  house_id: -HOUSE
`)
	jsonPath := writeFile(t, "acme.json", `{"source_namespace_prefix": "ACME"}`)
	sniffedPath := writeFile(t, "acme.conf", "default_language: es-ES\n")

	l := NewLoader(WithLogger(logging.NopLogger{}))
	ctx := context.Background()

	doc, err := l.Load(ctx, yamlPath)
	require.NoError(t, err)
	assert.Equal(t, []string{"source_namespace_prefix", "identifier_mappings"}, doc.Keys())

	doc, err = l.Load(ctx, "file://"+jsonPath)
	require.NoError(t, err)
	prefix, _ := doc.Get("source_namespace_prefix")
	assert.Equal(t, "ACME", prefix)

	doc, err = l.Load(ctx, sniffedPath)
	require.NoError(t, err)
	assert.True(t, doc.Has("default_language"))

	_, err = l.Load(ctx, filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	_, err = l.Load(ctx, "https://example.com/config.json")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))

	broken := writeFile(t, "broken.json", `{"a":`)
	_, err = l.Load(ctx, broken)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

func TestLoader_Resolve(t *testing.T) {
	path := writeFile(t, "ref.yaml", `
source_namespace_prefix: REF
classification:
  genres_field: genre_list
`)
	l := NewLoader(WithLogger(logging.NopLogger{}))
	inline := mustJSON(t, `{"classification": {"genres_field": "tags"}}`)

	cfg, conflicts, err := l.Resolve(context.Background(), inline, path)
	require.NoError(t, err)
	assert.Equal(t, "REF", cfg.SourceNamespacePrefix)
	assert.Equal(t, "tags", cfg.Classification.GenresField)
	assert.Len(t, conflicts, 1)

	cfg, conflicts, err = l.Resolve(context.Background(), nil, "")
	require.NoError(t, err)
	assert.Empty(t, conflicts)
	assert.Equal(t, Defaults(), cfg)
}

type fakeS3 struct {
	objects map[string]string
	calls   int
}

func (f *fakeS3) GetObject(ctx context.Context, params *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error) {
	f.calls++
	body, ok := f.objects[aws.ToString(params.Bucket)+"/"+aws.ToString(params.Key)]
	if !ok {
		return nil, &types.NoSuchKey{Message: aws.String("missing")}
	}
	return &s3.GetObjectOutput{Body: io.NopCloser(bytes.NewReader([]byte(body)))}, nil
}

func TestLoader_S3(t *testing.T) {
	fake := &fakeS3{objects: map[string]string{
		"configs/customers/acme.yml": "source_namespace_prefix: ACME\n",
	}}
	l := NewLoader(WithS3Client(fake), WithLogger(logging.NopLogger{}))
	ctx := context.Background()

	doc, err := l.Load(ctx, "s3://configs/customers/acme.yml")
	require.NoError(t, err)
	prefix, _ := doc.Get("source_namespace_prefix")
	assert.Equal(t, "ACME", prefix)

	// not cached between calls
	_, err = l.Load(ctx, "s3://configs/customers/acme.yml")
	require.NoError(t, err)
	assert.Equal(t, 2, fake.calls)

	_, err = l.Load(ctx, "s3://configs/customers/other.yml")
	require.Error(t, err)
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
	assert.Contains(t, err.Error(), "does not exist")

	_, err = l.Load(ctx, "s3://configs")
	assert.True(t, errors.IsType(err, errors.ErrTypeConfig))
}

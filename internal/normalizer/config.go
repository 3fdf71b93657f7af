package normalizer

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/samber/lo"

	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/validation"
)

// Config is the declarative mapping configuration. Every source field the
// normalizer reads is named here; fields may be dotted paths into nested
// objects. Each top-level group has a default, see Defaults.
type Config struct {
	SourceNamespacePrefix string `json:"source_namespace_prefix"`
	DefaultLanguage       string `json:"default_language"`
	PrimaryIDField        string `json:"primary_id_field"`
	RefIDField            string `json:"ref_id_field"`
	IncludeRawSource      bool   `json:"include_raw_source"`

	// source field -> namespace suffix, see ResolveNamespace
	IdentifierMappings Mapping `json:"identifier_mappings"`
	// source field -> LocalizedInfo field
	TitleMappings  Mapping              `json:"title_mappings"`
	Classification ClassificationConfig `json:"classification"`
	// source field -> SequenceInfo key
	HierarchyMappings Mapping `json:"hierarchy_mappings"`
	// source field -> ParentMetadata key
	ParentMetadataMappings Mapping       `json:"parent_metadata_mappings"`
	People                 PeopleConfig  `json:"people"`
	Ratings                RatingsConfig `json:"ratings"`
	VideoMappings          Mapping       `json:"video_mappings"`
	AudioMappings          Mapping       `json:"audio_mappings"`
	SubtitleMappings       Mapping       `json:"subtitle_mappings"`
	TemporalMappings       Mapping       `json:"temporal_mappings"`
	GeographicMappings     Mapping       `json:"geographic_mappings"`
	CustomFieldCategories  Categories    `json:"custom_field_categories"`
}

// ClassificationConfig locates work-type flags and genres.
type ClassificationConfig struct {
	IsMovieField     string `json:"is_movie_field"`
	ContentTypeField string `json:"content_type_field"`
	VideoTypeField   string `json:"video_type_field"`
	GenresField      string `json:"genres_field"`
	GenreTypeAttr    string `json:"genre_type_attribute"`
	GenreTextKey     string `json:"genre_text_key"`
	// genre types routed to CustomFields instead of Genres
	PlatformGenreTypes    []string `json:"platform_genre_types"`
	PlatformGenreCategory string   `json:"platform_genre_category"`
}

// PeopleConfig maps source credit lists onto job functions.
type PeopleConfig struct {
	// source field -> JobFunction
	FieldMappings    Mapping `json:"people_field_mappings"`
	GuestActorsField string  `json:"guest_actors_field"`
	FirstNameAttr    string  `json:"first_name_attribute"`
	LastNameAttr     string  `json:"last_name_attribute"`
	DisplayNameAttr  string  `json:"display_name_attribute"`
	OrderAttr        string  `json:"order_attribute"`
	CharacterAttr    string  `json:"character_attribute"`
}

// RatingsConfig locates rating entries and maps systems to regions.
type RatingsConfig struct {
	RatingsField   string `json:"ratings_field"`
	SystemAttr     string `json:"system_attribute"`
	ValueAttr      string `json:"value_attribute"`
	DescriptorAttr string `json:"descriptor_attribute"`
	// rating system -> region code
	RatingSystemMappings Mapping `json:"rating_system_mappings"`
}

// Pair is one entry of a Mapping.
type Pair struct {
	Source string
	Target string
}

// Mapping is an ordered string to string table decoded from a JSON object.
// Decoding replaces the whole table.
type Mapping []Pair

// UnmarshalJSON keeps the document order of the object.
func (m *Mapping) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*m = nil
		return nil
	}
	obj, err := canonical.ParseJSONObject(data)
	if err != nil {
		return err
	}

	out := make(Mapping, 0, obj.Len())
	var bad error
	obj.Range(func(key string, value any) bool {
		if value == nil {
			out = append(out, Pair{Source: key})
			return true
		}
		s, ok := value.(string)
		if !ok {
			bad = fmt.Errorf("mapping value for %q must be a string, got %s", key, canonical.Kind(value))
			return false
		}
		out = append(out, Pair{Source: key, Target: s})
		return true
	})
	if bad != nil {
		return bad
	}
	*m = out
	return nil
}

// MarshalJSON writes the table as an object in order.
func (m Mapping) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, p := range m {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writePair(&buf, p.Source, p.Target); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Get returns the target of source.
func (m Mapping) Get(source string) (string, bool) {
	for _, p := range m {
		if p.Source == source {
			return p.Target, true
		}
	}
	return "", false
}

// GetFold is Get with a case-insensitive fallback.
func (m Mapping) GetFold(source string) (string, bool) {
	if target, ok := m.Get(source); ok {
		return target, true
	}
	for _, p := range m {
		if strings.EqualFold(p.Source, source) {
			return p.Target, true
		}
	}
	return "", false
}

// Category lists the source fields preserved under one CustomFields name.
type Category struct {
	Name   string
	Fields []string
}

// Categories is decoded from {"category": ["field", ...]}; a single string
// is accepted for a one-field category.
type Categories []Category

// UnmarshalJSON keeps the document order of categories and fields.
func (c *Categories) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*c = nil
		return nil
	}
	obj, err := canonical.ParseJSONObject(data)
	if err != nil {
		return err
	}

	out := make(Categories, 0, obj.Len())
	var bad error
	obj.Range(func(name string, value any) bool {
		cat := Category{Name: name}
		for _, item := range canonical.AsList(value) {
			field, ok := item.(string)
			if !ok {
				bad = fmt.Errorf("custom field category %q must list field names", name)
				return false
			}
			cat.Fields = append(cat.Fields, field)
		}
		out = append(out, cat)
		return true
	})
	if bad != nil {
		return bad
	}
	*c = out
	return nil
}

// MarshalJSON writes the categories as an object in order.
func (c Categories) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		fields := cat.Fields
		if fields == nil {
			fields = []string{}
		}
		if err := writePair(&buf, cat.Name, fields); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// Defaults returns the configuration used for every group a customer
// document leaves out.
func Defaults() *Config {
	return &Config{
		SourceNamespacePrefix: "EXTERNAL",
		DefaultLanguage:       "en-US",
		PrimaryIDField:        "content_id",
		RefIDField:            "ref_id",
		IdentifierMappings: Mapping{
			{"content_id", ""},
			{"ref_id", "-REF"},
		},
		TitleMappings: Mapping{
			{"title", "TitleDisplayUnlimited"},
			{"short_title", "TitleDisplay19"},
			{"sort_title", "TitleSort"},
			{"original_title", "OriginalTitle"},
			{"short_description", "Summary190"},
			{"description", "Summary400"},
			{"long_description", "Summary4000"},
			{"copyright", "CopyrightLine"},
		},
		Classification: ClassificationConfig{
			IsMovieField:          "is_movie",
			ContentTypeField:      "content_type",
			VideoTypeField:        "video_type",
			GenresField:           "genres",
			GenreTypeAttr:         "type",
			GenreTextKey:          "name",
			PlatformGenreCategory: "advertising",
		},
		HierarchyMappings: Mapping{
			{"series_id", "SeriesID"},
			{"season_id", "SeasonID"},
			{"season_number", "SeasonNumber"},
			{"episode_number", "EpisodeNumber"},
		},
		ParentMetadataMappings: Mapping{
			{"series_title", "SeriesTitle"},
			{"series_description", "SeriesDescription"},
			{"series_season_count", "SeriesSeasonCount"},
			{"season_title", "SeasonTitle"},
			{"season_description", "SeasonDescription"},
			{"season_episode_count", "SeasonEpisodeCount"},
		},
		People: PeopleConfig{
			FieldMappings: Mapping{
				{"actors", "Actor"},
				{"guest_actors", "Actor"},
				{"directors", "Director"},
				{"producers", "Producer"},
				{"writers", "Writer"},
			},
			GuestActorsField: "guest_actors",
			FirstNameAttr:    "first_name",
			LastNameAttr:     "last_name",
			DisplayNameAttr:  "name",
			OrderAttr:        "order",
			CharacterAttr:    "character",
		},
		Ratings: RatingsConfig{
			RatingsField:   "ratings",
			SystemAttr:     "system",
			ValueAttr:      "value",
			DescriptorAttr: "descriptor",
			RatingSystemMappings: Mapping{
				{"MPAA", "US"},
				{"TVPG", "US"},
				{"BBFC", "GB"},
				{"FSK", "DE"},
				{"CSA", "FR"},
				{"CHVRS", "CA"},
				{"ACB", "AU"},
			},
		},
		VideoMappings: Mapping{
			{"video_codec", "Codec"},
			{"width", "Width"},
			{"height", "Height"},
			{"frame_rate", "FrameRate"},
			{"aspect_ratio", "AspectRatio"},
			{"dynamic_range", "DynamicRange"},
		},
		AudioMappings: Mapping{
			{"audio_codec", "Codec"},
			{"audio_channels", "Channels"},
			{"audio_language", "Language"},
		},
		SubtitleMappings: Mapping{
			{"subtitle_language", "Language"},
			{"subtitle_format", "Format"},
		},
		TemporalMappings: Mapping{
			{"release_date", "ReleaseDate"},
			{"release_year", "ReleaseYear"},
			{"original_air_date", "OriginalAirDate"},
			{"duration", "RunLength"},
		},
		GeographicMappings: Mapping{
			{"country_of_origin", "CountryOfOrigin"},
			{"original_language", "OriginalLanguage"},
		},
	}
}

// Validate checks the settings the normalizer cannot run without.
func (c *Config) Validate() error {
	v := validation.NewValidatorWithPrefix("normalizer")

	v.RequireString(c.DefaultLanguage, "default_language")
	v.Validate(func() error {
		if strings.TrimSpace(c.PrimaryIDField) == "" && strings.TrimSpace(c.RefIDField) == "" {
			return fmt.Errorf("normalizer: one of primary_id_field or ref_id_field is required")
		}
		return nil
	})

	for _, p := range c.TitleMappings {
		if !lo.Contains(LocalizedFields, p.Target) {
			target := p.Target
			v.Validate(func() error {
				return fmt.Errorf("normalizer: title_mappings target %q must be one of: %s",
					target, strings.Join(LocalizedFields, ", "))
			})
		}
	}

	groups := []struct {
		name        string
		mapping     Mapping
		emptyTarget bool
	}{
		{"identifier_mappings", c.IdentifierMappings, true},
		{"title_mappings", c.TitleMappings, false},
		{"hierarchy_mappings", c.HierarchyMappings, false},
		{"parent_metadata_mappings", c.ParentMetadataMappings, false},
		{"people.people_field_mappings", c.People.FieldMappings, false},
		{"ratings.rating_system_mappings", c.Ratings.RatingSystemMappings, true},
		{"video_mappings", c.VideoMappings, false},
		{"audio_mappings", c.AudioMappings, false},
		{"subtitle_mappings", c.SubtitleMappings, false},
		{"temporal_mappings", c.TemporalMappings, false},
		{"geographic_mappings", c.GeographicMappings, false},
	}
	for _, g := range groups {
		for _, p := range g.mapping {
			v.RequireString(p.Source, g.name+" source field")
			if !g.emptyTarget {
				v.RequireString(p.Target, fmt.Sprintf("%s target for %q", g.name, p.Source))
			}
		}
	}

	for _, cat := range c.CustomFieldCategories {
		v.RequireString(cat.Name, "custom_field_categories name")
	}

	return v.Error()
}

// Package normalizer maps a canonical metadata tree onto the MEC v2.25
// shape, driven entirely by Config.
//
// Normalization is a pure function of the tree and the configuration: the
// input is never modified, groups resolve independently, and missing
// optional fields are omitted. The only failure is a record that carries
// neither a primary nor a reference id.
package normalizer

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"metadata-enricher/internal/canonical"
	"metadata-enricher/internal/common/errors"
	"metadata-enricher/internal/common/registry"
)

// Normalizer turns a fetched record into normalized metadata.
type Normalizer interface {
	Normalize(raw *canonical.Map, cfg *Config) (*Metadata, error)
	Name() string
}

// Factory builds a Normalizer.
type Factory func() Normalizer

// Registry maps normalizer.source_type values to factories.
type Registry = registry.Registry[Factory]

// GenericName is the registry name of the configuration driven normalizer.
const GenericName = "generic"

// NewRegistry returns a registry holding the generic normalizer.
func NewRegistry() *Registry {
	r := registry.New[Factory]("normalizer source type")
	r.Register(GenericName, func() Normalizer { return Generic{} }, "mec")
	return r
}

// Generic is the configuration driven normalizer.
type Generic struct{}

// Name returns the registry name.
func (Generic) Name() string { return GenericName }

// Normalize implements Normalizer.
func (Generic) Normalize(raw *canonical.Map, cfg *Config) (*Metadata, error) {
	return Normalize(raw, cfg)
}

// ResolveNamespace builds an AltIdentifier namespace: an empty suffix is
// the prefix itself, a suffix starting with "-" is appended to the prefix
// and any other suffix is an absolute namespace used as is.
func ResolveNamespace(suffix, prefix string) string {
	switch {
	case suffix == "":
		return prefix
	case strings.HasPrefix(suffix, "-"):
		return prefix + suffix
	default:
		return suffix
	}
}

// Normalize maps raw according to cfg. A nil cfg uses Defaults.
func Normalize(raw *canonical.Map, cfg *Config) (*Metadata, error) {
	if cfg == nil {
		cfg = Defaults()
	}
	p := &pass{raw: raw, cfg: cfg, consumed: make(map[string]bool)}

	if err := p.identity(); err != nil {
		return nil, err
	}
	p.identifiers()
	p.localized()
	p.classification()
	p.out.BasicMetadata.SequenceInfo = p.straight(cfg.HierarchyMappings)
	p.out.ParentMetadata = p.straight(cfg.ParentMetadataMappings)
	p.people()
	p.ratings()
	p.technical()
	p.out.BasicMetadata.ReleaseInfo = p.straight(cfg.TemporalMappings)
	p.out.BasicMetadata.Geographic = p.straight(cfg.GeographicMappings)
	p.customFields()

	if cfg.IncludeRawSource {
		p.out.RawSource = raw
	}
	return &p.out, nil
}

// pass is the state of one normalization. consumed records the top-level
// raw keys read by a mapping group so custom fields never duplicate them.
type pass struct {
	raw      *canonical.Map
	cfg      *Config
	consumed map[string]bool
	out      Metadata
}

// lookup resolves a configured field: an exact key first, then a dotted path.
func (p *pass) lookup(field string) (any, bool) {
	if field == "" {
		return nil, false
	}
	if v, ok := p.raw.Get(field); ok {
		p.consumed[field] = true
		return v, true
	}
	if !strings.Contains(field, ".") {
		return nil, false
	}
	v, ok := canonical.Lookup(p.raw, field)
	if ok {
		p.consumed[strings.SplitN(field, ".", 2)[0]] = true
	}
	return v, ok
}

func (p *pass) text(field string) (string, bool) {
	v, ok := p.lookup(field)
	if !ok {
		return "", false
	}
	return canonical.NonEmptyString(v)
}

func (p *pass) identity() error {
	primary, hasPrimary := p.text(p.cfg.PrimaryIDField)
	ref, hasRef := p.text(p.cfg.RefIDField)
	if !hasPrimary && !hasRef {
		return errors.NormalizationError(fmt.Sprintf(
			"neither primary_id_field %q nor ref_id_field %q resolves to a value",
			p.cfg.PrimaryIDField, p.cfg.RefIDField))
	}

	if hasPrimary {
		p.out.BasicMetadata.ContentID = primary
	} else {
		p.out.BasicMetadata.ContentID = ref
	}
	if hasRef {
		p.out.BasicMetadata.RefID = ref
	}
	return nil
}

func (p *pass) identifiers() {
	for _, m := range p.cfg.IdentifierMappings {
		v, ok := p.lookup(m.Source)
		if !ok {
			continue
		}
		namespace := ResolveNamespace(m.Target, p.cfg.SourceNamespacePrefix)
		for _, item := range canonical.AsList(v) {
			if value, ok := canonical.NonEmptyString(item); ok {
				p.out.AltIdentifiers = append(p.out.AltIdentifiers, AltIdentifier{Namespace: namespace, Value: value})
			}
		}
	}
}

func (p *pass) localized() {
	info := LocalizedInfo{Language: p.cfg.DefaultLanguage}
	for _, m := range p.cfg.TitleMappings {
		if value, ok := p.text(m.Source); ok {
			info.set(m.Target, value)
		}
	}
	info.Genres = p.genres()

	if !info.empty() {
		p.out.LocalizedInfo = []LocalizedInfo{info}
	}
}

func (p *pass) classification() {
	c := p.cfg.Classification
	if v, ok := p.lookup(c.IsMovieField); ok {
		if b, ok := truthy(v); ok {
			p.out.BasicMetadata.IsMovie = &b
		}
	}
	if s, ok := p.text(c.ContentTypeField); ok {
		p.out.BasicMetadata.ContentType = s
	}
	if s, ok := p.text(c.VideoTypeField); ok {
		p.out.BasicMetadata.VideoType = s
	}
}

// genres splits genre entries into canonical genres and platform genres,
// which go to CustomFields under the platform category.
func (p *pass) genres() []Genre {
	c := p.cfg.Classification
	v, ok := p.lookup(c.GenresField)
	if !ok {
		return nil
	}

	var out []Genre
	for _, entry := range canonical.AsList(v) {
		var genreType, value string
		if m, isMap := entry.(*canonical.Map); isMap {
			genreType, _ = attr(m, c.GenreTypeAttr)
			if value, ok = attr(m, c.GenreTextKey); !ok {
				value, ok = canonical.NonEmptyString(m)
			}
		} else {
			value, ok = canonical.NonEmptyString(entry)
		}
		if !ok {
			continue
		}

		if genreType != "" && containsFold(c.PlatformGenreTypes, genreType) {
			p.out.CustomFields = p.out.CustomFields.add(c.PlatformGenreCategory, genreType, value)
			continue
		}
		out = append(out, Genre{Type: genreType, Value: value})
	}
	return out
}

func (p *pass) people() {
	c := p.cfg.People
	for _, m := range c.FieldMappings {
		v, ok := p.lookup(m.Source)
		if !ok {
			continue
		}
		guest := c.GuestActorsField != "" && m.Source == c.GuestActorsField

		var credits []Person
		for _, entry := range canonical.AsList(v) {
			if person, ok := p.person(entry, m.Target, guest); ok {
				credits = append(credits, person)
			}
		}
		sort.SliceStable(credits, func(i, j int) bool {
			oi, oj := credits[i].BillingBlockOrder, credits[j].BillingBlockOrder
			if oi == nil {
				return false
			}
			return oj == nil || *oi < *oj
		})
		p.out.People = append(p.out.People, credits...)
	}
}

func (p *pass) person(entry any, jobFunction string, guest bool) (Person, bool) {
	c := p.cfg.People
	person := Person{JobFunction: jobFunction, Guest: guest}

	m, isMap := entry.(*canonical.Map)
	if !isMap {
		name, ok := canonical.NonEmptyString(entry)
		person.DisplayName = name
		return person, ok
	}

	person.FirstGivenName, _ = attr(m, c.FirstNameAttr)
	person.FamilyName, _ = attr(m, c.LastNameAttr)
	person.Character, _ = attr(m, c.CharacterAttr)
	if name, ok := attr(m, c.DisplayNameAttr); ok {
		person.DisplayName = name
	} else if text, ok := canonical.NonEmptyString(m); ok {
		person.DisplayName = text
	} else {
		person.DisplayName = strings.TrimSpace(person.FirstGivenName + " " + person.FamilyName)
	}
	if order, ok := attr(m, c.OrderAttr); ok {
		if n, err := strconv.Atoi(strings.TrimSpace(order)); err == nil {
			person.BillingBlockOrder = &n
		}
	}
	return person, person.DisplayName != ""
}

func (p *pass) ratings() {
	c := p.cfg.Ratings
	v, ok := p.lookup(c.RatingsField)
	if !ok {
		return
	}

	for _, entry := range canonical.AsList(v) {
		m, isMap := entry.(*canonical.Map)
		if !isMap {
			continue
		}
		value, ok := attr(m, c.ValueAttr)
		if !ok {
			if value, ok = canonical.NonEmptyString(m); !ok {
				continue
			}
		}
		rating := Rating{Value: value}
		rating.System, _ = attr(m, c.SystemAttr)
		rating.Descriptor, _ = attr(m, c.DescriptorAttr)
		if rating.System != "" {
			rating.Region, _ = c.RatingSystemMappings.GetFold(rating.System)
		}
		p.out.Ratings = append(p.out.Ratings, rating)
	}
}

func (p *pass) technical() {
	tech := Technical{
		Video:    p.straight(p.cfg.VideoMappings),
		Audio:    p.straight(p.cfg.AudioMappings),
		Subtitle: p.straight(p.cfg.SubtitleMappings),
	}
	if len(tech.Video) > 0 || len(tech.Audio) > 0 || len(tech.Subtitle) > 0 {
		p.out.Technical = &tech
	}
}

// straight copies each mapped field under its target key. Text values are
// rendered as strings so JSON and XML sources agree.
func (p *pass) straight(mapping Mapping) Attributes {
	var out Attributes
	for _, m := range mapping {
		v, ok := p.lookup(m.Source)
		if !ok {
			continue
		}
		if value, ok := plain(v); ok {
			out = out.add(m.Target, value)
		}
	}
	return out
}

func (p *pass) customFields() {
	for _, cat := range p.cfg.CustomFieldCategories {
		for _, field := range cat.Fields {
			if p.consumed[field] {
				continue
			}
			v, ok := p.raw.Get(field)
			if !ok {
				continue
			}
			p.consumed[field] = true
			p.out.CustomFields = p.out.CustomFields.add(cat.Name, field, v)
		}
	}
}

// attr reads an entry attribute by name; "x" also matches the XML form
// "@x" and the other way round.
func attr(m *canonical.Map, name string) (string, bool) {
	if name == "" {
		return "", false
	}
	if s, ok := nonEmpty(m, name); ok {
		return s, true
	}
	if strings.HasPrefix(name, canonical.AttrPrefix) {
		return nonEmpty(m, strings.TrimPrefix(name, canonical.AttrPrefix))
	}
	return nonEmpty(m, canonical.AttrPrefix+name)
}

func nonEmpty(m *canonical.Map, key string) (string, bool) {
	v, ok := m.Get(key)
	if !ok {
		return "", false
	}
	return canonical.NonEmptyString(v)
}

// plain renders text as a string and lists as their text items; other
// objects are copied unchanged.
func plain(v any) (any, bool) {
	if s, ok := canonical.NonEmptyString(v); ok {
		return s, true
	}
	switch t := v.(type) {
	case canonical.List:
		var items []string
		for _, item := range t {
			if s, ok := canonical.NonEmptyString(item); ok {
				items = append(items, s)
			}
		}
		return items, len(items) > 0
	case *canonical.Map:
		return t, t.Len() > 0
	}
	return nil, false
}

func truthy(v any) (bool, bool) {
	if b, ok := v.(bool); ok {
		return b, true
	}
	s, ok := canonical.String(v)
	if !ok {
		return false, false
	}
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "t", "yes", "y", "1", "movie":
		return true, true
	case "false", "f", "no", "n", "0":
		return false, true
	}
	return false, false
}

func containsFold(values []string, s string) bool {
	for _, v := range values {
		if strings.EqualFold(v, s) {
			return true
		}
	}
	return false
}

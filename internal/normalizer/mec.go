package normalizer

import (
	"bytes"
	"encoding/json"

	"metadata-enricher/internal/canonical"
)

// Metadata is the normalized record in MovieLabs MEC v2.25 shape.
type Metadata struct {
	BasicMetadata  BasicMetadata   `json:"BasicMetadata"`
	LocalizedInfo  []LocalizedInfo `json:"LocalizedInfo,omitempty"`
	People         []Person        `json:"People,omitempty"`
	Ratings        []Rating        `json:"Ratings,omitempty"`
	AltIdentifiers []AltIdentifier `json:"AltIdentifiers,omitempty"`
	ParentMetadata Attributes      `json:"ParentMetadata,omitempty"`
	Technical      *Technical      `json:"Technical,omitempty"`
	CustomFields   CustomFields    `json:"CustomFields,omitempty"`
	RawSource      *canonical.Map  `json:"RawSource,omitempty"`
}

// BasicMetadata holds the identity and classification of the work.
type BasicMetadata struct {
	ContentID    string     `json:"ContentID"`
	RefID        string     `json:"RefID,omitempty"`
	IsMovie      *bool      `json:"IsMovie,omitempty"`
	ContentType  string     `json:"ContentType,omitempty"`
	VideoType    string     `json:"VideoType,omitempty"`
	SequenceInfo Attributes `json:"SequenceInfo,omitempty"`
	ReleaseInfo  Attributes `json:"ReleaseInfo,omitempty"`
	Geographic   Attributes `json:"Geographic,omitempty"`
}

// LocalizedInfo is the locale-tagged text of the work.
type LocalizedInfo struct {
	Language              string  `json:"Language"`
	TitleDisplay19        string  `json:"TitleDisplay19,omitempty"`
	TitleDisplay60        string  `json:"TitleDisplay60,omitempty"`
	TitleDisplayUnlimited string  `json:"TitleDisplayUnlimited,omitempty"`
	TitleSort             string  `json:"TitleSort,omitempty"`
	OriginalTitle         string  `json:"OriginalTitle,omitempty"`
	Summary190            string  `json:"Summary190,omitempty"`
	Summary400            string  `json:"Summary400,omitempty"`
	Summary4000           string  `json:"Summary4000,omitempty"`
	CopyrightLine         string  `json:"CopyrightLine,omitempty"`
	Genres                []Genre `json:"Genres,omitempty"`
}

// LocalizedFields are the LocalizedInfo targets a title mapping may name.
var LocalizedFields = []string{
	"TitleDisplay19", "TitleDisplay60", "TitleDisplayUnlimited", "TitleSort",
	"OriginalTitle", "Summary190", "Summary400", "Summary4000", "CopyrightLine",
}

func (l *LocalizedInfo) set(field, value string) bool {
	switch field {
	case "TitleDisplay19":
		l.TitleDisplay19 = value
	case "TitleDisplay60":
		l.TitleDisplay60 = value
	case "TitleDisplayUnlimited":
		l.TitleDisplayUnlimited = value
	case "TitleSort":
		l.TitleSort = value
	case "OriginalTitle":
		l.OriginalTitle = value
	case "Summary190":
		l.Summary190 = value
	case "Summary400":
		l.Summary400 = value
	case "Summary4000":
		l.Summary4000 = value
	case "CopyrightLine":
		l.CopyrightLine = value
	default:
		return false
	}
	return true
}

func (l LocalizedInfo) empty() bool {
	return len(l.Genres) == 0 &&
		l.TitleDisplay19 == "" && l.TitleDisplay60 == "" && l.TitleDisplayUnlimited == "" &&
		l.TitleSort == "" && l.OriginalTitle == "" && l.Summary190 == "" &&
		l.Summary400 == "" && l.Summary4000 == "" && l.CopyrightLine == ""
}

// Genre is one canonical genre. Type is the source taxonomy tag, if any.
type Genre struct {
	Type  string `json:"Type,omitempty"`
	Value string `json:"Value"`
}

// Person is one cast or crew credit.
type Person struct {
	JobFunction       string `json:"JobFunction"`
	DisplayName       string `json:"DisplayName,omitempty"`
	FirstGivenName    string `json:"FirstGivenName,omitempty"`
	FamilyName        string `json:"FamilyName,omitempty"`
	Character         string `json:"Character,omitempty"`
	BillingBlockOrder *int   `json:"BillingBlockOrder,omitempty"`
	Guest             bool   `json:"Guest"`
}

// Rating is a content rating. Region is empty when the rating system has
// no configured region.
type Rating struct {
	Region     string `json:"Region,omitempty"`
	System     string `json:"System"`
	Value      string `json:"Value"`
	Descriptor string `json:"Descriptor,omitempty"`
}

// AltIdentifier is a namespace-qualified external id.
type AltIdentifier struct {
	Namespace string `json:"namespace"`
	Value     string `json:"value"`
}

// Technical groups the audio/video/subtitle descriptors.
type Technical struct {
	Video    Attributes `json:"Video,omitempty"`
	Audio    Attributes `json:"Audio,omitempty"`
	Subtitle Attributes `json:"Subtitle,omitempty"`
}

// Attribute is one key/value pair of an ordered attribute set.
type Attribute struct {
	Key   string
	Value any
}

// Attributes is an ordered key/value set rendered as a JSON object.
type Attributes []Attribute

// Get returns the value stored under key.
func (a Attributes) Get(key string) (any, bool) {
	for _, attr := range a {
		if attr.Key == key {
			return attr.Value, true
		}
	}
	return nil, false
}

// add appends key or, when it already exists, collects both values into a
// list under the first position.
func (a Attributes) add(key string, value any) Attributes {
	for i, attr := range a {
		if attr.Key != key {
			continue
		}
		if list, ok := attr.Value.([]any); ok {
			a[i].Value = append(list, value)
		} else {
			a[i].Value = []any{attr.Value, value}
		}
		return a
	}
	return append(a, Attribute{Key: key, Value: value})
}

// MarshalJSON writes the attributes as an object in order.
func (a Attributes) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, attr := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writePair(&buf, attr.Key, attr.Value); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// CustomFieldCategory holds preserved source fields of one category.
type CustomFieldCategory struct {
	Category string
	Fields   Attributes
}

// CustomFields is rendered as {category: {field: value}} in order.
type CustomFields []CustomFieldCategory

// Get returns the fields of category.
func (c CustomFields) Get(category string) (Attributes, bool) {
	for _, cat := range c {
		if cat.Category == category {
			return cat.Fields, true
		}
	}
	return nil, false
}

func (c CustomFields) add(category, key string, value any) CustomFields {
	for i := range c {
		if c[i].Category == category {
			c[i].Fields = c[i].Fields.add(key, value)
			return c
		}
	}
	return append(c, CustomFieldCategory{Category: category, Fields: Attributes{{Key: key, Value: value}}})
}

// MarshalJSON writes the categories as an object in order.
func (c CustomFields) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, cat := range c {
		if i > 0 {
			buf.WriteByte(',')
		}
		if err := writePair(&buf, cat.Category, cat.Fields); err != nil {
			return nil, err
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func writePair(buf *bytes.Buffer, key string, value any) error {
	k, err := json.Marshal(key)
	if err != nil {
		return err
	}
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	buf.Write(k)
	buf.WriteByte(':')
	buf.Write(v)
	return nil
}

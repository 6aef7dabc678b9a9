package catalog

import (
	"encoding/json"
	"fmt"
	"time"
)

// Kind identifies which type of local record an entity is.
type Kind string

// Entity kinds.
const (
	KindStudio    Kind = "studio"
	KindPerformer Kind = "performer"
	KindTag       Kind = "tag"
)

// AllKinds returns every entity kind in display order.
func AllKinds() []Kind {
	return []Kind{KindStudio, KindPerformer, KindTag}
}

// ParseKind validates s as a Kind.
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindStudio, KindPerformer, KindTag:
		return k, nil
	default:
		return "", fmt.Errorf("unknown entity kind %q (want studio, performer or tag)", s)
	}
}

// HasAliases reports whether entities of this kind carry aliases.
func (k Kind) HasAliases() bool { return k != KindTag }

// ExternalLink ties a local entity to a record in one remote source.
type ExternalLink struct {
	SourceID string `json:"source_id"`
	RemoteID string `json:"remote_id"`
}

// Entity is a studio, performer or tag record in the local catalog.
type Entity struct {
	ID             string         `json:"id"`
	Kind           Kind           `json:"kind"`
	Name           string         `json:"name"`
	Aliases        []string       `json:"aliases,omitempty"`
	Links          []ExternalLink `json:"links,omitempty"`
	ParentID       string         `json:"parent_id,omitempty"`
	ImageURL       string         `json:"image_url,omitempty"`
	URL            string         `json:"url,omitempty"`
	Description    string         `json:"description,omitempty"`
	Disambiguation string         `json:"disambiguation,omitempty"`
	Gender         string         `json:"gender,omitempty"`
	Birthdate      string         `json:"birthdate,omitempty"`
	Country        string         `json:"country,omitempty"`
	Ethnicity      string         `json:"ethnicity,omitempty"`
	CreatedAt      time.Time      `json:"created_at"`
	UpdatedAt      time.Time      `json:"updated_at"`
}

// LinkFor returns the link to sourceID, if any.
func (e *Entity) LinkFor(sourceID string) (ExternalLink, bool) {
	for _, l := range e.Links {
		if l.SourceID == sourceID {
			return l, true
		}
	}
	return ExternalLink{}, false
}

// HasLink reports whether the entity is linked to remoteID in sourceID.
func (e *Entity) HasLink(sourceID, remoteID string) bool {
	l, ok := e.LinkFor(sourceID)
	return ok && l.RemoteID == remoteID
}

// Fields are the attributes supplied when creating an entity.
type Fields struct {
	Name           string
	Aliases        []string
	Links          []ExternalLink
	ParentID       string
	ImageURL       string
	URL            string
	Description    string
	Disambiguation string
	Gender         string
	Birthdate      string
	Country        string
	Ethnicity      string
}

// Update is a partial update. Nil fields are left unchanged; a non-nil
// Links replaces the entity's full link set.
type Update struct {
	Name           *string
	Aliases        *[]string
	Links          *[]ExternalLink
	ParentID       *string
	ImageURL       *string
	URL            *string
	Description    *string
	Disambiguation *string
	Gender         *string
	Birthdate      *string
	Country        *string
	Ethnicity      *string
}

// IsEmpty reports whether the update changes nothing.
func (u Update) IsEmpty() bool {
	return u.Name == nil && u.Aliases == nil && u.Links == nil && u.ParentID == nil &&
		u.ImageURL == nil && u.URL == nil && u.Description == nil &&
		u.Disambiguation == nil && u.Gender == nil && u.Birthdate == nil &&
		u.Country == nil && u.Ethnicity == nil
}

// ListParams selects a page of entities.
type ListParams struct {
	Page     int
	PageSize int
	// All disables the "no external links" filter.
	All bool
}

// Validate clamps page and page size to sane values.
func (p *ListParams) Validate() {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.PageSize < 1 {
		p.PageSize = 50
	}
	if p.PageSize > 500 {
		p.PageSize = 500
	}
}

// marshalStringSlice encodes a string slice as a JSON array string.
func marshalStringSlice(s []string) string {
	if s == nil {
		return "[]"
	}
	data, _ := json.Marshal(s)
	return string(data)
}

// unmarshalStringSlice decodes a JSON array string into a string slice.
func unmarshalStringSlice(data string) []string {
	if data == "" || data == "[]" {
		return nil
	}
	var result []string
	if err := json.Unmarshal([]byte(data), &result); err != nil {
		return nil
	}
	return result
}

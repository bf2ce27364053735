// Package as1 holds the canonical activity model that every source adapter
// and format codec converts to and from. The JSON serialization of these
// structs is itself the canonical wire format, so there is no separate
// mapping layer for the plain JSON codec.
package as1

import (
	"fmt"
	"time"
)

// Activity is one canonical social activity. Adapters construct activities
// during normalization; codecs only read them.
type Activity struct {
	Verb      Verb    `json:"verb"`
	ID        string  `json:"id,omitempty"`
	URL       string  `json:"url,omitempty"`
	Published string  `json:"published,omitempty"`
	Updated   string  `json:"updated,omitempty"`
	Actor     *Actor  `json:"actor,omitempty"`
	Object    *Object `json:"object,omitempty"`
	Target    *Object `json:"target,omitempty"`
	Generator string  `json:"generator,omitempty"`
}

// Actor is a person or page, either nested in an activity or standalone.
type Actor struct {
	ID          string `json:"id,omitempty"`
	Username    string `json:"username,omitempty"`
	DisplayName string `json:"displayName,omitempty"`
	Description string `json:"description,omitempty"`
	URL         string `json:"url,omitempty"`
	Image       *Image `json:"image,omitempty"`
}

// Object is the thing an activity acted on: a note, article, photo, comment.
// Attachments hold embedded media and quoted posts as nested objects.
type Object struct {
	ID          string     `json:"id,omitempty"`
	ObjectType  ObjectType `json:"objectType,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	Content     string     `json:"content,omitempty"`
	URL         string     `json:"url,omitempty"`
	Image       *Image     `json:"image,omitempty"`
	Stream      *Image     `json:"stream,omitempty"`
	Published   string     `json:"published,omitempty"`
	Updated     string     `json:"updated,omitempty"`
	Author      *Actor     `json:"author,omitempty"`
	InReplyTo   []Ref      `json:"inReplyTo,omitempty"`
	Tags        []Tag      `json:"tags,omitempty"`
	Attachments []*Object  `json:"attachments,omitempty"`
	Location    *Location  `json:"location,omitempty"`
}

// Ref points at another object by id and/or url, eg a reply parent.
type Ref struct {
	ID  string `json:"id,omitempty"`
	URL string `json:"url,omitempty"`
}

// Image is a media link. Stream reuses it for video/audio URLs.
type Image struct {
	URL         string `json:"url,omitempty"`
	DisplayName string `json:"displayName,omitempty"` // alt text
}

// Location is an optional place annotation on an object.
type Location struct {
	ID          string  `json:"id,omitempty"`
	DisplayName string  `json:"displayName,omitempty"`
	URL         string  `json:"url,omitempty"`
	Latitude    float64 `json:"latitude,omitempty"`
	Longitude   float64 `json:"longitude,omitempty"`
}

// Tag is an inline reference within an object's content: a mention, hashtag
// or link. StartIndex and Length are Unicode codepoint offsets into the
// unescaped content of the object the tag annotates. A tag with Length zero
// carries no offset annotation; both fields are omitted from JSON then.
type Tag struct {
	ObjectType  ObjectType `json:"objectType,omitempty"`
	ID          string     `json:"id,omitempty"`
	URL         string     `json:"url,omitempty"`
	DisplayName string     `json:"displayName,omitempty"`
	StartIndex  int        `json:"startIndex,omitempty"`
	Length      int        `json:"length,omitempty"`
}

// HasOffsets reports whether the tag annotates a content span.
func (t Tag) HasOffsets() bool {
	return t.Length > 0
}

// Validate checks the offset invariant of every tag against the content of
// the object it annotates, recursively through attachments.
func (o *Object) Validate() error {
	if o == nil {
		return nil
	}
	n := CodepointLen(o.Content)
	for _, t := range o.Tags {
		if !t.HasOffsets() {
			continue
		}
		if t.StartIndex < 0 {
			return fmt.Errorf("tag %q: negative startIndex %d", t.DisplayName, t.StartIndex)
		}
		if t.StartIndex+t.Length > n {
			return fmt.Errorf("tag %q: span [%d,%d) exceeds content length %d codepoints",
				t.DisplayName, t.StartIndex, t.StartIndex+t.Length, n)
		}
	}
	for _, att := range o.Attachments {
		if err := att.Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the activity for internal consistency. Adapters call this
// once per item at construction time; malformed items are skipped.
func (a *Activity) Validate() error {
	if a.Verb == "" {
		return fmt.Errorf("activity %q: missing verb", a.ID)
	}
	if !a.Verb.IsValid() {
		return fmt.Errorf("activity %q: unknown verb %q", a.ID, a.Verb)
	}
	if a.Object != nil && a.Object.ObjectType != "" && !a.Object.ObjectType.IsValid() {
		return fmt.Errorf("activity %q: unknown object type %q", a.ID, a.Object.ObjectType)
	}
	if err := a.Object.Validate(); err != nil {
		return fmt.Errorf("activity %q: %w", a.ID, err)
	}
	return a.Target.Validate()
}

// Timestamp parses the activity's published time, zero time if absent or bad.
func (a *Activity) Timestamp() time.Time {
	if t, err := time.Parse(time.RFC3339, a.Published); err == nil {
		return t.UTC()
	}
	return time.Time{}
}

// FormatTime renders a timestamp in the canonical UTC format.
func FormatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(TimeFormat)
}

package atom

import (
	"encoding/xml"
	"strings"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/microformats2"
	"github.com/sarajaksa/granary/server/source"
)

// the decode structs use namespace-URI tags: Go's parser resolves prefixes,
// so the prefixed encode structs cannot be reused here

type feedIn struct {
	XMLName      xml.Name  `xml:"http://www.w3.org/2005/Atom feed"`
	ID           string    `xml:"id"`
	Title        string    `xml:"title"`
	Author       *authorIn `xml:"author"`
	TotalResults *int      `xml:"http://a9.com/-/spec/opensearch/1.1/ totalResults"`
	StartIndex   int       `xml:"http://a9.com/-/spec/opensearch/1.1/ startIndex"`
	ItemsPerPage int       `xml:"http://a9.com/-/spec/opensearch/1.1/ itemsPerPage"`
	Entries      []entryIn `xml:"entry"`
}

type entryIn struct {
	XMLName    xml.Name     `xml:"entry"`
	ID         string       `xml:"id"`
	Title      string       `xml:"title"`
	Published  string       `xml:"published"`
	Updated    string       `xml:"updated"`
	Verb       string       `xml:"http://activitystrea.ms/spec/1.0/ verb"`
	ObjectType string       `xml:"http://activitystrea.ms/spec/1.0/ object-type"`
	Author     *authorIn    `xml:"author"`
	Links      []linkIn     `xml:"link"`
	Content    *contentIn   `xml:"content"`
	Categories []categoryIn `xml:"category"`
	InReplyTo  []replyIn    `xml:"http://purl.org/syndication/thread/1.0 in-reply-to"`
}

type authorIn struct {
	Name string `xml:"name"`
	URI  string `xml:"uri"`
}

type linkIn struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr"`
	Href string `xml:"href,attr"`
}

type contentIn struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

type categoryIn struct {
	Term   string `xml:"term,attr"`
	Scheme string `xml:"scheme,attr"`
	Label  string `xml:"label,attr"`
}

type replyIn struct {
	Ref  string `xml:"ref,attr"`
	Href string `xml:"href,attr"`
}

// DecodeFeed parses an Atom feed back into an envelope. OpenSearch
// startIndex and totalResults carry through; a feed without them decodes as
// page zero with the entry count as total.
func DecodeFeed(payload []byte) (as1.Envelope, error) {
	var feed feedIn
	if err := xml.Unmarshal(payload, &feed); err != nil {
		return as1.Envelope{}, source.NewDecodingError("unparseable atom feed", err)
	}
	items := make([]as1.Activity, 0, len(feed.Entries))
	for _, e := range feed.Entries {
		act, err := entryToActivity(e)
		if err != nil {
			return as1.Envelope{}, err
		}
		items = append(items, act)
	}
	total := -1
	if feed.TotalResults != nil {
		total = *feed.TotalResults
	}
	return as1.NewEnvelope(items, feed.StartIndex, total), nil
}

// DecodeEntry parses a standalone Atom entry.
func DecodeEntry(payload []byte) (as1.Activity, error) {
	var e entryIn
	if err := xml.Unmarshal(payload, &e); err != nil {
		return as1.Activity{}, source.NewDecodingError("unparseable atom entry", err)
	}
	return entryToActivity(e)
}

func entryToActivity(e entryIn) (as1.Activity, error) {
	verb := as1.Verb(strings.TrimPrefix(e.Verb, as1.SchemaPrefix))
	if verb == "" {
		verb = as1.VerbPost
	}
	if !verb.IsValid() {
		return as1.Activity{}, source.NewDecodingError("unknown activity verb "+e.Verb, nil)
	}

	obj := &as1.Object{
		ID:         e.ID,
		ObjectType: as1.ObjectType(strings.TrimPrefix(e.ObjectType, as1.SchemaPrefix)),
		Published:  e.Published,
		Updated:    e.Updated,
	}
	if obj.ObjectType == "" {
		obj.ObjectType = as1.TypeNote
	}

	if e.Content != nil {
		if e.Content.Type == "html" {
			text, tags, err := microformats2.ParseContent(e.Content.Body)
			if err != nil {
				return as1.Activity{}, err
			}
			obj.Content = text
			obj.Tags = tags
		} else {
			obj.Content = e.Content.Body
		}
	}
	// a title the encoder derived from the content is not a real name
	if e.Title != "" && e.Title != entryTitle(obj) {
		obj.DisplayName = e.Title
	}

	for _, l := range e.Links {
		switch l.Rel {
		case "alternate", "":
			if obj.URL == "" {
				obj.URL = l.Href
			}
		case "enclosure":
			obj.Attachments = append(obj.Attachments, enclosureObject(l))
		}
	}

	// categories duplicating an inline anchor's span are the same tag; a
	// category is only a duplicate when both term and URL match the anchor
	seen := make(map[[2]string]bool, len(obj.Tags))
	for _, t := range obj.Tags {
		seen[[2]string{t.DisplayName, t.URL}] = true
	}
	for _, c := range e.Categories {
		if c.Term == "" || seen[[2]string{c.Term, c.Label}] {
			continue
		}
		tag := as1.Tag{
			ObjectType:  as1.ObjectType(strings.TrimPrefix(c.Scheme, as1.SchemaPrefix)),
			DisplayName: c.Term,
			URL:         c.Label,
		}
		if tag.ObjectType == "" || !tag.ObjectType.IsValid() {
			tag.ObjectType = as1.TypeHashtag
		}
		obj.Tags = append(obj.Tags, tag)
	}
	as1.SortTags(obj.Tags)

	for _, r := range e.InReplyTo {
		if r.Ref != "" || r.Href != "" {
			obj.InReplyTo = append(obj.InReplyTo, as1.Ref{ID: r.Ref, URL: r.Href})
		}
	}
	if len(obj.InReplyTo) > 0 && obj.ObjectType == as1.TypeNote {
		obj.ObjectType = as1.TypeComment
	}

	var actor *as1.Actor
	if e.Author != nil {
		actor = &as1.Actor{DisplayName: e.Author.Name, URL: e.Author.URI}
		obj.Author = actor
	}

	act := as1.Activity{
		Verb:      verb,
		ID:        e.ID,
		URL:       obj.URL,
		Published: e.Published,
		Updated:   e.Updated,
		Actor:     actor,
		Object:    obj,
	}
	if err := act.Validate(); err != nil {
		return as1.Activity{}, source.NewDecodingError("entry does not decode to a consistent activity", err)
	}
	return act, nil
}

func enclosureObject(l linkIn) *as1.Object {
	switch {
	case strings.HasPrefix(l.Type, "video/"):
		return &as1.Object{
			ObjectType: as1.TypeVideo,
			URL:        l.Href,
			Stream:     &as1.Image{URL: l.Href},
		}
	case strings.HasPrefix(l.Type, "audio/"):
		return &as1.Object{
			ObjectType: as1.TypeAudio,
			URL:        l.Href,
			Stream:     &as1.Image{URL: l.Href},
		}
	}
	return &as1.Object{
		ObjectType: as1.TypeImage,
		URL:        l.Href,
		Image:      &as1.Image{URL: l.Href},
	}
}

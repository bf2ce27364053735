// Package atom converts between the canonical model and Atom feeds carrying
// Activity Streams extension elements. Verbs and object types use the
// activity: namespace with schema URIs, reply targets use thr:in-reply-to,
// and envelope metadata rides on OpenSearch feed elements since Atom has no
// native paging.
//
// Entry content is type="html": the unescaped canonical content with inline
// anchors spliced at tag codepoint offsets, then XML-escaped as a whole.
// Offsets always refer to the unescaped text.
package atom

import (
	"encoding/xml"
	"strings"

	"golang.org/x/net/html"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/microformats2"
	"github.com/sarajaksa/granary/server/source"
)

const (
	NSAtom       = "http://www.w3.org/2005/Atom"
	NSActivity   = "http://activitystrea.ms/spec/1.0/"
	NSThread     = "http://purl.org/syndication/thread/1.0"
	NSOpenSearch = "http://a9.com/-/spec/opensearch/1.1/"
)

const titleLimit = 100

// encoding/xml cannot emit prefixed names from namespace-URI tags, so the
// encode structs spell the prefixes out and declare them on the root.

type feedOut struct {
	XMLName       xml.Name   `xml:"feed"`
	Xmlns         string     `xml:"xmlns,attr"`
	XmlnsActivity string     `xml:"xmlns:activity,attr"`
	XmlnsThr      string     `xml:"xmlns:thr,attr"`
	XmlnsOS       string     `xml:"xmlns:openSearch,attr"`
	ID            string     `xml:"id"`
	Title         string     `xml:"title"`
	Updated       string     `xml:"updated,omitempty"`
	Author        *authorOut `xml:"author,omitempty"`
	TotalResults  int        `xml:"openSearch:totalResults"`
	StartIndex    int        `xml:"openSearch:startIndex"`
	ItemsPerPage  int        `xml:"openSearch:itemsPerPage"`
	Entries       []entryOut `xml:"entry"`
}

type entryOut struct {
	XMLName       xml.Name      `xml:"entry"`
	Xmlns         string        `xml:"xmlns,attr,omitempty"`
	XmlnsActivity string        `xml:"xmlns:activity,attr,omitempty"`
	XmlnsThr      string        `xml:"xmlns:thr,attr,omitempty"`
	ID            string        `xml:"id"`
	Title         string        `xml:"title"`
	Published     string        `xml:"published,omitempty"`
	Updated       string        `xml:"updated,omitempty"`
	Verb          string        `xml:"activity:verb"`
	ObjectType    string        `xml:"activity:object-type,omitempty"`
	Author        *authorOut    `xml:"author,omitempty"`
	Links         []linkOut     `xml:"link"`
	Content       *contentOut   `xml:"content,omitempty"`
	Categories    []categoryOut `xml:"category"`
	InReplyTo     []replyOut    `xml:"thr:in-reply-to"`
}

type authorOut struct {
	Name string `xml:"name"`
	URI  string `xml:"uri,omitempty"`
}

type linkOut struct {
	Rel  string `xml:"rel,attr"`
	Type string `xml:"type,attr,omitempty"`
	Href string `xml:"href,attr"`
}

type contentOut struct {
	Type string `xml:"type,attr"`
	Body string `xml:",chardata"`
}

type categoryOut struct {
	Term   string `xml:"term,attr"`
	Scheme string `xml:"scheme,attr,omitempty"`
	Label  string `xml:"label,attr,omitempty"`
}

type replyOut struct {
	Ref  string `xml:"ref,attr,omitempty"`
	Href string `xml:"href,attr,omitempty"`
}

// EncodeFeed renders an envelope as an Atom feed, with the paging metadata
// as OpenSearch elements.
func EncodeFeed(env as1.Envelope, title, feedID string, actor *as1.Actor) ([]byte, error) {
	feed := feedOut{
		Xmlns:         NSAtom,
		XmlnsActivity: NSActivity,
		XmlnsThr:      NSThread,
		XmlnsOS:       NSOpenSearch,
		ID:            feedID,
		Title:         title,
		TotalResults:  env.TotalResults,
		StartIndex:    env.StartIndex,
		ItemsPerPage:  env.ItemsPerPage,
	}
	if actor != nil {
		feed.Author = &authorOut{Name: actor.DisplayName, URI: actor.URL}
	}
	for i := range env.Items {
		act := &env.Items[i]
		entry, err := buildEntry(act)
		if err != nil {
			return nil, err
		}
		if feed.Updated == "" {
			feed.Updated = act.Published
		}
		feed.Entries = append(feed.Entries, entry)
	}
	out, err := xml.MarshalIndent(feed, "", "  ")
	if err != nil {
		return nil, source.NewEncodingError("cannot marshal atom feed", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// EncodeEntry renders one activity as a standalone Atom entry.
func EncodeEntry(act as1.Activity) ([]byte, error) {
	entry, err := buildEntry(&act)
	if err != nil {
		return nil, err
	}
	entry.Xmlns = NSAtom
	entry.XmlnsActivity = NSActivity
	entry.XmlnsThr = NSThread
	out, err := xml.MarshalIndent(entry, "", "  ")
	if err != nil {
		return nil, source.NewEncodingError("cannot marshal atom entry", err)
	}
	return append([]byte(xml.Header), out...), nil
}

func buildEntry(act *as1.Activity) (entryOut, error) {
	if act.Object == nil {
		return entryOut{}, source.NewEncodingError("activity "+act.ID+" has no object", nil)
	}
	obj := act.Object

	entry := entryOut{
		ID:         act.ID,
		Title:      entryTitle(obj),
		Published:  act.Published,
		Updated:    act.Updated,
		Verb:       as1.SchemaPrefix + string(act.Verb),
		ObjectType: schemaObjectType(obj.ObjectType),
	}
	if entry.ID == "" {
		entry.ID = obj.ID
	}
	if entry.Updated == "" {
		entry.Updated = obj.Updated
	}

	author := obj.Author
	if author == nil {
		author = act.Actor
	}
	if author != nil {
		entry.Author = &authorOut{Name: author.DisplayName, URI: author.URL}
	}

	if url := act.URL; url != "" {
		entry.Links = append(entry.Links, linkOut{Rel: "alternate", Type: "text/html", Href: url})
	} else if obj.URL != "" {
		entry.Links = append(entry.Links, linkOut{Rel: "alternate", Type: "text/html", Href: obj.URL})
	}
	for _, att := range obj.Attachments {
		if link := enclosure(att); link != nil {
			entry.Links = append(entry.Links, *link)
		}
	}

	if obj.Content != "" {
		entry.Content = &contentOut{
			Type: "html",
			Body: microformats2.RenderContent(obj.Content, obj.Tags),
		}
	}

	for _, t := range obj.Tags {
		cat := categoryOut{Term: t.DisplayName}
		if t.ObjectType != "" {
			cat.Scheme = as1.SchemaPrefix + string(t.ObjectType)
		}
		if t.URL != "" {
			cat.Label = t.URL
		}
		entry.Categories = append(entry.Categories, cat)
	}

	for _, ref := range obj.InReplyTo {
		entry.InReplyTo = append(entry.InReplyTo, replyOut{Ref: ref.ID, Href: ref.URL})
	}
	return entry, nil
}

func enclosure(att *as1.Object) *linkOut {
	switch att.ObjectType {
	case as1.TypeImage, as1.TypePhoto:
		url := att.URL
		if att.Image != nil {
			url = att.Image.URL
		}
		if url != "" {
			return &linkOut{Rel: "enclosure", Type: "image/*", Href: url}
		}
	case as1.TypeVideo:
		url := att.URL
		if att.Stream != nil {
			url = att.Stream.URL
		}
		if url != "" {
			return &linkOut{Rel: "enclosure", Type: "video/*", Href: url}
		}
	case as1.TypeAudio:
		url := att.URL
		if att.Stream != nil {
			url = att.Stream.URL
		}
		if url != "" {
			return &linkOut{Rel: "enclosure", Type: "audio/*", Href: url}
		}
	}
	return nil
}

func entryTitle(obj *as1.Object) string {
	if obj.DisplayName != "" {
		return obj.DisplayName
	}
	text := stripHTML(obj.Content)
	if as1.CodepointLen(text) > titleLimit {
		return as1.CodepointSlice(text, 0, titleLimit) + "..."
	}
	return text
}

// stripHTML flattens markup to text, for sources whose canonical content is
// already HTML.
func stripHTML(s string) string {
	if !strings.ContainsAny(s, "<&") {
		return s
	}
	var b strings.Builder
	tok := html.NewTokenizer(strings.NewReader(s))
	for {
		switch tok.Next() {
		case html.ErrorToken:
			return strings.TrimSpace(b.String())
		case html.TextToken:
			b.Write(tok.Text())
		}
	}
}

func schemaObjectType(t as1.ObjectType) string {
	if t == "" {
		return ""
	}
	return as1.SchemaPrefix + string(t)
}

package microformats2

import (
	"bytes"
	"strconv"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html"
	"golang.org/x/net/html/atom"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
)

// Decode parses the first h-entry in an HTML document.
func Decode(payload []byte) (as1.Activity, error) {
	activities, err := DecodeAll(payload)
	if err != nil {
		return as1.Activity{}, err
	}
	if len(activities) == 0 {
		return as1.Activity{}, source.NewDecodingError("no h-entry found", nil)
	}
	return activities[0], nil
}

// DecodeAll parses every top-level h-entry in an HTML document.
func DecodeAll(payload []byte) ([]as1.Activity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, source.NewDecodingError("unparseable HTML", err)
	}
	activities := []as1.Activity{}
	var decodeErr error
	doc.Find(".h-entry").Each(func(_ int, entry *goquery.Selection) {
		if decodeErr != nil {
			return
		}
		if entry.ParentsFiltered(".h-entry, .h-cite").Length() > 0 {
			return
		}
		act, err := decodeEntry(entry)
		if err != nil {
			decodeErr = err
			return
		}
		activities = append(activities, act)
	})
	if decodeErr != nil {
		return nil, decodeErr
	}
	return activities, nil
}

// DecodeActor parses the first standalone h-card in an HTML document.
func DecodeActor(payload []byte) (as1.Actor, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return as1.Actor{}, source.NewDecodingError("unparseable HTML", err)
	}
	card := doc.Find(".h-card").FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsFiltered(".h-entry, .h-cite").Length() == 0
	}).First()
	if card.Length() == 0 {
		return as1.Actor{}, source.NewDecodingError("no h-card found", nil)
	}
	return decodeCard(card), nil
}

func decodeEntry(entry *goquery.Selection) (as1.Activity, error) {
	obj := &as1.Object{ObjectType: as1.TypeNote}

	obj.ID = ownProp(entry, "data.u-uid").AttrOr("value", "")
	obj.DisplayName = strings.TrimSpace(ownProp(entry, ".p-name").First().Text())
	obj.URL = ownProp(entry, "a.u-url").AttrOr("href", "")
	obj.Published = ownProp(entry, "time.dt-published").AttrOr("datetime", "")
	obj.Updated = ownProp(entry, "time.dt-updated").AttrOr("datetime", "")

	if content := ownProp(entry, ".e-content").First(); content.Length() > 0 {
		text, tags := decodeContent(content)
		obj.Content = text
		obj.Tags = tags
	}

	var actor *as1.Actor
	if card := entry.Find(".p-author.h-card").First(); card.Length() > 0 {
		a := decodeCard(card)
		actor = &a
		obj.Author = &a
	}

	entry.Find(".u-in-reply-to").Each(func(_ int, s *goquery.Selection) {
		ref := refFromElement(s)
		if ref != (as1.Ref{}) {
			obj.InReplyTo = append(obj.InReplyTo, ref)
		}
	})
	if len(obj.InReplyTo) > 0 {
		obj.ObjectType = as1.TypeComment
	}

	// media and quoted attachments
	ownProp(entry, "img.u-photo").Each(func(_ int, s *goquery.Selection) {
		src := s.AttrOr("src", "")
		obj.ObjectType = as1.TypePhoto
		obj.Attachments = append(obj.Attachments, &as1.Object{
			ObjectType: as1.TypeImage,
			URL:        src,
			Image:      &as1.Image{URL: src, DisplayName: s.AttrOr("alt", "")},
		})
	})
	ownProp(entry, "video.u-video").Each(func(_ int, s *goquery.Selection) {
		att := &as1.Object{
			ObjectType: as1.TypeVideo,
			URL:        s.AttrOr("src", ""),
			Stream:     &as1.Image{URL: s.AttrOr("src", "")},
		}
		if poster := s.AttrOr("poster", ""); poster != "" {
			att.Image = &as1.Image{URL: poster}
		}
		obj.Attachments = append(obj.Attachments, att)
	})
	ownProp(entry, "audio.u-audio").Each(func(_ int, s *goquery.Selection) {
		obj.Attachments = append(obj.Attachments, &as1.Object{
			ObjectType: as1.TypeAudio,
			URL:        s.AttrOr("src", ""),
			Stream:     &as1.Image{URL: s.AttrOr("src", "")},
		})
	})
	entry.Find(".u-attachment.h-cite").Each(func(_ int, s *goquery.Selection) {
		obj.Attachments = append(obj.Attachments, &as1.Object{
			ObjectType:  as1.TypeArticle,
			DisplayName: strings.TrimSpace(s.Find(".p-name").Text()),
			URL:         s.Find("a.u-url").AttrOr("href", ""),
		})
	})

	// categories: plain links are hashtags, nested h-cards are mentions
	entry.Find(".p-category, .u-category").Each(func(_ int, s *goquery.Selection) {
		tag := as1.Tag{
			ObjectType:  as1.TypeHashtag,
			DisplayName: strings.TrimSpace(s.Text()),
			URL:         s.AttrOr("href", ""),
		}
		if s.HasClass("h-card") {
			tag.ObjectType = as1.TypeMention
		}
		obj.Tags = append(obj.Tags, tag)
	})
	as1.SortTags(obj.Tags)

	if loc := entry.Find(".p-location").First(); loc.Length() > 0 {
		location := &as1.Location{
			DisplayName: strings.TrimSpace(loc.Find(".p-name").Text()),
			URL:         loc.Find("a.u-url").AttrOr("href", ""),
		}
		if v, err := strconv.ParseFloat(loc.Find("data.p-latitude").AttrOr("value", ""), 64); err == nil {
			location.Latitude = v
		}
		if v, err := strconv.ParseFloat(loc.Find("data.p-longitude").AttrOr("value", ""), 64); err == nil {
			location.Longitude = v
		}
		obj.Location = location
	}

	verb := as1.VerbPost
	switch {
	case entry.Find(".u-like-of").Length() > 0:
		verb = as1.VerbLike
		if obj.URL == "" {
			obj.URL = entry.Find(".u-like-of").AttrOr("href", "")
		}
	case entry.Find(".u-repost-of").Length() > 0:
		verb = as1.VerbShare
		if obj.URL == "" {
			obj.URL = entry.Find(".u-repost-of").AttrOr("href", "")
		}
	default:
		switch entry.Find("data.p-rsvp").AttrOr("value", "") {
		case "yes":
			verb = as1.VerbRSVPYes
		case "no":
			verb = as1.VerbRSVPNo
		case "maybe":
			verb = as1.VerbRSVPMaybe
		}
	}

	act := as1.Activity{
		Verb:      verb,
		ID:        obj.ID,
		URL:       obj.URL,
		Published: obj.Published,
		Updated:   obj.Updated,
		Actor:     actor,
		Object:    obj,
	}
	if err := act.Validate(); err != nil {
		return as1.Activity{}, source.NewDecodingError("h-entry does not decode to a consistent activity", err)
	}
	return act, nil
}

func decodeCard(card *goquery.Selection) as1.Actor {
	actor := as1.Actor{
		ID:          card.Find("data.u-uid").AttrOr("value", ""),
		DisplayName: strings.TrimSpace(card.Find(".p-name").First().Text()),
		Username:    strings.TrimSpace(card.Find(".p-nickname").First().Text()),
		Description: strings.TrimSpace(card.Find(".p-note").First().Text()),
		URL:         card.Find("a.u-url").AttrOr("href", ""),
	}
	if img := card.Find("img.u-photo").First(); img.Length() > 0 {
		actor.Image = &as1.Image{
			URL:         img.AttrOr("src", ""),
			DisplayName: img.AttrOr("alt", ""),
		}
	}
	return actor
}

func refFromElement(s *goquery.Selection) as1.Ref {
	if s.HasClass("h-cite") {
		return as1.Ref{
			ID:  s.Find("data.u-uid").AttrOr("value", ""),
			URL: s.Find("a.u-url").AttrOr("href", ""),
		}
	}
	if href, ok := s.Attr("href"); ok {
		return as1.Ref{URL: href}
	}
	return as1.Ref{ID: s.AttrOr("value", "")}
}

// ownProp selects property elements that belong to the entry itself, not to
// a nested h-card or h-cite.
func ownProp(entry *goquery.Selection, selector string) *goquery.Selection {
	return entry.Find(selector).FilterFunction(func(_ int, s *goquery.Selection) bool {
		return s.ParentsUntilSelection(entry).Filter(".h-card, .h-cite, .h-entry").Length() == 0
	})
}

// ParseContent recovers the unescaped text and inline anchor tags from an
// HTML content fragment. It is the inverse of RenderContent; the Atom codec
// shares it so both formats use the same offset convention.
func ParseContent(fragment string) (string, []as1.Tag, error) {
	ctx := &html.Node{Type: html.ElementNode, Data: "div", DataAtom: atom.Div}
	nodes, err := html.ParseFragment(strings.NewReader(fragment), ctx)
	if err != nil {
		return "", nil, source.NewDecodingError("unparseable content HTML", err)
	}
	var b strings.Builder
	var tags []as1.Tag
	for _, n := range nodes {
		walkContent(n, &b, &tags)
	}
	return b.String(), tags, nil
}

// decodeContent walks an e-content element recovering the unescaped text and
// the codepoint offsets of every inline anchor.
func decodeContent(content *goquery.Selection) (string, []as1.Tag) {
	var b strings.Builder
	var tags []as1.Tag
	for _, node := range content.Nodes {
		for c := node.FirstChild; c != nil; c = c.NextSibling {
			walkContent(c, &b, &tags)
		}
	}
	return b.String(), tags
}

func walkContent(n *html.Node, b *strings.Builder, tags *[]as1.Tag) {
	switch n.Type {
	case html.TextNode:
		b.WriteString(n.Data)
	case html.ElementNode:
		switch n.Data {
		case "a":
			start := as1.CodepointLen(b.String())
			text := nodeText(n)
			tag := as1.Tag{
				ObjectType:  classToTagType(attr(n, "class")),
				URL:         attr(n, "href"),
				DisplayName: text,
				StartIndex:  start,
				Length:      as1.CodepointLen(text),
			}
			if tag.HasOffsets() {
				*tags = append(*tags, tag)
			}
			b.WriteString(text)
		case "br":
			b.WriteString("\n")
		default:
			for c := n.FirstChild; c != nil; c = c.NextSibling {
				walkContent(c, b, tags)
			}
		}
	}
}

func nodeText(n *html.Node) string {
	var b strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			b.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return b.String()
}

func attr(n *html.Node, name string) string {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val
		}
	}
	return ""
}

// Package rss converts between canonical activities and RSS 2.0. Decoding
// accepts anything gofeed understands (RSS, Atom, JSON Feed, it turns out);
// encoding always produces RSS 2.0.
package rss

import (
	"bytes"
	"time"

	"github.com/gorilla/feeds"
	"github.com/mmcdole/gofeed"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/microformats2"
	"github.com/sarajaksa/granary/server/source"
)

// Decode parses a feed document into activities, one per item.
func Decode(payload []byte) ([]as1.Activity, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(payload))
	if err != nil {
		return nil, source.NewDecodingError("unparseable feed", err)
	}

	activities := make([]as1.Activity, 0, len(feed.Items))
	for _, item := range feed.Items {
		obj := &as1.Object{
			ID:          item.GUID,
			ObjectType:  as1.TypeNote,
			DisplayName: item.Title,
			Content:     item.Content,
			URL:         item.Link,
		}
		if obj.ID == "" {
			obj.ID = item.Link
		}
		if obj.Content == "" {
			obj.Content = item.Description
		}
		if obj.DisplayName != "" {
			obj.ObjectType = as1.TypeArticle
		}
		if item.PublishedParsed != nil {
			obj.Published = as1.FormatTime(*item.PublishedParsed)
		}
		if item.UpdatedParsed != nil {
			obj.Updated = as1.FormatTime(*item.UpdatedParsed)
		}

		var actor *as1.Actor
		if item.Author != nil && item.Author.Name != "" {
			actor = &as1.Actor{DisplayName: item.Author.Name}
			obj.Author = actor
		}

		for _, cat := range item.Categories {
			obj.Tags = append(obj.Tags, as1.Tag{
				ObjectType:  as1.TypeHashtag,
				DisplayName: cat,
			})
		}

		for _, enc := range item.Enclosures {
			obj.Attachments = append(obj.Attachments, enclosureObject(enc))
		}

		activities = append(activities, as1.Activity{
			Verb:      as1.VerbPost,
			ID:        obj.ID,
			URL:       obj.URL,
			Published: obj.Published,
			Updated:   obj.Updated,
			Actor:     actor,
			Object:    obj,
		})
	}
	return activities, nil
}

func enclosureObject(enc *gofeed.Enclosure) *as1.Object {
	switch {
	case len(enc.Type) >= 6 && enc.Type[:6] == "video/":
		return &as1.Object{
			ObjectType: as1.TypeVideo,
			URL:        enc.URL,
			Stream:     &as1.Image{URL: enc.URL},
		}
	case len(enc.Type) >= 6 && enc.Type[:6] == "audio/":
		return &as1.Object{
			ObjectType: as1.TypeAudio,
			URL:        enc.URL,
			Stream:     &as1.Image{URL: enc.URL},
		}
	}
	return &as1.Object{
		ObjectType: as1.TypeImage,
		URL:        enc.URL,
		Image:      &as1.Image{URL: enc.URL},
	}
}

// EncodeFeed renders an envelope as an RSS 2.0 document. RSS carries no
// paging metadata, so the envelope's indices are dropped.
func EncodeFeed(env as1.Envelope, title, link, description string, actor *as1.Actor) ([]byte, error) {
	feed := &feeds.Feed{
		Title:       title,
		Link:        &feeds.Link{Href: link},
		Description: description,
	}
	if actor != nil {
		feed.Author = &feeds.Author{Name: actor.DisplayName}
	}

	for i := range env.Items {
		act := &env.Items[i]
		if act.Object == nil {
			return nil, source.NewEncodingError("activity "+act.ID+" has no object", nil)
		}
		obj := act.Object

		item := &feeds.Item{
			Id:      act.ID,
			Title:   obj.DisplayName,
			Link:    &feeds.Link{Href: itemLink(act)},
			Content: microformats2.RenderContent(obj.Content, obj.Tags),
			Created: act.Timestamp(),
		}
		if item.Id == "" {
			item.Id = obj.ID
		}
		if t, err := time.Parse(time.RFC3339, act.Updated); err == nil {
			item.Updated = t
		}
		if item.Title == "" {
			item.Title = as1.CodepointSlice(obj.Content, 0, 100)
		}

		author := obj.Author
		if author == nil {
			author = act.Actor
		}
		if author != nil {
			item.Author = &feeds.Author{Name: author.DisplayName}
		}

		// RSS allows one enclosure per item
		for _, att := range obj.Attachments {
			if enc := enclosure(att); enc != nil {
				item.Enclosure = enc
				break
			}
		}

		feed.Items = append(feed.Items, item)
		if feed.Created.IsZero() {
			feed.Created = item.Created
		}
	}

	out, err := feed.ToRss()
	if err != nil {
		return nil, source.NewEncodingError("cannot render rss", err)
	}
	return []byte(out), nil
}

func itemLink(act *as1.Activity) string {
	if act.URL != "" {
		return act.URL
	}
	return act.Object.URL
}

func enclosure(att *as1.Object) *feeds.Enclosure {
	switch att.ObjectType {
	case as1.TypeImage, as1.TypePhoto:
		url := att.URL
		if att.Image != nil {
			url = att.Image.URL
		}
		if url != "" {
			return &feeds.Enclosure{Url: url, Type: "image/*", Length: "0"}
		}
	case as1.TypeVideo:
		url := att.URL
		if att.Stream != nil {
			url = att.Stream.URL
		}
		if url != "" {
			return &feeds.Enclosure{Url: url, Type: "video/*", Length: "0"}
		}
	case as1.TypeAudio:
		url := att.URL
		if att.Stream != nil {
			url = att.Stream.URL
		}
		if url != "" {
			return &feeds.Enclosure{Url: url, Type: "audio/*", Length: "0"}
		}
	}
	return nil
}

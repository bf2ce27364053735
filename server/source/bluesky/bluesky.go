// Package bluesky maps app.bsky feed payloads to the canonical model.
// Post text is plain UTF-8 with rich-text facets carrying byte ranges, so
// every facet gets re-indexed into codepoint offsets.
// https://atproto.com/lexicons/app-bsky-feed
package bluesky

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

const Domain = "bsky.app"

const (
	featureMention = "app.bsky.richtext.facet#mention"
	featureLink    = "app.bsky.richtext.facet#link"
	featureTag     = "app.bsky.richtext.facet#tag"
)

type apiError struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

type feedResponse struct {
	Feed   []feedItem `json:"feed"`
	Cursor string     `json:"cursor"`
}

type feedItem struct {
	Post postView `json:"post"`
}

type postView struct {
	URI    string  `json:"uri"`
	CID    string  `json:"cid"`
	Author profile `json:"author"`
	Record record  `json:"record"`
	Embed  *embed  `json:"embed"`
}

type profile struct {
	DID         string `json:"did"`
	Handle      string `json:"handle"`
	DisplayName string `json:"displayName"`
	Description string `json:"description"`
	Avatar      string `json:"avatar"`
}

type record struct {
	Type      string  `json:"$type"`
	Text      string  `json:"text"`
	CreatedAt string  `json:"createdAt"`
	Facets    []facet `json:"facets"`
	Reply     *struct {
		Parent struct {
			URI string `json:"uri"`
		} `json:"parent"`
	} `json:"reply"`
}

type facet struct {
	Index struct {
		ByteStart int `json:"byteStart"`
		ByteEnd   int `json:"byteEnd"`
	} `json:"index"`
	Features []feature `json:"features"`
}

type feature struct {
	Type string `json:"$type"`
	DID  string `json:"did"`
	URI  string `json:"uri"`
	Tag  string `json:"tag"`
}

type embed struct {
	Type   string `json:"$type"`
	Images []struct {
		Fullsize string `json:"fullsize"`
		Thumb    string `json:"thumb"`
		Alt      string `json:"alt"`
	} `json:"images"`
}

type Bluesky struct{}

func New() *Bluesky {
	return &Bluesky{}
}

func (b *Bluesky) Name() string {
	return "bluesky"
}

func (b *Bluesky) Domain() string {
	return Domain
}

func (b *Bluesky) Capabilities() source.Capabilities {
	return source.NewCapabilities(source.CapabilitySearch, source.CapabilityPaging)
}

// Normalize converts a getAuthorFeed/getTimeline response, or a bare post
// view, to activities.
func (b *Bluesky) Normalize(raw []byte) ([]as1.Activity, error) {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		switch e.Error {
		case "AuthMissing", "InvalidToken", "ExpiredToken":
			return nil, source.NewAuthError("bluesky: " + e.Error + ": " + e.Message)
		case "RateLimitExceeded":
			return nil, source.NewRateLimitError("bluesky: "+e.Message, 0)
		}
		return nil, source.NewFormatError("bluesky: API error "+e.Error+": "+e.Message, nil)
	}

	var resp feedResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, source.NewFormatError("bluesky: unparseable feed payload", err)
	}
	posts := make([]postView, 0, len(resp.Feed))
	for _, item := range resp.Feed {
		posts = append(posts, item.Post)
	}
	if len(posts) == 0 {
		var pv postView
		if err := json.Unmarshal(raw, &pv); err == nil && pv.URI != "" {
			posts = append(posts, pv)
		}
	}

	activities := make([]as1.Activity, 0, len(posts))
	failed := 0
	for _, p := range posts {
		act, err := b.postToActivity(p)
		if err != nil {
			failed++
			telemetry.Warn("bluesky: skipping post [%s]: %s", p.URI, err)
			telemetry.Increment("normalize_skipped", 1)
			continue
		}
		activities = append(activities, act)
	}
	if failed > 0 && len(activities) == 0 {
		return nil, source.NewFormatError(
			fmt.Sprintf("bluesky: all %d posts were malformed", failed), nil)
	}
	return activities, nil
}

func (b *Bluesky) postToActivity(p postView) (as1.Activity, error) {
	if p.URI == "" {
		return as1.Activity{}, fmt.Errorf("post has no uri")
	}
	actor := b.profileToActor(p.Author)
	obj := &as1.Object{
		ID:         source.TagURI(Domain, p.URI),
		ObjectType: as1.TypeNote,
		Content:    p.Record.Text,
		URL:        webURL(p),
		Published:  toRFC3339(p.Record.CreatedAt),
		Author:     &actor,
	}
	if p.Record.Reply != nil && p.Record.Reply.Parent.URI != "" {
		obj.ObjectType = as1.TypeComment
		obj.InReplyTo = []as1.Ref{{ID: source.TagURI(Domain, p.Record.Reply.Parent.URI)}}
	}

	for _, f := range p.Record.Facets {
		tag, err := facetToTag(f, p.Record.Text)
		if err != nil {
			return as1.Activity{}, err
		}
		if tag != nil {
			obj.Tags = append(obj.Tags, *tag)
		}
	}
	as1.SortTags(obj.Tags)

	if p.Embed != nil {
		for _, img := range p.Embed.Images {
			obj.ObjectType = as1.TypePhoto
			obj.Attachments = append(obj.Attachments, &as1.Object{
				ObjectType: as1.TypeImage,
				Image:      &as1.Image{URL: img.Fullsize, DisplayName: img.Alt},
				URL:        img.Fullsize,
			})
		}
	}

	act := as1.Activity{
		Verb:      as1.VerbPost,
		ID:        obj.ID,
		URL:       obj.URL,
		Published: obj.Published,
		Actor:     &actor,
		Object:    obj,
	}
	return act, act.Validate()
}

// facetToTag translates one rich-text facet's byte range into a codepoint
// offset tag. Facets with no recognized feature are dropped.
func facetToTag(f facet, text string) (*as1.Tag, error) {
	start, end := f.Index.ByteStart, f.Index.ByteEnd
	if start < 0 || end < start || end > len(text) {
		return nil, fmt.Errorf("facet byte range [%d:%d] outside text of %d bytes",
			start, end, len(text))
	}
	for _, feat := range f.Features {
		tag := as1.Tag{DisplayName: text[start:end]}
		switch feat.Type {
		case featureMention:
			tag.ObjectType = as1.TypeMention
			tag.ID = source.TagURI(Domain, feat.DID)
			tag.URL = "https://bsky.app/profile/" + feat.DID
		case featureLink:
			tag.ObjectType = as1.TypeArticle
			tag.URL = feat.URI
		case featureTag:
			tag.ObjectType = as1.TypeHashtag
			tag.DisplayName = feat.Tag
			tag.URL = "https://bsky.app/hashtag/" + feat.Tag
		default:
			continue
		}
		as1.ReindexBytes(&tag, text, start, end)
		return &tag, nil
	}
	return nil, nil
}

func (b *Bluesky) NormalizeActor(raw []byte) (as1.Actor, error) {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return as1.Actor{}, source.NewAuthError("bluesky: " + e.Error + ": " + e.Message)
	}
	var p profile
	if err := json.Unmarshal(raw, &p); err != nil {
		return as1.Actor{}, source.NewFormatError("bluesky: unparseable profile payload", err)
	}
	if p.DID == "" && p.Handle == "" {
		return as1.Actor{}, source.NewFormatError("bluesky: profile has no did or handle", nil)
	}
	return b.profileToActor(p), nil
}

func (b *Bluesky) profileToActor(p profile) as1.Actor {
	actor := as1.Actor{
		ID:          source.TagURI(Domain, p.DID),
		Username:    p.Handle,
		DisplayName: p.DisplayName,
		Description: p.Description,
		URL:         "https://bsky.app/profile/" + p.Handle,
	}
	if actor.DisplayName == "" {
		actor.DisplayName = p.Handle
	}
	if p.Avatar != "" {
		actor.Image = &as1.Image{URL: p.Avatar}
	}
	return actor
}

// Denormalize produces an app.bsky.feed.post record for a post or comment.
func (b *Bluesky) Denormalize(act as1.Activity) ([]byte, error) {
	if act.Verb != as1.VerbPost || act.Object == nil {
		return nil, source.NewUnsupportedError("bluesky: cannot publish verb " + string(act.Verb))
	}
	rec := map[string]any{
		"$type":     "app.bsky.feed.post",
		"text":      act.Object.Content,
		"createdAt": as1.FormatTime(time.Now()),
	}
	if ts := act.Timestamp(); !ts.IsZero() {
		rec["createdAt"] = as1.FormatTime(ts)
	}
	for _, ref := range act.Object.InReplyTo {
		if local, ok := source.ParseTagURI(ref.ID); ok && strings.HasPrefix(local, "at://") {
			parent := map[string]string{"uri": local}
			rec["reply"] = map[string]any{"root": parent, "parent": parent}
			break
		}
	}
	return json.Marshal(rec)
}

// webURL derives the bsky.app post page from the at:// record URI.
func webURL(p postView) string {
	// at://did:plc:xyz/app.bsky.feed.post/rkey
	if !strings.HasPrefix(p.URI, "at://") {
		return ""
	}
	parts := strings.Split(strings.TrimPrefix(p.URI, "at://"), "/")
	if len(parts) != 3 || parts[1] != "app.bsky.feed.post" {
		return ""
	}
	handle := p.Author.Handle
	if handle == "" {
		handle = parts[0]
	}
	return "https://bsky.app/profile/" + handle + "/post/" + parts[2]
}

func toRFC3339(ts string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return as1.FormatTime(t)
	}
	return ts
}

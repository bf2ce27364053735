// Package as2 converts between the canonical model and ActivityStreams 2,
// the vocabulary ActivityPub servers federate.
// https://www.w3.org/TR/activitystreams-core/
//
// Tag offsets have no AS2 representation, so offset-annotated tags carry
// startIndex/length as extension fields and a round trip preserves them.
package as2

import (
	"encoding/json"
	"fmt"

	"github.com/sarajaksa/granary/server/as1"
)

// https://www.w3.org/TR/activitypub/#retrieving-objects
const (
	ContentType   = "application/activity+json"
	ContentTypeLD = `application/ld+json; profile="https://www.w3.org/ns/activitystreams"`

	Context        = "https://www.w3.org/ns/activitystreams"
	PublicAudience = "https://www.w3.org/ns/activitystreams#Public"
)

var verbToType = map[as1.Verb]string{
	as1.VerbPost:      "Create",
	as1.VerbShare:     "Announce",
	as1.VerbLike:      "Like",
	as1.VerbFollow:    "Follow",
	as1.VerbTag:       "Add",
	as1.VerbUpdate:    "Update",
	as1.VerbDelete:    "Delete",
	as1.VerbRSVPYes:   "Accept",
	as1.VerbRSVPNo:    "Reject",
	as1.VerbRSVPMaybe: "TentativeAccept",
}

var objectTypeToType = map[as1.ObjectType]string{
	as1.TypeArticle:  "Article",
	as1.TypeAudio:    "Audio",
	as1.TypeBookmark: "Page",
	as1.TypeComment:  "Note",
	as1.TypeEvent:    "Event",
	as1.TypeHashtag:  "Hashtag",
	as1.TypeImage:    "Image",
	as1.TypeMention:  "Mention",
	as1.TypeNote:     "Note",
	as1.TypePerson:   "Person",
	as1.TypePhoto:    "Image",
	as1.TypePlace:    "Place",
	as1.TypeVideo:    "Video",
}

type objectOut struct {
	Ctx               string      `json:"@context,omitempty"`
	Type              string      `json:"type,omitempty"`
	ID                string      `json:"id,omitempty"`
	Name              string      `json:"name,omitempty"`
	Content           string      `json:"content,omitempty"`
	URL               string      `json:"url,omitempty"`
	Published         string      `json:"published,omitempty"`
	Updated           string      `json:"updated,omitempty"`
	Actor             *objectOut  `json:"actor,omitempty"`
	Object            *objectOut  `json:"object,omitempty"`
	AttributedTo      *objectOut  `json:"attributedTo,omitempty"`
	InReplyTo         []string    `json:"inReplyTo,omitempty"`
	Tag               []tagOut    `json:"tag,omitempty"`
	Attachment        []objectOut `json:"attachment,omitempty"`
	Icon              *objectOut  `json:"icon,omitempty"`
	Location          *placeOut   `json:"location,omitempty"`
	PreferredUsername string      `json:"preferredUsername,omitempty"`
	Summary           string      `json:"summary,omitempty"`
	To                []string    `json:"to,omitempty"`
}

type tagOut struct {
	Type       string `json:"type,omitempty"`
	Name       string `json:"name,omitempty"`
	Href       string `json:"href,omitempty"`
	StartIndex int    `json:"startIndex,omitempty"`
	Length     int    `json:"length,omitempty"`
}

type placeOut struct {
	Type      string  `json:"type"`
	ID        string  `json:"id,omitempty"`
	Name      string  `json:"name,omitempty"`
	URL       string  `json:"url,omitempty"`
	Latitude  float64 `json:"latitude,omitempty"`
	Longitude float64 `json:"longitude,omitempty"`
}

type collectionOut struct {
	Ctx          string      `json:"@context"`
	Type         string      `json:"type"`
	TotalItems   int         `json:"totalItems"`
	OrderedItems []objectOut `json:"orderedItems"`
}

// Encode renders one activity as an AS2 activity document.
func Encode(act as1.Activity) ([]byte, error) {
	out, err := activityOut(act)
	if err != nil {
		return nil, err
	}
	out.Ctx = Context
	return json.Marshal(out)
}

// EncodeEnvelope renders a page of activities as an OrderedCollection.
func EncodeEnvelope(env as1.Envelope) ([]byte, error) {
	coll := collectionOut{
		Ctx:          Context,
		Type:         "OrderedCollection",
		TotalItems:   env.TotalResults,
		OrderedItems: make([]objectOut, 0, len(env.Items)),
	}
	for _, act := range env.Items {
		out, err := activityOut(act)
		if err != nil {
			return nil, err
		}
		coll.OrderedItems = append(coll.OrderedItems, out)
	}
	return json.Marshal(coll)
}

// EncodeActor renders a standalone Person document.
func EncodeActor(actor as1.Actor) ([]byte, error) {
	out := actorOut(&actor)
	out.Ctx = Context
	return json.Marshal(*out)
}

func activityOut(act as1.Activity) (objectOut, error) {
	typ, ok := verbToType[act.Verb]
	if !ok {
		return objectOut{}, fmt.Errorf("activity %q: verb %q has no ActivityStreams 2 type", act.ID, act.Verb)
	}
	out := objectOut{
		Type:      typ,
		ID:        act.ID,
		URL:       act.URL,
		Published: act.Published,
		Updated:   act.Updated,
		Actor:     actorOut(act.Actor),
		To:        []string{PublicAudience},
	}
	if act.Object != nil {
		inner := encodeObject(act.Object)
		out.Object = &inner
	}
	return out, nil
}

func encodeObject(obj *as1.Object) objectOut {
	typ := objectTypeToType[obj.ObjectType]
	if typ == "" {
		typ = "Note"
	}
	out := objectOut{
		Type:         typ,
		ID:           obj.ID,
		Name:         obj.DisplayName,
		Content:      obj.Content,
		URL:          obj.URL,
		Published:    obj.Published,
		Updated:      obj.Updated,
		AttributedTo: actorOut(obj.Author),
	}

	// media documents link to the stream itself
	if obj.Stream != nil && obj.Stream.URL != "" &&
		(obj.ObjectType == as1.TypeAudio || obj.ObjectType == as1.TypeVideo) {
		out.URL = obj.Stream.URL
	}
	if obj.Image != nil &&
		(obj.ObjectType == as1.TypeImage || obj.ObjectType == as1.TypePhoto) {
		if out.URL == "" {
			out.URL = obj.Image.URL
		}
		if out.Name == "" {
			out.Name = obj.Image.DisplayName
		}
	}

	for _, ref := range obj.InReplyTo {
		id := ref.ID
		if id == "" {
			id = ref.URL
		}
		if id != "" {
			out.InReplyTo = append(out.InReplyTo, id)
		}
	}

	for _, t := range obj.Tags {
		tt := objectTypeToType[t.ObjectType]
		if tt == "" {
			tt = "Tag"
		}
		out.Tag = append(out.Tag, tagOut{
			Type:       tt,
			Name:       t.DisplayName,
			Href:       t.URL,
			StartIndex: t.StartIndex,
			Length:     t.Length,
		})
	}

	for _, att := range obj.Attachments {
		out.Attachment = append(out.Attachment, encodeObject(att))
	}

	if loc := obj.Location; loc != nil {
		out.Location = &placeOut{
			Type:      "Place",
			ID:        loc.ID,
			Name:      loc.DisplayName,
			URL:       loc.URL,
			Latitude:  loc.Latitude,
			Longitude: loc.Longitude,
		}
	}
	return out
}

func actorOut(actor *as1.Actor) *objectOut {
	if actor == nil {
		return nil
	}
	out := &objectOut{
		Type:              "Person",
		ID:                actor.ID,
		Name:              actor.DisplayName,
		URL:               actor.URL,
		PreferredUsername: actor.Username,
		Summary:           actor.Description,
	}
	if actor.Image != nil && actor.Image.URL != "" {
		// ActivityPub uses icon for the profile picture
		out.Icon = &objectOut{
			Type: "Image",
			URL:  actor.Image.URL,
			Name: actor.Image.DisplayName,
		}
	}
	return out
}

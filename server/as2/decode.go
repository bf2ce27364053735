package as2

import (
	"encoding/json"
	"net/url"
	"regexp"
	"strings"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
)

var typeToVerb = map[string]as1.Verb{
	"Create":          as1.VerbPost,
	"Announce":        as1.VerbShare,
	"Like":            as1.VerbLike,
	"Follow":          as1.VerbFollow,
	"Add":             as1.VerbTag,
	"Update":          as1.VerbUpdate,
	"Delete":          as1.VerbDelete,
	"Accept":          as1.VerbRSVPYes,
	"Reject":          as1.VerbRSVPNo,
	"TentativeAccept": as1.VerbRSVPMaybe,
}

var typeToObjectType = map[string]as1.ObjectType{
	"Article": as1.TypeArticle,
	"Audio":   as1.TypeAudio,
	"Page":    as1.TypeBookmark,
	"Event":   as1.TypeEvent,
	"Hashtag": as1.TypeHashtag,
	// granary wrote hashtags as Tag before Mastodon settled on Hashtag
	"Tag":     as1.TypeHashtag,
	"Image":   as1.TypeImage,
	"Mention": as1.TypeMention,
	"Note":    as1.TypeNote,
	"Person":  as1.TypePerson,
	"Place":   as1.TypePlace,
	"Video":   as1.TypeVideo,
	// Mastodon video attachments arrive as Document
	"Document": as1.TypeImage,
}

// objectIn tolerates the shapes ActivityPub servers actually send: ids where
// the encoder writes nested objects, single values where it writes lists.
type objectIn struct {
	Type              string          `json:"type"`
	ID                string          `json:"id"`
	Name              string          `json:"name"`
	Content           string          `json:"content"`
	URL               json.RawMessage `json:"url"`
	MediaType         string          `json:"mediaType"`
	Published         string          `json:"published"`
	Updated           string          `json:"updated"`
	Actor             json.RawMessage `json:"actor"`
	Object            json.RawMessage `json:"object"`
	AttributedTo      json.RawMessage `json:"attributedTo"`
	InReplyTo         json.RawMessage `json:"inReplyTo"`
	Tag               []tagIn         `json:"tag"`
	Attachment        []objectIn      `json:"attachment"`
	Icon              *objectIn       `json:"icon"`
	Location          *placeIn        `json:"location"`
	PreferredUsername string          `json:"preferredUsername"`
	Summary           string          `json:"summary"`
}

type tagIn struct {
	Type       string `json:"type"`
	Name       string `json:"name"`
	Href       string `json:"href"`
	StartIndex int    `json:"startIndex"`
	Length     int    `json:"length"`
}

type placeIn struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	URL       string  `json:"url"`
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

type collectionIn struct {
	Type         string     `json:"type"`
	TotalItems   *int       `json:"totalItems"`
	OrderedItems []objectIn `json:"orderedItems"`
	Items        []objectIn `json:"items"`
}

// Decode parses one AS2 activity or bare object document.
func Decode(payload []byte) (as1.Activity, error) {
	var in objectIn
	if err := json.Unmarshal(payload, &in); err != nil {
		return as1.Activity{}, source.NewDecodingError("unparseable AS2 document", err)
	}
	return toActivity(in)
}

// DecodeCollection parses an OrderedCollection back into an envelope.
func DecodeCollection(payload []byte) (as1.Envelope, error) {
	var coll collectionIn
	if err := json.Unmarshal(payload, &coll); err != nil {
		return as1.Envelope{}, source.NewDecodingError("unparseable AS2 collection", err)
	}
	entries := coll.OrderedItems
	if len(entries) == 0 {
		entries = coll.Items
	}
	items := make([]as1.Activity, 0, len(entries))
	for _, in := range entries {
		act, err := toActivity(in)
		if err != nil {
			return as1.Envelope{}, err
		}
		items = append(items, act)
	}
	total := -1
	if coll.TotalItems != nil {
		total = *coll.TotalItems
	}
	return as1.NewEnvelope(items, 0, total), nil
}

// DecodeActor parses a standalone Person document.
func DecodeActor(payload []byte) (as1.Actor, error) {
	var in objectIn
	if err := json.Unmarshal(payload, &in); err != nil {
		return as1.Actor{}, source.NewDecodingError("unparseable AS2 actor", err)
	}
	if in.Type != "Person" {
		return as1.Actor{}, source.NewDecodingError("document is not a Person, got "+in.Type, nil)
	}
	return toActor(in), nil
}

func toActivity(in objectIn) (as1.Activity, error) {
	verb, isActivity := typeToVerb[in.Type]
	if !isActivity {
		// a bare object is the payload of an implicit post
		if _, ok := typeToObjectType[in.Type]; !ok {
			return as1.Activity{}, source.NewDecodingError("unknown AS2 type "+in.Type, nil)
		}
		obj := toObject(in)
		act := as1.Activity{
			Verb:      as1.VerbPost,
			ID:        obj.ID,
			URL:       obj.URL,
			Published: obj.Published,
			Updated:   obj.Updated,
			Actor:     obj.Author,
			Object:    obj,
		}
		if err := act.Validate(); err != nil {
			return as1.Activity{}, source.NewDecodingError("document does not decode to a consistent activity", err)
		}
		return act, nil
	}

	act := as1.Activity{
		Verb:      verb,
		ID:        in.ID,
		URL:       firstString(in.URL),
		Published: in.Published,
		Updated:   in.Updated,
		Actor:     refActor(in.Actor),
	}
	if inner := innerObject(in.Object); inner != nil {
		obj := toObject(*inner)
		if obj.Author == nil {
			obj.Author = act.Actor
		}
		act.Object = obj
		if act.ID == "" {
			act.ID = obj.ID
		}
		if act.URL == "" {
			act.URL = obj.URL
		}
		if act.Published == "" {
			act.Published = obj.Published
		}
	}
	if err := act.Validate(); err != nil {
		return as1.Activity{}, source.NewDecodingError("document does not decode to a consistent activity", err)
	}
	return act, nil
}

func toObject(in objectIn) *as1.Object {
	obj := &as1.Object{
		ID:          in.ID,
		ObjectType:  typeToObjectType[in.Type],
		DisplayName: in.Name,
		Content:     in.Content,
		URL:         firstString(in.URL),
		Published:   in.Published,
		Updated:     in.Updated,
		Author:      refActor(in.AttributedTo),
	}
	if obj.ObjectType == "" {
		obj.ObjectType = as1.TypeNote
	}
	// mediaType overrides the declared type; Mastodon sends video
	// attachments as Document
	switch {
	case strings.HasPrefix(in.MediaType, "image/"):
		obj.ObjectType = as1.TypeImage
	case strings.HasPrefix(in.MediaType, "video/"):
		obj.ObjectType = as1.TypeVideo
	case strings.HasPrefix(in.MediaType, "audio/"):
		obj.ObjectType = as1.TypeAudio
	}
	switch obj.ObjectType {
	case as1.TypeImage, as1.TypePhoto:
		if obj.URL != "" {
			obj.Image = &as1.Image{URL: obj.URL, DisplayName: obj.DisplayName}
		}
	case as1.TypeVideo, as1.TypeAudio:
		if obj.URL != "" {
			obj.Stream = &as1.Image{URL: obj.URL}
		}
	}

	for _, id := range stringList(in.InReplyTo) {
		ref := as1.Ref{ID: id}
		if strings.HasPrefix(id, "http://") || strings.HasPrefix(id, "https://") {
			ref = as1.Ref{URL: id}
		}
		obj.InReplyTo = append(obj.InReplyTo, ref)
	}
	if len(obj.InReplyTo) > 0 && obj.ObjectType == as1.TypeNote {
		obj.ObjectType = as1.TypeComment
	}

	for _, t := range in.Tag {
		tt := typeToObjectType[t.Type]
		if tt == "" {
			tt = as1.TypeHashtag
		}
		obj.Tags = append(obj.Tags, as1.Tag{
			ObjectType:  tt,
			DisplayName: t.Name,
			URL:         t.Href,
			StartIndex:  t.StartIndex,
			Length:      t.Length,
		})
	}
	as1.SortTags(obj.Tags)

	for _, att := range in.Attachment {
		obj.Attachments = append(obj.Attachments, toObject(att))
	}

	if in.Location != nil {
		obj.Location = &as1.Location{
			ID:          in.Location.ID,
			DisplayName: in.Location.Name,
			URL:         in.Location.URL,
			Latitude:    in.Location.Latitude,
			Longitude:   in.Location.Longitude,
		}
	}
	return obj
}

func toActor(in objectIn) as1.Actor {
	actor := as1.Actor{
		ID:          in.ID,
		Username:    in.PreferredUsername,
		DisplayName: in.Name,
		Description: in.Summary,
		URL:         firstString(in.URL),
	}
	if in.Icon != nil {
		actor.Image = &as1.Image{
			URL:         firstString(in.Icon.URL),
			DisplayName: in.Icon.Name,
		}
	}
	return actor
}

// innerObject resolves an object field that is either an embedded object or
// a bare id string, as in Mastodon Delete and Announce activities.
func innerObject(raw json.RawMessage) *objectIn {
	if len(raw) == 0 {
		return nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == "" {
			return nil
		}
		return &objectIn{ID: id}
	}
	var in objectIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil
	}
	return &in
}

// refActor resolves an actor field that is either a bare id string or an
// embedded Person object.
func refActor(raw json.RawMessage) *as1.Actor {
	if len(raw) == 0 {
		return nil
	}
	var id string
	if err := json.Unmarshal(raw, &id); err == nil {
		if id == "" {
			return nil
		}
		return &as1.Actor{ID: id}
	}
	var in objectIn
	if err := json.Unmarshal(raw, &in); err != nil {
		return nil
	}
	actor := toActor(in)
	if actor == (as1.Actor{}) {
		return nil
	}
	return &actor
}

// firstString resolves a value that is a string, a list of strings, or a
// Link object with an href.
func firstString(raw json.RawMessage) string {
	for _, s := range stringList(raw) {
		return s
	}
	return ""
}

func stringList(raw json.RawMessage) []string {
	if len(raw) == 0 {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		if s == "" {
			return nil
		}
		return []string{s}
	}
	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		var out []string
		for _, elem := range list {
			out = append(out, stringList(elem)...)
		}
		return out
	}
	var link struct {
		ID   string `json:"id"`
		Href string `json:"href"`
	}
	if err := json.Unmarshal(raw, &link); err == nil {
		if link.Href != "" {
			return []string{link.Href}
		}
		if link.ID != "" {
			return []string{link.ID}
		}
	}
	return nil
}

var profileRE = regexp.MustCompile(`^https?://(.+)/(?:users/|profile/|@)([^/]+)$`)

// Handle returns an actor's fediverse address, eg @user@example.com. There
// is no standard for this; preferredUsername plus the id's host wins, then
// common profile URL shapes.
func Handle(actor as1.Actor) string {
	host := ""
	for _, u := range []string{actor.ID, actor.URL} {
		if parsed, err := url.Parse(u); err == nil && parsed.Host != "" {
			host = parsed.Host
			break
		}
	}
	if actor.Username != "" && host != "" {
		return "@" + actor.Username + "@" + host
	}
	for _, u := range []string{actor.ID, actor.URL} {
		if m := profileRE.FindStringSubmatch(u); m != nil {
			return "@" + m[2] + "@" + m[1]
		}
	}
	return ""
}

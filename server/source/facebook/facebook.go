// Package facebook maps Facebook Graph API post payloads to the canonical
// model. Graph API message_tags report offsets in UTF-16 code units, so
// normalization re-indexes them to codepoints.
package facebook

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

const (
	Domain  = "facebook.com"
	BaseURL = "https://www.facebook.com/"
)

// raw Graph API shapes
// https://developers.facebook.com/docs/graph-api/reference/post/

type payload struct {
	Error *apiError       `json:"error"`
	Data  json.RawMessage `json:"data"`
}

type apiError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Code    int    `json:"code"`
}

type post struct {
	ID          string       `json:"id"`
	From        fbUser       `json:"from"`
	Message     string       `json:"message"`
	Story       string       `json:"story"`
	Link        string       `json:"link"`
	Picture     string       `json:"picture"`
	Name        string       `json:"name"`
	StatusType  string       `json:"status_type"`
	CreatedTime string       `json:"created_time"`
	UpdatedTime string       `json:"updated_time"`
	MessageTags messageTags  `json:"message_tags"`
	Place       *place       `json:"place"`
	Comments    *commentList `json:"comments"`
}

type fbUser struct {
	ID      string `json:"id"`
	Name    string `json:"name"`
	Link    string `json:"link"`
	About   string `json:"about"`
	Picture *struct {
		Data struct {
			URL string `json:"url"`
		} `json:"data"`
	} `json:"picture"`
	Username string `json:"username"`
}

type messageTag struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Type   string `json:"type"` // user, page
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// messageTags appear either as a plain list or keyed by offset, depending
// on the API version. Accept both.
type messageTags []messageTag

func (m *messageTags) UnmarshalJSON(b []byte) error {
	var list []messageTag
	if err := json.Unmarshal(b, &list); err == nil {
		*m = list
		return nil
	}
	var keyed map[string][]messageTag
	if err := json.Unmarshal(b, &keyed); err != nil {
		return err
	}
	for _, tags := range keyed {
		*m = append(*m, tags...)
	}
	return nil
}

type place struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Location *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"location"`
}

type commentList struct {
	Data []fbComment `json:"data"`
}

type fbComment struct {
	ID          string `json:"id"`
	From        fbUser `json:"from"`
	Message     string `json:"message"`
	CreatedTime string `json:"created_time"`
}

type Facebook struct{}

func New() *Facebook {
	return &Facebook{}
}

func (fb *Facebook) Name() string {
	return "facebook"
}

func (fb *Facebook) Domain() string {
	return Domain
}

func (fb *Facebook) Capabilities() source.Capabilities {
	return source.NewCapabilities(source.CapabilityPaging)
}

// Normalize converts a Graph API post list (or single post) to activities.
func (fb *Facebook) Normalize(raw []byte) ([]as1.Activity, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, source.NewFormatError("facebook: unparseable payload", err)
	}
	if err := checkError(p.Error); err != nil {
		return nil, err
	}

	posts := make([]post, 0)
	if len(p.Data) > 0 {
		if err := json.Unmarshal(p.Data, &posts); err != nil {
			return nil, source.NewFormatError("facebook: unparseable post list", err)
		}
	} else {
		var single post
		if err := json.Unmarshal(raw, &single); err != nil || single.ID == "" {
			return nil, source.NewFormatError("facebook: unparseable post", err)
		}
		posts = append(posts, single)
	}

	activities := make([]as1.Activity, 0, len(posts))
	failed := 0
	for _, po := range posts {
		act, err := fb.postToActivity(po)
		if err != nil {
			failed++
			telemetry.Warn("facebook: skipping post [%s]: %s", po.ID, err)
			telemetry.Increment("normalize_skipped", 1)
			continue
		}
		activities = append(activities, act)
	}
	if failed > 0 && len(activities) == 0 {
		return nil, source.NewFormatError(
			fmt.Sprintf("facebook: all %d posts were malformed", failed), nil)
	}
	return activities, nil
}

func checkError(e *apiError) error {
	if e == nil {
		return nil
	}
	switch e.Code {
	case 4, 17, 32, 613:
		// throttling codes, https://developers.facebook.com/docs/graph-api/guides/rate-limiting
		return source.NewRateLimitError("facebook: "+e.Message, 0)
	case 190, 102:
		return source.NewAuthError("facebook: " + e.Message)
	case 803, 100:
		return source.NewNotFoundError("facebook: " + e.Message)
	}
	if e.Type == "OAuthException" {
		return source.NewAuthError("facebook: " + e.Message)
	}
	return source.NewFormatError(fmt.Sprintf("facebook: API error %d: %s", e.Code, e.Message), nil)
}

func (fb *Facebook) postToActivity(po post) (as1.Activity, error) {
	if po.ID == "" {
		return as1.Activity{}, fmt.Errorf("post has no id")
	}
	actor := userToActor(po.From)
	content := po.Message
	if content == "" {
		content = po.Story
	}

	obj := &as1.Object{
		ID:         source.TagURI(Domain, po.ID),
		ObjectType: as1.TypeNote,
		Content:    content,
		URL:        BaseURL + po.ID,
		Published:  toRFC3339(po.CreatedTime),
		Updated:    toRFC3339(po.UpdatedTime),
		Author:     &actor,
	}

	// message_tags offsets are UTF-16 code units
	for _, mt := range po.MessageTags {
		tag := as1.Tag{
			ObjectType:  as1.TypeMention,
			ID:          source.TagURI(Domain, mt.ID),
			DisplayName: mt.Name,
			URL:         BaseURL + mt.ID,
		}
		as1.ReindexUTF16(&tag, content, mt.Offset, mt.Offset+mt.Length)
		obj.Tags = append(obj.Tags, tag)
	}
	as1.SortTags(obj.Tags)

	if po.Link != "" {
		att := &as1.Object{
			ObjectType:  as1.TypeArticle,
			URL:         po.Link,
			DisplayName: po.Name,
		}
		if po.Picture != "" {
			att.Image = &as1.Image{URL: po.Picture}
		}
		obj.Attachments = append(obj.Attachments, att)
	}

	if po.Place != nil {
		loc := &as1.Location{
			ID:          source.TagURI(Domain, po.Place.ID),
			DisplayName: po.Place.Name,
		}
		if po.Place.Location != nil {
			loc.Latitude = po.Place.Location.Latitude
			loc.Longitude = po.Place.Location.Longitude
		}
		obj.Location = loc
	}

	if po.Comments != nil {
		for _, c := range po.Comments.Data {
			obj.Attachments = append(obj.Attachments, fb.commentToObject(c, po.ID))
		}
	}

	act := as1.Activity{
		Verb:      as1.VerbPost,
		ID:        obj.ID,
		URL:       obj.URL,
		Published: obj.Published,
		Updated:   obj.Updated,
		Actor:     &actor,
		Object:    obj,
	}
	if err := act.Validate(); err != nil {
		return as1.Activity{}, err
	}
	return act, nil
}

func (fb *Facebook) commentToObject(c fbComment, postID string) *as1.Object {
	actor := userToActor(c.From)
	return &as1.Object{
		ID:         source.TagURI(Domain, c.ID),
		ObjectType: as1.TypeComment,
		Content:    c.Message,
		URL:        BaseURL + postID + "?comment_id=" + c.ID,
		Published:  toRFC3339(c.CreatedTime),
		Author:     &actor,
		InReplyTo:  []as1.Ref{{ID: source.TagURI(Domain, postID)}},
	}
}

func (fb *Facebook) NormalizeActor(raw []byte) (as1.Actor, error) {
	var p struct {
		Error *apiError `json:"error"`
		fbUser
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return as1.Actor{}, source.NewFormatError("facebook: unparseable user payload", err)
	}
	if err := checkError(p.Error); err != nil {
		return as1.Actor{}, err
	}
	if p.ID == "" {
		return as1.Actor{}, source.NewFormatError("facebook: user has no id", nil)
	}
	return userToActor(p.fbUser), nil
}

func userToActor(u fbUser) as1.Actor {
	actor := as1.Actor{
		ID:          source.TagURI(Domain, u.ID),
		Username:    u.Username,
		DisplayName: u.Name,
		Description: u.About,
		URL:         u.Link,
	}
	if actor.URL == "" && u.ID != "" {
		actor.URL = BaseURL + u.ID
	}
	if u.Picture != nil && u.Picture.Data.URL != "" {
		actor.Image = &as1.Image{URL: u.Picture.Data.URL}
	}
	return actor
}

func (fb *Facebook) Denormalize(act as1.Activity) ([]byte, error) {
	return nil, source.NewUnsupportedError("facebook: publishing is not supported")
}

// Graph API timestamps look like 2012-03-04T18:20:37+0000, almost RFC 3339.
func toRFC3339(ts string) string {
	if ts == "" {
		return ""
	}
	for _, layout := range []string{"2006-01-02T15:04:05-0700", time.RFC3339} {
		if t, err := time.Parse(layout, ts); err == nil {
			return as1.FormatTime(t)
		}
	}
	return ts
}

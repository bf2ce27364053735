// Package reddit maps Reddit listing payloads to the canonical model.
// Only public content is normalized.
package reddit

import (
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/karlseguin/ccache/v3"
	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

const (
	Domain  = "reddit.com"
	BaseURL = "https://reddit.com"

	// user entries expire after 5 minutes, enough to cover one batch of
	// comments or posts by the same author
	actorCacheTTL = 5 * time.Minute
)

var linkRE = regexp.MustCompile(`https?://[^\s<>()"']+`)

// raw listing shapes
// https://github.com/reddit-archive/reddit/wiki/JSON

type listing struct {
	Error   int    `json:"error"`
	Message string `json:"message"`
	Kind    string `json:"kind"`
	Data    struct {
		Children []thing `json:"children"`
	} `json:"data"`
}

type thing struct {
	Kind string          `json:"kind"` // t1 comment, t3 submission
	Data json.RawMessage `json:"data"`
}

type submission struct {
	ID         string  `json:"id"`
	Title      string  `json:"title"`
	SelfText   string  `json:"selftext"`
	Permalink  string  `json:"permalink"`
	URL        string  `json:"url"`
	CreatedUTC float64 `json:"created_utc"`
	Author     string  `json:"author"`
	IsSelf     bool    `json:"is_self"`
}

type redditComment struct {
	ID         string  `json:"id"`
	Body       string  `json:"body"`
	Permalink  string  `json:"permalink"`
	CreatedUTC float64 `json:"created_utc"`
	Author     string  `json:"author"`
	ParentID   string  `json:"parent_id"`
	LinkID     string  `json:"link_id"`
}

type redditUser struct {
	ID         string  `json:"id"`
	Name       string  `json:"name"`
	IconImg    string  `json:"icon_img"`
	CreatedUTC float64 `json:"created_utc"`
	Subreddit  *struct {
		URL               string `json:"url"`
		PublicDescription string `json:"public_description"`
	} `json:"subreddit"`
}

type Reddit struct {
	actors *ccache.Cache[as1.Actor]
}

func New() *Reddit {
	return &Reddit{
		actors: ccache.New(ccache.Configure[as1.Actor]().MaxSize(1000)),
	}
}

func (rd *Reddit) Name() string {
	return "reddit"
}

func (rd *Reddit) Domain() string {
	return Domain
}

// Reddit searches and pages natively, so envelopes pass its slices through.
func (rd *Reddit) Capabilities() source.Capabilities {
	return source.NewCapabilities(source.CapabilitySearch, source.CapabilityPaging)
}

// Normalize converts a listing of submissions and comments to activities in
// listing order. Things of unrecognized kind or without ids are skipped.
func (rd *Reddit) Normalize(raw []byte) ([]as1.Activity, error) {
	var l listing
	if err := json.Unmarshal(raw, &l); err != nil {
		return nil, source.NewFormatError("reddit: unparseable listing", err)
	}
	switch l.Error {
	case 0:
		// fine
	case 401, 403:
		return nil, source.NewAuthError("reddit: " + l.Message)
	case 404:
		return nil, source.NewNotFoundError("reddit: " + l.Message)
	case 429:
		return nil, source.NewRateLimitError("reddit: "+l.Message, 0)
	default:
		return nil, source.NewFormatError(fmt.Sprintf("reddit: API error %d: %s", l.Error, l.Message), nil)
	}

	activities := make([]as1.Activity, 0, len(l.Data.Children))
	failed := 0
	for _, t := range l.Data.Children {
		act, err := rd.thingToActivity(t)
		if err != nil {
			failed++
			telemetry.Warn("reddit: skipping %s thing: %s", t.Kind, err)
			telemetry.Increment("normalize_skipped", 1)
			continue
		}
		activities = append(activities, act)
	}
	if failed > 0 && len(activities) == 0 {
		return nil, source.NewFormatError(
			fmt.Sprintf("reddit: all %d things were malformed", failed), nil)
	}
	return activities, nil
}

func (rd *Reddit) thingToActivity(t thing) (as1.Activity, error) {
	var obj *as1.Object
	switch t.Kind {
	case "t3":
		var s submission
		if err := json.Unmarshal(t.Data, &s); err != nil {
			return as1.Activity{}, err
		}
		var err error
		obj, err = rd.submissionToObject(s)
		if err != nil {
			return as1.Activity{}, err
		}
	case "t1":
		var c redditComment
		if err := json.Unmarshal(t.Data, &c); err != nil {
			return as1.Activity{}, err
		}
		var err error
		obj, err = rd.commentToObject(c)
		if err != nil {
			return as1.Activity{}, err
		}
	default:
		return as1.Activity{}, fmt.Errorf("unrecognized thing kind %q", t.Kind)
	}

	act := as1.Activity{
		Verb:      as1.VerbPost,
		ID:        obj.ID,
		URL:       obj.URL,
		Published: obj.Published,
		Actor:     obj.Author,
		Object:    obj,
	}
	if err := act.Validate(); err != nil {
		return as1.Activity{}, err
	}
	return act, nil
}

func (rd *Reddit) submissionToObject(s submission) (*as1.Object, error) {
	if s.ID == "" {
		return nil, fmt.Errorf("submission has no id")
	}
	author := rd.authorActor(s.Author)
	obj := &as1.Object{
		ID:          source.TagURI(Domain, s.ID),
		ObjectType:  as1.TypeNote,
		DisplayName: s.Title,
		Content:     s.SelfText,
		URL:         BaseURL + s.Permalink,
		Published:   epochToRFC3339(s.CreatedUTC),
		Author:      author,
		Tags:        linkTags(s.SelfText),
	}

	// link posts point off-site; surface them as bookmarks with the
	// target as an article attachment
	if !s.IsSelf && s.URL != "" {
		obj.ObjectType = as1.TypeBookmark
		obj.Attachments = []*as1.Object{{
			ObjectType: as1.TypeArticle,
			URL:        s.URL,
		}}
	}
	return obj, nil
}

func (rd *Reddit) commentToObject(c redditComment) (*as1.Object, error) {
	if c.ID == "" {
		return nil, fmt.Errorf("comment has no id")
	}
	obj := &as1.Object{
		ID:         source.TagURI(Domain, c.ID),
		ObjectType: as1.TypeComment,
		Content:    c.Body,
		URL:        BaseURL + c.Permalink,
		Published:  epochToRFC3339(c.CreatedUTC),
		Author:     rd.authorActor(c.Author),
		Tags:       linkTags(c.Body),
	}
	if parent := stripThingPrefix(c.ParentID); parent != "" {
		obj.InReplyTo = []as1.Ref{{ID: source.TagURI(Domain, parent)}}
	}
	return obj, nil
}

// authorActor builds the minimal actor a listing can describe. Cached so a
// batch of comments by one author shares the work; entries are copied out,
// so callers never share tree structure.
func (rd *Reddit) authorActor(username string) *as1.Actor {
	if username == "" || username == "[deleted]" {
		return nil
	}
	item := rd.actors.Get(username)
	if item != nil && !item.Expired() {
		actor := item.Value()
		return &actor
	}
	actor := as1.Actor{
		ID:          source.TagURI(Domain, username),
		Username:    username,
		DisplayName: username,
		URL:         fmt.Sprintf("%s/user/%s/", BaseURL, username),
	}
	rd.actors.Set(username, actor, actorCacheTTL)
	return &actor
}

// NormalizeActor converts an about.json user payload to an actor.
func (rd *Reddit) NormalizeActor(raw []byte) (as1.Actor, error) {
	var wrapper struct {
		Kind string          `json:"kind"`
		Data json.RawMessage `json:"data"`
	}
	u := redditUser{}
	if err := json.Unmarshal(raw, &wrapper); err == nil && wrapper.Kind == "t2" {
		if err := json.Unmarshal(wrapper.Data, &u); err != nil {
			return as1.Actor{}, source.NewFormatError("reddit: unparseable user payload", err)
		}
	} else if err := json.Unmarshal(raw, &u); err != nil {
		return as1.Actor{}, source.NewFormatError("reddit: unparseable user payload", err)
	}
	if u.Name == "" {
		return as1.Actor{}, source.NewFormatError("reddit: user has no name", nil)
	}

	actor := as1.Actor{
		ID:          source.TagURI(Domain, u.Name),
		Username:    u.Name,
		DisplayName: u.Name,
		URL:         fmt.Sprintf("%s/user/%s/", BaseURL, u.Name),
	}
	if u.IconImg != "" {
		actor.Image = &as1.Image{URL: u.IconImg}
	}
	if u.Subreddit != nil {
		actor.Description = u.Subreddit.PublicDescription
	}
	rd.actors.Set(u.Name, actor, actorCacheTTL)
	return actor, nil
}

func (rd *Reddit) Denormalize(act as1.Activity) ([]byte, error) {
	return nil, source.NewUnsupportedError("reddit: publishing is not supported")
}

func linkTags(content string) []as1.Tag {
	var tags []as1.Tag
	for _, m := range linkRE.FindAllStringIndex(content, -1) {
		url := content[m[0]:m[1]]
		tag := as1.Tag{
			ObjectType:  as1.TypeArticle,
			URL:         url,
			DisplayName: url,
		}
		as1.ReindexBytes(&tag, content, m[0], m[1])
		tags = append(tags, tag)
	}
	return tags
}

func stripThingPrefix(id string) string {
	if len(id) > 3 && id[2] == '_' {
		return id[3:]
	}
	return ""
}

func epochToRFC3339(secs float64) string {
	if secs == 0 {
		return ""
	}
	return as1.FormatTime(time.Unix(int64(secs), 0))
}

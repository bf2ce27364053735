// Package pixelfed maps Pixelfed status payloads to the canonical model.
// Pixelfed's API is a clone of Mastodon's, so this handles the common
// Mastodon status shape: HTML content with structured tag and mention lists
// rather than offset-annotated entities.
// https://docs.pixelfed.org/technical-documentation/api-v1.html
package pixelfed

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

// raw status shapes, shared with Mastodon
// https://docs.joinmastodon.org/entities/Status/

type apiError struct {
	Error string `json:"error"`
}

type status struct {
	ID          string       `json:"id"`
	URI         string       `json:"uri"`
	URL         string       `json:"url"`
	CreatedAt   string       `json:"created_at"`
	Content     string       `json:"content"`
	SpoilerText string       `json:"spoiler_text"`
	Visibility  string       `json:"visibility"`
	Account     account      `json:"account"`
	Media       []attachment `json:"media_attachments"`
	Tags        []statusTag  `json:"tags"`
	Mentions    []mention    `json:"mentions"`
	InReplyTo   string       `json:"in_reply_to_id"`
	Reblog      *status      `json:"reblog"`
}

type account struct {
	ID          string `json:"id"`
	Username    string `json:"username"`
	Acct        string `json:"acct"`
	DisplayName string `json:"display_name"`
	Note        string `json:"note"`
	Avatar      string `json:"avatar"`
	URL         string `json:"url"`
}

type attachment struct {
	Type        string `json:"type"` // image, video, gifv, audio
	URL         string `json:"url"`
	PreviewURL  string `json:"preview_url"`
	Description string `json:"description"`
}

type statusTag struct {
	Name string `json:"name"`
	URL  string `json:"url"`
}

type mention struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Acct     string `json:"acct"`
	URL      string `json:"url"`
}

type Pixelfed struct {
	// Instance is the base URL of the Pixelfed instance, eg
	// https://pixelfed.social
	Instance string

	domain string
}

func New(instance string) *Pixelfed {
	p := &Pixelfed{Instance: strings.TrimRight(instance, "/")}
	if u, err := url.Parse(instance); err == nil {
		p.domain = u.Hostname()
	}
	return p
}

func (pf *Pixelfed) Name() string {
	return "pixelfed"
}

func (pf *Pixelfed) Domain() string {
	return pf.domain
}

func (pf *Pixelfed) Capabilities() source.Capabilities {
	return source.NewCapabilities(source.CapabilityPaging, source.CapabilityWrite)
}

// Normalize converts a status timeline (or single status) to activities.
func (pf *Pixelfed) Normalize(raw []byte) ([]as1.Activity, error) {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		if strings.Contains(strings.ToLower(e.Error), "token") {
			return nil, source.NewAuthError("pixelfed: " + e.Error)
		}
		return nil, source.NewFormatError("pixelfed: API error: "+e.Error, nil)
	}

	raw = bytes.TrimLeft(raw, " \t\r\n")
	statuses := make([]status, 0)
	if len(raw) > 0 && raw[0] == '[' {
		if err := json.Unmarshal(raw, &statuses); err != nil {
			return nil, source.NewFormatError("pixelfed: unparseable timeline", err)
		}
	} else {
		var s status
		if err := json.Unmarshal(raw, &s); err != nil {
			return nil, source.NewFormatError("pixelfed: unparseable status", err)
		}
		statuses = append(statuses, s)
	}

	activities := make([]as1.Activity, 0, len(statuses))
	failed := 0
	for _, s := range statuses {
		act, err := pf.statusToActivity(s)
		if err != nil {
			failed++
			telemetry.Warn("pixelfed: skipping status [%s]: %s", s.ID, err)
			telemetry.Increment("normalize_skipped", 1)
			continue
		}
		activities = append(activities, act)
	}
	if failed > 0 && len(activities) == 0 {
		return nil, source.NewFormatError(
			fmt.Sprintf("pixelfed: all %d statuses were malformed", failed), nil)
	}
	return activities, nil
}

func (pf *Pixelfed) statusToActivity(s status) (as1.Activity, error) {
	if s.ID == "" {
		return as1.Activity{}, fmt.Errorf("status has no id")
	}

	// boosts wrap the boosted status
	if s.Reblog != nil {
		inner, err := pf.statusToActivity(*s.Reblog)
		if err != nil {
			return as1.Activity{}, err
		}
		actor := pf.accountToActor(s.Account)
		act := as1.Activity{
			Verb:      as1.VerbShare,
			ID:        source.TagURI(pf.domain, s.ID),
			URL:       pf.statusURL(s),
			Published: toRFC3339(s.CreatedAt),
			Actor:     &actor,
			Object:    inner.Object,
		}
		return act, act.Validate()
	}

	actor := pf.accountToActor(s.Account)
	obj := &as1.Object{
		ID:          source.TagURI(pf.domain, s.ID),
		ObjectType:  as1.TypeNote,
		DisplayName: s.SpoilerText,
		Content:     s.Content,
		URL:         pf.statusURL(s),
		Published:   toRFC3339(s.CreatedAt),
		Author:      &actor,
	}
	if len(s.Media) > 0 {
		obj.ObjectType = as1.TypePhoto
	}
	if s.InReplyTo != "" {
		obj.ObjectType = as1.TypeComment
		obj.InReplyTo = []as1.Ref{{ID: source.TagURI(pf.domain, s.InReplyTo)}}
	}

	for _, m := range s.Media {
		att := &as1.Object{URL: m.URL}
		switch m.Type {
		case "video", "gifv":
			att.ObjectType = as1.TypeVideo
			att.Stream = &as1.Image{URL: m.URL}
			if m.PreviewURL != "" {
				att.Image = &as1.Image{URL: m.PreviewURL, DisplayName: m.Description}
			}
		case "audio":
			att.ObjectType = as1.TypeAudio
			att.Stream = &as1.Image{URL: m.URL}
		default:
			att.ObjectType = as1.TypeImage
			att.Image = &as1.Image{URL: m.URL, DisplayName: m.Description}
		}
		obj.Attachments = append(obj.Attachments, att)
	}

	// tags and mentions are structured, no offsets to translate
	for _, t := range s.Tags {
		obj.Tags = append(obj.Tags, as1.Tag{
			ObjectType:  as1.TypeHashtag,
			DisplayName: t.Name,
			URL:         t.URL,
		})
	}
	for _, m := range s.Mentions {
		obj.Tags = append(obj.Tags, as1.Tag{
			ObjectType:  as1.TypeMention,
			ID:          source.TagURI(pf.domain, m.ID),
			DisplayName: "@" + m.Acct,
			URL:         m.URL,
		})
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

func (pf *Pixelfed) statusURL(s status) string {
	if s.URL != "" {
		return s.URL
	}
	if s.Account.Username != "" && s.ID != "" {
		return fmt.Sprintf("%s/p/%s/%s", pf.Instance, url.PathEscape(s.Account.Username), s.ID)
	}
	return s.URI
}

func (pf *Pixelfed) NormalizeActor(raw []byte) (as1.Actor, error) {
	var e apiError
	if err := json.Unmarshal(raw, &e); err == nil && e.Error != "" {
		return as1.Actor{}, source.NewAuthError("pixelfed: " + e.Error)
	}
	var a account
	if err := json.Unmarshal(raw, &a); err != nil {
		return as1.Actor{}, source.NewFormatError("pixelfed: unparseable account payload", err)
	}
	if a.ID == "" && a.Username == "" {
		return as1.Actor{}, source.NewFormatError("pixelfed: account has no id or username", nil)
	}
	return pf.accountToActor(a), nil
}

func (pf *Pixelfed) accountToActor(a account) as1.Actor {
	actor := as1.Actor{
		ID:          source.TagURI(pf.domain, a.ID),
		Username:    a.Username,
		DisplayName: a.DisplayName,
		Description: a.Note,
		URL:         a.URL,
	}
	if actor.DisplayName == "" {
		actor.DisplayName = a.Username
	}
	if actor.URL == "" && a.Username != "" {
		actor.URL = pf.Instance + "/" + url.PathEscape(a.Username)
	}
	if a.Avatar != "" {
		actor.Image = &as1.Image{URL: a.Avatar}
	}
	return actor
}

// Denormalize produces the POST /api/v1/statuses request shape for a post
// or comment, or the favourite/reblog target for likes and shares. New
// statuses get a generated idempotency key so the collaborator can retry
// safely.
func (pf *Pixelfed) Denormalize(act as1.Activity) ([]byte, error) {
	switch act.Verb {
	case as1.VerbPost:
		if act.Object == nil {
			return nil, source.NewUnsupportedError("pixelfed: post has no object")
		}
		req := map[string]string{
			"status":          act.Object.Content,
			"idempotency_key": uuid.NewString(),
		}
		for _, ref := range act.Object.InReplyTo {
			if local, ok := source.ParseTagURI(ref.ID); ok {
				req["in_reply_to_id"] = local
				break
			}
		}
		return json.Marshal(req)
	case as1.VerbLike, as1.VerbShare:
		if act.Object == nil || act.Object.ID == "" {
			return nil, source.NewUnsupportedError("pixelfed: " + string(act.Verb) + " has no target")
		}
		id := act.Object.ID
		if local, ok := source.ParseTagURI(id); ok {
			id = local
		}
		return json.Marshal(map[string]string{"id": id})
	}
	return nil, source.NewUnsupportedError("pixelfed: cannot publish verb " + string(act.Verb))
}

func toRFC3339(ts string) string {
	if t, err := time.Parse(time.RFC3339, ts); err == nil {
		return as1.FormatTime(t)
	}
	return ts
}

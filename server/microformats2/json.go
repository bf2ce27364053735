package microformats2

import (
	"encoding/json"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
)

// mf2-JSON objects are {"type": [...], "properties": {...}} with every
// property an array of values.
type mf2Object struct {
	Type       []string         `json:"type"`
	Properties map[string][]any `json:"properties"`
	Children   []mf2Object      `json:"children,omitempty"`
}

// EncodeJSON renders one activity in the microformats2 JSON convention.
// Tags carry over structurally (categories and mention cards), so no offset
// translation happens here.
func EncodeJSON(act as1.Activity) ([]byte, error) {
	if act.Object == nil {
		return nil, source.NewEncodingError("activity has no object", nil)
	}
	out, err := json.Marshal(entryObject(act))
	if err != nil {
		return nil, source.NewEncodingError("cannot marshal mf2 json", err)
	}
	return out, nil
}

// EncodeEnvelopeJSON renders a page of activities as a list of mf2 items.
func EncodeEnvelopeJSON(env as1.Envelope) ([]byte, error) {
	items := make([]mf2Object, 0, len(env.Items))
	for _, act := range env.Items {
		if act.Object == nil {
			return nil, source.NewEncodingError("activity has no object", nil)
		}
		items = append(items, entryObject(act))
	}
	out, err := json.Marshal(map[string]any{"items": items})
	if err != nil {
		return nil, source.NewEncodingError("cannot marshal mf2 json", err)
	}
	return out, nil
}

// EncodeActorJSON renders a standalone h-card.
func EncodeActorJSON(actor as1.Actor) ([]byte, error) {
	out, err := json.Marshal(cardObject(actor))
	if err != nil {
		return nil, source.NewEncodingError("cannot marshal mf2 json", err)
	}
	return out, nil
}

func entryObject(act as1.Activity) mf2Object {
	obj := act.Object
	props := map[string][]any{}

	setProp(props, "uid", obj.ID)
	setProp(props, "name", obj.DisplayName)
	setProp(props, "url", obj.URL)
	setProp(props, "published", obj.Published)
	setProp(props, "updated", obj.Updated)

	if obj.Content != "" {
		props["content"] = []any{map[string]string{
			"html":  RenderContent(obj.Content, obj.Tags),
			"value": obj.Content,
		}}
	}

	author := obj.Author
	if author == nil {
		author = act.Actor
	}
	if author != nil {
		props["author"] = []any{cardObject(*author)}
	}

	for _, ref := range obj.InReplyTo {
		target := ref.URL
		if target == "" {
			target = ref.ID
		}
		props["in-reply-to"] = append(props["in-reply-to"], target)
	}

	for _, t := range obj.Tags {
		switch t.ObjectType {
		case as1.TypeMention:
			props["category"] = append(props["category"], mentionCard(t))
		case as1.TypeHashtag:
			props["category"] = append(props["category"], t.DisplayName)
		}
	}

	for _, att := range obj.Attachments {
		switch att.ObjectType {
		case as1.TypeImage, as1.TypePhoto:
			url := att.URL
			if att.Image != nil {
				url = att.Image.URL
			}
			props["photo"] = append(props["photo"], url)
		case as1.TypeVideo:
			url := att.URL
			if att.Stream != nil {
				url = att.Stream.URL
			}
			props["video"] = append(props["video"], url)
		case as1.TypeAudio:
			url := att.URL
			if att.Stream != nil {
				url = att.Stream.URL
			}
			props["audio"] = append(props["audio"], url)
		}
	}

	switch act.Verb {
	case as1.VerbLike:
		setProp(props, "like-of", obj.URL)
	case as1.VerbShare:
		setProp(props, "repost-of", obj.URL)
	case as1.VerbRSVPYes:
		setProp(props, "rsvp", "yes")
	case as1.VerbRSVPNo:
		setProp(props, "rsvp", "no")
	case as1.VerbRSVPMaybe:
		setProp(props, "rsvp", "maybe")
	}

	if loc := obj.Location; loc != nil {
		locProps := map[string][]any{}
		setProp(locProps, "name", loc.DisplayName)
		setProp(locProps, "url", loc.URL)
		if loc.Latitude != 0 || loc.Longitude != 0 {
			locProps["latitude"] = []any{loc.Latitude}
			locProps["longitude"] = []any{loc.Longitude}
		}
		props["location"] = []any{mf2Object{Type: []string{"h-card"}, Properties: locProps}}
	}

	return mf2Object{Type: []string{"h-entry"}, Properties: props}
}

func cardObject(actor as1.Actor) mf2Object {
	props := map[string][]any{}
	setProp(props, "uid", actor.ID)
	setProp(props, "name", actor.DisplayName)
	setProp(props, "nickname", actor.Username)
	setProp(props, "note", actor.Description)
	setProp(props, "url", actor.URL)
	if actor.Image != nil {
		setProp(props, "photo", actor.Image.URL)
	}
	return mf2Object{Type: []string{"h-card"}, Properties: props}
}

func mentionCard(t as1.Tag) mf2Object {
	props := map[string][]any{}
	setProp(props, "uid", t.ID)
	setProp(props, "name", t.DisplayName)
	setProp(props, "url", t.URL)
	return mf2Object{Type: []string{"h-card"}, Properties: props}
}

func setProp(props map[string][]any, name, value string) {
	if value != "" {
		props[name] = []any{value}
	}
}

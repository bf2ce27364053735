// Package microformats2 converts between the canonical model and
// class-based microformats2 markup: h-entry for activities, h-card for
// actors, h-cite for reply contexts and quoted attachments.
//
// Offset-annotated tags are rendered as inline anchors spliced into the
// content at their codepoint offsets; the anchor's class records the tag
// type so decoding recovers an equal tag. Offsets are always measured over
// the unescaped text, never over the HTML serialization.
package microformats2

import (
	"fmt"
	"html"
	"sort"
	"strings"

	"github.com/sarajaksa/granary/server/as1"
)

// Encode renders one activity as an h-entry fragment.
func Encode(act as1.Activity) (string, error) {
	if act.Object == nil {
		return "", fmt.Errorf("activity %q has no object", act.ID)
	}
	var b strings.Builder
	b.WriteString(`<article class="h-entry">` + "\n")

	obj := act.Object
	if obj.ID != "" {
		fmt.Fprintf(&b, `<data class="u-uid" value="%s"></data>`+"\n", html.EscapeString(obj.ID))
	}
	if obj.DisplayName != "" {
		fmt.Fprintf(&b, `<span class="p-name">%s</span>`+"\n", html.EscapeString(obj.DisplayName))
	}
	if obj.Content != "" {
		fmt.Fprintf(&b, `<div class="e-content">%s</div>`+"\n", RenderContent(obj.Content, obj.Tags))
	}
	if obj.URL != "" {
		fmt.Fprintf(&b, `<a class="u-url" href="%s"></a>`+"\n", html.EscapeString(obj.URL))
	}
	if obj.Published != "" {
		fmt.Fprintf(&b, `<time class="dt-published" datetime="%s"></time>`+"\n", html.EscapeString(obj.Published))
	}
	if obj.Updated != "" {
		fmt.Fprintf(&b, `<time class="dt-updated" datetime="%s"></time>`+"\n", html.EscapeString(obj.Updated))
	}

	author := obj.Author
	if author == nil {
		author = act.Actor
	}
	if author != nil {
		b.WriteString(renderCard(*author, "p-author h-card"))
	}

	switch act.Verb {
	case as1.VerbLike:
		if obj.URL != "" {
			fmt.Fprintf(&b, `<a class="u-like-of" href="%s"></a>`+"\n", html.EscapeString(obj.URL))
		}
	case as1.VerbShare:
		if obj.URL != "" {
			fmt.Fprintf(&b, `<a class="u-repost-of" href="%s"></a>`+"\n", html.EscapeString(obj.URL))
		}
	case as1.VerbRSVPYes:
		b.WriteString(`<data class="p-rsvp" value="yes"></data>` + "\n")
	case as1.VerbRSVPNo:
		b.WriteString(`<data class="p-rsvp" value="no"></data>` + "\n")
	case as1.VerbRSVPMaybe:
		b.WriteString(`<data class="p-rsvp" value="maybe"></data>` + "\n")
	}

	for _, ref := range obj.InReplyTo {
		if ref.URL != "" {
			fmt.Fprintf(&b, `<a class="u-in-reply-to" href="%s"></a>`+"\n", html.EscapeString(ref.URL))
		} else if ref.ID != "" {
			fmt.Fprintf(&b, `<data class="u-in-reply-to" value="%s"></data>`+"\n", html.EscapeString(ref.ID))
		}
	}

	for _, att := range obj.Attachments {
		b.WriteString(renderAttachment(att))
	}

	// tags without offsets become categories: hashtags as plain p-category
	// links, mentions as nested h-cards
	for _, t := range obj.Tags {
		if t.HasOffsets() {
			continue
		}
		switch t.ObjectType {
		case as1.TypeMention:
			fmt.Fprintf(&b, `<a class="u-category h-card" href="%s">%s</a>`+"\n",
				html.EscapeString(t.URL), html.EscapeString(t.DisplayName))
		default:
			fmt.Fprintf(&b, `<a class="p-category" href="%s">%s</a>`+"\n",
				html.EscapeString(t.URL), html.EscapeString(t.DisplayName))
		}
	}

	if loc := obj.Location; loc != nil {
		b.WriteString(`<span class="p-location h-card">`)
		if loc.URL != "" || loc.DisplayName != "" {
			fmt.Fprintf(&b, `<a class="p-name u-url" href="%s">%s</a>`,
				html.EscapeString(loc.URL), html.EscapeString(loc.DisplayName))
		}
		if loc.Latitude != 0 || loc.Longitude != 0 {
			fmt.Fprintf(&b, `<data class="p-latitude" value="%v"></data>`, loc.Latitude)
			fmt.Fprintf(&b, `<data class="p-longitude" value="%v"></data>`, loc.Longitude)
		}
		b.WriteString("</span>\n")
	}

	b.WriteString("</article>\n")
	return b.String(), nil
}

// EncodeEnvelope renders a page of activities as a standalone HTML document.
func EncodeEnvelope(env as1.Envelope) (string, error) {
	var b strings.Builder
	b.WriteString("<!DOCTYPE html>\n<html>\n<head><meta charset=\"utf-8\"></head>\n<body>\n")
	for _, act := range env.Items {
		entry, err := Encode(act)
		if err != nil {
			return "", err
		}
		b.WriteString(entry)
	}
	b.WriteString("</body>\n</html>\n")
	return b.String(), nil
}

// EncodeActor renders a standalone h-card.
func EncodeActor(actor as1.Actor) string {
	return renderCard(actor, "h-card")
}

func renderCard(actor as1.Actor, class string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<span class="%s">`, class)
	if actor.Image != nil && actor.Image.URL != "" {
		fmt.Fprintf(&b, `<img class="u-photo" src="%s" alt="%s"/>`,
			html.EscapeString(actor.Image.URL), html.EscapeString(actor.Image.DisplayName))
	}
	fmt.Fprintf(&b, `<a class="p-name u-url" href="%s">%s</a>`,
		html.EscapeString(actor.URL), html.EscapeString(actor.DisplayName))
	if actor.ID != "" {
		fmt.Fprintf(&b, `<data class="u-uid" value="%s"></data>`, html.EscapeString(actor.ID))
	}
	if actor.Username != "" {
		fmt.Fprintf(&b, `<span class="p-nickname">%s</span>`, html.EscapeString(actor.Username))
	}
	if actor.Description != "" {
		fmt.Fprintf(&b, `<p class="p-note">%s</p>`, html.EscapeString(actor.Description))
	}
	b.WriteString("</span>\n")
	return b.String()
}

func renderAttachment(att *as1.Object) string {
	var b strings.Builder
	switch att.ObjectType {
	case as1.TypeImage, as1.TypePhoto:
		url, alt := att.URL, ""
		if att.Image != nil {
			url = att.Image.URL
			alt = att.Image.DisplayName
		}
		fmt.Fprintf(&b, `<img class="u-photo" src="%s" alt="%s"/>`+"\n",
			html.EscapeString(url), html.EscapeString(alt))
	case as1.TypeVideo:
		url, poster := att.URL, ""
		if att.Stream != nil {
			url = att.Stream.URL
		}
		if att.Image != nil {
			poster = att.Image.URL
		}
		fmt.Fprintf(&b, `<video class="u-video" src="%s" poster="%s"></video>`+"\n",
			html.EscapeString(url), html.EscapeString(poster))
	case as1.TypeAudio:
		url := att.URL
		if att.Stream != nil {
			url = att.Stream.URL
		}
		fmt.Fprintf(&b, `<audio class="u-audio" src="%s"></audio>`+"\n", html.EscapeString(url))
	default:
		fmt.Fprintf(&b, `<div class="u-attachment h-cite"><a class="p-name u-url" href="%s">%s</a></div>`+"\n",
			html.EscapeString(att.URL), html.EscapeString(att.DisplayName))
	}
	return b.String()
}

// RenderContent turns unescaped content plus offset tags into HTML: anchors
// are spliced in at their codepoint spans and everything around them is
// escaped. Tags are sorted by offset first; a tag overlapping an earlier one
// is rendered as plain text, never as a nested anchor.
func RenderContent(content string, tags []as1.Tag) string {
	spans := make([]as1.Tag, 0, len(tags))
	for _, t := range tags {
		if t.HasOffsets() {
			spans = append(spans, t)
		}
	}
	sort.SliceStable(spans, func(i, j int) bool {
		return spans[i].StartIndex < spans[j].StartIndex
	})

	runes := []rune(content)
	var b strings.Builder
	pos := 0
	for _, t := range spans {
		end := t.StartIndex + t.Length
		if t.StartIndex < pos || end > len(runes) {
			continue
		}
		b.WriteString(html.EscapeString(string(runes[pos:t.StartIndex])))
		span := html.EscapeString(string(runes[t.StartIndex:end]))
		class := tagClass(t.ObjectType)
		if class != "" {
			fmt.Fprintf(&b, `<a class="%s" href="%s">%s</a>`, class, html.EscapeString(t.URL), span)
		} else {
			fmt.Fprintf(&b, `<a href="%s">%s</a>`, html.EscapeString(t.URL), span)
		}
		pos = end
	}
	b.WriteString(html.EscapeString(string(runes[pos:])))
	return b.String()
}

func tagClass(t as1.ObjectType) string {
	switch t {
	case as1.TypeMention:
		return "mention"
	case as1.TypeHashtag:
		return "hashtag"
	}
	return ""
}

func classToTagType(class string) as1.ObjectType {
	for _, c := range strings.Fields(class) {
		switch c {
		case "mention":
			return as1.TypeMention
		case "hashtag":
			return as1.TypeHashtag
		}
	}
	return as1.TypeArticle
}

package microformats2

import (
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarajaksa/granary/server/as1"
)

func noteActivity() as1.Activity {
	return as1.Activity{
		Verb:      as1.VerbPost,
		ID:        "tag:example.com:1",
		URL:       "https://example.com/1",
		Published: "2023-01-01T00:00:00Z",
		Actor: &as1.Actor{
			ID:          "tag:example.com:alice",
			DisplayName: "Alice",
			Username:    "alice",
			URL:         "https://example.com/alice",
			Image:       &as1.Image{URL: "https://example.com/alice.jpg"},
		},
		Object: &as1.Object{
			ID:         "tag:example.com:1",
			ObjectType: as1.TypeNote,
			Content:    "check http://x.co/1 out",
			URL:        "https://example.com/1",
			Published:  "2023-01-01T00:00:00Z",
			Tags: []as1.Tag{{
				ObjectType: as1.TypeArticle,
				URL:        "http://x.co/1",
				StartIndex: 6,
				Length:     13,
			}},
		},
	}
}

func TestRenderContent(t *testing.T) {
	tags := []as1.Tag{{ObjectType: as1.TypeArticle, URL: "http://x.co/1", StartIndex: 6, Length: 13}}
	out := RenderContent("check http://x.co/1 out", tags)
	assert.Equal(t, `check <a href="http://x.co/1">http://x.co/1</a> out`, out)
}

func TestRenderContent_MultibyteAndClass(t *testing.T) {
	tags := []as1.Tag{{
		ObjectType: as1.TypeMention,
		URL:        "https://example.com/bob",
		StartIndex: 6,
		Length:     4,
	}}
	out := RenderContent("héllo @bob wörld", tags)
	assert.Equal(t, `héllo <a class="mention" href="https://example.com/bob">@bob</a> wörld`, out)
}

func TestRenderContent_EscapesAroundAnchors(t *testing.T) {
	out := RenderContent("a < b & c", nil)
	assert.Equal(t, "a &lt; b &amp; c", out)

	tags := []as1.Tag{{ObjectType: as1.TypeHashtag, URL: "https://example.com/t", StartIndex: 0, Length: 1}}
	out = RenderContent("x <ok>", tags)
	assert.Equal(t, `<a class="hashtag" href="https://example.com/t">x</a> &lt;ok&gt;`, out)
}

func TestRenderContent_SkipsOverlappingTags(t *testing.T) {
	tags := []as1.Tag{
		{ObjectType: as1.TypeHashtag, URL: "https://example.com/a", StartIndex: 0, Length: 5},
		{ObjectType: as1.TypeHashtag, URL: "https://example.com/b", StartIndex: 3, Length: 5},
	}
	out := RenderContent("abcdefghij", tags)
	assert.Equal(t, `<a class="hashtag" href="https://example.com/a">abcde</a>fghij`, out)
}

func TestParseContent(t *testing.T) {
	text, tags, err := ParseContent(`héllo <a class="mention" href="https://example.com/bob">@bob</a> wörld`)
	require.NoError(t, err)
	assert.Equal(t, "héllo @bob wörld", text)
	require.Len(t, tags, 1)
	assert.Equal(t, as1.TypeMention, tags[0].ObjectType)
	assert.Equal(t, 6, tags[0].StartIndex)
	assert.Equal(t, 4, tags[0].Length)
	assert.Equal(t, "@bob", tags[0].DisplayName)
}

func TestParseContent_BreaksAndEntities(t *testing.T) {
	text, tags, err := ParseContent("a &amp; b<br>second line")
	require.NoError(t, err)
	assert.Equal(t, "a & b\nsecond line", text)
	assert.Empty(t, tags)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	act := noteActivity()
	encoded, err := Encode(act)
	require.NoError(t, err)

	got, err := Decode([]byte(encoded))
	require.NoError(t, err)

	assert.Equal(t, as1.VerbPost, got.Verb)
	assert.Equal(t, act.ID, got.ID)
	assert.Equal(t, act.URL, got.URL)
	assert.Equal(t, act.Published, got.Published)
	assert.Equal(t, "check http://x.co/1 out", got.Object.Content)

	require.Len(t, got.Object.Tags, 1)
	tag := got.Object.Tags[0]
	assert.Equal(t, as1.TypeArticle, tag.ObjectType)
	assert.Equal(t, 6, tag.StartIndex)
	assert.Equal(t, 13, tag.Length)
	assert.Equal(t, "http://x.co/1", tag.URL)

	require.NotNil(t, got.Actor)
	assert.Equal(t, "Alice", got.Actor.DisplayName)
	assert.Equal(t, "alice", got.Actor.Username)
	assert.Equal(t, "tag:example.com:alice", got.Actor.ID)
}

func TestEncodeDecode_CategoryTags(t *testing.T) {
	act := noteActivity()
	act.Object.Tags = []as1.Tag{
		{ObjectType: as1.TypeHashtag, DisplayName: "golang", URL: "https://example.com/tags/golang"},
		{ObjectType: as1.TypeMention, DisplayName: "@bob", URL: "https://example.com/bob"},
	}
	encoded, err := Encode(act)
	require.NoError(t, err)
	assert.Contains(t, encoded, `class="p-category"`)
	assert.Contains(t, encoded, `class="u-category h-card"`)

	got, err := Decode([]byte(encoded))
	require.NoError(t, err)
	require.Len(t, got.Object.Tags, 2)
	assert.Equal(t, as1.TypeHashtag, got.Object.Tags[0].ObjectType)
	assert.Equal(t, "golang", got.Object.Tags[0].DisplayName)
	assert.False(t, got.Object.Tags[0].HasOffsets())
	assert.Equal(t, as1.TypeMention, got.Object.Tags[1].ObjectType)
	assert.Equal(t, "@bob", got.Object.Tags[1].DisplayName)
}

func TestEncodeDecode_MixedTagOrder(t *testing.T) {
	// offset tags render inline, the rest as categories; decoding puts the
	// offset tags back first so the canonical order survives the round trip
	act := noteActivity()
	act.Object.Content = "héllo @bob"
	act.Object.Tags = []as1.Tag{
		{ObjectType: as1.TypeHashtag, DisplayName: "golang", URL: "https://example.com/tags/golang"},
		{ObjectType: as1.TypeMention, DisplayName: "@bob", URL: "https://example.com/bob", StartIndex: 6, Length: 4},
	}
	as1.SortTags(act.Object.Tags)

	encoded, err := Encode(act)
	require.NoError(t, err)
	got, err := Decode([]byte(encoded))
	require.NoError(t, err)

	require.Len(t, got.Object.Tags, 2)
	mention := got.Object.Tags[0]
	assert.Equal(t, as1.TypeMention, mention.ObjectType)
	assert.Equal(t, "@bob", mention.DisplayName)
	assert.Equal(t, 6, mention.StartIndex)
	assert.Equal(t, 4, mention.Length)
	hashtag := got.Object.Tags[1]
	assert.Equal(t, as1.TypeHashtag, hashtag.ObjectType)
	assert.Equal(t, "golang", hashtag.DisplayName)
	assert.False(t, hashtag.HasOffsets())
	assert.Equal(t, act.Object.Tags, got.Object.Tags)
}

func TestEncodeDecode_Reply(t *testing.T) {
	act := noteActivity()
	act.Object.ObjectType = as1.TypeComment
	act.Object.InReplyTo = []as1.Ref{
		{URL: "https://example.com/parent"},
		{ID: "tag:example.com:0"},
	}
	encoded, err := Encode(act)
	require.NoError(t, err)

	got, err := Decode([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, as1.TypeComment, got.Object.ObjectType)
	require.Len(t, got.Object.InReplyTo, 2)
	assert.Equal(t, "https://example.com/parent", got.Object.InReplyTo[0].URL)
	assert.Equal(t, "tag:example.com:0", got.Object.InReplyTo[1].ID)
}

func TestEncodeDecode_Verbs(t *testing.T) {
	act := noteActivity()
	act.Verb = as1.VerbLike
	act.Object.Content = ""
	act.Object.Tags = nil
	encoded, err := Encode(act)
	require.NoError(t, err)
	assert.Contains(t, encoded, `class="u-like-of"`)
	got, err := Decode([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, as1.VerbLike, got.Verb)

	act.Verb = as1.VerbRSVPYes
	encoded, err = Encode(act)
	require.NoError(t, err)
	assert.Contains(t, encoded, `<data class="p-rsvp" value="yes">`)
	got, err = Decode([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, as1.VerbRSVPYes, got.Verb)
}

func TestEncodeDecode_Attachments(t *testing.T) {
	act := noteActivity()
	act.Object.ObjectType = as1.TypePhoto
	act.Object.Tags = nil
	act.Object.Attachments = []*as1.Object{
		{
			ObjectType: as1.TypeImage,
			URL:        "https://example.com/p.jpg",
			Image:      &as1.Image{URL: "https://example.com/p.jpg", DisplayName: "a dog"},
		},
		{
			ObjectType: as1.TypeVideo,
			Stream:     &as1.Image{URL: "https://example.com/v.mp4"},
			Image:      &as1.Image{URL: "https://example.com/poster.jpg"},
		},
		{
			ObjectType:  as1.TypeArticle,
			DisplayName: "Quoted Story",
			URL:         "https://example.com/story",
		},
	}
	encoded, err := Encode(act)
	require.NoError(t, err)

	got, err := Decode([]byte(encoded))
	require.NoError(t, err)
	assert.Equal(t, as1.TypePhoto, got.Object.ObjectType)
	require.Len(t, got.Object.Attachments, 3)
	assert.Equal(t, "a dog", got.Object.Attachments[0].Image.DisplayName)
	assert.Equal(t, "https://example.com/v.mp4", got.Object.Attachments[1].Stream.URL)
	assert.Equal(t, "https://example.com/poster.jpg", got.Object.Attachments[1].Image.URL)
	assert.Equal(t, "Quoted Story", got.Object.Attachments[2].DisplayName)
	assert.Equal(t, "https://example.com/story", got.Object.Attachments[2].URL)
}

func TestEncodeDecode_Location(t *testing.T) {
	act := noteActivity()
	act.Object.Location = &as1.Location{
		DisplayName: "Golden Gate Park",
		URL:         "https://example.com/ggp",
		Latitude:    37.77,
		Longitude:   -122.48,
	}
	encoded, err := Encode(act)
	require.NoError(t, err)

	got, err := Decode([]byte(encoded))
	require.NoError(t, err)
	require.NotNil(t, got.Object.Location)
	assert.Equal(t, "Golden Gate Park", got.Object.Location.DisplayName)
	assert.Equal(t, 37.77, got.Object.Location.Latitude)
	assert.Equal(t, -122.48, got.Object.Location.Longitude)
}

func TestEncodeEnvelope_DecodeAll(t *testing.T) {
	first := noteActivity()
	second := noteActivity()
	second.ID = "tag:example.com:2"
	second.Object.ID = "tag:example.com:2"
	env := as1.NewEnvelope([]as1.Activity{first, second}, 0, -1)

	page, err := EncodeEnvelope(env)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(page, "<!DOCTYPE html>"))

	got, err := DecodeAll([]byte(page))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tag:example.com:1", got[0].ID)
	assert.Equal(t, "tag:example.com:2", got[1].ID)
}

func TestDecodeAll_SkipsNestedEntries(t *testing.T) {
	page := `<html><body>
	<article class="h-entry">
	  <data class="u-uid" value="tag:example.com:outer"></data>
	  <div class="u-attachment h-cite">
	    <article class="h-entry"><data class="u-uid" value="tag:example.com:inner"></data></article>
	  </div>
	</article>
	</body></html>`
	got, err := DecodeAll([]byte(page))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tag:example.com:outer", got[0].ID)
}

func TestDecode_NoEntry(t *testing.T) {
	_, err := Decode([]byte(`<html><body><p>nothing</p></body></html>`))
	require.Error(t, err)
}

func TestEncodeActor_DecodeActor(t *testing.T) {
	actor := as1.Actor{
		ID:          "tag:example.com:alice",
		DisplayName: "Alice",
		Username:    "alice",
		Description: "gopher",
		URL:         "https://example.com/alice",
		Image:       &as1.Image{URL: "https://example.com/alice.jpg"},
	}
	card := EncodeActor(actor)
	got, err := DecodeActor([]byte(card))
	require.NoError(t, err)
	assert.Equal(t, actor.ID, got.ID)
	assert.Equal(t, actor.DisplayName, got.DisplayName)
	assert.Equal(t, actor.Username, got.Username)
	assert.Equal(t, actor.Description, got.Description)
	require.NotNil(t, got.Image)
	assert.Equal(t, actor.Image.URL, got.Image.URL)
}

func TestEncodeJSON(t *testing.T) {
	act := noteActivity()
	act.Object.Tags = append(act.Object.Tags,
		as1.Tag{ObjectType: as1.TypeHashtag, DisplayName: "golang", URL: "https://example.com/tags/golang"},
		as1.Tag{ObjectType: as1.TypeMention, DisplayName: "@bob", URL: "https://example.com/bob"},
	)
	out, err := EncodeJSON(act)
	require.NoError(t, err)

	var decoded struct {
		Type       []string                   `json:"type"`
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Equal(t, []string{"h-entry"}, decoded.Type)

	var content []map[string]string
	require.NoError(t, json.Unmarshal(decoded.Properties["content"], &content))
	require.Len(t, content, 1)
	assert.Equal(t, "check http://x.co/1 out", content[0]["value"])
	assert.Contains(t, content[0]["html"], `<a href="http://x.co/1">`)

	var categories []any
	require.NoError(t, json.Unmarshal(decoded.Properties["category"], &categories))
	require.Len(t, categories, 2)
	assert.Equal(t, "golang", categories[0])
	card, ok := categories[1].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []any{"h-card"}, card["type"])

	var author []map[string]any
	require.NoError(t, json.Unmarshal(decoded.Properties["author"], &author))
	require.Len(t, author, 1)
}

func TestEncodeJSON_Verbs(t *testing.T) {
	act := noteActivity()
	act.Verb = as1.VerbLike
	out, err := EncodeJSON(act)
	require.NoError(t, err)
	var decoded struct {
		Properties map[string]json.RawMessage `json:"properties"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	var likeOf []string
	require.NoError(t, json.Unmarshal(decoded.Properties["like-of"], &likeOf))
	assert.Equal(t, []string{"https://example.com/1"}, likeOf)
}

func TestEncodeEnvelopeJSON(t *testing.T) {
	env := as1.NewEnvelope([]as1.Activity{noteActivity()}, 0, -1)
	out, err := EncodeEnvelopeJSON(env)
	require.NoError(t, err)
	var decoded struct {
		Items []json.RawMessage `json:"items"`
	}
	require.NoError(t, json.Unmarshal(out, &decoded))
	assert.Len(t, decoded.Items, 1)
}

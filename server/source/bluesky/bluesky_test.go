package bluesky

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
)

const feedJSON = `{
	"feed": [{
		"post": {
			"uri": "at://did:plc:abc/app.bsky.feed.post/3juf",
			"cid": "bafy123",
			"author": {
				"did": "did:plc:abc",
				"handle": "alice.bsky.social",
				"displayName": "Alice",
				"avatar": "https://example.com/alice.jpg"
			},
			"record": {
				"$type": "app.bsky.feed.post",
				"text": "héllo @bob.bsky.social",
				"createdAt": "2023-07-01T10:00:00Z",
				"facets": [{
					"index": {"byteStart": 7, "byteEnd": 23},
					"features": [{"$type": "app.bsky.richtext.facet#mention", "did": "did:plc:bob"}]
				}]
			}
		}
	}]
}`

func TestNormalize(t *testing.T) {
	b := New()
	activities, err := b.Normalize([]byte(feedJSON))
	require.NoError(t, err)
	require.Len(t, activities, 1)

	act := activities[0]
	assert.Equal(t, as1.VerbPost, act.Verb)
	assert.Equal(t, "tag:bsky.app:at://did:plc:abc/app.bsky.feed.post/3juf", act.ID)
	assert.Equal(t, "https://bsky.app/profile/alice.bsky.social/post/3juf", act.URL)
	assert.Equal(t, "2023-07-01T10:00:00Z", act.Published)
	require.NotNil(t, act.Actor)
	assert.Equal(t, "Alice", act.Actor.DisplayName)
	assert.Equal(t, "alice.bsky.social", act.Actor.Username)
}

func TestNormalize_FacetByteOffsets(t *testing.T) {
	b := New()
	activities, err := b.Normalize([]byte(feedJSON))
	require.NoError(t, err)

	obj := activities[0].Object
	require.Len(t, obj.Tags, 1)
	tag := obj.Tags[0]
	assert.Equal(t, as1.TypeMention, tag.ObjectType)
	// é is two bytes, so byte 7 is codepoint 6
	assert.Equal(t, 6, tag.StartIndex)
	assert.Equal(t, 16, tag.Length)
	assert.Equal(t, "@bob.bsky.social", as1.CodepointSlice(obj.Content, tag.StartIndex, tag.Length))
	assert.Equal(t, "https://bsky.app/profile/did:plc:bob", tag.URL)
}

func TestNormalize_LinkFacet(t *testing.T) {
	raw := `{"feed": [{"post": {
		"uri": "at://did:plc:abc/app.bsky.feed.post/1",
		"author": {"did": "did:plc:abc", "handle": "alice.bsky.social"},
		"record": {
			"text": "check http://x.co/1 out",
			"createdAt": "2023-07-01T10:00:00Z",
			"facets": [{
				"index": {"byteStart": 6, "byteEnd": 19},
				"features": [{"$type": "app.bsky.richtext.facet#link", "uri": "http://x.co/1"}]
			}]
		}
	}}]}`
	b := New()
	activities, err := b.Normalize([]byte(raw))
	require.NoError(t, err)

	tags := activities[0].Object.Tags
	require.Len(t, tags, 1)
	assert.Equal(t, as1.TypeArticle, tags[0].ObjectType)
	assert.Equal(t, 6, tags[0].StartIndex)
	assert.Equal(t, 13, tags[0].Length)
	assert.Equal(t, "http://x.co/1", tags[0].URL)
}

func TestNormalize_ReplyAndImages(t *testing.T) {
	raw := `{"feed": [{"post": {
		"uri": "at://did:plc:abc/app.bsky.feed.post/2",
		"author": {"did": "did:plc:abc", "handle": "alice.bsky.social"},
		"record": {
			"text": "same here",
			"createdAt": "2023-07-01T10:00:00Z",
			"reply": {"parent": {"uri": "at://did:plc:bob/app.bsky.feed.post/9"}}
		},
		"embed": {
			"$type": "app.bsky.embed.images#view",
			"images": [{"fullsize": "https://example.com/full.jpg", "thumb": "https://example.com/t.jpg", "alt": "a dog"}]
		}
	}}]}`
	b := New()
	activities, err := b.Normalize([]byte(raw))
	require.NoError(t, err)

	obj := activities[0].Object
	require.Len(t, obj.InReplyTo, 1)
	assert.Equal(t, "tag:bsky.app:at://did:plc:bob/app.bsky.feed.post/9", obj.InReplyTo[0].ID)
	require.Len(t, obj.Attachments, 1)
	assert.Equal(t, "a dog", obj.Attachments[0].Image.DisplayName)
}

func TestNormalize_BadFacetSkipsPost(t *testing.T) {
	raw := `{"feed": [
		{"post": {
			"uri": "at://did:plc:abc/app.bsky.feed.post/3",
			"author": {"did": "did:plc:abc", "handle": "a.bsky.social"},
			"record": {
				"text": "short",
				"createdAt": "2023-07-01T10:00:00Z",
				"facets": [{"index": {"byteStart": 2, "byteEnd": 99}, "features": [{"$type": "app.bsky.richtext.facet#tag", "tag": "x"}]}]
			}
		}},
		{"post": {
			"uri": "at://did:plc:abc/app.bsky.feed.post/4",
			"author": {"did": "did:plc:abc", "handle": "a.bsky.social"},
			"record": {"text": "fine", "createdAt": "2023-07-01T10:00:00Z"}
		}}
	]}`
	b := New()
	activities, err := b.Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "tag:bsky.app:at://did:plc:abc/app.bsky.feed.post/4", activities[0].ID)
}

func TestNormalize_APIErrors(t *testing.T) {
	b := New()

	_, err := b.Normalize([]byte(`{"error": "ExpiredToken", "message": "Token has expired"}`))
	assert.Equal(t, source.KindAuth, source.KindOf(err))

	_, err = b.Normalize([]byte(`{"error": "RateLimitExceeded", "message": "Rate limit exceeded"}`))
	assert.Equal(t, source.KindRateLimit, source.KindOf(err))
}

func TestNormalizeActor(t *testing.T) {
	raw := `{
		"did": "did:plc:abc",
		"handle": "alice.bsky.social",
		"displayName": "Alice",
		"description": "gopher",
		"avatar": "https://example.com/alice.jpg"
	}`
	b := New()
	actor, err := b.NormalizeActor([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "tag:bsky.app:did:plc:abc", actor.ID)
	assert.Equal(t, "https://bsky.app/profile/alice.bsky.social", actor.URL)
	assert.Equal(t, "gopher", actor.Description)
}

func TestDenormalize(t *testing.T) {
	b := New()
	act := as1.Activity{
		Verb:      as1.VerbPost,
		Published: "2023-07-01T10:00:00Z",
		Object: &as1.Object{
			ObjectType: as1.TypeComment,
			Content:    "same here",
			InReplyTo:  []as1.Ref{{ID: "tag:bsky.app:at://did:plc:bob/app.bsky.feed.post/9"}},
		},
	}
	out, err := b.Denormalize(act)
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(out, &rec))
	assert.Equal(t, "app.bsky.feed.post", rec["$type"])
	assert.Equal(t, "same here", rec["text"])
	assert.Equal(t, "2023-07-01T10:00:00Z", rec["createdAt"])
	reply, ok := rec["reply"].(map[string]any)
	require.True(t, ok)
	parent, ok := reply["parent"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, "at://did:plc:bob/app.bsky.feed.post/9", parent["uri"])

	_, err = b.Denormalize(as1.Activity{Verb: as1.VerbLike})
	assert.True(t, source.IsUnsupported(err))
}

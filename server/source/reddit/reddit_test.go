package reddit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
)

const listingJSON = `{
	"kind": "Listing",
	"data": {
		"children": [
			{
				"kind": "t3",
				"data": {
					"id": "abc",
					"title": "a link for you",
					"selftext": "check http://x.co/1 out",
					"permalink": "/r/golang/comments/abc/a_link_for_you/",
					"created_utc": 1672531200,
					"author": "alice",
					"is_self": true
				}
			},
			{
				"kind": "t1",
				"data": {
					"id": "def",
					"body": "agreed",
					"permalink": "/r/golang/comments/abc/a_link_for_you/def/",
					"created_utc": 1672534800,
					"author": "alice",
					"parent_id": "t3_abc",
					"link_id": "t3_abc"
				}
			}
		]
	}
}`

func TestNormalize(t *testing.T) {
	rd := New()
	activities, err := rd.Normalize([]byte(listingJSON))
	require.NoError(t, err)
	require.Len(t, activities, 2)

	post := activities[0]
	assert.Equal(t, as1.VerbPost, post.Verb)
	assert.Equal(t, "tag:reddit.com:abc", post.ID)
	assert.Equal(t, "https://reddit.com/r/golang/comments/abc/a_link_for_you/", post.URL)
	assert.Equal(t, "2023-01-01T00:00:00Z", post.Published)
	assert.Equal(t, "a link for you", post.Object.DisplayName)
	assert.Equal(t, as1.TypeNote, post.Object.ObjectType)

	comment := activities[1]
	assert.Equal(t, as1.TypeComment, comment.Object.ObjectType)
	require.Len(t, comment.Object.InReplyTo, 1)
	assert.Equal(t, "tag:reddit.com:abc", comment.Object.InReplyTo[0].ID)
}

func TestNormalize_LinkTagOffsets(t *testing.T) {
	rd := New()
	activities, err := rd.Normalize([]byte(listingJSON))
	require.NoError(t, err)

	tags := activities[0].Object.Tags
	require.Len(t, tags, 1)
	assert.Equal(t, as1.TypeArticle, tags[0].ObjectType)
	assert.Equal(t, "http://x.co/1", tags[0].URL)
	assert.Equal(t, 6, tags[0].StartIndex)
	assert.Equal(t, 13, tags[0].Length)
	content := activities[0].Object.Content
	assert.Equal(t, "http://x.co/1", as1.CodepointSlice(content, tags[0].StartIndex, tags[0].Length))
}

func TestNormalize_LinkPostBecomesBookmark(t *testing.T) {
	raw := `{"kind": "Listing", "data": {"children": [{
		"kind": "t3",
		"data": {
			"id": "xyz",
			"title": "neat article",
			"permalink": "/r/golang/comments/xyz/neat_article/",
			"url": "https://blog.example/neat",
			"created_utc": 1672531200,
			"author": "bob",
			"is_self": false
		}
	}]}}`
	rd := New()
	activities, err := rd.Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, activities, 1)

	obj := activities[0].Object
	assert.Equal(t, as1.TypeBookmark, obj.ObjectType)
	require.Len(t, obj.Attachments, 1)
	assert.Equal(t, as1.TypeArticle, obj.Attachments[0].ObjectType)
	assert.Equal(t, "https://blog.example/neat", obj.Attachments[0].URL)
}

func TestNormalize_SkipsMalformedThings(t *testing.T) {
	raw := `{"kind": "Listing", "data": {"children": [
		{"kind": "t3", "data": {"id": "ok", "author": "a", "created_utc": 1}},
		{"kind": "t3", "data": {"author": "a"}},
		{"kind": "t9", "data": {"id": "weird"}}
	]}}`
	rd := New()
	activities, err := rd.Normalize([]byte(raw))
	require.NoError(t, err)
	require.Len(t, activities, 1)
	assert.Equal(t, "tag:reddit.com:ok", activities[0].ID)
}

func TestNormalize_APIErrors(t *testing.T) {
	rd := New()

	_, err := rd.Normalize([]byte(`{"error": 401, "message": "Unauthorized"}`))
	assert.Equal(t, source.KindAuth, source.KindOf(err))

	_, err = rd.Normalize([]byte(`{"error": 404, "message": "Not Found"}`))
	assert.Equal(t, source.KindNotFound, source.KindOf(err))

	_, err = rd.Normalize([]byte(`{"error": 429, "message": "Too Many Requests"}`))
	assert.Equal(t, source.KindRateLimit, source.KindOf(err))
}

func TestNormalizeActor(t *testing.T) {
	raw := `{"kind": "t2", "data": {
		"id": "u1",
		"name": "alice",
		"icon_img": "https://example.com/alice.png",
		"subreddit": {"url": "/user/alice/", "public_description": "gopher"}
	}}`
	rd := New()
	actor, err := rd.NormalizeActor([]byte(raw))
	require.NoError(t, err)
	assert.Equal(t, "tag:reddit.com:alice", actor.ID)
	assert.Equal(t, "https://reddit.com/user/alice/", actor.URL)
	assert.Equal(t, "gopher", actor.Description)
	require.NotNil(t, actor.Image)
}

func TestAuthorActorCached(t *testing.T) {
	rd := New()

	a := rd.authorActor("alice")
	b := rd.authorActor("alice")
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, *a, *b)
	assert.NotSame(t, a, b, "cache entries are copied out")

	// a richer profile normalization refreshes the cached entry
	_, err := rd.NormalizeActor([]byte(`{"name": "alice", "icon_img": "https://example.com/a.png"}`))
	require.NoError(t, err)
	c := rd.authorActor("alice")
	require.NotNil(t, c.Image)

	assert.Nil(t, rd.authorActor("[deleted]"))
}

func TestDenormalizeUnsupported(t *testing.T) {
	rd := New()
	_, err := rd.Denormalize(as1.Activity{Verb: as1.VerbPost})
	assert.True(t, source.IsUnsupported(err))
}

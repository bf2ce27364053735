package rss

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sarajaksa/granary/server/as1"
)

const feedXML = `<?xml version="1.0"?>
<rss version="2.0" xmlns:content="http://purl.org/rss/1.0/modules/content/">
<channel>
  <title>example blog</title>
  <link>https://example.com/</link>
  <description>posts</description>
  <item>
    <title>First Post</title>
    <link>https://example.com/1</link>
    <guid>tag:example.com:1</guid>
    <pubDate>Sun, 01 Jan 2023 00:00:00 +0000</pubDate>
    <author>alice@example.com (Alice)</author>
    <category>golang</category>
    <description>short</description>
    <content:encoded><![CDATA[<p>long body</p>]]></content:encoded>
    <enclosure url="https://example.com/p.jpg" type="image/jpeg" length="123"/>
  </item>
  <item>
    <link>https://example.com/2</link>
    <description>just a note</description>
  </item>
</channel>
</rss>`

func TestDecode(t *testing.T) {
	activities, err := Decode([]byte(feedXML))
	require.NoError(t, err)
	require.Len(t, activities, 2)

	first := activities[0]
	assert.Equal(t, as1.VerbPost, first.Verb)
	assert.Equal(t, "tag:example.com:1", first.ID)
	assert.Equal(t, "https://example.com/1", first.URL)
	assert.Equal(t, "2023-01-01T00:00:00Z", first.Published)
	assert.Equal(t, as1.TypeArticle, first.Object.ObjectType)
	assert.Equal(t, "First Post", first.Object.DisplayName)
	assert.Equal(t, "<p>long body</p>", first.Object.Content)
	require.NotNil(t, first.Actor)
	assert.Equal(t, "Alice", first.Actor.DisplayName)

	require.Len(t, first.Object.Tags, 1)
	assert.Equal(t, as1.TypeHashtag, first.Object.Tags[0].ObjectType)
	assert.Equal(t, "golang", first.Object.Tags[0].DisplayName)

	require.Len(t, first.Object.Attachments, 1)
	att := first.Object.Attachments[0]
	assert.Equal(t, as1.TypeImage, att.ObjectType)
	assert.Equal(t, "https://example.com/p.jpg", att.Image.URL)

	second := activities[1]
	assert.Equal(t, "https://example.com/2", second.ID)
	assert.Equal(t, as1.TypeNote, second.Object.ObjectType)
	assert.Equal(t, "just a note", second.Object.Content)
}

func TestDecode_Unparseable(t *testing.T) {
	_, err := Decode([]byte("this is not a feed"))
	require.Error(t, err)
}

func TestEncodeFeed(t *testing.T) {
	act := as1.Activity{
		Verb:      as1.VerbPost,
		ID:        "tag:example.com:1",
		URL:       "https://example.com/1",
		Published: "2023-01-01T00:00:00Z",
		Object: &as1.Object{
			ID:          "tag:example.com:1",
			ObjectType:  as1.TypeNote,
			DisplayName: "First Post",
			Content:     "héllo @bob",
			URL:         "https://example.com/1",
			Author:      &as1.Actor{DisplayName: "Alice"},
			Tags: []as1.Tag{{
				ObjectType: as1.TypeMention,
				URL:        "https://example.com/bob",
				StartIndex: 6,
				Length:     4,
			}},
			Attachments: []*as1.Object{{
				ObjectType: as1.TypePhoto,
				Image:      &as1.Image{URL: "https://example.com/p.jpg"},
			}},
		},
	}
	env := as1.NewEnvelope([]as1.Activity{act}, 0, -1)
	out, err := EncodeFeed(env, "example blog", "https://example.com/", "posts", nil)
	require.NoError(t, err)

	s := string(out)
	assert.Contains(t, s, "<title>example blog</title>")
	assert.Contains(t, s, "<guid>tag:example.com:1</guid>")
	assert.Contains(t, s, "Sun, 01 Jan 2023 00:00:00 +0000")
	assert.Contains(t, s, `url="https://example.com/p.jpg"`)
	// offset tags render as inline anchors in the content body
	assert.Contains(t, s, `<a class="mention" href="https://example.com/bob">@bob</a>`)
}

func TestEncodeDecodeRoundTrip(t *testing.T) {
	act := as1.Activity{
		Verb:      as1.VerbPost,
		ID:        "tag:example.com:1",
		URL:       "https://example.com/1",
		Published: "2023-01-01T00:00:00Z",
		Actor:     &as1.Actor{DisplayName: "Alice"},
		Object: &as1.Object{
			ID:          "tag:example.com:1",
			ObjectType:  as1.TypeArticle,
			DisplayName: "First Post",
			Content:     "plain words",
			URL:         "https://example.com/1",
		},
	}
	env := as1.NewEnvelope([]as1.Activity{act}, 0, -1)
	out, err := EncodeFeed(env, "example blog", "https://example.com/", "posts", nil)
	require.NoError(t, err)

	got, err := Decode(out)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tag:example.com:1", got[0].ID)
	assert.Equal(t, "https://example.com/1", got[0].URL)
	assert.Equal(t, "2023-01-01T00:00:00Z", got[0].Published)
	assert.Equal(t, "First Post", got[0].Object.DisplayName)
	assert.Equal(t, "plain words", got[0].Object.Content)
	require.NotNil(t, got[0].Actor)
	assert.Equal(t, "Alice", got[0].Actor.DisplayName)
}

func TestEncodeFeed_TitleFallback(t *testing.T) {
	long := strings.Repeat("a", 150)
	act := as1.Activity{
		Verb:   as1.VerbPost,
		ID:     "tag:example.com:2",
		Object: &as1.Object{ID: "tag:example.com:2", Content: long, URL: "https://example.com/2"},
	}
	env := as1.NewEnvelope([]as1.Activity{act}, 0, -1)
	out, err := EncodeFeed(env, "t", "https://example.com/", "d", nil)
	require.NoError(t, err)
	assert.Contains(t, string(out), "<title>"+strings.Repeat("a", 100)+"</title>")
}

func TestEncodeFeed_NoObject(t *testing.T) {
	env := as1.NewEnvelope([]as1.Activity{{Verb: as1.VerbPost, ID: "x"}}, 0, -1)
	_, err := EncodeFeed(env, "t", "https://example.com/", "d", nil)
	require.Error(t, err)
}

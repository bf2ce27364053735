package as1

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestActivityValidate(t *testing.T) {
	act := Activity{
		Verb: VerbPost,
		Object: &Object{
			ObjectType: TypeNote,
			Content:    "check http://x.co/1 out",
			Tags: []Tag{
				{ObjectType: TypeArticle, URL: "http://x.co/1", StartIndex: 6, Length: 14},
			},
		},
	}
	assert.NoError(t, act.Validate())

	act.Object.Tags[0].Length = 30
	assert.Error(t, act.Validate())

	act.Object.Tags[0].Length = 14
	act.Object.Tags[0].StartIndex = -1
	assert.Error(t, act.Validate())
}

func TestActivityValidate_Verb(t *testing.T) {
	act := Activity{}
	assert.Error(t, act.Validate())

	act.Verb = Verb("explode")
	assert.Error(t, act.Validate())

	act.Verb = VerbLike
	assert.NoError(t, act.Validate())
}

func TestActivityValidate_NestedAttachment(t *testing.T) {
	act := Activity{
		Verb: VerbPost,
		Object: &Object{
			Attachments: []*Object{
				{
					Content: "hi",
					Tags:    []Tag{{StartIndex: 0, Length: 10}},
				},
			},
		},
	}
	assert.Error(t, act.Validate())
}

func TestTagJSONOmitsZeroOffsets(t *testing.T) {
	b, err := json.Marshal(Tag{ObjectType: TypeHashtag, DisplayName: "go"})
	require.NoError(t, err)
	assert.NotContains(t, string(b), "startIndex")
	assert.NotContains(t, string(b), "length")

	b, err = json.Marshal(Tag{ObjectType: TypeMention, StartIndex: 3, Length: 4})
	require.NoError(t, err)
	assert.Contains(t, string(b), `"startIndex":3`)
	assert.Contains(t, string(b), `"length":4`)
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(nil, 0, -1)
	assert.NotNil(t, env.Items)
	assert.Equal(t, 0, env.ItemsPerPage)
	assert.Equal(t, 0, env.TotalResults)

	items := []Activity{{Verb: VerbPost}, {Verb: VerbPost}}
	env = NewEnvelope(items, 10, -1)
	assert.Equal(t, 10, env.StartIndex)
	assert.Equal(t, 2, env.ItemsPerPage)
	assert.Equal(t, 2, env.TotalResults, "unreported total falls back to page length")
	assert.Len(t, env.Items, env.ItemsPerPage)

	env = NewEnvelope(items, 0, 50)
	assert.Equal(t, 50, env.TotalResults)
}

func TestTimestampAndFormatTime(t *testing.T) {
	act := Activity{Published: "2023-04-01T10:30:00Z"}
	ts := act.Timestamp()
	assert.Equal(t, 2023, ts.Year())
	assert.Equal(t, time.April, ts.Month())

	assert.Equal(t, "", FormatTime(time.Time{}))
	assert.Equal(t, "2023-04-01T10:30:00Z", FormatTime(ts))

	empty := Activity{}
	assert.True(t, empty.Timestamp().IsZero())
	mangled := Activity{Published: "yesterday"}
	assert.True(t, mangled.Timestamp().IsZero())
}

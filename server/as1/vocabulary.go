package as1

// ActivityStreams 1 vocabulary
// http://activitystrea.ms/specs/json/1.0/
// http://activitystrea.ms/specs/json/schema/activity-schema.html

const (
	// JSON content type for canonical envelopes
	ContentType = "application/json; charset=utf-8"

	// ActivityStreams verb schema prefix, used by the Atom codec
	SchemaPrefix = "http://activitystrea.ms/schema/1.0/"

	// canonical timestamp format, RFC 3339 in UTC
	TimeFormat = "2006-01-02T15:04:05Z"
)

// Verb identifies what an activity did.
type Verb string

const (
	VerbPost      Verb = "post"
	VerbShare     Verb = "share"
	VerbLike      Verb = "like"
	VerbFollow    Verb = "follow"
	VerbTag       Verb = "tag"
	VerbUpdate    Verb = "update"
	VerbDelete    Verb = "delete"
	VerbRSVPYes   Verb = "rsvp-yes"
	VerbRSVPNo    Verb = "rsvp-no"
	VerbRSVPMaybe Verb = "rsvp-maybe"
)

func (v Verb) IsValid() bool {
	switch v {
	case VerbPost, VerbShare, VerbLike, VerbFollow, VerbTag, VerbUpdate,
		VerbDelete, VerbRSVPYes, VerbRSVPNo, VerbRSVPMaybe:
		return true
	}
	return false
}

// ObjectType classifies objects and tags.
type ObjectType string

const (
	TypeActivity ObjectType = "activity"
	TypeArticle  ObjectType = "article"
	TypeAudio    ObjectType = "audio"
	TypeBookmark ObjectType = "bookmark"
	TypeComment  ObjectType = "comment"
	TypeEvent    ObjectType = "event"
	TypeHashtag  ObjectType = "hashtag"
	TypeImage    ObjectType = "image"
	TypeMention  ObjectType = "mention"
	TypeNote     ObjectType = "note"
	TypePerson   ObjectType = "person"
	TypePhoto    ObjectType = "photo"
	TypePlace    ObjectType = "place"
	TypeVideo    ObjectType = "video"
)

func (o ObjectType) IsValid() bool {
	switch o {
	case TypeActivity, TypeArticle, TypeAudio, TypeBookmark, TypeComment,
		TypeEvent, TypeHashtag, TypeImage, TypeMention, TypeNote,
		TypePerson, TypePhoto, TypePlace, TypeVideo:
		return true
	}
	return false
}

// Package instagram maps Instagram API media payloads to the canonical
// model. Instagram's API doesn't say whether an account is private, so
// normalized objects carry no audience information.
package instagram

import (
	"bytes"
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

const (
	Domain  = "instagram.com"
	BaseURL = "https://www.instagram.com/"
)

// mentions in captions, eg @snarfed
var mentionRE = regexp.MustCompile(`@([A-Za-z0-9._]+)`)

// maps Instagram media type to canonical objectType
var objectTypes = map[string]as1.ObjectType{
	"image": as1.TypePhoto,
	"video": as1.TypeVideo,
}

// raw API shapes
// http://instagram.com/developer/endpoints/media/#get_media

type payload struct {
	Meta *meta           `json:"meta"`
	Data json.RawMessage `json:"data"`
}

type meta struct {
	Code         int    `json:"code"`
	ErrorType    string `json:"error_type"`
	ErrorMessage string `json:"error_message"`
}

type media struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	Code        string `json:"code"`
	Shortcode   string `json:"shortcode"`
	Link        string `json:"link"`
	CreatedTime string `json:"created_time"`
	Caption     *struct {
		Text string `json:"text"`
	} `json:"caption"`
	User     user                 `json:"user"`
	Images   map[string]mediaSize `json:"images"`
	Videos   map[string]mediaSize `json:"videos"`
	Tags     []string             `json:"tags"`
	Comments struct {
		Count int       `json:"count"`
		Data  []comment `json:"data"`
	} `json:"comments"`
	Location *location `json:"location"`
}

type mediaSize struct {
	URL    string `json:"url"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type user struct {
	ID             string `json:"id"`
	Username       string `json:"username"`
	FullName       string `json:"full_name"`
	ProfilePicture string `json:"profile_picture"`
	Bio            string `json:"bio"`
	Website        string `json:"website"`
}

type comment struct {
	ID          string `json:"id"`
	Text        string `json:"text"`
	CreatedTime string `json:"created_time"`
	From        user   `json:"from"`
}

type location struct {
	ID   json.Number `json:"id"`
	Name string      `json:"name"`
	Point *struct {
		Latitude  float64 `json:"latitude"`
		Longitude float64 `json:"longitude"`
	} `json:"point"`
	StreetAddress string `json:"street_address"`
}

type Instagram struct{}

func New() *Instagram {
	return &Instagram{}
}

func (ig *Instagram) Name() string {
	return "instagram"
}

func (ig *Instagram) Domain() string {
	return Domain
}

// Instagram only supports search over hashtags. The API has no usable
// paging params, so pages are sliced client-side.
func (ig *Instagram) Capabilities() source.Capabilities {
	return source.NewCapabilities(source.CapabilitySearch, source.CapabilityWrite)
}

// Normalize converts an API media list or single media response to
// activities, in API order. Malformed media entries are skipped.
func (ig *Instagram) Normalize(raw []byte) ([]as1.Activity, error) {
	var p payload
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, source.NewFormatError("instagram: unparseable payload", err)
	}
	if err := checkMeta(p.Meta); err != nil {
		return nil, err
	}

	items := make([]media, 0)
	data := bytes.TrimLeft(p.Data, " \t\r\n")
	if len(data) > 0 && data[0] == '[' {
		if err := json.Unmarshal(data, &items); err != nil {
			return nil, source.NewFormatError("instagram: unparseable media list", err)
		}
	} else if len(data) > 0 {
		var m media
		if err := json.Unmarshal(data, &m); err != nil {
			return nil, source.NewFormatError("instagram: unparseable media object", err)
		}
		items = append(items, m)
	}

	activities := make([]as1.Activity, 0, len(items))
	failed := 0
	for _, m := range items {
		act, err := ig.mediaToActivity(m)
		if err != nil {
			failed++
			telemetry.Warn("instagram: skipping media [%s]: %s", m.ID, err)
			telemetry.Increment("normalize_skipped", 1)
			continue
		}
		activities = append(activities, act)
	}
	if failed > 0 && len(activities) == 0 {
		return nil, source.NewFormatError(
			fmt.Sprintf("instagram: all %d media entries were malformed", failed), nil)
	}
	return activities, nil
}

func checkMeta(m *meta) error {
	if m == nil {
		return nil
	}
	switch m.ErrorType {
	case "":
		return nil
	case "OAuthAccessTokenException", "OAuthParameterException":
		return source.NewAuthError("instagram: " + m.ErrorMessage)
	case "OAuthRateLimitException":
		return source.NewRateLimitError("instagram: "+m.ErrorMessage, 0)
	case "APINotFoundError":
		return source.NewNotFoundError("instagram: " + m.ErrorMessage)
	default:
		return source.NewFormatError("instagram: API error "+m.ErrorType+": "+m.ErrorMessage, nil)
	}
}

func (ig *Instagram) mediaToActivity(m media) (as1.Activity, error) {
	obj, err := ig.mediaToObject(m)
	if err != nil {
		return as1.Activity{}, err
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

func (ig *Instagram) mediaToObject(m media) (*as1.Object, error) {
	if m.ID == "" {
		return nil, fmt.Errorf("media has no id")
	}
	content := ""
	if m.Caption != nil {
		content = m.Caption.Text
	}
	actor := userToActor(m.User)

	obj := &as1.Object{
		ID:         source.TagURI(Domain, m.ID),
		ObjectType: objectTypes[m.Type],
		Content:    content,
		URL:        m.Link,
		Published:  timestampToRFC3339(m.CreatedTime),
		Author:     &actor,
		Image:      bestSize(m.Images),
		Stream:     bestSize(m.Videos),
	}
	if obj.ObjectType == "" {
		obj.ObjectType = as1.TypePhoto
	}

	// one attachment per media, image or video
	attType := as1.TypeImage
	if len(m.Videos) > 0 {
		attType = as1.TypeVideo
	}
	obj.Attachments = []*as1.Object{{
		ObjectType: attType,
		URL:        m.Link,
		Image:      bestSize(m.Images),
		Stream:     bestSize(m.Videos),
	}}

	for _, tag := range m.Tags {
		obj.Tags = append(obj.Tags, as1.Tag{
			ObjectType:  as1.TypeHashtag,
			ID:          source.TagURI(Domain, tag),
			DisplayName: tag,
		})
	}
	obj.Tags = append(obj.Tags, mentionTags(content)...)
	as1.SortTags(obj.Tags)

	if m.Location != nil {
		loc := &as1.Location{
			ID:          source.TagURI(Domain, m.Location.ID.String()),
			DisplayName: m.Location.Name,
		}
		if m.Location.Point != nil {
			loc.Latitude = m.Location.Point.Latitude
			loc.Longitude = m.Location.Point.Longitude
		}
		if id := m.Location.ID.String(); id != "" {
			loc.URL = fmt.Sprintf("https://instagram.com/explore/locations/%s/", id)
		}
		obj.Location = loc
	}

	return obj, nil
}

// mentionTags extracts @-mentions from a caption. Go regexp match positions
// are byte offsets; canonical tags want codepoints, so re-index.
func mentionTags(content string) []as1.Tag {
	var tags []as1.Tag
	for _, m := range mentionRE.FindAllStringSubmatchIndex(content, -1) {
		username := content[m[2]:m[3]]
		tag := as1.Tag{
			ObjectType:  as1.TypeMention,
			ID:          source.TagURI(Domain, username),
			DisplayName: "@" + username,
			URL:         BaseURL + username + "/",
		}
		as1.ReindexBytes(&tag, content, m[0], m[1])
		tags = append(tags, tag)
	}
	return tags
}

// CommentToObject converts one API comment on a media to a canonical object.
func (ig *Instagram) CommentToObject(raw []byte, mediaID, mediaURL string) (*as1.Object, error) {
	var c comment
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, source.NewFormatError("instagram: unparseable comment", err)
	}
	return ig.commentToObject(c, mediaID, mediaURL), nil
}

func (ig *Instagram) commentToObject(c comment, mediaID, mediaURL string) *as1.Object {
	actor := userToActor(c.From)
	obj := &as1.Object{
		ID:         source.TagURI(Domain, c.ID),
		ObjectType: as1.TypeComment,
		Content:    c.Text,
		Published:  timestampToRFC3339(c.CreatedTime),
		Author:     &actor,
		InReplyTo:  []as1.Ref{{ID: source.TagURI(Domain, mediaID)}},
		Tags:       mentionTags(c.Text),
	}
	if mediaURL != "" {
		obj.URL = fmt.Sprintf("%s#comment-%s", mediaURL, c.ID)
	}
	return obj
}

func (ig *Instagram) NormalizeActor(raw []byte) (as1.Actor, error) {
	var p struct {
		Meta *meta `json:"meta"`
		Data user  `json:"data"`
	}
	if err := json.Unmarshal(raw, &p); err != nil {
		return as1.Actor{}, source.NewFormatError("instagram: unparseable user payload", err)
	}
	if err := checkMeta(p.Meta); err != nil {
		return as1.Actor{}, err
	}
	if p.Data.ID == "" && p.Data.Username == "" {
		return as1.Actor{}, source.NewFormatError("instagram: user has no id or username", nil)
	}
	return userToActor(p.Data), nil
}

func userToActor(u user) as1.Actor {
	id := u.ID
	if id == "" {
		id = u.Username
	}
	actor := as1.Actor{
		ID:          source.TagURI(Domain, id),
		Username:    u.Username,
		DisplayName: u.FullName,
		Description: u.Bio,
	}
	if actor.DisplayName == "" {
		actor.DisplayName = u.Username
	}
	if u.Username != "" {
		actor.URL = BaseURL + u.Username + "/"
	}
	if u.ProfilePicture != "" {
		actor.Image = &as1.Image{URL: u.ProfilePicture}
	}
	return actor
}

// Denormalize produces the native request shape for the write operations
// Instagram supports: comments and likes on an existing media.
func (ig *Instagram) Denormalize(act as1.Activity) ([]byte, error) {
	switch {
	case act.Verb == as1.VerbPost && act.Object != nil && act.Object.ObjectType == as1.TypeComment:
		mediaID := replyTargetID(act.Object)
		if mediaID == "" {
			return nil, source.NewUnsupportedError("instagram: comment has no media to reply to")
		}
		return json.Marshal(map[string]string{
			"media_id": mediaID,
			"text":     act.Object.Content,
		})
	case act.Verb == as1.VerbLike:
		if act.Object == nil || (act.Object.ID == "" && act.Object.URL == "") {
			return nil, source.NewUnsupportedError("instagram: like has no media target")
		}
		id := act.Object.ID
		if id == "" {
			id = act.Object.URL
		}
		return json.Marshal(map[string]string{"media_id": localID(id)})
	}
	return nil, source.NewUnsupportedError(
		"instagram: only comments and likes can be published, not " + string(act.Verb))
}

func replyTargetID(obj *as1.Object) string {
	for _, ref := range obj.InReplyTo {
		if ref.ID != "" {
			return localID(ref.ID)
		}
	}
	return ""
}

func localID(id string) string {
	if local, ok := source.ParseTagURI(id); ok {
		return local
	}
	return id
}

// bestSize picks the largest rendition, matching the API's
// standard_resolution preference.
func bestSize(sizes map[string]mediaSize) *as1.Image {
	if len(sizes) == 0 {
		return nil
	}
	all := make([]mediaSize, 0, len(sizes))
	for _, s := range sizes {
		all = append(all, s)
	}
	sort.Slice(all, func(i, j int) bool { return all[i].Width > all[j].Width })
	if all[0].URL == "" {
		return nil
	}
	return &as1.Image{URL: all[0].URL}
}

// Instagram reports unix seconds as a string.
func timestampToRFC3339(ts string) string {
	secs, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return ""
	}
	return as1.FormatTime(time.Unix(secs, 0))
}

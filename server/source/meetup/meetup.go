// Package meetup publishes RSVPs to Meetup.com events. Meetup's API only
// accepts event responses, so this source is write-only: reading activity
// streams is not supported.
package meetup

import (
	"encoding/json"
	"fmt"
	"regexp"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
)

const Domain = "meetup.com"

// eventURLRE extracts the group urlname and event id from an event page URL
// like https://www.meetup.com/gophers/events/123456789/
var eventURLRE = regexp.MustCompile(`^https?://(?:www\.)?meetup\.com/([^/]+)/events/([^/]+)/?$`)

type member struct {
	ID    json.Number `json:"id"`
	Name  string      `json:"name"`
	Bio   string      `json:"bio"`
	Link  string      `json:"link"`
	Photo *struct {
		PhotoLink string `json:"photo_link"`
		ThumbLink string `json:"thumb_link"`
	} `json:"photo"`
}

type Meetup struct {
	source.NoCapabilities
}

func New() *Meetup {
	return &Meetup{}
}

func (m *Meetup) Name() string {
	return "meetup"
}

func (m *Meetup) Domain() string {
	return Domain
}

func (m *Meetup) Capabilities() source.Capabilities {
	return source.NewCapabilities(source.CapabilityWrite)
}

// NormalizeActor converts a GET /2/member payload.
func (m *Meetup) NormalizeActor(raw []byte) (as1.Actor, error) {
	var mem member
	if err := json.Unmarshal(raw, &mem); err != nil {
		return as1.Actor{}, source.NewFormatError("meetup: unparseable member payload", err)
	}
	if mem.ID.String() == "" {
		return as1.Actor{}, source.NewFormatError("meetup: member has no id", nil)
	}
	actor := as1.Actor{
		ID:          source.TagURI(Domain, mem.ID.String()),
		DisplayName: mem.Name,
		Description: mem.Bio,
		URL:         mem.Link,
	}
	if actor.URL == "" {
		actor.URL = "https://www.meetup.com/members/" + mem.ID.String() + "/"
	}
	if mem.Photo != nil {
		link := mem.Photo.PhotoLink
		if link == "" {
			link = mem.Photo.ThumbLink
		}
		if link != "" {
			actor.Image = &as1.Image{URL: link}
		}
	}
	return actor, nil
}

// Denormalize turns an RSVP activity into the POST /:urlname/events/:id/rsvps
// request body. The event is identified by the activity object's URL, which
// must be a meetup.com event page.
func (m *Meetup) Denormalize(act as1.Activity) ([]byte, error) {
	var response string
	switch act.Verb {
	case as1.VerbRSVPYes:
		response = "yes"
	case as1.VerbRSVPNo:
		response = "no"
	case as1.VerbRSVPMaybe:
		return nil, source.NewUnsupportedError("meetup: the API does not accept maybe RSVPs")
	default:
		return nil, source.NewUnsupportedError("meetup: cannot publish verb " + string(act.Verb))
	}

	eventURL := eventObjectURL(act)
	if eventURL == "" {
		return nil, source.NewUnsupportedError("meetup: RSVP has no event URL")
	}
	match := eventURLRE.FindStringSubmatch(eventURL)
	if match == nil {
		return nil, source.NewUnsupportedError(
			fmt.Sprintf("meetup: %q is not a meetup.com event URL", eventURL))
	}

	return json.Marshal(map[string]string{
		"urlname":  match[1],
		"event_id": match[2],
		"response": response,
	})
}

func eventObjectURL(act as1.Activity) string {
	if act.Object == nil {
		return ""
	}
	if act.Object.URL != "" {
		return act.Object.URL
	}
	for _, ref := range act.Object.InReplyTo {
		if ref.URL != "" {
			return ref.URL
		}
	}
	return ""
}

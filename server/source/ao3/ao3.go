// Package ao3 scrapes Archive of Our Own work listings. AO3 has no API, so
// this source normalizes the HTML of a works index page (a user's works, a
// tag listing, search results) into article activities.
package ao3

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

const (
	Domain  = "archiveofourown.org"
	BaseURL = "https://" + Domain
)

// listing pages render dates like "02 Jan 2006"
const dateLayout = "02 Jan 2006"

type AO3 struct {
	source.NoCapabilities
}

func New() *AO3 {
	return &AO3{}
}

func (a *AO3) Name() string {
	return "ao3"
}

func (a *AO3) Domain() string {
	return Domain
}

func (a *AO3) Capabilities() source.Capabilities {
	return source.NewCapabilities(source.CapabilityPaging)
}

// Normalize scrapes the work blurbs out of a listing page. Each blurb
// becomes one article activity; blurbs missing an id or title are skipped.
func (a *AO3) Normalize(payload []byte) ([]as1.Activity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return nil, source.NewFormatError("ao3: unparseable HTML", err)
	}

	blurbs := doc.Find("li.work.blurb")
	if blurbs.Length() == 0 {
		if doc.Find("ol.work.index, ol.pagination, div#main").Length() == 0 {
			return nil, source.NewFormatError("ao3: page is not a works listing", nil)
		}
		return []as1.Activity{}, nil
	}

	activities := make([]as1.Activity, 0, blurbs.Length())
	failed := 0
	blurbs.Each(func(_ int, sel *goquery.Selection) {
		act, err := blurbToActivity(sel)
		if err != nil {
			failed++
			telemetry.Warn("ao3: skipping work blurb: %s", err)
			telemetry.Increment("normalize_skipped", 1)
			return
		}
		activities = append(activities, act)
	})
	if failed > 0 && len(activities) == 0 {
		return nil, source.NewFormatError(
			fmt.Sprintf("ao3: all %d work blurbs were malformed", failed), nil)
	}
	return activities, nil
}

func blurbToActivity(sel *goquery.Selection) (as1.Activity, error) {
	domID, ok := sel.Attr("id")
	if !ok || !strings.HasPrefix(domID, "work_") {
		return as1.Activity{}, fmt.Errorf("blurb has no work_ id")
	}
	workID := strings.TrimPrefix(domID, "work_")

	heading := sel.Find("h4.heading a").First()
	title := strings.TrimSpace(heading.Text())
	if title == "" {
		return as1.Activity{}, fmt.Errorf("work %s has no title", workID)
	}
	workURL := absoluteURL(heading.AttrOr("href", "/works/"+workID))

	obj := &as1.Object{
		ID:          source.TagURI(Domain, workID),
		ObjectType:  as1.TypeArticle,
		DisplayName: title,
		URL:         workURL,
	}

	if author := sel.Find(`a[rel="author"]`).First(); author.Length() > 0 {
		obj.Author = &as1.Actor{
			DisplayName: strings.TrimSpace(author.Text()),
			URL:         absoluteURL(author.AttrOr("href", "")),
		}
		if name := userName(author.AttrOr("href", "")); name != "" {
			obj.Author.Username = name
			obj.Author.ID = source.TagURI(Domain, name)
		}
	}

	if summary := sel.Find("blockquote.summary"); summary.Length() > 0 {
		if html, err := summary.Html(); err == nil {
			obj.Content = strings.TrimSpace(html)
		}
	}

	if date := strings.TrimSpace(sel.Find("p.datetime").First().Text()); date != "" {
		if t, err := time.Parse(dateLayout, date); err == nil {
			obj.Updated = as1.FormatTime(t)
		}
	}

	// fandom and freeform tags
	sel.Find("h5.fandoms a.tag, ul.tags li a.tag").Each(func(_ int, t *goquery.Selection) {
		obj.Tags = append(obj.Tags, as1.Tag{
			ObjectType:  as1.TypeHashtag,
			DisplayName: strings.TrimSpace(t.Text()),
			URL:         absoluteURL(t.AttrOr("href", "")),
		})
	})

	// a chaptered work links its latest chapter from the stats block
	if ch := sel.Find("dd.chapters a").First(); ch.Length() > 0 {
		if href := ch.AttrOr("href", ""); strings.Contains(href, "/chapters/") {
			obj.Attachments = append(obj.Attachments, &as1.Object{
				ObjectType:  as1.TypeArticle,
				DisplayName: title + " (latest chapter)",
				URL:         absoluteURL(href),
			})
		}
	}

	act := as1.Activity{
		Verb:    as1.VerbPost,
		ID:      obj.ID,
		URL:     obj.URL,
		Updated: obj.Updated,
		Object:  obj,
	}
	if obj.Author != nil {
		act.Actor = obj.Author
	}
	return act, act.Validate()
}

// NormalizeActor scrapes a user profile page.
func (a *AO3) NormalizeActor(payload []byte) (as1.Actor, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(payload))
	if err != nil {
		return as1.Actor{}, source.NewFormatError("ao3: unparseable HTML", err)
	}
	heading := strings.TrimSpace(doc.Find("div.user.home h2.heading").First().Text())
	if heading == "" {
		heading = strings.TrimSpace(doc.Find("div.primary.header h2.heading").First().Text())
	}
	if heading == "" {
		return as1.Actor{}, source.NewFormatError("ao3: page is not a user profile", nil)
	}
	name := strings.Fields(heading)[0]
	actor := as1.Actor{
		ID:          source.TagURI(Domain, name),
		Username:    name,
		DisplayName: name,
		URL:         BaseURL + "/users/" + url.PathEscape(name),
	}
	if icon := doc.Find("img.icon").First(); icon.Length() > 0 {
		if src := icon.AttrOr("src", ""); src != "" && !strings.Contains(src, "default") {
			actor.Image = &as1.Image{URL: absoluteURL(src)}
		}
	}
	if bio := doc.Find("div.bio blockquote").First(); bio.Length() > 0 {
		actor.Description = strings.TrimSpace(bio.Text())
	}
	return actor, nil
}

func absoluteURL(href string) string {
	if href == "" || strings.Contains(href, "://") {
		return href
	}
	if !strings.HasPrefix(href, "/") {
		href = "/" + href
	}
	return BaseURL + href
}

// userName extracts the name from a /users/<name>/pseuds/... href.
func userName(href string) string {
	parts := strings.Split(strings.Trim(href, "/"), "/")
	for i, p := range parts {
		if p == "users" && i+1 < len(parts) {
			return parts[i+1]
		}
	}
	return ""
}

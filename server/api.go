package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/gorilla/mux"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/as2"
	"github.com/sarajaksa/granary/server/atom"
	"github.com/sarajaksa/granary/server/microformats2"
	"github.com/sarajaksa/granary/server/rss"
	"github.com/sarajaksa/granary/server/source"
	"github.com/sarajaksa/granary/server/telemetry"
)

const (
	formatJSON    = "json"
	formatAtom    = "atom"
	formatXML     = "xml"
	formatRSS     = "rss"
	formatHTML    = "html"
	formatMF2JSON = "mf2-json"
	formatAS2     = "as2"
)

type streamParams struct {
	userID     string
	group      source.Group
	activityID string
	startIndex int
	count      int
	query      string
	format     string
}

// handleActivities serves GET /{source}/{userID}/{groupID}/{appID}/{activityID}.
func (s *StreamService) handleActivities(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	telemetry.Request(r, "handleActivities")
	telemetry.Increment("stream_requests", 1)

	src, fetcher, err := s.lookupSource(mux.Vars(r)["source"])
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	params, err := parseParams(r)
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	if err := source.CheckQuery(src, params.group, params.query); err != nil {
		writeError(w, reqID, err)
		return
	}

	payload, err := fetcher.Fetch(r.Context(), s.upstreamURL(src, params))
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	activities, err := src.Normalize(payload)
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	if params.activityID != "" {
		activities, err = filterByID(src, activities, params.activityID)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
	}

	// sources with native paging return an already-sliced sequence
	var env as1.Envelope
	if src.Capabilities().Has(source.CapabilityPaging) {
		env = as1.NewEnvelope(activities, params.startIndex, -1)
	} else {
		env = source.Paginate(activities, params.startIndex, params.count)
	}

	s.writeEnvelope(w, reqID, src, params, env)
}

// handleActor serves GET /{source}/{userID}.
func (s *StreamService) handleActor(w http.ResponseWriter, r *http.Request) {
	reqID := uuid.NewString()
	telemetry.Request(r, "handleActor")
	telemetry.Increment("actor_requests", 1)

	src, fetcher, err := s.lookupSource(mux.Vars(r)["source"])
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	params, err := parseParams(r)
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	payload, err := fetcher.Fetch(r.Context(), s.actorURL(src, params))
	if err != nil {
		writeError(w, reqID, err)
		return
	}
	actor, err := src.NormalizeActor(payload)
	if err != nil {
		writeError(w, reqID, err)
		return
	}

	switch params.format {
	case formatJSON:
		writeJSON(w, http.StatusOK, actor)
	case formatHTML:
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, microformats2.EncodeActor(actor))
	case formatMF2JSON:
		out, err := microformats2.EncodeActorJSON(actor)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", "application/mf2+json")
		w.Write(out)
	case formatAS2:
		out, err := as2.EncodeActor(actor)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", as2.ContentType)
		w.Write(out)
	default:
		writeError(w, reqID, source.NewUnsupportedError("format "+params.format+" cannot render an actor"))
	}
}

func (s *StreamService) writeEnvelope(w http.ResponseWriter, reqID string, src source.Source, params streamParams, env as1.Envelope) {
	switch params.format {
	case formatJSON:
		writeJSON(w, http.StatusOK, env)
	case formatAtom, formatXML:
		title := src.Name() + " activities for " + params.userID
		feedID := source.TagURI(src.Domain(), params.userID+"/"+string(params.group))
		out, err := atom.EncodeFeed(env, title, feedID, firstActor(env))
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", "application/atom+xml; charset=utf-8")
		w.Write(out)
	case formatRSS:
		title := src.Name() + " activities for " + params.userID
		out, err := rss.EncodeFeed(env, title, s.Config.URL, title, firstActor(env))
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
		w.Write(out)
	case formatHTML:
		out, err := microformats2.EncodeEnvelope(env)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		fmt.Fprint(w, out)
	case formatMF2JSON:
		out, err := microformats2.EncodeEnvelopeJSON(env)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", "application/mf2+json")
		w.Write(out)
	case formatAS2:
		out, err := as2.EncodeEnvelope(env)
		if err != nil {
			writeError(w, reqID, err)
			return
		}
		w.Header().Set("Content-Type", as2.ContentType)
		w.Write(out)
	default:
		writeError(w, reqID, source.NewUnsupportedError("unknown format "+params.format))
	}
}

func parseParams(r *http.Request) (streamParams, error) {
	vars := mux.Vars(r)
	q := r.URL.Query()

	params := streamParams{
		userID:     vars["userID"],
		group:      source.GroupAll,
		activityID: vars["activityID"],
		count:      0, // all remaining
		query:      q.Get("q"),
		format:     q.Get("format"),
	}
	if params.format == "" {
		params.format = formatJSON
	}

	if g := vars["groupID"]; g != "" {
		if g == "@me" {
			g = string(source.GroupSelf)
		}
		params.group = source.Group(g)
		if !params.group.IsValid() {
			return params, source.NewUnsupportedError("unknown group " + g)
		}
	}

	if v := q.Get("startIndex"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return params, source.NewUnsupportedError("startIndex must be a non-negative integer")
		}
		params.startIndex = n
	}
	if v := q.Get("count"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			return params, source.NewUnsupportedError("count must be a non-negative integer")
		}
		params.count = n
	}
	return params, nil
}

// upstreamURL builds the raw payload endpoint for an activities request.
// Paging and search parameters pass through when the source handles them
// natively.
func (s *StreamService) upstreamURL(src source.Source, params streamParams) string {
	base := s.Config.Sources[src.Name()].BaseURL
	if base == "" {
		base = "https://" + src.Domain()
	}
	u := strings.TrimRight(base, "/") + "/" + url.PathEscape(params.userID) + "/" + string(params.group)

	v := url.Values{}
	if src.Capabilities().Has(source.CapabilityPaging) {
		if params.startIndex > 0 {
			v.Set("startIndex", strconv.Itoa(params.startIndex))
		}
		if params.count > 0 {
			v.Set("count", strconv.Itoa(params.count))
		}
	}
	if params.query != "" && src.Capabilities().Has(source.CapabilitySearch) {
		v.Set("q", params.query)
	}
	if len(v) > 0 {
		u += "?" + v.Encode()
	}
	return u
}

func (s *StreamService) actorURL(src source.Source, params streamParams) string {
	base := s.Config.Sources[src.Name()].BaseURL
	if base == "" {
		base = "https://" + src.Domain()
	}
	return strings.TrimRight(base, "/") + "/" + url.PathEscape(params.userID)
}

// filterByID narrows a normalized batch to one activity, matching either the
// full tag URI or the bare native id.
func filterByID(src source.Source, activities []as1.Activity, id string) ([]as1.Activity, error) {
	want := id
	if !strings.HasPrefix(want, "tag:") {
		want = source.TagURI(src.Domain(), id)
	}
	for _, act := range activities {
		if act.ID == want {
			return []as1.Activity{act}, nil
		}
	}
	return nil, source.NewNotFoundError("no activity " + id)
}

func firstActor(env as1.Envelope) *as1.Actor {
	for i := range env.Items {
		if env.Items[i].Actor != nil {
			return env.Items[i].Actor
		}
	}
	return nil
}

type errorBody struct {
	Error   source.Kind `json:"error"`
	Message string      `json:"message"`
}

// writeError renders the request-level error body. The kind names and
// status codes are part of the API contract.
func writeError(w http.ResponseWriter, reqID string, err error) {
	status := source.StatusCode(err)
	telemetry.Log("request %s failed (%d): %s", reqID, status, err)
	telemetry.Increment("request_errors", 1)
	writeJSON(w, status, errorBody{Error: source.KindOf(err), Message: err.Error()})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		telemetry.Error(err, "encoding response body")
	}
}

// Package source defines the adapter contract between native social-network
// payloads and the canonical model, plus the envelope/paging layer and the
// error taxonomy shared by adapters and codecs.
package source

import "github.com/sarajaksa/granary/server/as1"

// Capability names one operation class a source may support.
type Capability string

const (
	CapabilitySearch Capability = "search"
	CapabilityPaging Capability = "paging"
	CapabilityWrite  Capability = "write"
)

// Capabilities is the set of operations a source supports. Adapters declare
// it once; unsupported operations fail with UnsupportedOperationError rather
// than silently no-oping.
type Capabilities map[Capability]bool

func NewCapabilities(caps ...Capability) Capabilities {
	set := make(Capabilities, len(caps))
	for _, c := range caps {
		set[c] = true
	}
	return set
}

func (c Capabilities) Has(cap Capability) bool {
	return c[cap]
}

// Group is the OpenSocial group selector in a request path.
type Group string

const (
	GroupAll     Group = "@all"
	GroupFriends Group = "@friends"
	GroupSelf    Group = "@self"
	GroupSearch  Group = "@search"
)

func (g Group) IsValid() bool {
	switch g {
	case GroupAll, GroupFriends, GroupSelf, GroupSearch:
		return true
	}
	return false
}

// Source converts between one network's native payloads and the canonical
// model. Implementations are pure transformations: they never perform I/O,
// so every method is safe to call concurrently.
//
// Normalize is order-preserving relative to the native payload and isolates
// failures at item level: a malformed item in a batch is skipped with a soft
// warning, and only an all-malformed batch (or an authentication failure)
// returns an error.
type Source interface {
	Name() string
	Domain() string
	Capabilities() Capabilities

	Normalize(payload []byte) ([]as1.Activity, error)
	NormalizeActor(payload []byte) (as1.Actor, error)
	Denormalize(activity as1.Activity) ([]byte, error)
}

// NoCapabilities is an embeddable default that fails every operation with
// UnsupportedOperationError, so adapters only implement what their network
// supports.
type NoCapabilities struct{}

func (NoCapabilities) Capabilities() Capabilities {
	return NewCapabilities()
}

func (NoCapabilities) Normalize(payload []byte) ([]as1.Activity, error) {
	return nil, NewUnsupportedError("this source cannot list activities")
}

func (NoCapabilities) NormalizeActor(payload []byte) (as1.Actor, error) {
	return as1.Actor{}, NewUnsupportedError("this source cannot describe actors")
}

func (NoCapabilities) Denormalize(activity as1.Activity) ([]byte, error) {
	return nil, NewUnsupportedError("this source does not support writes")
}

// CheckQuery rejects search requests against sources that can't search, and
// queries outside the @search group.
func CheckQuery(s Source, group Group, query string) error {
	if group == GroupSearch || query != "" {
		if !s.Capabilities().Has(CapabilitySearch) {
			return NewUnsupportedError(s.Name() + " does not support search")
		}
		if group != GroupSearch {
			return NewUnsupportedError("search queries require the @search group")
		}
	}
	return nil
}

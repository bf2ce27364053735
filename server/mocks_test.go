package server

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/sarajaksa/granary/server/as1"
	"github.com/sarajaksa/granary/server/source"
)

type mockSource struct {
	mock.Mock
	name string
	caps source.Capabilities
}

func (m *mockSource) Name() string {
	return m.name
}

func (m *mockSource) Domain() string {
	return m.name + ".example.com"
}

func (m *mockSource) Capabilities() source.Capabilities {
	return m.caps
}

func (m *mockSource) Normalize(payload []byte) ([]as1.Activity, error) {
	args := m.Called(payload)
	if l, ok := args.Get(0).([]as1.Activity); ok {
		return l, args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *mockSource) NormalizeActor(payload []byte) (as1.Actor, error) {
	args := m.Called(payload)
	if a, ok := args.Get(0).(as1.Actor); ok {
		return a, args.Error(1)
	}
	return as1.Actor{}, args.Error(1)
}

func (m *mockSource) Denormalize(activity as1.Activity) ([]byte, error) {
	args := m.Called(activity)
	if b, ok := args.Get(0).([]byte); ok {
		return b, args.Error(1)
	}
	return nil, args.Error(1)
}

// stubFetcher hands back a canned payload and remembers the upstream URL it
// was asked for.
type stubFetcher struct {
	payload []byte
	err     error
	lastURL string
}

func (f *stubFetcher) Fetch(_ context.Context, url string) ([]byte, error) {
	f.lastURL = url
	if f.err != nil {
		return nil, f.err
	}
	return f.payload, nil
}

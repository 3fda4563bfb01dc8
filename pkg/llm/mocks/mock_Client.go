// Package mocks provides test doubles for the llm client.
package mocks

import (
	"context"

	mock "github.com/stretchr/testify/mock"

	llm "github.com/sells-group/a11y-audit/pkg/llm"
)

// MockClient is a mock type for the Client interface.
type MockClient struct {
	mock.Mock
}

// Call provides a mock function with given fields: ctx, req
func (_m *MockClient) Call(ctx context.Context, req llm.Request) (*llm.Response, error) {
	ret := _m.Called(ctx, req)

	if len(ret) == 0 {
		panic("no return value specified for Call")
	}

	var r0 *llm.Response
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, llm.Request) (*llm.Response, error)); ok {
		return rf(ctx, req)
	}
	if rf, ok := ret.Get(0).(func(context.Context, llm.Request) *llm.Response); ok {
		r0 = rf(ctx, req)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).(*llm.Response)
		}
	}

	if rf, ok := ret.Get(1).(func(context.Context, llm.Request) error); ok {
		r1 = rf(ctx, req)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// Provider provides a mock function with no fields.
func (_m *MockClient) Provider() llm.Provider {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Provider")
	}

	var r0 llm.Provider
	if rf, ok := ret.Get(0).(func() llm.Provider); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(llm.Provider)
	}

	return r0
}

// PromptLimit provides a mock function with no fields.
func (_m *MockClient) PromptLimit() int {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for PromptLimit")
	}

	var r0 int
	if rf, ok := ret.Get(0).(func() int); ok {
		r0 = rf()
	} else {
		r0 = ret.Get(0).(int)
	}

	return r0
}

// NewMockClient creates a new instance of MockClient.
func NewMockClient(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockClient {
	mock := &MockClient{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

package extract

import "context"

// MockClient implements Client for testing.
type MockClient struct {
	CompleteFunc func(ctx context.Context, system, user string) (string, error)

	CompleteCalls []string
}

// NewMockClient creates a mock client with a fixed response.
func NewMockClient(response string) *MockClient {
	return &MockClient{
		CompleteFunc: func(_ context.Context, _, _ string) (string, error) {
			return response, nil
		},
	}
}

func (m *MockClient) Complete(ctx context.Context, system, user string) (string, error) {
	m.CompleteCalls = append(m.CompleteCalls, user)
	if m.CompleteFunc != nil {
		return m.CompleteFunc(ctx, system, user)
	}
	return "", nil
}

package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/de-tools/cost-digest/pkg/models/api"
	"github.com/de-tools/cost-digest/pkg/models/domain"
	"github.com/de-tools/cost-digest/pkg/models/store"
	runstore "github.com/de-tools/cost-digest/pkg/store/sqldb/runs"
)

type mockHistory struct {
	mock.Mock
}

func (m *mockHistory) Record(ctx context.Context, run *store.Run) error {
	return m.Called(ctx, run).Error(0)
}

func (m *mockHistory) Get(ctx context.Context, id string) (*store.Run, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*store.Run), args.Error(1)
}

func (m *mockHistory) List(ctx context.Context, opts store.ListOptions) ([]*store.Run, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).([]*store.Run), args.Error(1)
}

type stubTrigger struct {
	run *domain.ReportRun
}

func (s stubTrigger) Start(context.Context, domain.Trigger) (*domain.ReportRun, <-chan *domain.ReportRun) {
	return s.run, nil
}

func unmarshalResponse[T any]() func([]byte) (interface{}, error) {
	return func(data []byte) (interface{}, error) {
		var v T
		err := json.Unmarshal(data, &v)
		return v, err
	}
}

func TestWebAPI_Endpoints(t *testing.T) {
	logger := zerolog.New(zerolog.NewTestWriter(t))
	startedAt := time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC)

	history := new(mockHistory)
	history.On("List", mock.Anything, store.ListOptions{}).
		Return([]*store.Run{{ID: "run-1", Trigger: "schedule", Status: "SUCCEEDED", StartedAt: startedAt}}, nil)
	history.On("Get", mock.Anything, "run-1").
		Return(&store.Run{ID: "run-1", Trigger: "schedule", Status: "SUCCEEDED", StartedAt: startedAt}, nil)
	history.On("Get", mock.Anything, "missing").Return(nil, runstore.ErrNotFound)

	skipped := domain.NewReportRun("run-2", domain.TriggerManual, startedAt)
	skipped.Skip(startedAt, "another report run is already in progress")

	router := ConfigureRouter(Config{
		Addr: ":8080",
		Dependencies: Dependencies{
			History: history,
			Trigger: stubTrigger{run: skipped},
			Logger:  logger,
		},
	})
	testServer := httptest.NewServer(router)
	defer testServer.Close()

	tests := []struct {
		name           string
		method         string
		path           string
		expectedStatus int
		expected       interface{}
		parseResponse  func([]byte) (interface{}, error)
	}{
		{
			name:           "ListRuns",
			method:         http.MethodGet,
			path:           "/api/v1/runs",
			expectedStatus: http.StatusOK,
			expected:       []api.Run{{ID: "run-1", Trigger: "schedule", Status: "SUCCEEDED", StartedAt: startedAt}},
			parseResponse:  unmarshalResponse[[]api.Run](),
		},
		{
			name:           "GetRun",
			method:         http.MethodGet,
			path:           "/api/v1/runs/run-1",
			expectedStatus: http.StatusOK,
			expected:       api.Run{ID: "run-1", Trigger: "schedule", Status: "SUCCEEDED", StartedAt: startedAt},
			parseResponse:  unmarshalResponse[api.Run](),
		},
		{
			name:           "GetRun_NotFound",
			method:         http.MethodGet,
			path:           "/api/v1/runs/missing",
			expectedStatus: http.StatusNotFound,
			expected:       "run not found\n",
			parseResponse: func(data []byte) (interface{}, error) {
				return string(data), nil
			},
		},
		{
			name:           "TriggerRun_Concurrent",
			method:         http.MethodPost,
			path:           "/api/v1/runs",
			expectedStatus: http.StatusConflict,
			expected:       "SKIPPED_CONCURRENT",
			parseResponse: func(data []byte) (interface{}, error) {
				var run api.Run
				err := json.Unmarshal(data, &run)
				return run.Status, err
			},
		},
		{
			name:           "Healthz",
			method:         http.MethodGet,
			path:           "/healthz",
			expectedStatus: http.StatusOK,
			expected:       "ok",
			parseResponse: func(data []byte) (interface{}, error) {
				return string(data), nil
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := http.NewRequest(tt.method, testServer.URL+tt.path, nil)
			require.NoError(t, err)

			resp, err := http.DefaultClient.Do(req)
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.expectedStatus, resp.StatusCode)

			body, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			got, err := tt.parseResponse(body)
			require.NoError(t, err)
			assert.Equal(t, tt.expected, got)
		})
	}
}

func TestWebAPI_StartStopsOnContext(t *testing.T) {
	web := NewWebAPI(Config{
		Addr:            "127.0.0.1:0",
		ShutdownTimeout: time.Second,
		Dependencies:    Dependencies{Logger: zerolog.Nop()},
	})

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() { errs <- web.Start(ctx) }()

	time.Sleep(20 * time.Millisecond)
	cancel()

	select {
	case err := <-errs:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}

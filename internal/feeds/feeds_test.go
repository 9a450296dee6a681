package feeds

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ai-interviewer/internal/types"
)

const remoteOKBody = `[
  {"legal": "API terms of service"},
  {"id": 101, "position": "Go Engineer", "company": "Acme", "location": "Remote", "description": "Build APIs", "url": "https://remoteok.com/101"},
  {"id": "102", "title": "Fallback Title", "description": "Ship features"},
  {"id": 103, "description": "Mystery role"},
  {"id": 104, "position": "No description", "description": ""}
]`

const museBody = `{"results": [
  {"id": 7, "name": "Data Analyst", "contents": "<p>SQL</p>", "company": {"name": "Muse Co"},
   "locations": [{"name": "New York, NY"}, {"name": ""}, {"name": "Flexible / Remote"}],
   "refs": {"landing_page": "https://themuse.com/jobs/7"}},
  {"id": 8, "name": "", "description": "plain description"},
  {"id": 9, "name": "Empty", "contents": ""}
]}`

func TestRemoteOK_Fetch(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, userAgent, r.Header.Get("User-Agent"))
		assert.Equal(t, "application/json", r.Header.Get("Accept"))
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(remoteOKBody))
	}))
	defer srv.Close()

	jobs, err := NewRemoteOK(srv.URL, time.Second).Fetch(context.Background(), 0)
	require.NoError(t, err)
	require.Len(t, jobs, 3)

	assert.Equal(t, types.JobInput{
		Source: "remoteok", ExternalID: "101", Title: "Go Engineer", Company: "Acme",
		Location: "Remote", Description: "Build APIs", URL: "https://remoteok.com/101",
	}, jobs[0])
	assert.Equal(t, "102", jobs[1].ExternalID)
	assert.Equal(t, "Fallback Title", jobs[1].Title)
	assert.Equal(t, "Unknown", jobs[2].Title)
}

func TestMuse_Fetch(t *testing.T) {
	var gotPage string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPage = r.URL.Query().Get("page")
		_, _ = w.Write([]byte(museBody))
	}))
	defer srv.Close()

	jobs, err := NewMuse(srv.URL, time.Second).Fetch(context.Background(), 3)
	require.NoError(t, err)
	assert.Equal(t, "3", gotPage)
	require.Len(t, jobs, 2)

	assert.Equal(t, "Data Analyst", jobs[0].Title)
	assert.Equal(t, "Muse Co", jobs[0].Company)
	assert.Equal(t, "New York, NY, Flexible / Remote", jobs[0].Location)
	assert.Equal(t, "https://themuse.com/jobs/7", jobs[0].URL)
	assert.Equal(t, "7", jobs[0].ExternalID)
	assert.Equal(t, "muse", jobs[0].Source)

	assert.Equal(t, "Unknown", jobs[1].Title)
	assert.Equal(t, "plain description", jobs[1].Description)
}

func TestFetch_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewRemoteOK(srv.URL, time.Second).Fetch(context.Background(), 1)
	assert.ErrorContains(t, err, "429")
	_, err = NewMuse(srv.URL, time.Second).Fetch(context.Background(), 1)
	assert.ErrorContains(t, err, "429")
}

type stubFetcher struct {
	source string
	jobs   []types.JobInput
	err    error
	mu     sync.Mutex
	pages  []int
}

func (s *stubFetcher) Source() string { return s.source }

func (s *stubFetcher) Fetch(_ context.Context, page int) ([]types.JobInput, error) {
	s.mu.Lock()
	s.pages = append(s.pages, page)
	s.mu.Unlock()
	return s.jobs, s.err
}

type recordingIngester struct {
	mu      sync.Mutex
	batches [][]types.JobInput
	err     error
}

func (r *recordingIngester) Ingest(_ context.Context, in []types.JobInput) (*types.IngestReport, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.batches = append(r.batches, in)
	if r.err != nil {
		return nil, r.err
	}
	return &types.IngestReport{Jobs: make([]types.JobRecord, len(in))}, nil
}

type capturePublisher struct {
	exchange, key string
	payload       []byte
}

func (c *capturePublisher) PublishJSON(_ context.Context, exchange, key string, data interface{}, persistent bool) error {
	c.exchange, c.key = exchange, key
	b, err := json.Marshal(data)
	c.payload = b
	return err
}

func TestService_RunAndDispatch(t *testing.T) {
	jobs := []types.JobInput{{Source: "remoteok", ExternalID: "1", Title: "T", Description: "D"}}
	ing := &recordingIngester{}
	svc := NewService(ing, []Fetcher{&stubFetcher{source: "remoteok", jobs: jobs}}, WithServiceLogger(zerolog.Nop()))

	report, err := svc.Run(context.Background(), "remoteok", 1)
	require.NoError(t, err)
	assert.Len(t, report.Jobs, 1)

	_, err = svc.Run(context.Background(), "indeed", 1)
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	require.NoError(t, svc.Dispatch(context.Background(), "remoteok", 1))
	assert.Len(t, ing.batches, 2)
	assert.Equal(t, []string{"remoteok"}, svc.Sources())
}

func TestService_DispatchThroughQueue(t *testing.T) {
	jobs := []types.JobInput{{Source: "muse", ExternalID: "5", Title: "T", Description: "D"}}
	ing := &recordingIngester{}
	pub := &capturePublisher{}
	svc := NewService(ing, []Fetcher{&stubFetcher{source: "muse", jobs: jobs}},
		WithServiceLogger(zerolog.Nop()), WithPublisher(pub, "jobs.exchange", "jobs.ingest"))

	require.NoError(t, svc.Dispatch(context.Background(), "muse", 2))
	assert.Empty(t, ing.batches)
	assert.Equal(t, "jobs.exchange", pub.exchange)
	assert.Equal(t, "jobs.ingest", pub.key)

	assert.True(t, svc.HandleMessage(pub.payload))
	require.Len(t, ing.batches, 1)
	assert.Equal(t, jobs, ing.batches[0])

	assert.True(t, svc.HandleMessage([]byte("not json")))

	ing.err = errors.New("db down")
	assert.False(t, svc.HandleMessage(pub.payload))
}

func TestScheduler_RunOnce(t *testing.T) {
	remote := &stubFetcher{source: "remoteok", jobs: []types.JobInput{{Description: "x"}}}
	muse := &stubFetcher{source: "muse", jobs: []types.JobInput{{Description: "y"}}}
	ing := &recordingIngester{}
	svc := NewService(ing, []Fetcher{remote, muse}, WithServiceLogger(zerolog.Nop()))

	s, err := NewScheduler(svc, "@every 1h", []string{"remoteok", "muse"}, 2)
	require.NoError(t, err)
	s.runOnce()

	assert.Equal(t, []int{1}, remote.pages)
	assert.Equal(t, []int{1, 2}, muse.pages)
	assert.Len(t, ing.batches, 3)

	_, err = NewScheduler(svc, "not a cron", nil, 1)
	assert.Error(t, err)
}

type stubLocker struct {
	token    string
	released []string
}

func (l *stubLocker) AcquireLock(_ context.Context, key string, _ time.Duration) (string, error) {
	return l.token, nil
}

func (l *stubLocker) ReleaseLock(_ context.Context, key, value string) (bool, error) {
	l.released = append(l.released, key+"="+value)
	return true, nil
}

func TestScheduler_RunLock(t *testing.T) {
	remote := &stubFetcher{source: "remoteok"}
	svc := NewService(&recordingIngester{}, []Fetcher{remote}, WithServiceLogger(zerolog.Nop()))

	busy := &stubLocker{}
	s, err := NewScheduler(svc, "@hourly", []string{"remoteok"}, 1, WithRunLock(busy, time.Minute))
	require.NoError(t, err)
	s.runOnce()
	assert.Empty(t, remote.pages)

	free := &stubLocker{token: "tok"}
	s, err = NewScheduler(svc, "@hourly", []string{"remoteok"}, 1, WithRunLock(free, time.Minute))
	require.NoError(t, err)
	s.runOnce()
	assert.Equal(t, []int{1}, remote.pages)
	assert.Equal(t, []string{"app:feed:lock:scheduled=tok"}, free.released)
}

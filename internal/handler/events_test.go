package handler_test

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/forgo/progression/internal/model"
)

// readEvent returns the next SSE event name and data line
func readEvent(t *testing.T, r *bufio.Reader) (string, string) {
	t.Helper()
	var name, data string
	for {
		line, err := r.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")
		switch {
		case strings.HasPrefix(line, "event: "):
			name = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			data = strings.TrimPrefix(line, "data: ")
		case line == "" && name != "":
			return name, data
		}
	}
}

func TestEventsStream(t *testing.T) {
	s := newTestServer(t)
	srv := httptest.NewServer(s.router)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/v1/users/u1/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	name, data := readEvent(t, reader)
	assert.Equal(t, "connected", name)
	assert.Contains(t, data, "subscriber_id")

	require.Eventually(t, func() bool {
		return s.app.Hub.SubscriberCount("u1") == 1
	}, time.Second, 10*time.Millisecond)

	// changes of other users are not delivered
	_, err = s.app.Progression.AwardXP(ctx, "u2", model.DimensionCreative, 10, "manual")
	require.NoError(t, err)
	_, err = s.app.Progression.AwardXP(ctx, "u1", model.DimensionKnowledge, 25, "manual")
	require.NoError(t, err)

	name, data = readEvent(t, reader)
	assert.Equal(t, "change", name)
	assert.Contains(t, data, `"user_id":"u1"`)
	assert.Contains(t, data, string(model.ChangeXPAwarded))

	cancel()
	require.Eventually(t, func() bool {
		return s.app.Hub.SubscriberCount("u1") == 0
	}, time.Second, 10*time.Millisecond)
}

package main

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rmax-ai/trafficgen/pkg/traffic"
)

func TestFetchData(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v1/summary":
			w.Write([]byte(`{"run_id":"r1","iterations":2,"actions":{"create_product":{"invocations":2,"succeeded":2}},"totals":{"invocations":2,"succeeded":2}}`))
		case "/v1/outcomes":
			assert.Equal(t, "20", r.URL.Query().Get("limit"))
			w.Write([]byte(`[{"action":"create_product","iteration":2,"succeeded":true,"class":"ok","http_status":201}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer ts.Close()

	msg := fetchData(ts.Client(), ts.URL)()
	data, ok := msg.(dataMsg)
	require.True(t, ok)
	require.NoError(t, data.err)
	assert.Equal(t, "r1", data.summary.RunID)
	assert.Equal(t, uint64(2), data.summary.Totals.Invocations)
	require.Len(t, data.outcomes, 1)
	assert.Equal(t, 201, data.outcomes[0].HTTPStatus)
}

func TestFetchDataOffline(t *testing.T) {
	ts := httptest.NewServer(http.NotFoundHandler())
	defer ts.Close()

	data := fetchData(ts.Client(), ts.URL)().(dataMsg)
	assert.Error(t, data.err)
}

func TestModelRendersData(t *testing.T) {
	m := initialModel("http://status/")
	assert.Equal(t, "http://status", m.baseURL)
	assert.Contains(t, m.View(), "Connecting")

	sum := traffic.Summary{
		RunID:      "r1",
		Iterations: 2,
		Actions: map[string]*traffic.ActionStats{
			traffic.ActionDeleteProduct: {Invocations: 1, Failed: 1, Remote: 1},
			traffic.ActionTriggerSlow:   {Invocations: 1, Succeeded: 1, TotalTime: 2 * time.Second},
		},
	}
	updated, _ := m.Update(dataMsg{
		summary: summaryResponse{Summary: sum, Totals: sum.Totals()},
		outcomes: []traffic.Outcome{
			{Action: traffic.ActionDeleteProduct, Class: traffic.ClassRemote, HTTPStatus: 404, Detail: "not found"},
		},
	})
	view := updated.View()

	assert.Contains(t, view, traffic.ActionDeleteProduct)
	assert.Contains(t, view, traffic.ActionTriggerSlow)
	assert.Contains(t, view, "Run r1")
	assert.Contains(t, view, "HTTP 404")
}

func TestModelShowsOfflineError(t *testing.T) {
	updated, _ := initialModel(defaultStatusURL).Update(dataMsg{err: assert.AnError})
	assert.True(t, strings.Contains(updated.View(), "Offline"))
}

func TestModelQuits(t *testing.T) {
	_, cmd := initialModel(defaultStatusURL).Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.Equal(t, tea.Quit(), cmd())
}

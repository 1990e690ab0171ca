package monitor

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertico-systems/vertico/internal/fleetconfig"
)

func TestFetchRows_SortsByName(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/cars", r.URL.Path)

		_ = json.NewEncoder(w).Encode([]carRow{
			{Name: "C", Lo: 1, Hi: 5, CurrentFloor: 2, Status: "idle"},
			{Name: "A", Lo: 1, Hi: 5, CurrentFloor: 1, Status: "moving"},
		})
	}))
	defer srv.Close()

	rows, err := fetchRows(srv.URL)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "A", rows[0].Name)
	assert.Equal(t, "C", rows[1].Name)
}

func TestFetchRows_UnreachableErrors(t *testing.T) {
	_, err := fetchRows("http://127.0.0.1:1")
	assert.Error(t, err)
}

func TestToTableRows_FormatsRangeAndQueue(t *testing.T) {
	rows := toTableRows([]carRow{
		{Name: "A", Lo: 1, Hi: 10, CurrentFloor: 4, Status: "moving", Queue: []int{6, 8}},
	})

	require.Len(t, rows, 1)
	assert.Equal(t, "A", rows[0][0])
	assert.Equal(t, "[1,10]", rows[0][1])
	assert.Equal(t, "4", rows[0][2])
	assert.Equal(t, "moving", rows[0][3])
	assert.Equal(t, "6 8", rows[0][4])
}

func TestNew_DefaultsNonPositiveInterval(t *testing.T) {
	m := New("http://example.invalid", 0, nil)
	assert.Equal(t, 2_000_000_000, int(m.interval))
}

func TestUpdate_KeyQuitsOnQ(t *testing.T) {
	m := New("http://example.invalid", 0, nil)

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune("q")})
	require.NotNil(t, cmd)
	assert.IsType(t, tea.QuitMsg{}, cmd())
}

func TestUpdate_PollMsgPopulatesTableAndClearsError(t *testing.T) {
	m := New("http://example.invalid", 0, nil)

	next, _ := m.Update(pollMsg{err: assertErr{}})
	nm := next.(Model)
	assert.Error(t, nm.err)

	next, _ = nm.Update(pollMsg{rows: []carRow{{Name: "A", Lo: 1, Hi: 5, CurrentFloor: 1, Status: "idle"}}})
	nm = next.(Model)
	assert.NoError(t, nm.err)
	assert.Len(t, nm.table.Rows(), 1)
}

func TestMissingCars_NilFleet(t *testing.T) {
	m := New("http://example.invalid", 0, nil)
	assert.Nil(t, m.missingCars())
}

func TestMissingCars_ReportsUnregistered(t *testing.T) {
	fleet := &fleetconfig.Fleet{Cars: []fleetconfig.Car{{Name: "A"}, {Name: "B"}}}
	m := New("http://example.invalid", 0, fleet)

	next, _ := m.Update(pollMsg{rows: []carRow{{Name: "A"}}})
	nm := next.(Model)

	assert.Equal(t, []string{"B"}, nm.missingCars())
}

type assertErr struct{}

func (assertErr) Error() string { return "boom" }

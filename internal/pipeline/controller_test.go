package pipeline

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"info-collecte/internal/dedup"
	"info-collecte/internal/hass"
	"info-collecte/internal/model"
	"info-collecte/internal/mqtt"
	"info-collecte/internal/schedule"
	"info-collecte/internal/scraper"
	"info-collecte/internal/store"
)

const (
	testAddress = "1000 rue Principale"
	topicBase   = "homeassistant/sensor/ville_qc_collecte"
	wasteAlt    = "Ordures et résidus alimentaires"
	recycleAlt  = "Recyclage"
)

type fakeSource struct {
	markup      string
	err         error
	fetches     int
	invalidated []string
}

func (s *fakeSource) Fetch(_ context.Context, address string) (string, error) {
	s.fetches++
	return s.markup, s.err
}

func (s *fakeSource) Invalidate(address string) {
	s.invalidated = append(s.invalidated, address)
}

type fakePublisher struct {
	connectErr error
	failTopic  string
	connected  bool
	closed     bool
	retained   map[string]string
	order      []string
}

func (p *fakePublisher) Connect(context.Context) error {
	if p.connectErr != nil {
		return p.connectErr
	}
	p.connected = true
	p.retained = make(map[string]string)
	return nil
}

func (p *fakePublisher) Publish(_ context.Context, topic string, payload []byte, retain bool) error {
	if topic == p.failTopic {
		return errors.New("broker rejected message")
	}
	if !retain {
		return errors.Newf("message on %s not retained", topic)
	}
	p.retained[topic] = string(payload)
	p.order = append(p.order, topic)
	return nil
}

func (p *fakePublisher) Close() { p.closed = true }

func (p *fakePublisher) state(sensor string) string {
	return p.retained[topicBase+"/"+sensor+"/state"]
}

func (p *fakePublisher) attributes(sensor string) string {
	return p.retained[topicBase+"/"+sensor+"/attributes"]
}

type fakeEvents struct {
	fail   map[string]bool
	events []hass.Event
}

func (e *fakeEvents) CreateEvent(_ context.Context, ev hass.Event) error {
	if e.fail[ev.Title] {
		return errors.Mark(errors.New("503 Service Unavailable"), hass.ErrEventCreationFailed)
	}
	e.events = append(e.events, ev)
	return nil
}

func (e *fakeEvents) titles() []string {
	var out []string
	for _, ev := range e.events {
		out = append(out, ev.Title)
	}
	return out
}

type fakeArchive struct {
	dates map[string][]string
	runID string
}

func (a *fakeArchive) ReplaceDatesForCategory(_ context.Context, address, category string, dates []string, runID string) error {
	if a.dates == nil {
		a.dates = make(map[string][]string)
	}
	a.dates[category] = dates
	a.runID = runID
	return nil
}

func table(caption string, days map[int]string) string {
	var b strings.Builder
	fmt.Fprintf(&b, `<table class="calendrier"><caption>%s</caption><tbody><tr>`, caption)
	for day := 1; day <= 31; day++ {
		b.WriteString("<td>")
		fmt.Fprintf(&b, `<p class="date">%d</p>`, day)
		if alt, ok := days[day]; ok {
			fmt.Fprintf(&b, `<p class="img"><img src="/picto.png" alt="%s"></p>`, alt)
		}
		b.WriteString("</td>")
	}
	b.WriteString("</tr></tbody></table>")
	return b.String()
}

func page(tables ...string) string {
	return "<html><body>" + strings.Join(tables, "\n") + "</body></html>"
}

// janvier has waste on the 15th and recycling on the 22nd.
var janvier = page(table("Janvier 2025", map[int]string{15: wasteAlt, 22: recycleAlt}))

type harness struct {
	source    *fakeSource
	publisher *fakePublisher
	events    *fakeEvents
	archive   *fakeArchive
	store     *store.LocalStore
	dedupOver store.Store
	icsPath   string
	withEvent bool
}

func newHarness(t *testing.T, markup string) *harness {
	t.Helper()
	st, err := store.NewLocal(t.TempDir())
	require.NoError(t, err)
	return &harness{
		source:    &fakeSource{markup: markup},
		publisher: &fakePublisher{},
		events:    &fakeEvents{},
		archive:   &fakeArchive{},
		store:     st,
		icsPath:   filepath.Join(t.TempDir(), "collectes.ics"),
		withEvent: true,
	}
}

func (h *harness) run(t *testing.T, today string) (Result, error) {
	t.Helper()
	now, err := time.Parse(time.RFC3339, today+"T07:00:00Z")
	require.NoError(t, err)

	var st store.Store = h.store
	if h.dedupOver != nil {
		st = h.dedupOver
	}
	deps := Deps{
		Source:    h.source,
		Dedup:     dedup.New(st, "", nil),
		Publisher: h.publisher,
		Archive:   h.archive,
	}
	if h.withEvent {
		deps.Events = h.events
	}
	c := New(deps, Options{Address: testAddress, CalendarID: "calendar.collectes", ICSPath: h.icsPath}, nil)
	c.now = func() time.Time { return now }
	c.newRunID = func() string { return "run-1" }
	return c.Run(context.Background())
}

func (h *harness) committed(t *testing.T) (dedup.Record, bool) {
	t.Helper()
	data, err := h.store.Get(dedup.DefaultKey)
	if errors.Is(err, store.ErrNotFound) {
		return nil, false
	}
	require.NoError(t, err)
	require.NotEmpty(t, data)
	rec, err := dedup.New(h.store, "", nil).Load()
	require.NoError(t, err)
	return rec, true
}

func TestRun_PublishesNextDates(t *testing.T) {
	h := newHarness(t, janvier)

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.True(t, res.Status.OK())
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, []State{
		StateInit, StateFetching, StateParsing, StateAggregating,
		StateDeciding, StatePublishing, StateDone,
	}, res.Path)
	assert.Equal(t, "run-1", res.RunID)

	require.Len(t, res.Schedule, 2)
	assert.Equal(t, "2025-01-15", res.Schedule[model.Waste].NextISO())
	assert.Equal(t, "2025-01-22", res.Schedule[model.Recycling].NextISO())

	assert.Equal(t, "success", h.publisher.state("statut"))
	assert.Equal(t, "2025-01-15", h.publisher.state("ordures"))
	assert.Equal(t, "2025-01-22", h.publisher.state("recyclage"))
	assert.JSONEq(t, `{"dates":["2025-01-15"]}`, h.publisher.attributes("ordures"))
	assert.True(t, h.publisher.closed)
	assert.Equal(t, len(h.publisher.order), res.Published)

	assert.Equal(t, []model.Category{model.Waste, model.Recycling}, res.Notified)
	require.Len(t, h.events.events, 2)
	ev := h.events.events[0]
	assert.Equal(t, "calendar.collectes", ev.CalendarID)
	assert.Equal(t, "Collecte des ordures", ev.Title)
	assert.Equal(t, "2025-01-15", model.FormatDate(ev.Start))
	assert.Equal(t, "2025-01-16", model.FormatDate(ev.End))

	rec, ok := h.committed(t)
	require.True(t, ok)
	assert.Equal(t, dedup.Record{"ordures": "2025-01-15", "recyclage": "2025-01-22"}, rec)

	ics, err := os.ReadFile(h.icsPath)
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(string(ics), "BEGIN:VEVENT"))

	assert.Equal(t, map[string][]string{
		"ordures":   {"2025-01-15"},
		"recyclage": {"2025-01-22"},
	}, h.archive.dates)
	assert.Equal(t, "run-1", h.archive.runID)
}

func TestRun_PastDateIsUnavailable(t *testing.T) {
	h := newHarness(t, janvier)

	res, err := h.run(t, "2025-01-20")
	require.NoError(t, err)

	assert.True(t, res.Status.OK())
	assert.Nil(t, res.Schedule[model.Waste].Next)
	assert.Equal(t, "2025-01-22", res.Schedule[model.Recycling].NextISO())

	assert.Equal(t, "N/A", h.publisher.state("ordures"))
	assert.JSONEq(t, `{"dates":["2025-01-15"]}`, h.publisher.attributes("ordures"))
	assert.Equal(t, "2025-01-22", h.publisher.state("recyclage"))

	assert.Equal(t, []string{"Collecte du recyclage"}, h.events.titles())

	rec, ok := h.committed(t)
	require.True(t, ok)
	assert.Equal(t, dedup.Record{"recyclage": "2025-01-22"}, rec)

	ics, err := os.ReadFile(h.icsPath)
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(ics), "BEGIN:VEVENT"))
	assert.NotContains(t, string(ics), "20250115")
}

func TestRun_NoCalendarTables(t *testing.T) {
	h := newHarness(t, page("<p>Aucun résultat pour cette adresse</p>"))

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.False(t, res.Status.OK())
	assert.Equal(t, scraper.ErrNoScheduleFound.Error(), res.Status.Message())
	assert.Equal(t, StateFailed, res.State)
	assert.Equal(t, []State{StateInit, StateFetching, StateParsing, StateFailed, StatePublishing}, res.Path)

	assert.Equal(t, "error", h.publisher.state("statut"))
	assert.Contains(t, h.publisher.attributes("statut"), scraper.ErrNoScheduleFound.Error())
	assert.Equal(t, "error", h.publisher.state("ordures"))
	assert.Equal(t, "error", h.publisher.state("recyclage"))
	assert.JSONEq(t, `{}`, h.publisher.attributes("ordures"))
	assert.True(t, h.publisher.closed)

	assert.Empty(t, h.events.events)
	_, committed := h.committed(t)
	assert.False(t, committed)
	assert.NoFileExists(t, h.icsPath)
	assert.Empty(t, h.archive.dates)
	assert.Equal(t, []string{testAddress}, h.source.invalidated)
}

func TestRun_AlreadyNotifiedDateSkipsRemote(t *testing.T) {
	h := newHarness(t, janvier)
	require.NoError(t, h.store.SetJSON(dedup.DefaultKey, dedup.Record{"ordures": "2025-01-15"}))

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.Equal(t, []model.Category{model.Recycling}, res.Notified)
	assert.Equal(t, []string{"Collecte du recyclage"}, h.events.titles())
	assert.Equal(t, "2025-01-15", h.publisher.state("ordures"))
}

func TestRun_UnparseableCaption(t *testing.T) {
	h := newHarness(t, page(table("15 2025", map[int]string{15: wasteAlt, 22: recycleAlt})))

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.False(t, res.Status.OK())
	assert.Equal(t, schedule.ErrNoCollectionFound.Error(), res.Status.Message())
	assert.Equal(t, []State{
		StateInit, StateFetching, StateParsing, StateAggregating, StateFailed, StatePublishing,
	}, res.Path)
	assert.Equal(t, "error", h.publisher.state("ordures"))
	assert.Empty(t, h.source.invalidated, "only a page without calendar is invalidated")
}

func TestRun_UnparseableCaptionOtherTableStillCounts(t *testing.T) {
	h := newHarness(t, page(
		table("15 2025", map[int]string{3: wasteAlt}),
		table("Février 2025", map[int]string{5: recycleAlt}),
	))

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	require.True(t, res.Status.OK())
	assert.Equal(t, "2025-02-05", res.Schedule[model.Recycling].NextISO())
	_, hasWaste := res.Schedule[model.Waste]
	assert.False(t, hasWaste)
	assert.Equal(t, "N/A", h.publisher.state("ordures"))
	assert.JSONEq(t, `{"dates":[]}`, h.publisher.attributes("ordures"))
}

func TestRun_TransportUnavailable(t *testing.T) {
	h := newHarness(t, janvier)
	h.publisher.connectErr = errors.Mark(errors.New("connection refused"), mqtt.ErrTransportUnavailable)

	res, err := h.run(t, "2025-01-01")
	require.Error(t, err)
	assert.True(t, errors.Is(err, mqtt.ErrTransportUnavailable))

	assert.Equal(t, StateFailed, res.State)
	assert.False(t, res.Status.OK())
	assert.Zero(t, h.source.fetches)
	assert.Empty(t, h.publisher.order)
	assert.False(t, h.publisher.closed)
	assert.Empty(t, h.events.events)
	_, committed := h.committed(t)
	assert.False(t, committed)
}

func TestRun_FetchFailure(t *testing.T) {
	h := newHarness(t, "")
	h.source.err = errors.Mark(errors.New("waiting for table.calendrier"), scraper.ErrFetchTimeout)

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.False(t, res.Status.OK())
	assert.Contains(t, res.Status.Message(), "fetch calendar page")
	assert.Equal(t, []State{StateInit, StateFetching, StateFailed, StatePublishing}, res.Path)
	assert.Equal(t, "error", h.publisher.state("statut"))
	_, committed := h.committed(t)
	assert.False(t, committed)
}

func TestRun_RemoteFailureIsolated(t *testing.T) {
	h := newHarness(t, janvier)
	require.NoError(t, h.store.SetJSON(dedup.DefaultKey, dedup.Record{"ordures": "2025-01-08"}))
	h.events.fail = map[string]bool{"Collecte des ordures": true}

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.True(t, res.Status.OK())
	assert.Equal(t, "success", h.publisher.state("statut"))
	assert.Equal(t, []model.Category{model.Recycling}, res.Notified)

	rec, ok := h.committed(t)
	require.True(t, ok)
	assert.Equal(t, dedup.Record{"ordures": "2025-01-08", "recyclage": "2025-01-22"}, rec,
		"failed category keeps its previous date so the next run retries")
}

func TestRun_SecondRunDoesNotNotifyAgain(t *testing.T) {
	h := newHarness(t, janvier)

	_, err := h.run(t, "2025-01-01")
	require.NoError(t, err)
	require.Len(t, h.events.events, 2)

	res, err := h.run(t, "2025-01-02")
	require.NoError(t, err)
	assert.Empty(t, res.Notified)
	assert.Len(t, h.events.events, 2)
}

func TestRun_WithoutRemoteService(t *testing.T) {
	h := newHarness(t, janvier)
	h.withEvent = false

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.True(t, res.Status.OK())
	assert.Empty(t, res.Notified)
	rec, ok := h.committed(t)
	require.True(t, ok)
	assert.Empty(t, rec)
}

func TestRun_PublishFailureDoesNotStopOthers(t *testing.T) {
	h := newHarness(t, janvier)
	h.publisher.failTopic = topicBase + "/ordures/config"

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.True(t, res.Status.OK())
	assert.Equal(t, "2025-01-15", h.publisher.state("ordures"))
	assert.Equal(t, "2025-01-22", h.publisher.state("recyclage"))
	assert.Equal(t, len(h.publisher.order), res.Published)
	// status + two categories, three messages each, minus the rejected one
	assert.Equal(t, 8, res.Published)
}

func TestRun_StatusPublishedFirst(t *testing.T) {
	h := newHarness(t, janvier)

	_, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	require.NotEmpty(t, h.publisher.order)
	assert.True(t, strings.HasPrefix(h.publisher.order[0], topicBase+"/statut/"))
}

// outageStore fails every read the way an unreachable bucket does.
type outageStore struct{ *store.LocalStore }

func (outageStore) Get(string) ([]byte, error) {
	return nil, errors.New("503 Service Unavailable")
}

func TestRun_UnreadableRecordSkipsRemoteAndCommit(t *testing.T) {
	h := newHarness(t, janvier)
	h.dedupOver = outageStore{h.store}

	res, err := h.run(t, "2025-01-01")
	require.NoError(t, err)

	assert.True(t, res.Status.OK())
	assert.Equal(t, StateDone, res.State)
	assert.Equal(t, "2025-01-15", h.publisher.state("ordures"))
	assert.Empty(t, res.Notified)
	assert.Empty(t, h.events.events, "an unknown record must not trigger duplicate events")
	_, committed := h.committed(t)
	assert.False(t, committed, "the record must not be overwritten")
	assert.FileExists(t, h.icsPath)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "init", StateInit.String())
	assert.Equal(t, "publishing", StatePublishing.String())
	assert.Equal(t, "failed", StateFailed.String())
	assert.Equal(t, "unknown", State(42).String())
	assert.True(t, StateDone.Terminal())
	assert.False(t, StateDeciding.Terminal())
}

package facade

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/obscore/supervisor/internal/action"
	"github.com/obscore/supervisor/internal/catalog"
	"github.com/obscore/supervisor/internal/enclosure"
	"github.com/obscore/supervisor/internal/events"
	"github.com/obscore/supervisor/internal/healthself"
	"github.com/obscore/supervisor/internal/logging"
	"github.com/obscore/supervisor/internal/model"
	"github.com/obscore/supervisor/internal/schedule"
	"github.com/obscore/supervisor/internal/shutterrpc"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEnclosure struct {
	mode      model.OperationsMode
	status    shutterrpc.Status
	window    *model.DomeWindow
	requestErr error
	requested  model.OperationsMode
}

func (f *fakeEnclosure) Mode() model.OperationsMode { return f.mode }
func (f *fakeEnclosure) Status() shutterrpc.Status  { return f.status }
func (f *fakeEnclosure) Window() *model.DomeWindow  { return f.window }
func (f *fakeEnclosure) RequestMode(target model.OperationsMode) error {
	f.requested = target
	if f.requestErr != nil {
		return f.requestErr
	}
	f.mode = target
	return nil
}
func (f *fakeEnclosure) InstallWindow(w model.DomeWindow) { f.window = &w }
func (f *fakeEnclosure) ClearWindow()                     { f.window = nil }

type fakeScheduler struct {
	mode        model.OperationsMode
	requestErr  error
	enqueued    []string
	aborted     bool
	frameCards  []model.HeaderCard
	profileCards []model.HeaderCard
	statusOut   model.ScheduleStatus
}

func (f *fakeScheduler) Mode() model.OperationsMode { return f.mode }
func (f *fakeScheduler) RequestMode(target model.OperationsMode) error {
	if f.requestErr != nil {
		return f.requestErr
	}
	f.mode = target
	return nil
}
func (f *fakeScheduler) Enqueue(typeKey string, act action.Runnable) {
	f.enqueued = append(f.enqueued, typeKey)
}
func (f *fakeScheduler) Abort() { f.aborted = true }
func (f *fakeScheduler) NotifyFrame(headers map[string]interface{}) []model.HeaderCard {
	return f.frameCards
}
func (f *fakeScheduler) NotifyGuideProfile(headers map[string]interface{}, x, y []float64) []model.HeaderCard {
	return f.profileCards
}
func (f *fakeScheduler) Status() model.ScheduleStatus { return f.statusOut }

func newTestFacade(t *testing.T, enc *fakeEnclosure, sch *fakeScheduler) *Facade {
	t.Helper()
	registry := catalog.NewRegistry()
	ingest := schedule.New(schedule.SiteLocation{Latitude: 19.5, Longitude: -155.5, ElevationM: 4200}, registry, false)
	store, err := logging.Open(t.TempDir()+"/events.sqlite", zerolog.Nop())
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return New(
		enc, sch, ingest, registry, "test-site",
		events.NewManager(events.NewBus(zerolog.Nop()), zerolog.Nop()),
		store,
		healthself.NewReporter(""),
		[]string{"127.0.0.1"},
		[]string{"127.0.0.1"},
		zerolog.Nop(),
	)
}

func doRequest(r http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		_ = json.NewEncoder(&buf).Encode(body)
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "127.0.0.1:54321"
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)
	return rec
}

func TestHandleStatus_ReportsEnclosureAndSchedulerState(t *testing.T) {
	enc := &fakeEnclosure{mode: model.ModeAutomatic, status: shutterrpc.StatusOpen}
	sch := &fakeScheduler{mode: model.ModeAutomatic, statusOut: model.ScheduleStatus{Mode: model.ModeAutomatic}}
	f := newTestFacade(t, enc, sch)

	rec := doRequest(f.Router(), http.MethodGet, "/v1/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp statusResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, model.ModeAutomatic, resp.Enclosure.Mode)
	assert.Equal(t, shutterrpc.StatusOpen, resp.Enclosure.Status)
}

func TestHandleSubmitSchedule_RejectsWhenDomeNotAutomatic(t *testing.T) {
	enc := &fakeEnclosure{mode: model.ModeManual}
	sch := &fakeScheduler{mode: model.ModeAutomatic}
	f := newTestFacade(t, enc, sch)

	desc := map[string]interface{}{"night": "2026-01-01", "actions": []interface{}{}}
	rec := doRequest(f.Router(), http.MethodPost, "/v1/schedule", desc)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, DomeNotAutomatic, body.Error)
}

func TestHandleSubmitSchedule_RejectsWhenSchedulerNotAutomatic(t *testing.T) {
	enc := &fakeEnclosure{mode: model.ModeAutomatic}
	sch := &fakeScheduler{mode: model.ModeManual}
	f := newTestFacade(t, enc, sch)

	desc := map[string]interface{}{"night": "2026-01-01", "actions": []interface{}{}}
	rec := doRequest(f.Router(), http.MethodPost, "/v1/schedule", desc)

	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, TelescopeNotAutomatic, body.Error)
}

func TestHandleSubmitSchedule_RejectsInvalidDescriptor(t *testing.T) {
	enc := &fakeEnclosure{mode: model.ModeAutomatic}
	sch := &fakeScheduler{mode: model.ModeAutomatic}
	f := newTestFacade(t, enc, sch)

	desc := map[string]interface{}{"night": "not-a-date", "actions": []interface{}{}}
	rec := doRequest(f.Router(), http.MethodPost, "/v1/schedule", desc)

	require.Equal(t, http.StatusBadRequest, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, InvalidSchedule, body.Error)
}

func TestHandleSubmitSchedule_InstallsWindowAndEnqueuesActions(t *testing.T) {
	enc := &fakeEnclosure{mode: model.ModeAutomatic}
	sch := &fakeScheduler{mode: model.ModeAutomatic}
	f := newTestFacade(t, enc, sch)

	// The test site's local noon on 2026-07-31 is about 22:22 UTC, so this
	// window lies inside that observing night.
	open := "2026-08-01T06:00:00Z"
	close := "2026-08-01T07:00:00Z"
	desc := map[string]interface{}{
		"night": "2026-07-31",
		"dome":  map[string]interface{}{"open": open, "close": close},
		"actions": []interface{}{
			map[string]interface{}{"type": "conformance_probe"},
		},
	}
	rec := doRequest(f.Router(), http.MethodPost, "/v1/schedule", desc)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.NotNil(t, enc.window)
	assert.Equal(t, []string{"conformance_probe"}, sch.enqueued)
}

func TestHandleRequestDomeMode_ReturnsInErrorStateCode(t *testing.T) {
	enc := &fakeEnclosure{mode: model.ModeError, requestErr: enclosure.ErrInErrorState}
	sch := &fakeScheduler{}
	f := newTestFacade(t, enc, sch)

	rec := doRequest(f.Router(), http.MethodPost, "/v1/dome/mode", modeRequest{Mode: model.ModeAutomatic})

	require.Equal(t, http.StatusConflict, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, InErrorState, body.Error)
}

func TestHandleClearDomeWindow_IsIdempotent(t *testing.T) {
	enc := &fakeEnclosure{mode: model.ModeAutomatic, window: &model.DomeWindow{OpenAt: time.Now(), CloseAt: time.Now().Add(time.Hour)}}
	sch := &fakeScheduler{}
	f := newTestFacade(t, enc, sch)

	rec := doRequest(f.Router(), http.MethodPost, "/v1/dome/window/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, enc.window)

	rec = doRequest(f.Router(), http.MethodPost, "/v1/dome/window/clear", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Nil(t, enc.window)
}

func TestHandleStopTelescope_AbortsScheduler(t *testing.T) {
	enc := &fakeEnclosure{}
	sch := &fakeScheduler{}
	f := newTestFacade(t, enc, sch)

	rec := doRequest(f.Router(), http.MethodPost, "/v1/telescope/stop", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, sch.aborted)
}

func TestHandleNotifyFrame_DropsSilentlyWhenNoCardsReturned(t *testing.T) {
	enc := &fakeEnclosure{}
	sch := &fakeScheduler{frameCards: nil}
	f := newTestFacade(t, enc, sch)

	rec := doRequest(f.Router(), http.MethodPost, "/v1/pipeline/frame", frameRequest{Headers: map[string]interface{}{"k": "v"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body headerCardsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Empty(t, body.Cards)
}

func TestHandleNotifyFrame_ReturnsActionsHeaderCards(t *testing.T) {
	enc := &fakeEnclosure{}
	sch := &fakeScheduler{frameCards: []model.HeaderCard{{Key: "AG_ERRX", Value: 0.5}}}
	f := newTestFacade(t, enc, sch)

	rec := doRequest(f.Router(), http.MethodPost, "/v1/pipeline/frame", frameRequest{Headers: map[string]interface{}{"k": "v"}})
	require.Equal(t, http.StatusOK, rec.Code)

	var body headerCardsResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	require.Len(t, body.Cards, 1)
	assert.Equal(t, "AG_ERRX", body.Cards[0].Key)
}

func TestRequireControlMachine_RejectsUnlistedCaller(t *testing.T) {
	enc := &fakeEnclosure{}
	sch := &fakeScheduler{}
	f := newTestFacade(t, enc, sch)

	req := httptest.NewRequest(http.MethodPost, "/v1/telescope/stop", nil)
	req.RemoteAddr = "10.0.0.9:1234"
	rec := httptest.NewRecorder()
	f.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusForbidden, rec.Code)
	var body errorBody
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, InvalidControlIP, body.Error)
	assert.False(t, sch.aborted)
}

package catalog

import (
	"errors"
	"testing"
	"time"

	"github.com/obscore/supervisor/internal/model"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_BuildUnknownType(t *testing.T) {
	r := NewRegistry()
	_, err := r.Build("does_not_exist", "site1", nil, zerolog.Nop())
	assert.Error(t, err)
}

func TestRegistry_HasCoreEntries(t *testing.T) {
	r := NewRegistry()
	assert.True(t, r.Has("park_telescope"))
	assert.True(t, r.Has("conformance_probe"))
	assert.False(t, r.Has("autofocus_vcurve"))
}

func TestNewRegistryForModule_BuiltinSucceeds(t *testing.T) {
	r, err := NewRegistryForModule("builtin")
	require.NoError(t, err)
	assert.True(t, r.Has("park_telescope"))
}

func TestNewRegistryForModule_UnknownModuleErrors(t *testing.T) {
	r, err := NewRegistryForModule("site_xyz_autofocus")
	assert.Error(t, err)
	assert.Nil(t, r)
}

func TestRegistry_SiteCanRegisterAdditionalEntries(t *testing.T) {
	r := NewRegistry()
	r.Register("autofocus_vcurve", NewConformanceProbe)
	assert.True(t, r.Has("autofocus_vcurve"))
}

func TestParkTelescope_CompletesViaDriver(t *testing.T) {
	called := false
	p := NewParkTelescopeWithDriver("site1", func() error {
		called = true
		return nil
	}, zerolog.Nop())

	p.Start(true)
	<-p.Done()

	assert.True(t, called)
	assert.Equal(t, model.ActionComplete, p.Status())
}

func TestParkTelescope_DriverFailureIsError(t *testing.T) {
	p := NewParkTelescopeWithDriver("site1", func() error {
		return errors.New("mount did not respond")
	}, zerolog.Nop())

	p.Start(true)
	<-p.Done()

	assert.Equal(t, model.ActionError, p.Status())
}

func TestParkTelescope_NoDriverStillCompletes(t *testing.T) {
	a := NewParkTelescope("site1", nil, zerolog.Nop())
	a.(*ParkTelescope).Start(true)
	<-a.(*ParkTelescope).Done()
	assert.Equal(t, model.ActionComplete, a.(*ParkTelescope).Status())
}

func TestConformanceProbe_CompletesAfterWait(t *testing.T) {
	a := NewConformanceProbe("site1", map[string]interface{}{"wait_ms": 10}, zerolog.Nop())
	p := a.(*ConformanceProbe)
	p.Start(true)
	<-p.Done()
	assert.Equal(t, model.ActionComplete, p.Status())
}

func TestConformanceProbe_FailFlagForcesError(t *testing.T) {
	a := NewConformanceProbe("site1", map[string]interface{}{"fail": true}, zerolog.Nop())
	p := a.(*ConformanceProbe)
	p.Start(true)
	<-p.Done()
	assert.Equal(t, model.ActionError, p.Status())
}

func TestConformanceProbe_ValidateConfigRejectsNegativeWait(t *testing.T) {
	p := NewConformanceProbe("site1", nil, zerolog.Nop()).(*ConformanceProbe)
	violations := p.ValidateConfig(map[string]interface{}{"wait_ms": -5})
	require.Len(t, violations, 1)
	assert.Equal(t, "wait_ms", violations[0].Field)
}

func TestConformanceProbe_RoutesDomeFramesAndGuideProfiles(t *testing.T) {
	a := NewConformanceProbe("site1", map[string]interface{}{"wait_ms": 200, "frame_cards": true}, zerolog.Nop())
	p := a.(*ConformanceProbe)
	p.Start(false)

	p.NotifyDomeStatusChanged(true)
	cards := p.ReceivedFrame(map[string]interface{}{"EXPTIME": 30})
	require.Len(t, cards, 1)
	assert.Equal(t, "PROBEFRM", cards[0].Key)
	p.ReceivedGuideProfile(map[string]interface{}{}, []float64{1, 2}, []float64{3, 4})

	p.Abort()
	<-p.Done()

	assert.Equal(t, []bool{true}, p.DomeEvents())
	assert.Equal(t, 1, p.FramesSeen())
	assert.Equal(t, 1, p.GuidesSeen())
}

func TestConformanceProbe_AbortDuringWaitEndsInError(t *testing.T) {
	a := NewConformanceProbe("site1", map[string]interface{}{"wait_ms": 5000}, zerolog.Nop())
	p := a.(*ConformanceProbe)
	p.Start(true)

	time.Sleep(10 * time.Millisecond)
	p.Abort()
	<-p.Done()

	assert.Equal(t, model.ActionError, p.Status())
}

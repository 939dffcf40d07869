package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gosight/formsight/internal/classifier"
	"github.com/gosight/formsight/internal/model"
)

func TestGenerate(t *testing.T) {
	tests := []struct {
		name       string
		userType   string
		device     string
		wantTypes  []model.AdaptationType
		wantConfid []float64
	}{
		{
			name: "struggling desktop", userType: classifier.UserTypeStruggling, device: model.DeviceDesktop,
			wantTypes: []model.AdaptationType{model.AdaptationErrorPrevention}, wantConfid: []float64{0.7},
		},
		{
			name: "struggling mobile", userType: classifier.UserTypeStruggling, device: model.DeviceMobile,
			wantTypes:  []model.AdaptationType{model.AdaptationErrorPrevention, model.AdaptationContextSwitching},
			wantConfid: []float64{0.7, 0.8},
		},
		{
			name: "fast desktop", userType: classifier.UserTypeFast, device: model.DeviceDesktop,
			wantTypes: []model.AdaptationType{model.AdaptationProgressiveDisclosure}, wantConfid: []float64{0.6},
		},
		{
			name: "careful tablet", userType: classifier.UserTypeCareful, device: model.DeviceTablet,
			wantTypes: []model.AdaptationType{model.AdaptationCompletionGuidance}, wantConfid: []float64{0.5},
		},
		{
			name: "typical mobile", userType: classifier.UserTypeTypical, device: model.DeviceMobile,
			wantTypes: []model.AdaptationType{model.AdaptationContextSwitching}, wantConfid: []float64{0.8},
		},
		{
			name: "typical desktop", userType: classifier.UserTypeTypical, device: model.DeviceDesktop,
		},
	}

	e := NewEngine()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := e.Generate(Input{SessionID: "s1", FormID: "f1", UserType: tt.userType, DeviceType: tt.device, EventCount: 10})
			require.Len(t, got, len(tt.wantTypes))
			for i, a := range got {
				assert.Equal(t, tt.wantTypes[i], a.AdaptationType)
				assert.Equal(t, tt.wantConfid[i], a.Confidence)
				assert.Equal(t, model.SourceFallback, a.Source())
				assert.Equal(t, "s1", a.SessionID)
				assert.Equal(t, "f1", a.FormID)
				assert.NotEmpty(t, a.ID)
			}
		})
	}
}

func TestGenerateConfigs(t *testing.T) {
	e := NewEngine()

	fast := e.Generate(Input{UserType: classifier.UserTypeFast, EventCount: 3})
	require.Len(t, fast, 1)
	require.NotNil(t, fast[0].Config.ProgressiveDisclosure)
	assert.Equal(t, 3, fast[0].Config.ProgressiveDisclosure.InitialFields)
	assert.Equal(t, "efficiency", fast[0].Config.ProgressiveDisclosure.Strategy)

	struggling := e.Generate(Input{UserType: classifier.UserTypeStruggling, DeviceType: model.DeviceMobile, EventCount: 3})
	require.Len(t, struggling, 2)
	require.NotNil(t, struggling[0].Config.ErrorPrevention)
	assert.True(t, struggling[0].Config.ErrorPrevention.RealtimeValidation)
	assert.True(t, struggling[0].Config.ErrorPrevention.InlineHelp)
	require.NotNil(t, struggling[1].Config.ContextSwitching)
	assert.True(t, struggling[1].Config.ContextSwitching.MobileOptimized)
	assert.True(t, struggling[1].Config.ContextSwitching.ReducedFields)
	assert.NotEqual(t, struggling[0].ID, struggling[1].ID)
}

func TestGenerateNeedsEnoughEvents(t *testing.T) {
	e := NewEngine()
	got := e.Generate(Input{UserType: classifier.UserTypeStruggling, DeviceType: model.DeviceMobile, EventCount: 2})
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

package types

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStagedName(t *testing.T) {
	tests := []struct {
		name      string
		namespace string
		key       string
		expected  string
		wantErr   bool
	}{
		{name: "valid", namespace: "core", key: "feature.enabled", expected: "core*feature.enabled"},
		{name: "empty namespace", namespace: "", key: "k", wantErr: true},
		{name: "empty key", namespace: "ns", key: "", wantErr: true},
		{name: "delimiter in namespace", namespace: "a*b", key: "k", wantErr: true},
		{name: "delimiter in key", namespace: "ns", key: "k*v", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			name, err := StagedName(tt.namespace, tt.key)
			if tt.wantErr {
				assert.True(t, errors.Is(err, ErrInvalidStagedName))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, name)
		})
	}
}

func TestParseStagedName(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		namespace string
		key       string
		wantErr   bool
	}{
		{name: "valid", input: "core*flag", namespace: "core", key: "flag"},
		{name: "no delimiter", input: "coreflag", wantErr: true},
		{name: "three parts", input: "a*b*c", wantErr: true},
		{name: "empty namespace", input: "*flag", wantErr: true},
		{name: "empty key", input: "core*", wantErr: true},
		{name: "empty", input: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ns, key, err := ParseStagedName(tt.input)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidStagedName)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.namespace, ns)
			assert.Equal(t, tt.key, key)
		})
	}
}

func TestStagedNameRoundTrip(t *testing.T) {
	name, err := StagedName("telephony", "sim.replay")
	require.NoError(t, err)

	ns, key, err := ParseStagedName(name)
	require.NoError(t, err)
	assert.Equal(t, "telephony", ns)
	assert.Equal(t, "sim.replay", key)
}

func TestRebootWindowContains(t *testing.T) {
	tests := []struct {
		name   string
		window RebootWindow
		hour   int
		want   bool
	}{
		{name: "start hour inclusive", window: RebootWindow{StartHour: 2, EndHour: 3}, hour: 2, want: true},
		{name: "end hour exclusive", window: RebootWindow{StartHour: 2, EndHour: 3}, hour: 3, want: false},
		{name: "before window", window: RebootWindow{StartHour: 1, EndHour: 5}, hour: 0, want: false},
		{name: "inside default", window: DefaultRebootWindow(), hour: 4, want: true},
		{name: "wrapping late", window: RebootWindow{StartHour: 22, EndHour: 4}, hour: 23, want: true},
		{name: "wrapping early", window: RebootWindow{StartHour: 22, EndHour: 4}, hour: 3, want: true},
		{name: "wrapping outside", window: RebootWindow{StartHour: 22, EndHour: 4}, hour: 12, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.window.Contains(tt.hour))
		})
	}
}

func TestRebootWindowValidate(t *testing.T) {
	assert.NoError(t, DefaultRebootWindow().Validate())
	assert.Error(t, RebootWindow{StartHour: -1, EndHour: 3, FrequencyDays: 1}.Validate())
	assert.Error(t, RebootWindow{StartHour: 1, EndHour: 24, FrequencyDays: 1}.Validate())
	assert.Error(t, RebootWindow{StartHour: 3, EndHour: 3, FrequencyDays: 1}.Validate())
	assert.Error(t, RebootWindow{StartHour: 1, EndHour: 3, FrequencyDays: 0}.Validate())
}

func TestDecisionRebooting(t *testing.T) {
	assert.True(t, DecisionRebootNow.Rebooting())
	assert.True(t, DecisionFallbackRegularReboot.Rebooting())
	assert.False(t, DecisionRescheduleThrottled.Rebooting())
	assert.False(t, DecisionRescheduleAfterNetwork.Rebooting())
}

package logger

import (
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestLevels(t *testing.T) {
	for _, tc := range []struct {
		name          string
		expectedLevel zapcore.Level
	}{
		{
			name:          "Info",
			expectedLevel: zapcore.InfoLevel,
		},
		{
			name:          "Debug",
			expectedLevel: zapcore.DebugLevel,
		},
		{
			name:          "Warn",
			expectedLevel: zapcore.WarnLevel,
		},
		{
			name:          "Error",
			expectedLevel: zapcore.ErrorLevel,
		},
	} {
		observerLogger, logs := observer.New(zap.DebugLevel)
		dut := ZapLogger{zap.New(observerLogger)}
		const testMessage = "ABC"
		switch tc.name {
		case "Info":
			dut.Info(testMessage)
		case "Debug":
			dut.Debug(testMessage)
		case "Warn":
			dut.Warn(testMessage)
		case "Error":
			dut.Error(testMessage)
		default:
			t.Errorf("%s: Unknown name", tc.name)
		}
		require.Equal(t, 1, logs.Len())

		actualMessage := logs.All()[0]
		require.Equal(t, testMessage, actualMessage.Message)
		require.Equal(t, map[string]interface{}{}, actualMessage.ContextMap())
		require.Equal(t, tc.expectedLevel, actualMessage.Level)
	}
}

func TestWithCarriesFields(t *testing.T) {
	log, logs := NewObserverLogger("debug")
	child := log.With(zap.String("plot", "p1"))
	child.Info("pass complete", zap.Int("pass", 2))

	require.Equal(t, 1, logs.Len())
	entry := logs.All()[0]
	require.Equal(t, map[string]interface{}{"plot": "p1", "pass": int64(2)}, entry.ContextMap())
}

func TestNewLogger(t *testing.T) {
	testcases := map[string]struct {
		format, level string
		wantErr       bool
	}{
		`text_info`:  {format: "text", level: "info"},
		`json_debug`: {format: "json", level: "debug"},
		`none_level`: {format: "bogus", level: "none"},
		`bad_level`:  {format: "json", level: "verbose", wantErr: true},
		`bad_format`: {format: "xml", level: "info", wantErr: true},
	}

	for name, tc := range testcases {
		t.Run(name, func(t *testing.T) {
			l, err := NewLogger(tc.format, tc.level)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.NotNil(t, l)
		})
	}
}

func TestMustNewLoggerPanics(t *testing.T) {
	require.Panics(t, func() { MustNewLogger("json", "loud") })
}

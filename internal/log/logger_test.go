package log

import (
	"bytes"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func TestNewLoggerLevels(t *testing.T) {
	tests := []struct {
		in   string
		want logrus.Level
	}{
		{"debug", logrus.DebugLevel},
		{"WARN", logrus.WarnLevel},
		{" error ", logrus.ErrorLevel},
		{"", logrus.InfoLevel},
		{"nonsense", logrus.InfoLevel},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, newLogger(tt.in).GetLevel())
		})
	}
}

func TestWithComponentSetsField(t *testing.T) {
	var buf bytes.Buffer
	l := Get()
	orig := l.Out
	l.SetOutput(&buf)
	t.Cleanup(func() { l.SetOutput(orig) })

	WithComponent("dispatch").Info("hello")

	assert.Contains(t, buf.String(), "component=dispatch")
	assert.Contains(t, buf.String(), "hello")
}

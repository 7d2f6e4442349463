package log

import (
	"bufio"
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoglevelNames(t *testing.T) {
	assert.Equal(t, "DEBUG", Ldebug.String())
	assert.Equal(t, "ERROR", Lerror.String())
	assert.Equal(t, "WARN", Lwarn.String())
	assert.Equal(t, "INFO", Linfo.String())
	assert.Equal(t, "SILENT", Lsilent.String())
}

func TestLogColorToNotTTY(t *testing.T) {
	var buffer bytes.Buffer
	writer := bufio.NewWriter(&buffer)

	w := NewConsoleWriter(writer, Linfo, true).(*syncWriter)
	formatter := w.writer.(*consoleWriter).formatter.(*consoleFormatter)

	assert.NotEqual(t, true, formatter.color, "Color should not be used on a buffer logger")
}

func TestLogComponent(t *testing.T) {
	var buffer bytes.Buffer
	writer := bufio.NewWriter(&buffer)

	logger := New("test").WithOutput(NewConsoleWriter(writer, Linfo, false))

	logger.Info().Log("info")
	writer.Flush()

	assert.Contains(t, buffer.String(), `component="test"`)

	buffer.Reset()

	logger2 := logger.WithComponent("tset")

	logger2.Info().Log("info")
	writer.Flush()

	assert.Contains(t, buffer.String(), `component="tset"`)
}

func TestLogSilent(t *testing.T) {
	var buffer bytes.Buffer
	writer := bufio.NewWriter(&buffer)

	logger := New("test").WithOutput(NewConsoleWriter(writer, Lsilent, false))

	logger.Debug().Log("debug")
	logger.Info().Log("info")
	logger.Warn().Log("warn")
	logger.Error().Log("error")
	writer.Flush()

	assert.Equal(t, 0, buffer.Len(), "Buffer should be empty")
}

func TestLogLevels(t *testing.T) {
	var buffer bytes.Buffer
	writer := bufio.NewWriter(&buffer)

	logger := New("test").WithOutput(NewConsoleWriter(writer, Lwarn, false))

	logger.Debug().Log("debug")
	logger.Info().Log("info")
	writer.Flush()
	assert.Equal(t, 0, buffer.Len())

	logger.Warn().Log("warn")
	writer.Flush()
	assert.Contains(t, buffer.String(), `level=WARN`)

	buffer.Reset()

	logger.Error().Log("error")
	writer.Flush()
	assert.Contains(t, buffer.String(), `level=ERROR`)
}

func TestLogFields(t *testing.T) {
	var buffer bytes.Buffer
	writer := bufio.NewWriter(&buffer)

	logger := New("test").WithOutput(NewConsoleWriter(writer, Linfo, false))

	logger.Info().WithField("frames", 42).WithField("size", "640x480").Log("grabbed")
	writer.Flush()

	assert.Contains(t, buffer.String(), `frames=42`)
	assert.Contains(t, buffer.String(), `size="640x480"`)
	assert.Contains(t, buffer.String(), `msg="grabbed"`)
}

func TestLogBufferWriter(t *testing.T) {
	writer := NewBufferWriter(Linfo, 3)

	logger := New("test").WithOutput(writer)

	logger.Info().Log("one")
	logger.Info().Log("two")
	logger.Debug().Log("dropped")

	events := writer.Events()
	assert.Equal(t, 2, len(events))
	assert.Equal(t, "one", events[0].Message)
	assert.Equal(t, "two", events[1].Message)
}

package logger

import (
	"bytes"
	"log/slog"
	"os"
	"regexp"
	"testing"

	"github.com/nax-project/evfs/cfg"
	"github.com/nax-project/evfs/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	textTraceString = `^time=\S+ severity=TRACE msg="www.traceExample.com"`
	textDebugString = `^time=\S+ severity=DEBUG msg="www.debugExample.com"`
	textInfoString  = `^time=\S+ severity=INFO msg="www.infoExample.com"`
	textWarnString  = `^time=\S+ severity=WARNING msg="www.warningExample.com"`
	textErrorString = `^time=\S+ severity=ERROR msg="www.errorExample.com"`

	jsonTraceString = `"severity":"TRACE","msg":"www.traceExample.com"`
	jsonDebugString = `"severity":"DEBUG","msg":"www.debugExample.com"`
	jsonInfoString  = `"severity":"INFO","msg":"www.infoExample.com"`
	jsonWarnString  = `"severity":"WARNING","msg":"www.warningExample.com"`
	jsonErrorString = `"severity":"ERROR","msg":"www.errorExample.com"`
)

func redirectLogsToBuffer(t *testing.T, buf *bytes.Buffer, format, level string) {
	t.Helper()
	defaultLoggerFactory.format = format
	defaultLogger = slog.New(defaultLoggerFactory.createJsonOrTextHandler(buf, toLevelVar(level), ""))
}

func emitAll() []func() {
	return []func(){
		func() { Tracef("www.traceExample.com") },
		func() { Debugf("www.debugExample.com") },
		func() { Infof("www.infoExample.com") },
		func() { Warnf("www.warningExample.com") },
		func() { Errorf("www.errorExample.com") },
	}
}

func collect(t *testing.T, format, level string) []string {
	t.Helper()
	var buf bytes.Buffer
	redirectLogsToBuffer(t, &buf, format, level)

	var out []string
	for _, f := range emitAll() {
		f()
		out = append(out, buf.String())
		buf.Reset()
	}
	return out
}

func assertLevels(t *testing.T, expected, actual []string) {
	t.Helper()
	for i := range actual {
		if expected[i] == "" {
			assert.Empty(t, actual[i])
			continue
		}
		assert.Regexp(t, regexp.MustCompile(expected[i]), actual[i])
	}
}

func TestSeverityFiltering_Text(t *testing.T) {
	cases := []struct {
		level    string
		expected []string
	}{
		{config.OFF, []string{"", "", "", "", ""}},
		{config.ERROR, []string{"", "", "", "", textErrorString}},
		{config.WARNING, []string{"", "", "", textWarnString, textErrorString}},
		{config.INFO, []string{"", "", textInfoString, textWarnString, textErrorString}},
		{config.DEBUG, []string{"", textDebugString, textInfoString, textWarnString, textErrorString}},
		{config.TRACE, []string{textTraceString, textDebugString, textInfoString, textWarnString, textErrorString}},
	}
	for _, c := range cases {
		assertLevels(t, c.expected, collect(t, "text", c.level))
	}
}

func TestSeverityFiltering_JSON(t *testing.T) {
	cases := []struct {
		level    string
		expected []string
	}{
		{config.OFF, []string{"", "", "", "", ""}},
		{config.ERROR, []string{"", "", "", "", jsonErrorString}},
		{config.WARNING, []string{"", "", "", jsonWarnString, jsonErrorString}},
		{config.INFO, []string{"", "", jsonInfoString, jsonWarnString, jsonErrorString}},
		{config.DEBUG, []string{"", jsonDebugString, jsonInfoString, jsonWarnString, jsonErrorString}},
		{config.TRACE, []string{jsonTraceString, jsonDebugString, jsonInfoString, jsonWarnString, jsonErrorString}},
	}
	for _, c := range cases {
		assertLevels(t, c.expected, collect(t, "json", c.level))
	}
}

func TestSetLoggingLevel(t *testing.T) {
	cases := []struct {
		input    string
		expected slog.Level
	}{
		{config.TRACE, LevelTrace},
		{config.DEBUG, LevelDebug},
		{config.INFO, LevelInfo},
		{config.WARNING, LevelWarn},
		{config.ERROR, LevelError},
		{config.OFF, LevelOff},
	}
	for _, c := range cases {
		v := new(slog.LevelVar)
		setLoggingLevel(c.input, v)
		assert.Equal(t, c.expected, v.Level())
	}
}

func TestInitLogFile(t *testing.T) {
	path := t.TempDir() + "/log.txt"
	legacy := config.LogConfig{LogRotateConfig: config.LogRotateConfig{MaxFileSizeMB: 100, BackupFileCount: 2, Compress: true}}
	c := cfg.LoggingConfig{FilePath: cfg.ResolvedPath(path), Severity: config.DEBUG, Format: "text"}

	err := InitLogFile(legacy, c)

	require.NoError(t, err)
	assert.Equal(t, path, defaultLoggerFactory.file.Name())
	assert.Nil(t, defaultLoggerFactory.sysWriter)
	assert.Equal(t, "text", defaultLoggerFactory.format)
	assert.Equal(t, config.DEBUG, defaultLoggerFactory.level)
	assert.Equal(t, 100, defaultLoggerFactory.logRotateConfig.MaxFileSizeMB)
	assert.Equal(t, 2, defaultLoggerFactory.logRotateConfig.BackupFileCount)
	assert.True(t, defaultLoggerFactory.logRotateConfig.Compress)

	_ = os.Remove(path)
}

func TestSetLogFormat(t *testing.T) {
	defaultLoggerFactory = &loggerFactory{
		sysWriter:       os.Stderr,
		level:           config.INFO,
		logRotateConfig: config.DefaultLogRotateConfig(),
	}

	for _, format := range []string{"text", "json"} {
		SetLogFormat(format)
		assert.Equal(t, format, defaultLoggerFactory.format)

		var buf bytes.Buffer
		redirectLogsToBuffer(t, &buf, format, config.INFO)
		Infof("www.infoExample.com")

		if format == "text" {
			assert.Regexp(t, regexp.MustCompile(textInfoString), buf.String())
		} else {
			assert.Regexp(t, regexp.MustCompile(jsonInfoString), buf.String())
		}
	}
}

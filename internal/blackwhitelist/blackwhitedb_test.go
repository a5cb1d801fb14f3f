package blackwhitelist

import (
	"path/filepath"
	"strings"
	"testing"

	"github.com/Hara602/usbGuard/internal/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func openStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "rules.db"), opts...)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestIsBlocked(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.AddBlockRule("0781", "5581", "4C530001", "lost drive"))
	// 重复插入被忽略
	require.NoError(t, s.AddBlockRule("0781", "5581", "4C530001", "other reason"))

	blocked, reason, err := s.IsBlocked("0781", "5581", "4C530001")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "lost drive", reason)

	blocked, _, err = s.IsBlocked("0781", "5581", "OTHER")
	require.NoError(t, err)
	assert.False(t, blocked)

	// 默认不拦截无序列号设备
	blocked, _, err = s.IsBlocked("046d", "c52b", "")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestIsBlockedEmptySerialRule(t *testing.T) {
	s := openStore(t, WithBlockEmptySerial(true))

	blocked, reason, err := s.IsBlocked("046d", "c52b", "")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "Unknown or empty serial number", reason)

	blocked, _, err = s.IsBlocked("046d", "c52b", "000000000000")
	require.NoError(t, err)
	assert.True(t, blocked)

	blocked, _, err = s.IsBlocked("046d", "c52b", "ABC")
	require.NoError(t, err)
	assert.False(t, blocked)
}

func TestIsBlockedEmptyReason(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.AddBlockRule("abcd", "ef01", "S1", ""))
	blocked, reason, err := s.IsBlocked("ABCD", "EF01", "S1")
	require.NoError(t, err)
	assert.True(t, blocked)
	assert.Equal(t, "Device is in blacklist", reason)
}

func TestRulesSurviveReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rules.db")
	s, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s.AddBlockRule("0781", "5581", "S", "r"))
	require.NoError(t, s.Close())

	s, err = Open(path)
	require.NoError(t, err)
	defer s.Close()
	blocked, _, err := s.IsBlocked("0781", "5581", "S")
	require.NoError(t, err)
	assert.True(t, blocked)
}

func TestAnnotate(t *testing.T) {
	s := openStore(t)
	require.NoError(t, s.AddBlockRule("0781", "5581", "4C530001", "lost drive"))

	blocked := model.DeviceRecord{PNPID: model.FormatPNPID("0781", "5581", "4C530001")}
	assert.Equal(t, []string{"  Blocked: lost drive"}, s.Annotate(blocked))

	allowed := model.DeviceRecord{PNPID: model.FormatPNPID("0781", "5581", "OTHER")}
	assert.Nil(t, s.Annotate(allowed))

	noSerial := model.DeviceRecord{PNPID: model.FormatPNPID("046d", "c077", "")}
	assert.Nil(t, s.Annotate(noSerial))

	assert.Nil(t, s.Annotate(model.DeviceRecord{PNPID: "garbage"}))
}

func TestAnnotateReportsLookupFailure(t *testing.T) {
	core, logs := observer.New(zapcore.ErrorLevel)
	s := openStore(t, WithLogger(zap.New(core)))
	require.NoError(t, s.AddBlockRule("046d", "c52b", "ABC", "evil"))

	rec := model.DeviceRecord{PNPID: model.FormatPNPID("046d", "c52b", "ABC")}
	require.Equal(t, []string{"  Blocked: evil"}, s.Annotate(rec))

	_, err := s.db.Exec("DROP TABLE blackwhitelist")
	require.NoError(t, err)

	blocked, _, err := s.IsBlocked("046d", "c52b", "ABC")
	assert.Error(t, err)
	assert.False(t, blocked)

	lines := s.Annotate(rec)
	require.Len(t, lines, 1)
	assert.True(t, strings.HasPrefix(lines[0], "  Blocklist lookup failed: "), lines[0])
	assert.Equal(t, 1, logs.FilterMessage("blocklist lookup failed").Len())
}

func TestAnnotateClosedStore(t *testing.T) {
	s, err := Open(filepath.Join(t.TempDir(), "rules.db"))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	lines := s.Annotate(model.DeviceRecord{PNPID: model.FormatPNPID("046d", "c52b", "ABC")})
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "Blocklist lookup failed")
}

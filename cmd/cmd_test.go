package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/ca-srg/twangy/internal/chat"
	"github.com/ca-srg/twangy/internal/config"
	"github.com/ca-srg/twangy/internal/nlu"
	"github.com/ca-srg/twangy/internal/observability"
)

func TestNewLogger(t *testing.T) {
	l, err := newLogger(false, "")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.False(t, l.Core().Enabled(zapcore.DebugLevel))

	l, err = newLogger(false, "warn")
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))

	l, err = newLogger(true, "error")
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zapcore.DebugLevel), "verbose wins over LOG_LEVEL")

	_, err = newLogger(false, "chatty")
	require.Error(t, err)
}

func TestRootPreRunInstallsGlobalLogger(t *testing.T) {
	prevLogger, prevVerbose := logger, verbose
	t.Cleanup(func() {
		logger, verbose = prevLogger, prevVerbose
		zap.ReplaceGlobals(zap.NewNop())
	})
	zap.ReplaceGlobals(zap.NewNop())

	verbose = true
	require.NoError(t, rootCmd.PersistentPreRunE(rootCmd, nil))

	assert.Same(t, logger, zap.L())
	assert.True(t, zap.L().Core().Enabled(zapcore.DebugLevel))
}

func TestNewPlatform_Unsupported(t *testing.T) {
	_, err := newPlatform("irc", logger)
	require.ErrorIs(t, err, config.ErrUnsupportedPlatform)
}

func TestNewPlatform_MissingToken(t *testing.T) {
	t.Setenv("DISCORD_TOKEN", "")
	require.NoError(t, os.Unsetenv("DISCORD_TOKEN"))

	_, err := newPlatform(config.PlatformDiscord, logger)
	require.Error(t, err)
}

func TestNewUnderstander(t *testing.T) {
	u, err := newUnderstander(context.Background(), &config.Config{})
	require.NoError(t, err)
	assert.Nil(t, u)

	u, err = newUnderstander(context.Background(), &config.Config{NLUAPIKey: "key", NLUModel: "m"})
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "m", u.(*nlu.Client).Model())
}

// closedPlatform delivers no events and ends the session immediately.
type closedPlatform struct {
	events chan chat.Event
}

func (p *closedPlatform) Connect(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}
func (p *closedPlatform) Events() <-chan chat.Event { return p.events }
func (p *closedPlatform) Disconnect() error        { return nil }
func (p *closedPlatform) SendMessage(ctx context.Context, channelID, text string) error {
	return nil
}

func TestRunBot_FlushesTelemetryOnExit(t *testing.T) {
	p := &closedPlatform{events: make(chan chat.Event)}
	close(p.events)

	var flushed atomic.Bool
	flush := func(context.Context) error {
		flushed.Store(true)
		return nil
	}

	require.NoError(t, runBot(context.Background(), p, nil, flush))
	assert.True(t, flushed.Load())
}

func TestUnderstandCommand(t *testing.T) {
	var path string
	gemini := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"candidates": []map[string]any{{
				"content": map[string]any{
					"role":  "model",
					"parts": []map[string]any{{"text": `{"intent":"greeting","confidence":0.8}`}},
				},
			}},
		})
	}))
	t.Cleanup(gemini.Close)

	t.Setenv("NLU_API_KEY", "test-key")
	t.Setenv("NLU_MODEL", "test-model")
	t.Setenv("NLU_BASE_URL", gemini.URL)
	t.Setenv("BOT_PLATFORM", "slack")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"understand", "twangy", "hello"})
	t.Cleanup(func() {
		rootCmd.SetOut(nil)
		rootCmd.SetArgs(nil)
	})

	require.NoError(t, rootCmd.ExecuteContext(context.Background()))
	assert.True(t, strings.HasSuffix(path, "test-model:generateContent"), path)

	var got nlu.Understanding
	require.NoError(t, json.Unmarshal(out.Bytes(), &got))
	assert.Equal(t, "twangy hello", got.Text)
	assert.Equal(t, "greeting", got.Intent)
}

func TestUnderstandCommand_RequiresKey(t *testing.T) {
	t.Setenv("NLU_API_KEY", "")
	t.Setenv("BOT_PLATFORM", "slack")

	rootCmd.SetArgs([]string{"understand", "twangy"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})

	err := rootCmd.ExecuteContext(context.Background())
	require.ErrorIs(t, err, nlu.ErrMissingToken)
}

func TestBotCommand_FlushesTelemetryWhenSetupFails(t *testing.T) {
	var flushes atomic.Int32
	prev := initTelemetry
	initTelemetry = func(ctx context.Context, cfg *config.Config, _ *zap.Logger) (observability.Flush, error) {
		return func(context.Context) error {
			flushes.Add(1)
			return nil
		}, nil
	}
	t.Cleanup(func() { initTelemetry = prev })

	t.Setenv("BOT_PLATFORM", "discord")
	t.Setenv("NLU_API_KEY", "")
	t.Setenv("DISCORD_TOKEN", "")
	require.NoError(t, os.Unsetenv("DISCORD_TOKEN"))

	rootCmd.SetArgs([]string{"bot"})
	rootCmd.SetErr(&bytes.Buffer{})
	t.Cleanup(func() {
		rootCmd.SetArgs(nil)
		rootCmd.SetErr(nil)
	})

	require.Error(t, rootCmd.ExecuteContext(context.Background()))
	assert.Equal(t, int32(1), flushes.Load())
}

package infra

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestURITransport_BuildURI(t *testing.T) {
	transport := NewURITransportWithDeps("", "linux", &mockCommandRunner{}, zap.NewNop())

	tests := []struct {
		name     string
		payload  string
		callback string
		want     string
	}{
		{name: "plain", payload: "ABC", want: "ncalayer://sign?data=ABC"},
		{name: "space as %20", payload: "A B", want: "ncalayer://sign?data=A%20B"},
		{name: "reserved characters", payload: "a+b/c=", want: "ncalayer://sign?data=a%2Bb%2Fc%3D"},
		{
			name:     "with callback",
			payload:  "X",
			callback: "http://127.0.0.1:13600/callback?token=t",
			want:     "ncalayer://sign?data=X&callback=http%3A%2F%2F127.0.0.1%3A13600%2Fcallback%3Ftoken%3Dt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, transport.BuildURI(tt.payload, tt.callback))
		})
	}
}

func TestOpenerCommand(t *testing.T) {
	tests := []struct {
		goos     string
		wantName string
		wantArgs []string
	}{
		{goos: "darwin", wantName: "open"},
		{goos: "windows", wantName: "rundll32", wantArgs: []string{"url.dll,FileProtocolHandler"}},
		{goos: "linux", wantName: "xdg-open"},
		{goos: "freebsd", wantName: "xdg-open"},
	}

	for _, tt := range tests {
		t.Run(tt.goos, func(t *testing.T) {
			name, args := OpenerCommand(tt.goos)
			assert.Equal(t, tt.wantName, name)
			assert.Equal(t, tt.wantArgs, args)
		})
	}
}

func TestURITransport_Dispatch(t *testing.T) {
	runner := &mockCommandRunner{}
	transport := NewURITransportWithDeps("ncalayer", "windows", runner, zap.NewNop())

	err := transport.Dispatch(context.Background(), testRequest(), "")

	require.NoError(t, err)
	require.Len(t, runner.started, 1)
	assert.Equal(t, []string{
		"rundll32",
		"url.dll,FileProtocolHandler",
		"ncalayer://sign?data=ABC%20XYZ%2B%2F%3D",
	}, runner.started[0])
}

func TestURITransport_DispatchFailure(t *testing.T) {
	runner := &mockCommandRunner{startErr: errors.New("exec: not found")}
	transport := NewURITransportWithDeps("ncalayer", "linux", runner, zap.NewNop())

	err := transport.Dispatch(context.Background(), testRequest(), "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to open ncalayer URI")
}

func TestURITransport_DispatchAfterCancel(t *testing.T) {
	runner := &mockCommandRunner{}
	transport := NewURITransportWithDeps("ncalayer", "linux", runner, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := transport.Dispatch(ctx, testRequest(), "")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Empty(t, runner.started)
}

func TestURITransport_Available(t *testing.T) {
	withOpener := NewURITransportWithDeps("", "linux", &mockCommandRunner{onPath: map[string]bool{"xdg-open": true}}, zap.NewNop())
	without := NewURITransportWithDeps("", "linux", &mockCommandRunner{}, zap.NewNop())

	assert.True(t, withOpener.Available())
	assert.False(t, without.Available())
	assert.Equal(t, "uri", without.Name())
}

package provider_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/domain"
	"github.com/dengzhuofu/foodai-agent/pkg/provider"
	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var mcd = provider.Endpoint{Name: "mcdonalds", URL: "http://mcd.invalid/mcp"}

func TestSession_EnsureConnectedIsIdempotent(t *testing.T) {
	d := &fakeDialer{}
	sess := provider.NewSession("alice", mcd, "tok", provider.WithDialer(d.dial))
	ctx := context.Background()

	assert.Equal(t, provider.StateDisconnected, sess.State())
	require.NoError(t, sess.EnsureConnected(ctx))
	require.NoError(t, sess.EnsureConnected(ctx))

	assert.Equal(t, provider.StateReady, sess.State())
	assert.Equal(t, 1, d.dials())
	assert.Equal(t, 1, d.conn(0).inits, "a Ready session performs no handshake")
	assert.Equal(t, []string{"tok"}, d.credentials)
}

func TestSession_ConcurrentEnsureConnectedHandshakesOnce(t *testing.T) {
	d := &fakeDialer{next: func(n int, _ provider.Transport) (*fakeConn, error) {
		return &fakeConn{initDelay: 20 * time.Millisecond}, nil
	}}
	sess := provider.NewSession("alice", mcd, "tok", provider.WithDialer(d.dial))

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, sess.EnsureConnected(context.Background()))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, d.dials())
}

func TestSession_HandshakeFailureLeavesSessionUsable(t *testing.T) {
	d := &fakeDialer{next: func(n int, _ provider.Transport) (*fakeConn, error) {
		if n == 0 {
			return &fakeConn{initErr: errors.New("401 unauthorized")}, nil
		}
		return &fakeConn{}, nil
	}}
	sess := provider.NewSession("alice", mcd, "tok", provider.WithDialer(d.dial))
	ctx := context.Background()

	err := sess.EnsureConnected(ctx)
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrConnection)
	assert.Equal(t, provider.StateDisconnected, sess.State())
	assert.True(t, d.conn(0).isClosed())

	require.NoError(t, sess.EnsureConnected(ctx), "a failed handshake never poisons the session")
	assert.Equal(t, provider.StateReady, sess.State())
}

func TestSession_AutoTransportFallsBackToSSE(t *testing.T) {
	d := &fakeDialer{next: func(n int, tr provider.Transport) (*fakeConn, error) {
		if tr == provider.TransportStreamable {
			return nil, errors.New("405 method not allowed")
		}
		return &fakeConn{}, nil
	}}
	ep := mcd
	ep.Transport = provider.TransportAuto
	sess := provider.NewSession("alice", ep, "tok", provider.WithDialer(d.dial))

	require.NoError(t, sess.EnsureConnected(context.Background()))
	assert.Equal(t, []provider.Transport{provider.TransportStreamable, provider.TransportSSE}, d.transports)
}

func TestSession_ListToolsCachesUntilReconnect(t *testing.T) {
	tools := []mcp.Tool{
		mcp.NewTool("query-meals", mcp.WithDescription("List meals"), mcp.WithString("store", mcp.Required())),
		{Name: "now-time-info", Description: "Current time"},
	}
	d := &fakeDialer{next: func(n int, _ provider.Transport) (*fakeConn, error) {
		return &fakeConn{tools: tools}, nil
	}}
	sess := provider.NewSession("alice", mcd, "tok", provider.WithDialer(d.dial))
	ctx := context.Background()

	descs, err := sess.ListTools(ctx)
	require.NoError(t, err)
	require.Len(t, descs, 2)
	assert.Equal(t, "query-meals", descs[0].Name)
	assert.Equal(t, domain.ToolKindRemote, descs[0].Kind)
	assert.Equal(t, "mcdonalds", descs[0].Provider)
	assert.Equal(t, "object", descs[0].Parameters["type"])
	assert.Contains(t, descs[0].Parameters["properties"], "store")
	assert.Equal(t, "object", descs[1].Parameters["type"], "missing schemas default to an object")

	d.conn(0).mu.Lock()
	d.conn(0).tools = nil
	d.conn(0).mu.Unlock()

	again, err := sess.ListTools(ctx)
	require.NoError(t, err)
	assert.Len(t, again, 2)
}

func TestSession_ListToolsErrorTearsDown(t *testing.T) {
	d := &fakeDialer{next: func(n int, _ provider.Transport) (*fakeConn, error) {
		return &fakeConn{listErr: errBrokenPipe}, nil
	}}
	sess := provider.NewSession("alice", mcd, "tok", provider.WithDialer(d.dial))

	_, err := sess.ListTools(context.Background())
	assert.ErrorIs(t, err, errBrokenPipe)
	assert.Equal(t, provider.StateDisconnected, sess.State())
	assert.True(t, d.conn(0).isClosed())
}

func TestSession_CallTransportErrorTearsDown(t *testing.T) {
	d := &fakeDialer{next: func(n int, _ provider.Transport) (*fakeConn, error) {
		return &fakeConn{callErrs: []error{errBrokenPipe}}, nil
	}}
	sess := provider.NewSession("alice", mcd, "tok", provider.WithDialer(d.dial))
	ctx := context.Background()

	res, err := sess.Call(ctx, "query-meals", map[string]any{"store": "1"})
	require.ErrorIs(t, err, errBrokenPipe)
	assert.False(t, res.OK)
	assert.Equal(t, provider.StateDisconnected, sess.State())
	assert.True(t, d.conn(0).isClosed())

	res, err = sess.Call(ctx, "query-meals", nil)
	require.NoError(t, err)
	assert.True(t, res.OK)
	assert.Equal(t, 2, d.dials(), "the next call reconnects exactly once")
}

func TestSession_CallTimeoutIsTransportError(t *testing.T) {
	d := &fakeDialer{next: func(n int, _ provider.Transport) (*fakeConn, error) {
		return &fakeConn{callErrs: []error{context.DeadlineExceeded}}, nil
	}}
	ep := mcd
	ep.CallTimeout = time.Second
	sess := provider.NewSession("alice", ep, "tok", provider.WithDialer(d.dial))

	_, err := sess.Call(context.Background(), "slow", nil)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, provider.StateDisconnected, sess.State())
}

func TestSession_HandshakeLockReleasedAfterCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	d := &fakeDialer{next: func(n int, _ provider.Transport) (*fakeConn, error) {
		// The request goes away while the handshake holds the lock.
		cancel()
		return &fakeConn{}, nil
	}}
	locker := &recordingLocker{}
	sess := provider.NewSession("alice", mcd, "tok",
		provider.WithDialer(d.dial),
		provider.WithLocker(locker, time.Minute),
	)

	require.NoError(t, sess.EnsureConnected(ctx))

	assert.Equal(t, []string{"provider:mcdonalds:alice"}, locker.keys)
	require.Len(t, locker.unlockErr, 1)
	assert.NoError(t, locker.unlockErr[0], "unlock must not inherit the cancelled request context")
}

func TestSession_CloseIsSafeTwice(t *testing.T) {
	d := &fakeDialer{}
	sess := provider.NewSession("alice", mcd, "tok", provider.WithDialer(d.dial))
	require.NoError(t, sess.EnsureConnected(context.Background()))

	sess.Close()
	sess.Close()

	assert.True(t, d.conn(0).isClosed())
	assert.Equal(t, provider.StateDisconnected, sess.State())
}

func TestSession_Formatter(t *testing.T) {
	d := &fakeDialer{}
	sess := provider.NewSession("alice", mcd, "tok",
		provider.WithDialer(d.dial),
		provider.WithFormatter("query-meals", func(s string) string { return "**" + s + "**" }),
	)

	res, err := sess.Call(context.Background(), "query-meals", nil)
	require.NoError(t, err)
	assert.Equal(t, "**called query-meals**", res.Text)
}

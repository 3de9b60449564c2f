package provider_test

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/dengzhuofu/foodai-agent/pkg/ports"
	"github.com/dengzhuofu/foodai-agent/pkg/provider"
	"github.com/mark3labs/mcp-go/mcp"
)

var errBrokenPipe = errors.New("broken pipe")

// fakeConn is a scriptable provider connection.
type fakeConn struct {
	mu        sync.Mutex
	inits     int
	calls     int
	closed    bool
	initErr   error
	callErrs  []error // consumed one per call
	listErr   error
	tools     []mcp.Tool
	initDelay time.Duration
	toolError string // returned as an isError result
	lastArgs  any

	// When set, CallTool signals entered and then blocks until gate is closed.
	entered chan<- struct{}
	gate    <-chan struct{}
}

func (c *fakeConn) Start(ctx context.Context) error { return nil }

func (c *fakeConn) Initialize(ctx context.Context, req mcp.InitializeRequest) (*mcp.InitializeResult, error) {
	if c.initDelay > 0 {
		time.Sleep(c.initDelay)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.inits++
	if c.initErr != nil {
		return nil, c.initErr
	}
	return &mcp.InitializeResult{ProtocolVersion: req.Params.ProtocolVersion}, nil
}

func (c *fakeConn) ListTools(ctx context.Context, req mcp.ListToolsRequest) (*mcp.ListToolsResult, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.listErr != nil {
		return nil, c.listErr
	}
	return &mcp.ListToolsResult{Tools: c.tools}, nil
}

func (c *fakeConn) CallTool(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	if c.entered != nil {
		c.entered <- struct{}{}
	}
	if c.gate != nil {
		<-c.gate
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	c.lastArgs = req.Params.Arguments
	if len(c.callErrs) > 0 {
		err := c.callErrs[0]
		c.callErrs = c.callErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	if c.toolError != "" {
		return mcp.NewToolResultError(c.toolError), nil
	}
	return mcp.NewToolResultText("called " + req.Params.Name), nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed = true
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// fakeDialer hands out connections built by next, recording every dial.
type fakeDialer struct {
	mu          sync.Mutex
	conns       []*fakeConn
	credentials []string
	transports  []provider.Transport
	next        func(n int, t provider.Transport) (*fakeConn, error)
}

func (d *fakeDialer) dial(ctx context.Context, ep provider.Endpoint, t provider.Transport, credential string) (provider.Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.credentials = append(d.credentials, credential)
	d.transports = append(d.transports, t)
	if d.next == nil {
		c := &fakeConn{}
		d.conns = append(d.conns, c)
		return c, nil
	}
	c, err := d.next(len(d.conns), t)
	if err != nil {
		return nil, err
	}
	d.conns = append(d.conns, c)
	return c, nil
}

func (d *fakeDialer) dials() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.transports)
}

func (d *fakeDialer) conn(i int) *fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.conns[i]
}

func (d *fakeDialer) all() []*fakeConn {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]*fakeConn(nil), d.conns...)
}

// recordingLocker grants every lock and records the context state seen by each unlock.
type recordingLocker struct {
	mu        sync.Mutex
	keys      []string
	unlockErr []error
}

func (l *recordingLocker) Lock(ctx context.Context, key string, ttl time.Duration) (ports.UnlockFunc, error) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	l.mu.Unlock()
	return func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		l.unlockErr = append(l.unlockErr, ctx.Err())
		return ctx.Err()
	}, nil
}

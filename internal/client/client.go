// Package client keeps a local replica of a server's mapping tree. Local
// edits are applied speculatively and reconciled with the server's answer:
// accepted edits are confirmed, rejected or overtaken ones are rolled back
// to the authoritative value.
package client

import (
	"context"
	"io"
	"log/slog"
	"net"
	"sync"

	"mapsync/internal/entry"
	"mapsync/internal/errors"
	"mapsync/internal/protocol"
	"mapsync/internal/slogutil"
	"mapsync/internal/transport"
	"mapsync/internal/tree"
)

// Options configures a Client.
type Options struct {
	Logger   *slog.Logger
	Listener Listener
}

// Client is one logged-in session.
type Client struct {
	conn     io.ReadWriteCloser
	username string
	logger   *slog.Logger
	listener Listener

	wmu sync.Mutex

	mu         sync.Mutex
	replica    *tree.EntryTree[entry.Mapping]
	users      []string
	pending    map[entry.Key]*pending
	kickReason string
	err        error

	synced    chan struct{}
	syncOnce  sync.Once
	done      chan struct{}
	closeOnce sync.Once
}

// Dial connects to a server over TCP and logs in.
func Dial(ctx context.Context, addr, username string, opts Options) (*Client, error) {
	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, errors.Transport("dial "+addr, err)
	}
	return Connect(ctx, conn, username, opts)
}

// DialWebSocket connects to a server's WebSocket endpoint and logs in.
func DialWebSocket(ctx context.Context, url, username string, opts Options) (*Client, error) {
	conn, err := transport.Dial(ctx, url)
	if err != nil {
		return nil, err
	}
	return Connect(ctx, conn, username, opts)
}

// Connect logs in over an established connection and waits for the
// initial mapping sync. A kick during login is returned as a KICKED error.
func Connect(ctx context.Context, conn io.ReadWriteCloser, username string, opts Options) (*Client, error) {
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}
	if opts.Listener == nil {
		opts.Listener = NopListener{}
	}
	c := &Client{
		conn:     conn,
		username: username,
		logger:   opts.Logger.With("user", username),
		listener: opts.Listener,
		replica:  tree.New[entry.Mapping](),
		pending:  make(map[entry.Key]*pending),
		synced:   make(chan struct{}),
		done:     make(chan struct{}),
	}

	go c.readLoop()
	if err := c.send(&protocol.LoginC2S{ProtocolVersion: protocol.ProtocolVersion, Username: username}); err != nil {
		_ = c.Close()
		return nil, err
	}

	select {
	case <-c.synced:
		return c, nil
	case <-c.done:
		if reason := c.KickReason(); reason != "" {
			return nil, errors.Newf(errors.Kicked, "kicked: %s", reason)
		}
		return nil, c.Err()
	case <-ctx.Done():
		_ = c.Close()
		return nil, ctx.Err()
	}
}

func (c *Client) Username() string { return c.username }

// Done is closed when the session has ended.
func (c *Client) Done() <-chan struct{} { return c.done }

// Err returns the error that ended the session, if any.
func (c *Client) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

// KickReason returns the reason the server gave for ending the session.
func (c *Client) KickReason() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.kickReason
}

// Close ends the session and waits for the read loop to stop.
func (c *Client) Close() error {
	err := c.conn.Close()
	<-c.done
	return err
}

// Lookup returns the replica value of e.
func (c *Client) Lookup(e entry.Entry) (entry.Mapping, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replica.Get(e)
}

// Snapshot returns a copy of the replica.
func (c *Client) Snapshot() *tree.EntryTree[entry.Mapping] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.replica.Clone()
}

// Users returns the last roster received.
func (c *Client) Users() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.users...)
}

// Pending reports whether e has local edits awaiting the server.
func (c *Client) Pending(e entry.Entry) (PendingState, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pending[e.Key()]; ok {
		return p.state, true
	}
	return 0, false
}

func (c *Client) send(p protocol.Serverbound) error {
	frame, err := protocol.C2S.Encode(p)
	if err != nil {
		return err
	}
	c.wmu.Lock()
	defer c.wmu.Unlock()
	return protocol.WriteFrame(c.conn, frame)
}

// store writes m into the replica, dropping the value when it is empty.
func (c *Client) store(e entry.Entry, m entry.Mapping) {
	if m.IsEmpty() {
		c.replica.Clear(e)
		return
	}
	c.replica.Insert(e, m)
}

// Rename requests a new name for e.
func (c *Client) Rename(e entry.Entry, name string) error {
	return c.edit(e, func(m entry.Mapping) entry.Mapping { return m.WithName(name) },
		&protocol.RenameC2S{Entry: e, NewName: name})
}

// ChangeDocs sets the documentation of e; blank text clears it.
func (c *Client) ChangeDocs(e entry.Entry, docs string) error {
	docs = entry.NormalizeDocs(docs)
	return c.edit(e, func(m entry.Mapping) entry.Mapping { return m.WithDocs(docs) },
		&protocol.ChangeDocsC2S{Entry: e, Docs: docs})
}

// RemoveMapping reverts e to its obfuscated name.
func (c *Client) RemoveMapping(e entry.Entry) error {
	return c.edit(e, func(entry.Mapping) entry.Mapping { return entry.Mapping{} },
		&protocol.RemoveMappingC2S{Entry: e})
}

// MarkDeobfuscated marks or unmarks e as deobfuscated under its own name.
func (c *Client) MarkDeobfuscated(e entry.Entry, deobfuscated bool) error {
	return c.edit(e, func(m entry.Mapping) entry.Mapping { return entry.WithDeobfuscated(e, m, deobfuscated) },
		&protocol.MarkDeobfuscatedC2S{Entry: e, Deobfuscated: deobfuscated})
}

// SendMessage sends a chat line to every user.
func (c *Client) SendMessage(text string) error {
	return c.send(&protocol.MessageC2S{Text: text})
}

// edit applies change to the replica speculatively and sends req.
func (c *Client) edit(e entry.Entry, change func(entry.Mapping) entry.Mapping, req protocol.Serverbound) error {
	select {
	case <-c.done:
		return errors.Newf(errors.TransportFailure, "session closed")
	default:
	}

	c.mu.Lock()
	cur, _ := c.replica.Get(e)
	p, ok := c.pending[e.Key()]
	if !ok {
		p = &pending{entry: e, state: Speculative, base: cur}
		c.pending[e.Key()] = p
	}
	p.outstanding++
	next := change(cur)
	c.store(e, next)
	stored, has := c.replica.Get(e)
	c.mu.Unlock()

	c.listener.MappingChanged(e, stored, has)
	if err := c.send(req); err != nil {
		c.logger.Warn("failed to send edit", "entry", e.String(), "error", err)
		return err
	}
	return nil
}

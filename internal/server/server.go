// Package server implements the authoritative side of mapping
// synchronization: it owns the canonical mapping tree, orders every edit
// under one mutex, tracks which sessions have seen which change and
// broadcasts accepted edits to every other session.
package server

import (
	"bufio"
	"context"
	"io"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"mapsync/internal/entry"
	"mapsync/internal/errors"
	"mapsync/internal/protocol"
	"mapsync/internal/slogutil"
	"mapsync/internal/tree"
	"mapsync/internal/validation"
)

const (
	// DefaultQueueSize is the number of frames a session may have queued
	// before it is torn down.
	DefaultQueueSize = 1024
	// MaxUsernameLength bounds usernames in runes.
	MaxUsernameLength = 32

	defaultChatRate  = rate.Limit(5)
	defaultChatBurst = 10
)

// Options configures a Server. Zero values select defaults.
type Options struct {
	Logger    *slog.Logger
	Policy    validation.Policy
	Journal   Journal
	Metrics   *Metrics
	QueueSize int
	// ChatRate is the sustained chat messages per second allowed per
	// session; ChatBurst the burst on top of it.
	ChatRate  rate.Limit
	ChatBurst int
	// Mappings seeds the authoritative tree.
	Mappings *tree.EntryTree[entry.Mapping]
	// Now is used for change timestamps.
	Now func() time.Time
}

// Server is the single authority over a mapping tree.
type Server struct {
	logger  *slog.Logger
	policy  validation.Policy
	journal Journal
	metrics *Metrics
	opts    Options

	mu        sync.Mutex
	mappings  *tree.EntryTree[entry.Mapping]
	locks     *LockTable
	sessions  map[uuid.UUID]*Session
	byName    map[string]*Session
	conns     map[*Session]struct{}
	listeners []func(Change)
	closed    bool
}

// New creates a server with an empty tree unless opts seeds one.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}
	if opts.Policy == nil {
		opts.Policy = validation.DefaultPolicy{}
	}
	if opts.Metrics == nil {
		opts.Metrics = NewMetrics()
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = DefaultQueueSize
	}
	if opts.ChatRate <= 0 {
		opts.ChatRate = defaultChatRate
	}
	if opts.ChatBurst <= 0 {
		opts.ChatBurst = defaultChatBurst
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	mappings := opts.Mappings
	if mappings == nil {
		mappings = tree.New[entry.Mapping]()
	}

	return &Server{
		logger:   opts.Logger,
		policy:   opts.Policy,
		journal:  opts.Journal,
		metrics:  opts.Metrics,
		opts:     opts,
		mappings: mappings,
		locks:    NewLockTable(),
		sessions: make(map[uuid.UUID]*Session),
		byName:   make(map[string]*Session),
		conns:    make(map[*Session]struct{}),
	}
}

// Metrics returns the server's collectors.
func (srv *Server) Metrics() *Metrics { return srv.metrics }

// OnChange registers fn to be called after every accepted mutation, outside
// the server mutex, in the goroutine that applied it.
func (srv *Server) OnChange(fn func(Change)) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	srv.listeners = append(srv.listeners, fn)
}

// Lookup returns the authoritative mapping of e.
func (srv *Server) Lookup(e entry.Entry) (entry.Mapping, bool) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.mappings.Get(e)
}

// Snapshot returns a copy of the authoritative tree.
func (srv *Server) Snapshot() *tree.EntryTree[entry.Mapping] {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.mappings.Clone()
}

// Users returns the logged-in usernames in sorted order.
func (srv *Server) Users() []string {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	return srv.usersLocked()
}

func (srv *Server) usersLocked() []string {
	users := make([]string, 0, len(srv.byName))
	for name := range srv.byName {
		users = append(users, name)
	}
	slices.Sort(users)
	return users
}

// ServeConn runs the session protocol on conn until the peer disconnects,
// a protocol error occurs, the session is kicked or ctx is cancelled. The
// connection is closed when ServeConn returns.
func (srv *Server) ServeConn(ctx context.Context, conn io.ReadWriteCloser, remote string) {
	limiter := rate.NewLimiter(srv.opts.ChatRate, srv.opts.ChatBurst)
	s := newSession(conn, remote, srv.opts.QueueSize, limiter, srv.logger)

	srv.mu.Lock()
	if srv.closed {
		srv.mu.Unlock()
		_ = conn.Close()
		return
	}
	srv.conns[s] = struct{}{}
	srv.mu.Unlock()

	go s.writeLoop()
	stop := context.AfterFunc(ctx, func() { srv.kick(s, "server shutting down") })
	defer stop()

	s.logger.Debug("connection opened")
	err := srv.readLoop(s)
	switch {
	case err == nil, err == io.EOF:
		s.logger.Debug("connection closed by peer")
	case errors.Is(err, errors.Kicked):
		s.logger.Debug("session kicked", "reason", err)
	case errors.IsProtocol(err):
		srv.metrics.ProtocolErrors.WithLabelValues(string(errors.CodeOf(err))).Inc()
		s.logger.Warn("closing connection on protocol error", "error", err)
	default:
		s.logger.Debug("connection failed", "error", err)
	}

	srv.disconnect(s)
	s.close(nil)
	<-s.writerDone
}

func (srv *Server) readLoop(s *Session) error {
	r := bufio.NewReader(s.conn)
	loggedIn := false
	for {
		p, err := protocol.ReadServerbound(r)
		if err != nil {
			select {
			case <-s.done:
				if s.final != nil {
					return errors.New(errors.Kicked, "session kicked", nil)
				}
			default:
			}
			return err
		}
		srv.metrics.PacketsTotal.WithLabelValues("in", protocol.C2S.Name(p)).Inc()

		if login, ok := p.(*protocol.LoginC2S); ok {
			if loggedIn {
				return errors.Newf(errors.AlreadyLoggedIn, "session already logged in as %q", s.username)
			}
			if err := srv.login(s, login); err != nil {
				return err
			}
			loggedIn = true
			continue
		}
		if !loggedIn {
			return errors.Newf(errors.NotLoggedIn, "%s packet before login", protocol.C2S.Name(p))
		}
		srv.handle(s, p)
	}
}

func (srv *Server) handle(s *Session, p protocol.Serverbound) {
	switch p := p.(type) {
	case *protocol.ConfirmChangeC2S:
		srv.confirm(s, p.SyncID)
	case *protocol.RenameC2S:
		srv.mutate(s, request{kind: MutationRename, entry: p.Entry, name: p.NewName})
	case *protocol.RemoveMappingC2S:
		srv.mutate(s, request{kind: MutationRemoveMapping, entry: p.Entry})
	case *protocol.ChangeDocsC2S:
		srv.mutate(s, request{kind: MutationChangeDocs, entry: p.Entry, docs: p.Docs})
	case *protocol.MarkDeobfuscatedC2S:
		srv.mutate(s, request{kind: MutationMarkDeobfuscated, entry: p.Entry, deobfuscated: p.Deobfuscated})
	case *protocol.MessageC2S:
		srv.chat(s, p.Text)
	}
}

// login registers s under the requested username, sends it the current
// tree and announces it to everyone. A refused login kicks the session.
func (srv *Server) login(s *Session, p *protocol.LoginC2S) error {
	if p.ProtocolVersion != protocol.ProtocolVersion {
		reason := "unsupported protocol version, server speaks " + strconv.Itoa(int(protocol.ProtocolVersion))
		srv.kick(s, reason)
		return errors.Newf(errors.VersionMismatch, "client protocol version %d", p.ProtocolVersion).WithDetails(reason)
	}
	name := strings.TrimSpace(p.Username)
	if reason := checkUsername(name); reason != "" {
		srv.kick(s, reason)
		return errors.Newf(errors.Kicked, "login refused: %s", reason)
	}

	srv.mu.Lock()
	if _, taken := srv.byName[name]; taken {
		srv.mu.Unlock()
		srv.kick(s, "username is already in use")
		return errors.Newf(errors.UsernameTaken, "username %q is already in use", name)
	}
	s.username = name
	srv.sessions[s.id] = s
	srv.byName[name] = s
	srv.metrics.SessionsActive.Inc()

	srv.sendLocked(s, &protocol.SyncMappingsS2C{Mappings: srv.mappings})
	srv.broadcastLocked(nil, &protocol.UserListS2C{Users: srv.usersLocked()})
	srv.announceLocked(protocol.ConnectMessage(name))
	srv.mu.Unlock()
	return nil
}

func checkUsername(name string) string {
	switch {
	case name == "":
		return "username must not be empty"
	case utf8.RuneCountInString(name) > MaxUsernameLength:
		return "username is too long"
	case strings.IndexFunc(name, unicode.IsControl) >= 0:
		return "username contains control characters"
	}
	return ""
}

// mutate runs the authority pipeline for one edit: lock check, validation,
// application, sync id assignment and fan-out, all under the mutex.
func (srv *Server) mutate(s *Session, req request) {
	if req.kind == MutationChangeDocs {
		req.docs = entry.NormalizeDocs(req.docs)
	}

	srv.mu.Lock()
	if _, ok := srv.sessions[s.id]; !ok {
		srv.mu.Unlock()
		return
	}
	cur, _ := srv.mappings.Get(req.entry)

	if !srv.locks.CanModify(s.id, req.entry) {
		srv.metrics.MutationsTotal.WithLabelValues(string(req.kind), outcomeLocked).Inc()
		s.logger.Info("edit rejected, entry locked", "user", s.username, "kind", req.kind, "entry", req.entry.String())
		srv.sendLocked(s, req.echo(cur))
		srv.mu.Unlock()
		return
	}

	if report := srv.validate(req); !report.CanProceed() {
		srv.metrics.MutationsTotal.WithLabelValues(string(req.kind), outcomeInvalid).Inc()
		s.logger.Info("edit rejected by validation", "user", s.username, "kind", req.kind, "entry", req.entry.String(), "error", report.Err())
		srv.sendLocked(s, req.echo(cur))
		for _, p := range report.Problems() {
			if p.Severity == validation.SeverityError {
				srv.sendLocked(s, &protocol.MessageS2C{Message: protocol.ProblemMessage(p.Message)})
			}
		}
		srv.mu.Unlock()
		return
	}

	next := req.apply(cur)
	if next.IsEmpty() {
		srv.mappings.Clear(req.entry)
	} else {
		srv.mappings.Insert(req.entry, next)
	}

	others := make([]uuid.UUID, 0, len(srv.sessions))
	for id := range srv.sessions {
		if id != s.id {
			others = append(others, id)
		}
	}
	syncID := srv.locks.Acquire(s.id, req.entry, others)
	srv.metrics.SyncIDsIssued.Inc()
	srv.metrics.MutationsTotal.WithLabelValues(string(req.kind), outcomeAccepted).Inc()

	srv.broadcastLocked(s, req.notification(syncID))
	srv.sendLocked(s, &protocol.ChangeAcceptedS2C{SyncID: syncID, Entry: req.entry})
	srv.announceLocked(req.activity(s.username))

	change := Change{
		SyncID:  syncID,
		Session: s.id,
		User:    s.username,
		Kind:    req.kind,
		Entry:   req.entry,
		Before:  cur,
		After:   next,
		At:      srv.opts.Now(),
	}
	if srv.journal != nil {
		srv.journal.Record(change)
	}
	listeners := slices.Clone(srv.listeners)
	srv.mu.Unlock()

	for _, fn := range listeners {
		fn(change)
	}
}

func (srv *Server) validate(req request) *validation.Report {
	switch req.kind {
	case MutationRename:
		return srv.policy.ValidateRename(validation.TreeView(srv.mappings), req.entry, req.name)
	case MutationChangeDocs:
		return srv.policy.ValidateDocs(req.entry, req.docs)
	default:
		return validation.NewReport()
	}
}

func (srv *Server) confirm(s *Session, id protocol.SyncID) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if !srv.locks.Confirm(s.id, id) {
		s.logger.Debug("confirmation for unknown sync id", "sync_id", id)
	}
}

func (srv *Server) chat(s *Session, text string) {
	if strings.TrimSpace(text) == "" {
		return
	}
	if !s.limiter.Allow() {
		srv.metrics.ChatRateLimited.Inc()
		srv.mu.Lock()
		srv.sendLocked(s, &protocol.MessageS2C{Message: protocol.ProblemMessage("you are sending messages too fast")})
		srv.mu.Unlock()
		return
	}
	srv.mu.Lock()
	defer srv.mu.Unlock()
	if _, ok := srv.sessions[s.id]; !ok {
		return
	}
	srv.announceLocked(protocol.ChatMessage(s.username, text))
}

// disconnect unregisters s, releases its locks and tells everyone else.
// It runs once per session, from the session's own read goroutine.
func (srv *Server) disconnect(s *Session) {
	srv.mu.Lock()
	defer srv.mu.Unlock()
	delete(srv.conns, s)
	if _, ok := srv.sessions[s.id]; !ok {
		return
	}
	delete(srv.sessions, s.id)
	delete(srv.byName, s.username)
	released := srv.locks.ReleaseSession(s.id)
	srv.metrics.SessionsActive.Dec()
	s.logger.Info("session ended", "user", s.username, "locks_released", released)

	srv.broadcastLocked(nil, &protocol.UserListS2C{Users: srv.usersLocked()})
	srv.announceLocked(protocol.DisconnectMessage(s.username))
}

// Kick ends the session logged in as username with the given reason.
func (srv *Server) Kick(username, reason string) bool {
	srv.mu.Lock()
	s, ok := srv.byName[username]
	srv.mu.Unlock()
	if ok {
		srv.kick(s, reason)
	}
	return ok
}

func (srv *Server) kick(s *Session, reason string) {
	frame, err := protocol.S2C.Encode(&protocol.KickS2C{Reason: reason})
	if err != nil {
		s.abort()
		return
	}
	srv.metrics.PacketsTotal.WithLabelValues("out", "kick").Inc()
	s.close(frame)
}

// Shutdown kicks every connection and refuses new ones.
func (srv *Server) Shutdown(reason string) {
	srv.mu.Lock()
	srv.closed = true
	conns := make([]*Session, 0, len(srv.conns))
	for s := range srv.conns {
		conns = append(conns, s)
	}
	srv.mu.Unlock()

	for _, s := range conns {
		srv.kick(s, reason)
	}
}

// sendLocked queues p for s. A session whose queue is full is torn down.
func (srv *Server) sendLocked(s *Session, p protocol.Clientbound) {
	frame, err := protocol.S2C.Encode(p)
	if err != nil {
		srv.logger.Error("failed to encode packet", "type", protocol.S2C.Name(p), "error", err)
		return
	}
	srv.enqueueLocked(s, frame, protocol.S2C.Name(p))
}

// broadcastLocked queues p for every logged-in session except skip.
func (srv *Server) broadcastLocked(skip *Session, p protocol.Clientbound) {
	frame, err := protocol.S2C.Encode(p)
	if err != nil {
		srv.logger.Error("failed to encode packet", "type", protocol.S2C.Name(p), "error", err)
		return
	}
	name := protocol.S2C.Name(p)
	for _, s := range srv.sessions {
		if s != skip {
			srv.enqueueLocked(s, frame, name)
		}
	}
}

func (srv *Server) announceLocked(m protocol.Message) {
	srv.logger.Info(m.String(), "activity", m.Kind.String())
	srv.broadcastLocked(nil, &protocol.MessageS2C{Message: m})
}

func (srv *Server) enqueueLocked(s *Session, frame []byte, name string) {
	if s.enqueue(frame) {
		srv.metrics.PacketsTotal.WithLabelValues("out", name).Inc()
		return
	}
	select {
	case <-s.done:
		return
	default:
	}
	srv.metrics.QueueOverflows.Inc()
	s.logger.Warn("send queue full, dropping session",
		"error", errors.Newf(errors.SendQueueFull, "queue of %d frames is full", cap(s.queue)))
	s.abort()
}

package session

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	"whiteboard-backend/internal/model"
)

// RoleResolver looks up the effective role of a user in a room. It is
// queried on every connect and periodically while the room is live so
// revocations take effect without a reconnect.
type RoleResolver interface {
	Resolve(ctx context.Context, userID int64, roomID string) (model.Role, error)
}

// EventSink receives every sequenced event for background persistence.
// Enqueue must never block; the sink is best-effort and the in-session
// event log stays the source of truth while the room is live.
type EventSink interface {
	Enqueue(ev *DrawEvent)
}

// Config tunes the session engine.
type Config struct {
	DrainGrace      time.Duration // grace before an empty session is destroyed
	OutboundBuffer  int           // per-participant outbound buffer
	CommandBuffer   int           // session command channel buffer
	RoleRefresh     time.Duration // periodic role re-resolution interval
	MaxParticipants int           // 0 = unlimited
}

func (c Config) withDefaults() Config {
	if c.DrainGrace <= 0 {
		c.DrainGrace = 30 * time.Second
	}
	if c.OutboundBuffer <= 0 {
		c.OutboundBuffer = 256
	}
	if c.CommandBuffer <= 0 {
		c.CommandBuffer = 64
	}
	if c.RoleRefresh <= 0 {
		c.RoleRefresh = 30 * time.Second
	}
	return c
}

// State of a room session.
type State int

const (
	StateEmpty State = iota
	StateActive
	StateDraining
	StateClosed
)

// String 상태를 문자열로 반환
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateActive:
		return "active"
	case StateDraining:
		return "draining"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Snapshot is a point-in-time view of a session, for admin endpoints and
// tests.
type Snapshot struct {
	RoomID       string
	State        State
	Participants int
	Events       int
	LastActivity time.Time
}

type command interface{}

type joinCmd struct {
	p     *Participant
	reply chan error
}

type applyResult struct {
	ev  *DrawEvent
	err error
}

type applyCmd struct {
	p       *Participant
	kind    Kind
	payload json.RawMessage
	reply   chan applyResult
}

type undoCmd struct {
	p     *Participant
	redo  bool
	reply chan applyResult
}

type leaveCmd struct {
	p     *Participant
	reply chan struct{}
}

type relayCmd struct {
	p    *Participant
	typ  string
	data json.RawMessage
}

type rolesChangedCmd struct{}

type roleUpdateCmd struct {
	roles map[string]model.Role // participant handle ID -> re-resolved role
}

type snapshotCmd struct {
	reply chan Snapshot
}

type closeCmd struct {
	reply chan struct{}
}

// RoomSession owns one room's event log, undo stacks and participant set.
// Every mutation is serialized through the run loop: the loop goroutine
// is the only one touching session state, so event_id assignment and
// broadcast order are deterministic without per-field locking. Role
// store lookups never run inside the loop.
type RoomSession struct {
	roomID   string
	cfg      Config
	resolver RoleResolver
	sink     EventSink
	evict    func(roomID string, s *RoomSession) bool

	commands chan command
	mu       sync.RWMutex // guards closed against late submitters
	closed   bool

	// run-loop state, never touched outside run()
	state        State
	log          *EventLog
	undo         *UndoManager
	participants map[string]*Participant
	causalSeq    map[int64]int64
	lastActivity time.Time
}

func newRoomSession(roomID string, cfg Config, resolver RoleResolver, sink EventSink, evict func(string, *RoomSession) bool) *RoomSession {
	cfg = cfg.withDefaults()
	return &RoomSession{
		roomID:       roomID,
		cfg:          cfg,
		resolver:     resolver,
		sink:         sink,
		evict:        evict,
		commands:     make(chan command, cfg.CommandBuffer),
		state:        StateEmpty,
		log:          NewEventLog(),
		undo:         NewUndoManager(),
		participants: make(map[string]*Participant),
		causalSeq:    make(map[int64]int64),
		lastActivity: time.Now(),
	}
}

// RoomID returns the room this session serves.
func (s *RoomSession) RoomID() string {
	return s.roomID
}

// submit delivers a command to the run loop, failing fast once the
// session is closed. Commands accepted here are always answered, either
// by the loop or by the shutdown drainer.
func (s *RoomSession) submit(ctx context.Context, cmd command) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return ErrSessionClosed
	}
	select {
	case s.commands <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// submitAsync is for fire-and-forget commands (ephemeral relays, role
// change nudges). Dropping them under pressure is acceptable.
func (s *RoomSession) submitAsync(cmd command) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return
	}
	select {
	case s.commands <- cmd:
	default:
	}
}

// Join resolves the caller's role and admits the connection. The
// returned participant's Outbound channel starts with the board replay.
// ErrSessionClosed means the session was evicted concurrently; callers
// should re-fetch from the registry and retry.
func (s *RoomSession) Join(ctx context.Context, userID int64, nickname string) (*Participant, error) {
	role, err := s.resolver.Resolve(ctx, userID, s.roomID)
	if err != nil {
		// Fail closed: a broken role store never grants access.
		return nil, fmt.Errorf("%w: role lookup failed", ErrPermissionDenied)
	}
	if !role.CanView() {
		return nil, ErrPermissionDenied
	}

	p := newParticipant(userID, nickname, role, s.cfg.OutboundBuffer)
	cmd := joinCmd{p: p, reply: make(chan error, 1)}
	if err := s.submit(ctx, cmd); err != nil {
		return nil, err
	}
	if err := <-cmd.reply; err != nil {
		return nil, err
	}
	return p, nil
}

// Apply sequences a mutating action, appends it to the event log and
// broadcasts it to every participant in apply order.
func (s *RoomSession) Apply(ctx context.Context, p *Participant, kind Kind, payload json.RawMessage) (*DrawEvent, error) {
	cmd := applyCmd{p: p, kind: kind, payload: payload, reply: make(chan applyResult, 1)}
	if err := s.submit(ctx, cmd); err != nil {
		return nil, err
	}
	res := <-cmd.reply
	return res.ev, res.err
}

// Undo reverts the caller's most recent active event through a synthetic
// stroke_remove. From every other participant's perspective it is just
// another sequenced event.
func (s *RoomSession) Undo(ctx context.Context, p *Participant) (*DrawEvent, error) {
	return s.undoRedo(ctx, p, false)
}

// Redo restores the caller's most recently undone event via a synthetic
// stroke_restore.
func (s *RoomSession) Redo(ctx context.Context, p *Participant) (*DrawEvent, error) {
	return s.undoRedo(ctx, p, true)
}

func (s *RoomSession) undoRedo(ctx context.Context, p *Participant, redo bool) (*DrawEvent, error) {
	cmd := undoCmd{p: p, redo: redo, reply: make(chan applyResult, 1)}
	if err := s.submit(ctx, cmd); err != nil {
		return nil, err
	}
	res := <-cmd.reply
	return res.ev, res.err
}

// Leave removes the participant and closes their outbound channel. Safe
// to call after the session closed.
func (s *RoomSession) Leave(p *Participant) {
	cmd := leaveCmd{p: p, reply: make(chan struct{}, 1)}
	if err := s.submit(context.Background(), cmd); err != nil {
		return
	}
	<-cmd.reply
}

// Relay broadcasts an ephemeral frame (cursor, laser pointer) to the
// other participants. Not sequenced, not logged, best-effort.
func (s *RoomSession) Relay(p *Participant, typ string, data json.RawMessage) {
	s.submitAsync(relayCmd{p: p, typ: typ, data: data})
}

// NotifyRolesChanged nudges the session to re-resolve every participant's
// role now instead of waiting for the periodic refresh.
func (s *RoomSession) NotifyRolesChanged() {
	s.submitAsync(rolesChangedCmd{})
}

// Snapshot reports current session state.
func (s *RoomSession) Snapshot(ctx context.Context) (Snapshot, error) {
	cmd := snapshotCmd{reply: make(chan Snapshot, 1)}
	if err := s.submit(ctx, cmd); err != nil {
		return Snapshot{}, err
	}
	return <-cmd.reply, nil
}

// Close evicts and destroys the session regardless of participants. Used
// for server shutdown.
func (s *RoomSession) Close(ctx context.Context) {
	cmd := closeCmd{reply: make(chan struct{}, 1)}
	if err := s.submit(ctx, cmd); err != nil {
		return
	}
	<-cmd.reply
}

// run is the session's single writer. It owns the drain timer and the
// periodic role refresh.
func (s *RoomSession) run() {
	log.Printf("[Room %s] Session started", s.roomID)

	// Armed from birth: a session nobody ever manages to join still
	// drains away after the grace period.
	drain := time.NewTimer(s.cfg.DrainGrace)
	refresh := time.NewTicker(s.cfg.RoleRefresh)
	defer refresh.Stop()

	for {
		select {
		case cmd := <-s.commands:
			if done := s.handle(cmd, drain); done {
				s.shutdown()
				return
			}

		case <-drain.C:
			if len(s.participants) > 0 {
				continue
			}
			// The registry entry goes away first (under the registry
			// lock), so a racing get-or-create either finds this session
			// pre-eviction or creates a fresh one after. Joins already in
			// flight get ErrSessionClosed and retry.
			s.evict(s.roomID, s)
			s.shutdown()
			return

		case <-refresh.C:
			s.refreshRoles()
		}
	}
}

func (s *RoomSession) handle(cmd command, drain *time.Timer) (done bool) {
	switch c := cmd.(type) {
	case joinCmd:
		s.handleJoin(c, drain)
	case applyCmd:
		c.reply <- s.handleApply(c, drain)
	case undoCmd:
		c.reply <- s.handleUndoRedo(c, drain)
	case leaveCmd:
		s.removeParticipant(c.p, nil, drain)
		c.reply <- struct{}{}
	case relayCmd:
		s.handleRelay(c, drain)
	case rolesChangedCmd:
		s.refreshRoles()
	case roleUpdateCmd:
		s.applyRoleUpdate(c, drain)
	case snapshotCmd:
		c.reply <- Snapshot{
			RoomID:       s.roomID,
			State:        s.state,
			Participants: len(s.participants),
			Events:       s.log.Len(),
			LastActivity: s.lastActivity,
		}
	case closeCmd:
		s.evict(s.roomID, s)
		c.reply <- struct{}{}
		return true
	}
	return false
}

func (s *RoomSession) handleJoin(c joinCmd, drain *time.Timer) {
	if s.cfg.MaxParticipants > 0 && len(s.participants) >= s.cfg.MaxParticipants {
		c.reply <- ErrRoomFull
		return
	}

	if !drain.Stop() {
		select {
		case <-drain.C:
		default:
		}
	}

	p := c.p
	s.participants[p.ID] = p
	s.state = StateActive
	s.lastActivity = time.Now()

	// Replay goes out before the participant becomes eligible for
	// broadcasts, so the board_state frame always precedes live events.
	replay := s.log.Replay(s.undo.IsUndone)
	p.send(boardStateFrame(replay, s.undo.CanUndo(p.UserID), s.undo.CanRedo(p.UserID), p.role))

	s.broadcastExcept(presenceFrame("user_joined", p.UserID, p.Nickname, p.role), p.ID, drain)

	log.Printf("[Room %s] User %d joined (%s), participants: %d",
		s.roomID, p.UserID, p.role, len(s.participants))
	c.reply <- nil
}

func (s *RoomSession) handleApply(c applyCmd, drain *time.Timer) applyResult {
	p := c.p
	if _, ok := s.participants[p.ID]; !ok {
		return applyResult{err: ErrSessionClosed}
	}
	if !p.role.CanEdit() {
		return applyResult{err: ErrPermissionDenied}
	}
	if !c.kind.Valid() {
		return applyResult{err: fmt.Errorf("%w: unknown kind %q", ErrInvalidAction, c.kind)}
	}

	seq := s.causalSeq[p.UserID] + 1
	s.causalSeq[p.UserID] = seq

	ev := s.log.Append(s.roomID, p.UserID, c.kind, c.payload, seq, 0)
	if c.kind.Undoable() {
		s.undo.Record(p.UserID, ev.EventID)
	}
	if c.kind == KindClear {
		// Cleared strokes never come back through redo, for anyone.
		s.undo.Reset()
	}
	s.finishMutation(p, ev, drain)
	return applyResult{ev: ev}
}

func (s *RoomSession) handleUndoRedo(c undoCmd, drain *time.Timer) applyResult {
	p := c.p
	if _, ok := s.participants[p.ID]; !ok {
		return applyResult{err: ErrSessionClosed}
	}
	if !p.role.CanEdit() {
		return applyResult{err: ErrPermissionDenied}
	}

	var (
		target int64
		err    error
		kind   Kind
	)
	if c.redo {
		target, err = s.undo.Redo(p.UserID)
		kind = KindStrokeRestore
	} else {
		target, err = s.undo.Undo(p.UserID)
		kind = KindStrokeRemove
	}
	if err != nil {
		return applyResult{err: err}
	}

	seq := s.causalSeq[p.UserID] + 1
	s.causalSeq[p.UserID] = seq

	ev := s.log.Append(s.roomID, p.UserID, kind, nil, seq, target)
	s.finishMutation(p, ev, drain)
	return applyResult{ev: ev}
}

// finishMutation persists, broadcasts and reports undo/redo availability
// back to the author. Broadcast happens inside the loop, so frame order
// on every outbound channel equals event_id order.
func (s *RoomSession) finishMutation(p *Participant, ev *DrawEvent, drain *time.Timer) {
	s.lastActivity = time.Now()
	if s.sink != nil {
		s.sink.Enqueue(ev)
	}
	s.broadcastExcept(eventFrame(ev), "", drain)
	p.send(historyStatusFrame(s.undo.CanUndo(p.UserID), s.undo.CanRedo(p.UserID), p.role))
}

func (s *RoomSession) handleRelay(c relayCmd, drain *time.Timer) {
	if _, ok := s.participants[c.p.ID]; !ok {
		return
	}
	s.broadcastExcept(ephemeralFrame(c.typ, c.p.UserID, c.p.Nickname, c.data), c.p.ID, drain)
}

// broadcastExcept delivers a frame to every participant except the given
// handle id. Participants whose buffer overflows are force-removed so
// one slow client cannot stall the room.
func (s *RoomSession) broadcastExcept(frame Outbound, exceptID string, drain *time.Timer) {
	var dropped []*Participant
	for id, p := range s.participants {
		if id == exceptID {
			continue
		}
		if !p.send(frame) {
			dropped = append(dropped, p)
		}
	}
	for _, p := range dropped {
		log.Printf("[Room %s] Outbound buffer full, dropping user %d", s.roomID, p.UserID)
		s.removeParticipant(p, nil, drain)
	}
}

// removeParticipant removes and closes the handle, tells the others, and
// arms the drain timer when the room empties. errFrame, when set, is a
// last best-effort explanation to the leaving connection.
func (s *RoomSession) removeParticipant(p *Participant, errFrame *Outbound, drain *time.Timer) {
	if _, ok := s.participants[p.ID]; !ok {
		return
	}
	if errFrame != nil {
		p.send(*errFrame)
	}
	delete(s.participants, p.ID)
	p.close()

	s.broadcastExcept(presenceFrame("user_left", p.UserID, p.Nickname, ""), "", drain)
	log.Printf("[Room %s] User %d left, remaining: %d", s.roomID, p.UserID, len(s.participants))

	if len(s.participants) == 0 && s.state == StateActive {
		s.state = StateDraining
		if drain != nil {
			drain.Reset(s.cfg.DrainGrace)
		}
	}
}

// refreshRoles re-resolves every participant's role off-loop and posts
// the result back as a command. The loop never blocks on the role store.
func (s *RoomSession) refreshRoles() {
	if len(s.participants) == 0 {
		return
	}
	type lookup struct {
		id     string
		userID int64
	}
	lookups := make([]lookup, 0, len(s.participants))
	for id, p := range s.participants {
		lookups = append(lookups, lookup{id: id, userID: p.UserID})
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		roles := make(map[string]model.Role, len(lookups))
		for _, l := range lookups {
			role, err := s.resolver.Resolve(ctx, l.userID, s.roomID)
			if err != nil {
				// Transient store trouble: keep the cached role rather
				// than kicking the whole room.
				continue
			}
			roles[l.id] = role
		}
		if len(roles) > 0 {
			s.submitAsync(roleUpdateCmd{roles: roles})
		}
	}()
}

func (s *RoomSession) applyRoleUpdate(c roleUpdateCmd, drain *time.Timer) {
	for id, role := range c.roles {
		p, ok := s.participants[id]
		if !ok {
			continue
		}
		if !role.CanView() {
			frame := ErrorFrame(ErrPermissionDenied, "room access revoked")
			s.removeParticipant(p, &frame, drain)
			continue
		}
		if p.role != role {
			log.Printf("[Room %s] User %d role change: %s -> %s", s.roomID, p.UserID, p.role, role)
			p.role = role
			p.send(historyStatusFrame(s.undo.CanUndo(p.UserID), s.undo.CanRedo(p.UserID), role))
		}
	}
}

// shutdown rejects in-flight commands and closes the command channel.
// Taking the write lock waits out every submitter that already passed
// the closed check, so nothing can enqueue after the final drain.
func (s *RoomSession) shutdown() {
	s.state = StateClosed

	drained := make(chan struct{})
	go func() {
		for cmd := range s.commands {
			s.rejectCmd(cmd)
		}
		close(drained)
	}()

	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	close(s.commands)
	<-drained

	for _, p := range s.participants {
		p.close()
	}
	s.participants = make(map[string]*Participant)
	log.Printf("[Room %s] Session destroyed", s.roomID)
}

func (s *RoomSession) rejectCmd(cmd command) {
	switch c := cmd.(type) {
	case joinCmd:
		c.reply <- ErrSessionClosed
	case applyCmd:
		c.reply <- applyResult{err: ErrSessionClosed}
	case undoCmd:
		c.reply <- applyResult{err: ErrSessionClosed}
	case leaveCmd:
		c.reply <- struct{}{}
	case snapshotCmd:
		c.reply <- Snapshot{RoomID: s.roomID, State: StateClosed}
	case closeCmd:
		c.reply <- struct{}{}
	}
}

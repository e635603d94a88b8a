package basin

// Session is a stepped basin computation. It owns the manager's basin state
// from Begin until it finishes, fails or is abandoned; the manager refuses
// to start another computation meanwhile.
type Session struct {
	m       *Manager
	b       *Builder
	full    bool
	dropped map[string]bool
	closed  bool
}

// Begin starts a stepped full recompute.
func (m *Manager) Begin() (*Session, error) {
	if m.session != nil {
		return nil, ErrSessionActive
	}
	s := &Session{
		m:    m,
		b:    NewBuilder(m.grid, m.grid.WaterTiles()),
		full: true,
	}
	m.session = s
	return s, nil
}

// BeginTiles starts a stepped incremental recompute for the changed tiles.
func (m *Manager) BeginTiles(changed []Coord) (*Session, error) {
	if m.session != nil {
		return nil, ErrSessionActive
	}
	seeds, dropped := m.incrementalSeeds(changed)
	s := &Session{
		m:       m,
		b:       NewBuilder(m.grid, seeds),
		dropped: dropped,
	}
	m.session = s
	return s, nil
}

// ActiveSession returns the session currently owning the manager, if any.
func (m *Manager) ActiveSession() *Session { return m.session }

// Step advances the computation to the next suspension point for g. When
// the traversal completes, the result is committed to the manager.
func (s *Session) Step(g Granularity) (Progress, error) {
	if s.closed {
		return s.b.Progress(), nil
	}
	p, err := s.b.Step(g)
	if err != nil {
		s.release()
		return p, err
	}
	if p.Done {
		s.m.commit(s.b, s.full, s.dropped)
		s.release()
	}
	return p, nil
}

// Progress reports the session's state without advancing it.
func (s *Session) Progress() Progress { return s.b.Progress() }

// Forest exposes the partial forest for visualization.
func (s *Session) Forest() *Forest { return s.b.Forest() }

// Done reports whether the session has committed or been abandoned.
func (s *Session) Done() bool { return s.closed }

// Abandon drops the computation. The manager keeps its previous basins.
func (s *Session) Abandon() {
	s.release()
}

func (s *Session) release() {
	s.closed = true
	if s.m.session == s {
		s.m.session = nil
	}
}

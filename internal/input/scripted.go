package input

import "sync"

// Scripted is a deterministic Source for tests. It replays a fixed
// sequence of events in order, then stays running until stopped.
type Scripted struct {
	BaseSource

	events []Event

	mu       sync.Mutex
	startErr error
	stopErr  error
	failure  error
	sink     chan<- Event
	stopCh   <-chan struct{}
	replayed chan struct{}
}

// NewScripted creates a source that replays events once started.
func NewScripted(events ...Event) *Scripted {
	return &Scripted{events: events}
}

// WithStartError makes the next Start fail with err.
func (s *Scripted) WithStartError(err error) *Scripted {
	s.startErr = err
	return s
}

// WithStopError makes the next Stop return err after stopping.
func (s *Scripted) WithStopError(err error) *Scripted {
	s.stopErr = err
	return s
}

// WithFailure makes the capture goroutine die with err once the script
// has been replayed.
func (s *Scripted) WithFailure(err error) *Scripted {
	s.failure = err
	return s
}

// Start begins replaying the script into sink.
func (s *Scripted) Start(sink chan<- Event) error {
	s.mu.Lock()
	if err := s.startErr; err != nil {
		s.startErr = nil
		s.mu.Unlock()
		return err
	}
	s.mu.Unlock()

	stop, err := s.begin()
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.sink = sink
	s.stopCh = stop
	s.replayed = make(chan struct{})
	replayed := s.replayed
	failure := s.failure
	s.mu.Unlock()

	go s.replay(sink, stop, replayed, failure)
	return nil
}

func (s *Scripted) replay(sink chan<- Event, stop <-chan struct{}, replayed chan struct{}, failure error) {
	for _, ev := range s.events {
		if !emit(sink, stop, ev) {
			close(replayed)
			s.finish(nil)
			return
		}
	}
	close(replayed)

	if failure != nil {
		s.finish(failure)
		return
	}

	<-stop
	s.finish(nil)
}

// Replayed is closed once every scripted event has been delivered.
func (s *Scripted) Replayed() <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.replayed
}

// Push delivers one more event while the source is running. It is safe to
// call from many goroutines; it returns false once the source is stopped.
func (s *Scripted) Push(ev Event) bool {
	s.mu.Lock()
	sink, stop := s.sink, s.stopCh
	s.mu.Unlock()

	if sink == nil {
		return false
	}
	select {
	case <-stop:
		return false
	default:
	}
	return emit(sink, stop, ev)
}

// Stop stops the replay goroutine.
func (s *Scripted) Stop() error {
	err := s.halt()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopErr != nil {
		err, s.stopErr = s.stopErr, nil
	}
	return err
}

// Started reports whether the source is running.
func (s *Scripted) Started() bool {
	return s.IsRunning()
}

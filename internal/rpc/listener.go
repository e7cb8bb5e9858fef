package rpc

import (
	"context"
	"net"
	"sync"

	"golang.org/x/sync/semaphore"
)

// limitListener admits at most limit concurrent connections per remote IP.
// Connections over the limit wait until an earlier one from the same IP
// closes. Closing the listener stops admitting and drops waiters.
type limitListener struct {
	net.Listener
	limit int64

	ctx    context.Context
	cancel context.CancelFunc
	conns  chan net.Conn

	mu   sync.Mutex
	sems map[string]*ipSem
	err  error
}

type ipSem struct {
	sem  *semaphore.Weighted
	refs int
}

func newLimitListener(inner net.Listener, limit int64) *limitListener {
	ctx, cancel := context.WithCancel(context.Background())
	l := &limitListener{
		Listener: inner,
		limit:    limit,
		ctx:      ctx,
		cancel:   cancel,
		conns:    make(chan net.Conn),
		sems:     make(map[string]*ipSem),
	}
	go l.acceptLoop()
	return l
}

func (l *limitListener) acceptLoop() {
	for {
		c, err := l.Listener.Accept()
		if err != nil {
			l.mu.Lock()
			if l.err == nil {
				l.err = err
			}
			l.mu.Unlock()
			l.cancel()
			return
		}
		go l.admit(c)
	}
}

func (l *limitListener) admit(c net.Conn) {
	key := remoteIP(c.RemoteAddr())
	sem := l.ref(key)
	if err := sem.Acquire(l.ctx, 1); err != nil {
		l.unref(key)
		c.Close()
		return
	}
	lc := &limitedConn{Conn: c}
	lc.release = func() {
		sem.Release(1)
		l.unref(key)
	}
	select {
	case l.conns <- lc:
	case <-l.ctx.Done():
		lc.Close()
	}
}

func (l *limitListener) ref(key string) *semaphore.Weighted {
	l.mu.Lock()
	defer l.mu.Unlock()
	s, ok := l.sems[key]
	if !ok {
		s = &ipSem{sem: semaphore.NewWeighted(l.limit)}
		l.sems[key] = s
	}
	s.refs++
	return s.sem
}

func (l *limitListener) unref(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	s := l.sems[key]
	s.refs--
	if s.refs == 0 {
		delete(l.sems, key)
	}
}

// Accept returns the next admitted connection.
func (l *limitListener) Accept() (net.Conn, error) {
	select {
	case c := <-l.conns:
		return c, nil
	case <-l.ctx.Done():
		l.mu.Lock()
		defer l.mu.Unlock()
		if l.err != nil {
			return nil, l.err
		}
		return nil, net.ErrClosed
	}
}

// Close stops accepting and closes the underlying listener.
func (l *limitListener) Close() error {
	l.cancel()
	return l.Listener.Close()
}

type limitedConn struct {
	net.Conn
	once    sync.Once
	release func()
}

func (c *limitedConn) Close() error {
	err := c.Conn.Close()
	c.once.Do(c.release)
	return err
}

func remoteIP(addr net.Addr) string {
	if tcp, ok := addr.(*net.TCPAddr); ok {
		return tcp.IP.String()
	}
	host, _, err := net.SplitHostPort(addr.String())
	if err != nil {
		return addr.String()
	}
	return host
}

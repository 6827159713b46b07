package zookeeper_test

import (
	"path"
	"sort"
	"strings"
	"sync"

	"github.com/go-zookeeper/zk"
)

// fakeServer is an in-memory ZooKeeper tree shared by fakeConn sessions.
type fakeServer struct {
	mu sync.Mutex

	nodes       map[string]*fakeNode
	nextSession int64

	// allowEphemeralChildren lets tests build trees a real server refuses.
	allowEphemeralChildren bool

	// failWith, when set, is returned by every operation.
	failWith error
}

type fakeNode struct {
	owner   int64
	version int32
}

func newFakeServer() *fakeServer {
	return &fakeServer{
		nodes:       make(map[string]*fakeNode),
		nextSession: 1,
	}
}

func (s *fakeServer) connect() *fakeConn {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextSession
	s.nextSession++

	return &fakeConn{server: s, session: id}
}

func (s *fakeServer) setFailure(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.failWith = err
}

func (s *fakeServer) node(p string) (*fakeNode, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	n, ok := s.nodes[p]

	return n, ok
}

// expireLocked removes every ephemeral node owned by session.
func (s *fakeServer) expireLocked(session int64) {
	for p, n := range s.nodes {
		if n.owner == session {
			delete(s.nodes, p)
		}
	}
}

func (s *fakeServer) childrenLocked(p string) []string {
	prefix := p + "/"
	if p == "/" {
		prefix = "/"
	}

	var children []string

	for np := range s.nodes {
		if rest, ok := strings.CutPrefix(np, prefix); ok && rest != "" && !strings.Contains(rest, "/") {
			children = append(children, rest)
		}
	}

	sort.Strings(children)

	return children
}

// fakeConn is one client session on a fakeServer.
type fakeConn struct {
	server  *fakeServer
	session int64
	closed  bool
}

func (c *fakeConn) check() error {
	if c.closed {
		return zk.ErrConnectionClosed
	}

	return c.server.failWith
}

func (c *fakeConn) Create(p string, _ []byte, flags int32, _ []zk.ACL) (string, error) {
	s := c.server

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.check(); err != nil {
		return "", err
	}

	if _, ok := s.nodes[p]; ok || p == "/" {
		return "", zk.ErrNodeExists
	}

	if parent := path.Dir(p); parent != "/" {
		pn, ok := s.nodes[parent]
		if !ok {
			return "", zk.ErrNoNode
		}

		if pn.owner != 0 && !s.allowEphemeralChildren {
			return "", zk.ErrNoChildrenForEphemerals
		}
	}

	var owner int64
	if flags&zk.FlagEphemeral != 0 {
		owner = c.session
	}

	s.nodes[p] = &fakeNode{owner: owner}

	return p, nil
}

func (c *fakeConn) Delete(p string, version int32) error {
	s := c.server

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.check(); err != nil {
		return err
	}

	n, ok := s.nodes[p]
	if !ok {
		return zk.ErrNoNode
	}

	if version != -1 && version != n.version {
		return zk.ErrBadVersion
	}

	if len(s.childrenLocked(p)) > 0 {
		return zk.ErrNotEmpty
	}

	delete(s.nodes, p)

	return nil
}

func (c *fakeConn) Exists(p string) (bool, *zk.Stat, error) {
	s := c.server

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.check(); err != nil {
		return false, nil, err
	}

	if p == "/" {
		return true, &zk.Stat{}, nil
	}

	n, ok := s.nodes[p]
	if !ok {
		return false, nil, nil
	}

	return true, &zk.Stat{EphemeralOwner: n.owner, Version: n.version}, nil
}

func (c *fakeConn) Children(p string) ([]string, *zk.Stat, error) {
	s := c.server

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := c.check(); err != nil {
		return nil, nil, err
	}

	if _, ok := s.nodes[p]; !ok && p != "/" {
		return nil, nil, zk.ErrNoNode
	}

	return s.childrenLocked(p), &zk.Stat{}, nil
}

func (c *fakeConn) SessionID() int64 { return c.session }

// Close ends the session, like a real client closing its connection.
func (c *fakeConn) Close() {
	s := c.server

	s.mu.Lock()
	defer s.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	s.expireLocked(c.session)
}

package keymaster

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi"
	"github.com/go-chi/render"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

// Server exposes an InProcessClient over HTTP + websocket, an optional
// out-of-process transport for callers that can't link the package
// directly.
type Server struct {
	client *InProcessClient

	upgrader websocket.Upgrader

	mu   sync.Mutex
	conns map[*websocket.Conn]string // conn -> subscribed path
}

// NewServer wraps client for HTTP/websocket access.
func NewServer(client *InProcessClient) *Server {
	return &Server{
		client:   client,
		upgrader: websocket.Upgrader{ReadBufferSize: 1024, WriteBufferSize: 1024},
		conns:    make(map[*websocket.Conn]string),
	}
}

// Router returns the chi router implementing the Keymaster's HTTP surface.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/kv/*", s.handleGet)
	r.Put("/kv/*", s.handlePut)
	r.Post("/rpc/*", s.handleRPC)
	r.Get("/subscribe/*", s.handleSubscribe)
	return r
}

type nodeDTO struct {
	Scalar string             `json:"scalar,omitempty"`
	List   []nodeDTO          `json:"list,omitempty"`
	Map    map[string]nodeDTO `json:"map,omitempty"`
}

func toDTO(n Node) nodeDTO {
	switch n.Kind {
	case KindScalar:
		return nodeDTO{Scalar: n.Scalar}
	case KindList:
		items := make([]nodeDTO, len(n.List))
		for i, v := range n.List {
			items[i] = toDTO(v)
		}
		return nodeDTO{List: items}
	case KindMap:
		m := make(map[string]nodeDTO, len(n.Map))
		for k, v := range n.Map {
			m[k] = toDTO(v)
		}
		return nodeDTO{Map: m}
	default:
		return nodeDTO{}
	}
}

func fromDTO(d nodeDTO) Node {
	switch {
	case d.Map != nil:
		m := make(map[string]Node, len(d.Map))
		for k, v := range d.Map {
			m[k] = fromDTO(v)
		}
		return MapNode(m)
	case d.List != nil:
		items := make([]Node, len(d.List))
		for i, v := range d.List {
			items[i] = fromDTO(v)
		}
		return ListNode(items)
	default:
		return Str(d.Scalar)
	}
}

func pathParam(r *http.Request) string {
	p := chi.URLParam(r, "*")
	return p
}

func (s *Server) handleGet(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	n, err := s.client.Get(path)
	if err != nil {
		render.Status(r, http.StatusNotFound)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.JSON(w, r, toDTO(n))
}

func (s *Server) handlePut(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	var dto nodeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	if err := s.client.Put(path, fromDTO(dto)); err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.Status(r, http.StatusNoContent)
	render.NoContent(w, r)
}

func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	var dto nodeDTO
	if err := json.NewDecoder(r.Body).Decode(&dto); err != nil {
		render.Status(r, http.StatusBadRequest)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	result, err := s.client.RPC(path, fromDTO(dto))
	if err != nil {
		render.Status(r, http.StatusInternalServerError)
		render.JSON(w, r, map[string]string{"error": err.Error()})
		return
	}
	render.JSON(w, r, toDTO(result))
}

// handleSubscribe upgrades to a websocket and streams change
// notifications for the requested path, in the order Put accepted them,
// for as long as the connection stays open.
func (s *Server) handleSubscribe(w http.ResponseWriter, r *http.Request) {
	path := pathParam(r)
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Warn("keymaster: websocket upgrade failed")
		return
	}

	writeC := make(chan Node, 64)
	err = s.client.Subscribe(path, func(_ string, n Node) {
		select {
		case writeC <- n:
		default:
			log.Warnf("keymaster: dropping subscription push for %q, client too slow", path)
		}
	})
	if err != nil {
		conn.Close()
		return
	}

	s.mu.Lock()
	s.conns[conn] = path
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.conns, conn)
		s.mu.Unlock()
		_ = s.client.Unsubscribe(path)
		conn.Close()
	}()

	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case n := <-writeC:
			conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
			if err := conn.WriteJSON(toDTO(n)); err != nil {
				return
			}
		case <-closed:
			return
		}
	}
}

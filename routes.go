package main

import (
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"

	"github.com/go-redis/redis/v8"
	"github.com/gorilla/mux"
	"github.com/segmentio/ksuid"

	"github.com/james226/scene-bridge/agentlink"
	"github.com/james226/scene-bridge/viewport"
)

// Server is the local control surface over one agent session.
type Server struct {
	client *agentlink.Client
	bus    *agentlink.Broadcaster
	sync   *viewport.Synchronizer
	broker *Broker
	logger *log.Logger

	rdb     *redis.Client
	channel string
}

// NewServer wires the synchronizer to scene events and starts the SSE
// broker.
func NewServer(client *agentlink.Client, bus *agentlink.Broadcaster, sync *viewport.Synchronizer, logger *log.Logger) *Server {
	bus.Subscribe(func(e agentlink.Event) {
		scene, ok := e.(agentlink.SceneEvent)
		if !ok {
			return
		}
		if err := sync.Apply(scene.Snapshot); err != nil {
			logger.Printf("scene applied with errors: %v", err)
		}
		logger.Printf("scene updated: %s", sync.Describe())
	})

	return &Server{
		client: client,
		bus:    bus,
		sync:   sync,
		broker: NewBroker(bus, logger),
		logger: logger,
	}
}

// WithRelay serves the redis channel at /relay.
func (s *Server) WithRelay(rdb *redis.Client, channel string) *Server {
	s.rdb = rdb
	s.channel = channel
	return s
}

func (s *Server) Close() {
	s.broker.Close()
}

func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()

	router.Handle("/health", healthController{client: s.client})
	router.Handle("/events", s.broker).Methods(http.MethodGet)

	router.HandleFunc("/ws", func(response http.ResponseWriter, request *http.Request) {
		NewWebsocket(ksuid.New().String(), s.client, s.bus, s.logger).ServeHTTP(response, request)
	})

	if s.rdb != nil {
		router.HandleFunc("/relay", func(response http.ResponseWriter, request *http.Request) {
			NewRelayStream(ksuid.New().String(), s.rdb, s.channel, s.logger).ServeHTTP(response, request)
		}).Methods(http.MethodGet)
	}

	router.HandleFunc("/scene", s.scene).Methods(http.MethodGet)
	router.HandleFunc("/connect", s.connect).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/disconnect", s.disconnect).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/command", s.command).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/agent", s.agent).Methods(http.MethodPost, http.MethodOptions)
	router.HandleFunc("/execute", s.execute).Methods(http.MethodPost, http.MethodOptions)

	return router
}

type connectionStatus struct {
	State    agentlink.State `json:"state"`
	Attempts int             `json:"attempts"`
	Fallback bool            `json:"fallback"`
}

func (s *Server) status() connectionStatus {
	return connectionStatus{
		State:    s.client.State(),
		Attempts: s.client.ReconnectAttempts(),
		Fallback: s.client.FallbackMode(),
	}
}

type sceneStatus struct {
	State     string             `json:"state"`
	Applied   int                `json:"applied"`
	Summary   viewport.Summary   `json:"summary"`
	Resources viewport.Resources `json:"resources"`
}

func (s *Server) scene(response http.ResponseWriter, request *http.Request) {
	scene := s.sync.Scene()
	writeJSON(response, http.StatusOK, sceneStatus{
		State:     s.sync.State().String(),
		Applied:   s.sync.Applied(),
		Summary:   scene.Summary(),
		Resources: scene.Live(),
	})
}

func (s *Server) connect(response http.ResponseWriter, request *http.Request) {
	if request.Method == http.MethodOptions {
		return
	}

	var body struct {
		URL string `json:"url"`
	}
	if !decodeBody(response, request, &body) {
		return
	}

	if err := s.client.Connect(request.Context(), body.URL); err != nil {
		writeError(response, http.StatusBadGateway, err)
		return
	}
	writeJSON(response, http.StatusOK, s.status())
}

func (s *Server) disconnect(response http.ResponseWriter, request *http.Request) {
	if request.Method == http.MethodOptions {
		return
	}

	s.client.Disconnect()
	writeJSON(response, http.StatusOK, s.status())
}

func (s *Server) command(response http.ResponseWriter, request *http.Request) {
	if request.Method == http.MethodOptions {
		return
	}

	var body agentlink.CommandPayload
	if !decodeBody(response, request, &body) {
		return
	}
	if body.Command == "" {
		writeError(response, http.StatusBadRequest, agentlink.ErrEmptyCommand)
		return
	}

	if !s.client.SendCommand(body.Command, body.Params) {
		writeError(response, http.StatusConflict, agentlink.ErrNotConnected)
		return
	}
	response.WriteHeader(http.StatusAccepted)
}

func (s *Server) agent(response http.ResponseWriter, request *http.Request) {
	if request.Method == http.MethodOptions {
		return
	}

	var body struct {
		Command string `json:"command"`
	}
	if !decodeBody(response, request, &body) {
		return
	}

	reply, err := s.client.AgentCommand(request.Context(), body.Command)
	if err != nil {
		writeError(response, statusFor(err), err)
		return
	}
	writeJSON(response, http.StatusOK, reply)
}

func (s *Server) execute(response http.ResponseWriter, request *http.Request) {
	if request.Method == http.MethodOptions {
		return
	}

	var body agentlink.CodePayload
	if !decodeBody(response, request, &body) {
		return
	}

	result, err := s.client.ExecuteCode(request.Context(), body.Code)
	if err != nil {
		writeError(response, statusFor(err), err)
		return
	}
	writeJSON(response, http.StatusOK, struct {
		Result   json.RawMessage `json:"result"`
		Fallback bool            `json:"fallback"`
	}{result, s.client.FallbackMode()})
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agentlink.ErrEmptyCode), errors.Is(err, agentlink.ErrEmptyCommand):
		return http.StatusBadRequest
	case errors.Is(err, agentlink.ErrNotConnected):
		return http.StatusConflict
	case errors.Is(err, agentlink.ErrRequestTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusBadGateway
	}
}

// decodeBody reads an optional JSON body. An empty body leaves v untouched.
func decodeBody(response http.ResponseWriter, request *http.Request, v any) bool {
	err := json.NewDecoder(request.Body).Decode(v)
	if err != nil && !errors.Is(err, io.EOF) {
		http.Error(response, err.Error(), http.StatusBadRequest)
		return false
	}
	return true
}

func writeJSON(response http.ResponseWriter, status int, v any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(status)
	json.NewEncoder(response).Encode(v)
}

func writeError(response http.ResponseWriter, status int, err error) {
	writeJSON(response, status, struct {
		Error string `json:"error"`
	}{err.Error()})
}

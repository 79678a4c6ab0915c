// Package xenvtest provides an in-memory xenvman API server for tests.
package xenvtest

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"time"

	"xenvman/pkg/env"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
)

// Blueprint lists the containers one instantiation of a template creates,
// keyed by container name, with the logical port names of each container.
type Blueprint map[string][]string

type template struct {
	info      *env.TplInfo
	blueprint Blueprint
}

// Server is a fake xenvman API. Every instantiation of a template gets the
// containers of its blueprint with fresh ids and ports.
type Server struct {
	*httptest.Server

	router *mux.Router
	logger *logrus.Logger

	mutex      sync.Mutex
	templates  map[string]*template
	envs       map[string]*env.OutputEnv
	keepalives map[string]int
	failures   []int
	requests   []string
	nextEnv    int
	nextCont   int
	nextPort   int
}

// NewServer starts a fake server. A nil logger discards output.
func NewServer(logger *logrus.Logger) *Server {
	if logger == nil {
		logger = logrus.New()
		logger.SetOutput(io.Discard)
	}

	s := &Server{
		logger:     logger,
		templates:  make(map[string]*template),
		envs:       make(map[string]*env.OutputEnv),
		keepalives: make(map[string]int),
		nextPort:   30000,
	}

	s.setupRoutes()
	s.Server = httptest.NewServer(s.router)

	return s
}

// AddTemplate registers a template
func (s *Server) AddTemplate(name string, info *env.TplInfo, blueprint Blueprint) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if info == nil {
		info = &env.TplInfo{Parameters: map[string]*env.TplInfoParam{}, DataDir: []string{}}
	}
	s.templates[name] = &template{info: info, blueprint: blueprint}
}

// FailNext makes the next request fail with status, whatever its route.
// Calls queue up.
func (s *Server) FailNext(status int) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.failures = append(s.failures, status)
}

// Env returns the stored environment
func (s *Server) Env(id string) (*env.OutputEnv, bool) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	out, ok := s.envs[id]
	return out, ok
}

// Keepalives returns how many keepalive calls an environment received
func (s *Server) Keepalives(id string) int {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return s.keepalives[id]
}

// Requests returns "METHOD path" for every request served so far
func (s *Server) Requests() []string {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	return append([]string(nil), s.requests...)
}

// setupRoutes sets up the API routes
func (s *Server) setupRoutes() {
	s.router = mux.NewRouter()

	api := s.router.PathPrefix("/api/v1").Subrouter()

	api.HandleFunc("/env", s.listEnvsHandler).Methods("GET")
	api.HandleFunc("/env", s.createEnvHandler).Methods("POST")
	api.HandleFunc("/env/{id}", s.getEnvHandler).Methods("GET")
	api.HandleFunc("/env/{id}", s.patchEnvHandler).Methods("PATCH")
	api.HandleFunc("/env/{id}", s.deleteEnvHandler).Methods("DELETE")
	api.HandleFunc("/env/{id}/keepalive", s.keepaliveHandler).Methods("POST")
	api.HandleFunc("/tpl", s.listTemplatesHandler).Methods("GET")

	s.router.Use(s.loggingMiddleware)
	s.router.Use(s.failureMiddleware)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		s.mutex.Lock()
		s.requests = append(s.requests, r.Method+" "+r.URL.Path)
		s.mutex.Unlock()

		next.ServeHTTP(w, r)
		s.logger.WithFields(logrus.Fields{
			"method":     r.Method,
			"path":       r.URL.Path,
			"request_id": r.Header.Get("X-Request-ID"),
			"duration":   time.Since(start),
		}).Debug("HTTP request")
	})
}

func (s *Server) failureMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.mutex.Lock()
		var status int
		if len(s.failures) > 0 {
			status = s.failures[0]
			s.failures = s.failures[1:]
		}
		s.mutex.Unlock()

		if status != 0 {
			http.Error(w, "injected failure", status)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) createEnvHandler(w http.ResponseWriter, r *http.Request) {
	var input env.InputEnv
	if err := json.NewDecoder(r.Body).Decode(&input); err != nil {
		http.Error(w, fmt.Sprintf("invalid environment: %v", err), http.StatusBadRequest)
		return
	}

	if input.Name == "" {
		http.Error(w, "environment name is empty", http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	s.nextEnv++
	out := &env.OutputEnv{
		ID:              fmt.Sprintf("env-%d", s.nextEnv),
		Name:            input.Name,
		Description:     input.Description,
		WsDir:           fmt.Sprintf("/var/lib/xenvman/ws/env-%d", s.nextEnv),
		MountDir:        fmt.Sprintf("/var/lib/xenvman/mount/env-%d", s.nextEnv),
		NetID:           fmt.Sprintf("net-%d", s.nextEnv),
		Created:         time.Now().UTC().Format(time.RFC3339),
		KeepAlive:       input.Options.KeepAlive,
		ExternalAddress: "127.0.0.1",
		Templates:       map[string][]*env.TplData{},
	}

	if err := s.instantiate(out, input.Templates); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.envs[out.ID] = out
	s.logger.WithField("env_id", out.ID).Info("Environment created")

	writeData(w, out)
}

func (s *Server) patchEnvHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var patch env.PatchEnv
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		http.Error(w, fmt.Sprintf("invalid patch: %v", err), http.StatusBadRequest)
		return
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()

	current, ok := s.envs[id]
	if !ok {
		http.Error(w, "environment not found", http.StatusNotFound)
		return
	}

	out := copyEnv(current)

	stop := toSet(patch.StopContainers)
	restart := toSet(patch.RestartContainers)
	for _, instances := range out.Templates {
		for _, inst := range instances {
			for name, cont := range inst.Containers {
				switch {
				case stop[name] || stop[cont.ID]:
					delete(inst.Containers, name)
				case restart[name] || restart[cont.ID]:
					s.nextCont++
					cont.ID = fmt.Sprintf("%s-c%d", out.ID, s.nextCont)
				}
			}
		}
	}

	if err := s.instantiate(out, patch.Templates); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	s.envs[id] = out
	writeData(w, out)
}

func (s *Server) deleteEnvHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.envs[id]; !ok {
		http.Error(w, "environment not found", http.StatusNotFound)
		return
	}

	delete(s.envs, id)
	s.logger.WithField("env_id", id).Info("Environment terminated")

	w.WriteHeader(http.StatusOK)
}

func (s *Server) keepaliveHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mutex.Lock()
	defer s.mutex.Unlock()

	if _, ok := s.envs[id]; !ok {
		http.Error(w, "environment not found", http.StatusNotFound)
		return
	}

	s.keepalives[id]++
	w.WriteHeader(http.StatusOK)
}

func (s *Server) getEnvHandler(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	s.mutex.Lock()
	defer s.mutex.Unlock()

	out, ok := s.envs[id]
	if !ok {
		http.Error(w, "environment not found", http.StatusNotFound)
		return
	}

	writeData(w, out)
}

func (s *Server) listEnvsHandler(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	envs := make([]*env.OutputEnv, 0, len(s.envs))
	for _, out := range s.envs {
		envs = append(envs, out)
	}
	sort.Slice(envs, func(i, j int) bool { return envs[i].ID < envs[j].ID })

	writeData(w, envs)
}

func (s *Server) listTemplatesHandler(w http.ResponseWriter, r *http.Request) {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	infos := make(map[string]*env.TplInfo, len(s.templates))
	for name, tpl := range s.templates {
		infos[name] = tpl.info
	}

	writeData(w, infos)
}

// instantiate appends one instantiation per template reference, in order.
// Must be called with the mutex held.
func (s *Server) instantiate(out *env.OutputEnv, tpls []env.Tpl) error {
	for _, ref := range tpls {
		if _, ok := s.templates[ref.Tpl]; !ok {
			return fmt.Errorf("unknown template: %s", ref.Tpl)
		}
	}

	for _, ref := range tpls {
		idx := len(out.Templates[ref.Tpl])
		inst := &env.TplData{Containers: map[string]*env.ContainerData{}}

		for contName, portNames := range s.templates[ref.Tpl].blueprint {
			s.nextCont++
			ports := make(map[string]int, len(portNames))
			for _, portName := range portNames {
				s.nextPort++
				ports[portName] = s.nextPort
			}

			inst.Containers[contName] = &env.ContainerData{
				ID:       fmt.Sprintf("%s-c%d", out.ID, s.nextCont),
				Hostname: fmt.Sprintf("%s.%d.%s.xenv", contName, idx, ref.Tpl),
				Ports:    ports,
			}
		}

		out.Templates[ref.Tpl] = append(out.Templates[ref.Tpl], inst)
	}

	return nil
}

func copyEnv(out *env.OutputEnv) *env.OutputEnv {
	cp := *out
	cp.Templates = make(map[string][]*env.TplData, len(out.Templates))

	for name, instances := range out.Templates {
		copied := make([]*env.TplData, 0, len(instances))
		for _, inst := range instances {
			conts := make(map[string]*env.ContainerData, len(inst.Containers))
			for contName, cont := range inst.Containers {
				c := *cont
				conts[contName] = &c
			}
			copied = append(copied, &env.TplData{Containers: conts})
		}
		cp.Templates[name] = copied
	}

	return &cp
}

func toSet(items []string) map[string]bool {
	set := make(map[string]bool, len(items))
	for _, item := range items {
		set[item] = true
	}
	return set
}

func writeData(w http.ResponseWriter, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{"data": data})
}

package api

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/taskdeskhq/taskdesk/internal/auth"
	"github.com/taskdeskhq/taskdesk/internal/models"
	"github.com/taskdeskhq/taskdesk/internal/store"
	"github.com/taskdeskhq/taskdesk/internal/workflow"
)

// Server provides the HTTP API for TaskDesk.
type Server struct {
	service *Service
	store   *store.Store
	addr    string
	server  *http.Server
}

// NewServer creates a new HTTP server.
func NewServer(service *Service, st *store.Store, addr string) *Server {
	return &Server{
		service: service,
		store:   st,
		addr:    addr,
	}
}

// Handler builds the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/tasks", s.handleTasks)
	mux.HandleFunc("/tasks/", s.handleTaskByID)
	mux.HandleFunc("/requests", s.handleRequests)
	mux.HandleFunc("/requests/", s.handleRequestByID)
	mux.HandleFunc("/employees", s.handleEmployees)
	mux.HandleFunc("/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	return mux
}

// Start starts the HTTP server.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:         s.addr,
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	log.Printf("Starting TaskDesk daemon on %s", s.addr)
	return s.server.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.server.Shutdown(ctx)
}

// HealthResponse is the /health payload.
type HealthResponse struct {
	OK   bool   `json:"ok"`
	DB   string `json:"db"`
	Time string `json:"time"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	health := HealthResponse{OK: true, DB: "ok", Time: time.Now().UTC().Format(time.RFC3339)}
	status := http.StatusOK

	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := s.store.Ping(ctx); err != nil {
		health.OK = false
		health.DB = err.Error()
		status = http.StatusServiceUnavailable
	}

	writeJSON(w, status, health)
}

// --- Task Routes ---

func (s *Server) handleTasks(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.createTask(w, r)
	case http.MethodGet:
		s.listTasks(w, r)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTaskByID handles /tasks/{id} and /tasks/{id}/{action}
func (s *Server) handleTaskByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/tasks/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "task id required", http.StatusBadRequest)
		return
	}

	taskID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getTask(w, r, taskID)
	case action == "requests" && r.Method == http.MethodPost:
		s.createRequest(w, r, taskID)
	case action == "requests" && r.Method == http.MethodGet:
		s.listTaskRequests(w, r, taskID)
	case action == "reassign" && r.Method == http.MethodPost:
		s.reassignTask(w, r, taskID)
	case action == "reopen" && r.Method == http.MethodPost:
		s.reopenTask(w, r, taskID)
	case action == "status" && r.Method == http.MethodPost:
		s.setTaskStatus(w, r, taskID)
	case action == "timeline" && r.Method == http.MethodGet:
		s.getTimeline(w, r, taskID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

type createTaskRequest struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	Category    string     `json:"category"`
	Priority    string     `json:"priority"`
	DueDate     *time.Time `json:"due_date"`
	AssignedTo  string     `json:"assigned_to"`
}

func (s *Server) createTask(w http.ResponseWriter, r *http.Request) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req createTaskRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	task, err := s.service.CreateTask(actor, store.TaskInput{
		Title:       req.Title,
		Description: req.Description,
		Category:    req.Category,
		Priority:    req.Priority,
		DueDate:     req.DueDate,
		AssignedTo:  req.AssignedTo,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) listTasks(w http.ResponseWriter, r *http.Request) {
	tasks, err := s.service.ListTasks(r.URL.Query().Get("status"))
	if err != nil {
		writeError(w, err)
		return
	}
	if tasks == nil {
		tasks = []models.Task{}
	}
	writeJSON(w, http.StatusOK, tasks)
}

func (s *Server) getTask(w http.ResponseWriter, r *http.Request, taskID string) {
	view, err := s.service.GetTask(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type createModificationRequest struct {
	Origin             models.RequestOrigin    `json:"origin"`
	RequestType        models.RequestType      `json:"request_type"`
	Reason             string                  `json:"reason"`
	ImpactNote         string                  `json:"impact_note"`
	SLAHours           int                     `json:"sla_hours"`
	ProposedChanges    *models.ProposedChanges `json:"proposed_changes"`
	RequestedExtension *time.Time              `json:"requested_extension"`
}

func (s *Server) createRequest(w http.ResponseWriter, r *http.Request, taskID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req createModificationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	view, err := s.service.CreateRequest(actor, workflow.CreateInput{
		TaskID:             taskID,
		Origin:             req.Origin,
		RequestType:        req.RequestType,
		Reason:             req.Reason,
		ImpactNote:         req.ImpactNote,
		SLAHours:           req.SLAHours,
		ProposedChanges:    req.ProposedChanges,
		RequestedExtension: req.RequestedExtension,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, view)
}

func (s *Server) listTaskRequests(w http.ResponseWriter, r *http.Request, taskID string) {
	views, err := s.service.ListTaskRequests(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if views == nil {
		views = []RequestView{}
	}
	writeJSON(w, http.StatusOK, views)
}

type reassignRequest struct {
	NewEmployeeID string `json:"new_employee_id"`
	Reason        string `json:"reason"`
	HandoverNotes string `json:"handover_notes"`
}

func (s *Server) reassignTask(w http.ResponseWriter, r *http.Request, taskID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req reassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	task, err := s.service.Reassign(actor, taskID, req.NewEmployeeID, req.Reason, req.HandoverNotes)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type reopenRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) reopenTask(w http.ResponseWriter, r *http.Request, taskID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req reopenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	task, err := s.service.Reopen(actor, taskID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type setStatusRequest struct {
	Status      models.TaskStatus  `json:"status"`
	DeclineType models.DeclineType `json:"decline_type"`
}

func (s *Server) setTaskStatus(w http.ResponseWriter, r *http.Request, taskID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req setStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	task, err := s.service.SetTaskStatus(actor, taskID, req.Status, req.DeclineType)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) getTimeline(w http.ResponseWriter, r *http.Request, taskID string) {
	events, err := s.service.Timeline(taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []models.TimelineEvent{}
	}
	writeJSON(w, http.StatusOK, events)
}

// --- Request Routes ---

func (s *Server) handleRequests(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	views, err := s.service.ListRequests(
		models.RequestStatus(r.URL.Query().Get("status")),
		models.RequestOrigin(r.URL.Query().Get("origin")),
	)
	if err != nil {
		writeError(w, err)
		return
	}
	if views == nil {
		views = []RequestView{}
	}
	writeJSON(w, http.StatusOK, views)
}

// handleRequestByID handles /requests/{id} and /requests/{id}/{action}
func (s *Server) handleRequestByID(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/requests/")
	parts := strings.Split(path, "/")

	if len(parts) == 0 || parts[0] == "" {
		http.Error(w, "request id required", http.StatusBadRequest)
		return
	}

	requestID := parts[0]
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		s.getRequest(w, r, requestID)
	case action == "view" && r.Method == http.MethodPost:
		s.markViewed(w, r, requestID)
	case action == "messages" && r.Method == http.MethodPost:
		s.postMessage(w, r, requestID)
	case action == "messages" && r.Method == http.MethodGet:
		s.listMessages(w, r, requestID)
	case action == "respond" && r.Method == http.MethodPost:
		s.respond(w, r, requestID)
	case action == "approve" && r.Method == http.MethodPost:
		s.approveRequest(w, r, requestID)
	case action == "reject" && r.Method == http.MethodPost:
		s.rejectRequest(w, r, requestID)
	case action == "execute" && r.Method == http.MethodPost:
		s.executeRequest(w, r, requestID)
	default:
		http.Error(w, "not found", http.StatusNotFound)
	}
}

func (s *Server) getRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	view, err := s.service.GetRequest(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

func (s *Server) markViewed(w http.ResponseWriter, r *http.Request, requestID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	view, err := s.service.MarkViewed(actor, requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type postMessageRequest struct {
	Text string `json:"text"`
}

func (s *Server) postMessage(w http.ResponseWriter, r *http.Request, requestID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req postMessageRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	msg, err := s.service.PostMessage(actor, requestID, req.Text)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (s *Server) listMessages(w http.ResponseWriter, r *http.Request, requestID string) {
	msgs, err := s.service.ListMessages(requestID)
	if err != nil {
		writeError(w, err)
		return
	}
	if msgs == nil {
		msgs = []models.Message{}
	}
	writeJSON(w, http.StatusOK, msgs)
}

type respondRequest struct {
	Decision models.RequestStatus `json:"decision"`
	Note     string               `json:"note"`
}

func (s *Server) respond(w http.ResponseWriter, r *http.Request, requestID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req respondRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	view, err := s.service.Respond(actor, requestID, req.Decision, req.Note)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type approveRequest struct {
	AdminNote string `json:"admin_note"`
}

func (s *Server) approveRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	view, err := s.service.ApproveEmployeeRequest(actor, requestID, req.AdminNote)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type rejectRequest struct {
	Reason string `json:"reason"`
}

func (s *Server) rejectRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req rejectRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	view, err := s.service.RejectEmployeeRequest(actor, requestID, req.Reason)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

type executeRequest struct {
	AdminNote            string                  `json:"admin_note"`
	FinalProposedChanges *models.ProposedChanges `json:"final_proposed_changes"`
}

func (s *Server) executeRequest(w http.ResponseWriter, r *http.Request, requestID string) {
	actor, ok := s.actor(w, r)
	if !ok {
		return
	}

	var req executeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	res, err := s.service.Execute(actor, requestID, req.AdminNote, req.FinalProposedChanges)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// --- Employee Routes ---

type createEmployeeRequest struct {
	Name   string                `json:"name"`
	Email  string                `json:"email"`
	Status models.EmployeeStatus `json:"status"`
}

func (s *Server) handleEmployees(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		emps, err := s.service.ListEmployees(models.EmployeeStatus(r.URL.Query().Get("status")))
		if err != nil {
			writeError(w, err)
			return
		}
		if emps == nil {
			emps = []models.Employee{}
		}
		writeJSON(w, http.StatusOK, emps)
	case http.MethodPost:
		actor, ok := s.actor(w, r)
		if !ok {
			return
		}
		var req createEmployeeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, "invalid json", http.StatusBadRequest)
			return
		}
		emp, err := s.service.CreateEmployee(actor, req.Name, req.Email, req.Status)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusCreated, emp)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func (s *Server) actor(w http.ResponseWriter, r *http.Request) (auth.Actor, bool) {
	actor, err := auth.FromRequest(r)
	if err != nil {
		writeError(w, err)
		return auth.Actor{}, false
	}
	return actor, true
}

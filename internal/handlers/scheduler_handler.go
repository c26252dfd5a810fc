package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/cookiepool/internal/interfaces"
)

// SchedulerHandler exposes the background jobs (validation, gate poll, analytics flush)
type SchedulerHandler struct {
	schedulerService interfaces.SchedulerService
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(schedulerService interfaces.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{
		schedulerService: schedulerService,
	}
}

// ListJobsHandler handles GET /api/jobs
func (h *SchedulerHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	statuses := h.schedulerService.GetAllJobStatuses()
	jobs := make([]*interfaces.JobStatus, 0, len(statuses))
	for _, status := range statuses {
		jobs = append(jobs, status)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.schedulerService.IsRunning(),
		"jobs":    jobs,
	})
}

// TriggerJobHandler handles POST /api/jobs/{name}/trigger
func (h *SchedulerHandler) TriggerJobHandler(w http.ResponseWriter, r *http.Request) {
	name, ok := h.requireJob(w, r)
	if !ok {
		return
	}
	if err := h.schedulerService.TriggerJob(name); err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	WriteJSON(w, http.StatusAccepted, map[string]string{
		"status":  "started",
		"message": "Job " + name + " triggered",
	})
}

// EnableJobHandler handles POST /api/jobs/{name}/enable
func (h *SchedulerHandler) EnableJobHandler(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, true)
}

// DisableJobHandler handles POST /api/jobs/{name}/disable
func (h *SchedulerHandler) DisableJobHandler(w http.ResponseWriter, r *http.Request) {
	h.toggle(w, r, false)
}

func (h *SchedulerHandler) toggle(w http.ResponseWriter, r *http.Request, enable bool) {
	name, ok := h.requireJob(w, r)
	if !ok {
		return
	}

	var err error
	if enable {
		err = h.schedulerService.EnableJob(name)
	} else {
		err = h.schedulerService.DisableJob(name)
	}
	if err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	status, _ := h.schedulerService.GetJobStatus(name)
	WriteJSON(w, http.StatusOK, status)
}

// requireJob checks the method and resolves {name}, answering 404 for unknown jobs
func (h *SchedulerHandler) requireJob(w http.ResponseWriter, r *http.Request) (string, bool) {
	if !RequireMethod(w, r, http.MethodPost) {
		return "", false
	}

	rest := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
	name, _, _ := strings.Cut(rest, "/")
	if name == "" {
		WriteError(w, http.StatusNotFound, "Unknown job")
		return "", false
	}
	if _, err := h.schedulerService.GetJobStatus(name); err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return "", false
	}
	return name, true
}

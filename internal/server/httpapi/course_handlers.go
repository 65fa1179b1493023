package httpapi

import (
	"net/http"

	"github.com/gainsborouo/ta-source/internal/common"
)

func (h *Handler) listCourses(w http.ResponseWriter, r *http.Request) {
	courses, err := h.courses.ListCourses(r.Context())
	if err != nil {
		writeError(w, err, "No courses found")
		return
	}
	writeJSON(w, http.StatusOK, courses)
}

func (h *Handler) listLogs(w http.ResponseWriter, r *http.Request) {
	course, ok := pathVar(r, "course")
	if !ok {
		writeError(w, common.ErrInvalidPath, "")
		return
	}

	names, err := h.courses.ListLogs(r.Context(), identityFrom(r.Context()), course, r.URL.Query().Get("student_id"))
	if err != nil {
		writeError(w, err, "Course logs not found")
		return
	}
	writeJSON(w, http.StatusOK, names)
}

func (h *Handler) readLog(w http.ResponseWriter, r *http.Request) {
	course, ok := pathVar(r, "course")
	if !ok {
		writeError(w, common.ErrInvalidPath, "")
		return
	}
	filename, ok := pathVar(r, "filename")
	if !ok {
		writeError(w, common.ErrInvalidPath, "")
		return
	}

	artifact, err := h.courses.ReadLog(r.Context(), identityFrom(r.Context()), course, filename)
	if err != nil {
		writeError(w, err, "File not found")
		return
	}
	writeJSON(w, http.StatusOK, artifact)
}

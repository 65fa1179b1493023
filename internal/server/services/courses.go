package services

import (
	"context"
	"database/sql"
	"errors"

	"github.com/gainsborouo/ta-source/internal/common"
	"github.com/gainsborouo/ta-source/internal/dbx"
	"github.com/gainsborouo/ta-source/internal/logging"
	"github.com/gainsborouo/ta-source/internal/server/access"
	"github.com/gainsborouo/ta-source/internal/server/auth"
	"github.com/gainsborouo/ta-source/internal/server/metrics"
	"github.com/gainsborouo/ta-source/internal/server/models"
	"github.com/gainsborouo/ta-source/internal/server/repositories/repomanager"
)

// Log access operations recorded in metrics.
const (
	OpListLogs = "list"
	OpReadLog  = "read"
)

// CourseService serves courses and per-course log files to an
// authenticated identity.
type CourseService struct {
	db          *sql.DB
	repomanager repomanager.RepositoryManager
	evaluator   *access.Evaluator
	logger      logging.Logger
	metrics     *metrics.Metrics
}

func NewCourseService(db *sql.DB, m repomanager.RepositoryManager, evaluator *access.Evaluator,
	logger logging.Logger, mtr *metrics.Metrics) *CourseService {
	return &CourseService{
		db:          db,
		repomanager: m,
		evaluator:   evaluator,
		logger:      logger.With("module", "courses"),
		metrics:     mtr,
	}
}

func callerOf(id *auth.Identity) access.Caller {
	if id == nil {
		return access.Caller{}
	}
	return access.Caller{Username: id.Username, IsAdmin: id.IsAdmin}
}

// ListLogs returns the log file names of course visible to id.
func (s *CourseService) ListLogs(ctx context.Context, id *auth.Identity, course, studentFilter string) (names []string, err error) {
	defer func() {
		s.metrics.LogAccessTotal.WithLabelValues(OpListLogs, metrics.Result(err)).Inc()
	}()

	names, err = s.evaluator.List(ctx, callerOf(id), course, studentFilter)
	if err != nil {
		s.logDenied(ctx, OpListLogs, id, course, "", err)
		return nil, err
	}
	return names, nil
}

// ReadLog returns one log file of course if id may read it.
func (s *CourseService) ReadLog(ctx context.Context, id *auth.Identity, course, filename string) (artifact *access.Artifact, err error) {
	defer func() {
		s.metrics.LogAccessTotal.WithLabelValues(OpReadLog, metrics.Result(err)).Inc()
	}()

	artifact, err = s.evaluator.Read(ctx, callerOf(id), course, filename)
	if err != nil {
		s.logDenied(ctx, OpReadLog, id, course, filename, err)
		return nil, err
	}
	return artifact, nil
}

func (s *CourseService) logDenied(ctx context.Context, op string, id *auth.Identity, course, filename string, err error) {
	caller := callerOf(id)
	args := []any{"op", op, "username", caller.Username, "course", course, "error", err}
	if filename != "" {
		args = append(args, "filename", filename)
	}

	switch {
	case errors.Is(err, common.ErrForbidden), errors.Is(err, common.ErrInvalidPath):
		s.logger.Warn(ctx, "log access denied", args...)
	case errors.Is(err, common.ErrorNotFound):
		s.logger.Debug(ctx, "log not found", args...)
	default:
		s.logger.Error(ctx, "log access failed", args...)
	}
}

// ListCourses returns all courses, or common.ErrorNotFound when there are
// none.
func (s *CourseService) ListCourses(ctx context.Context) ([]models.Course, error) {
	var courses []models.Course
	err := dbx.WithConn(ctx, s.db, func(ctx context.Context, conn dbx.DBTX) error {
		var err error
		courses, err = s.repomanager.Courses(conn).List(ctx)
		return err
	})
	if err != nil {
		s.logger.Error(ctx, "course list failed", "error", err)
		return nil, common.ErrorInternal
	}
	if len(courses) == 0 {
		return nil, common.ErrorNotFound
	}
	return courses, nil
}

package services

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"

	types "github.com/eoty/eoty-backend/internal/domain"
	"github.com/eoty/eoty-backend/internal/domain/library"
	librepo "github.com/eoty/eoty-backend/internal/data/repos/library"
	"github.com/eoty/eoty-backend/internal/platform/apierr"
	"github.com/eoty/eoty-backend/internal/platform/dbctx"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

type Action string

const (
	ActionView             Action = "view"
	ActionDownload         Action = "download"
	ActionAnnotate         Action = "annotate"
	ActionShareWithChapter Action = "share_with_chapter"
	ActionEditMetadata     Action = "edit_metadata"
	ActionDelete           Action = "delete"
	ActionValidateSummary  Action = "validate_summary"
)

// AccessService evaluates rights across the four resource scopes. The
// Visibility predicate it compiles is pushed into catalog queries so a
// resource never reaches a viewer without view rights and paging totals
// stay correct.
type AccessService interface {
	Visibility(caller *requestdata.CallerContext) librepo.Visibility
	CanView(caller *requestdata.CallerContext, res *types.Resource) bool
	// Check returns nil when the action is allowed. View failures come
	// back as not_found so scope existence is not disclosed; action
	// failures on a visible resource come back as forbidden. Every deny
	// is recorded as an access_denied usage event.
	Check(dbc dbctx.Context, caller *requestdata.CallerContext, res *types.Resource, action Action) error
}

type accessService struct {
	log       *logger.Logger
	usageRepo librepo.UsageEventRepo
}

func NewAccessService(baseLog *logger.Logger, usageRepo librepo.UsageEventRepo) AccessService {
	return &accessService{
		log:       baseLog.With("service", "AccessService"),
		usageRepo: usageRepo,
	}
}

func (s *accessService) Visibility(caller *requestdata.CallerContext) librepo.Visibility {
	if caller == nil || caller.UserID == uuid.Nil {
		return librepo.Visibility{}
	}
	if caller.IsAdmin() {
		return librepo.Visibility{All: true}
	}

	conds := []string{
		"(scope = 'owner_private' AND owner_id = ?)",
		"scope = 'platform_wide'",
	}
	args := []any{caller.UserID}

	if caller.HasChapter() {
		conds = append(conds, "(scope = 'chapter_wide' AND chapter_id = ?)")
		args = append(args, *caller.ChapterID)
	}
	courses := append(append([]uuid.UUID{}, caller.EnrolledCourses...), caller.InstructorCourses...)
	if len(courses) > 0 {
		conds = append(conds, "(scope = 'course_specific' AND course_id IN ?)")
		args = append(args, courses)
	}

	// Failed uploads stay visible to admins only.
	sql := fmt.Sprintf("(%s) AND status <> 'failed'", strings.Join(conds, " OR "))
	return librepo.Visibility{SQL: sql, Args: args}
}

func (s *accessService) CanView(caller *requestdata.CallerContext, res *types.Resource) bool {
	if caller == nil || caller.UserID == uuid.Nil || res == nil {
		return false
	}
	if caller.IsAdmin() {
		return true
	}
	if res.Status == library.StatusFailed {
		return false
	}
	switch res.Scope {
	case library.ScopeOwnerPrivate:
		return res.OwnerID == caller.UserID
	case library.ScopePlatformWide:
		return true
	case library.ScopeChapterWide:
		return caller.HasChapter() && res.ChapterID != nil && *res.ChapterID == *caller.ChapterID
	case library.ScopeCourseSpecific:
		return res.CourseID != nil && (caller.EnrolledIn(*res.CourseID) || caller.Teaches(*res.CourseID))
	}
	return false
}

func (s *accessService) Check(dbc dbctx.Context, caller *requestdata.CallerContext, res *types.Resource, action Action) error {
	if res == nil {
		return apierr.Newf(apierr.CodeNotFound, "resource not found")
	}
	if caller == nil || caller.UserID == uuid.Nil {
		return apierr.Newf(apierr.CodeForbidden, "missing caller")
	}

	if !s.CanView(caller, res) {
		s.recordDenial(dbc, caller, res, action, "not_visible")
		return apierr.Newf(apierr.CodeNotFound, "resource not found")
	}

	switch action {
	case ActionView, ActionAnnotate:
		return nil
	case ActionDownload:
		if res.Status != library.StatusReady {
			s.recordDenial(dbc, caller, res, action, "not_ready")
			return apierr.Newf(apierr.CodeResourceNotReady, "resource is not ready")
		}
		return nil
	case ActionShareWithChapter:
		if !caller.HasChapter() {
			s.recordDenial(dbc, caller, res, action, "no_chapter")
			return apierr.Newf(apierr.CodeNoChapter, "caller has no chapter")
		}
		return nil
	case ActionEditMetadata, ActionDelete:
		if caller.IsAdmin() || res.OwnerID == caller.UserID {
			return nil
		}
		s.recordDenial(dbc, caller, res, action, "not_owner")
		return apierr.Newf(apierr.CodeForbidden, "owner or admin required")
	case ActionValidateSummary:
		if caller.IsAdmin() {
			return nil
		}
		s.recordDenial(dbc, caller, res, action, "not_admin")
		return apierr.Newf(apierr.CodeForbidden, "admin required")
	}
	return apierr.Newf(apierr.CodeInvalidInput, "unknown action %q", action)
}

func (s *accessService) recordDenial(dbc dbctx.Context, caller *requestdata.CallerContext, res *types.Resource, action Action, reason string) {
	meta, _ := json.Marshal(map[string]string{"action": string(action), "reason": reason})
	_, err := s.usageRepo.Create(dbc, []*types.UsageEvent{{
		ID:         uuid.New(),
		UserID:     caller.UserID,
		ResourceID: res.ID,
		Action:     library.ActionAccessDenied,
		Metadata:   datatypes.JSON(meta),
		CreatedAt:  time.Now(),
	}})
	if err != nil {
		// Audit is best-effort; the deny itself still stands.
		s.log.Warn("record access denial failed", "error", err, "resource_id", res.ID, "user_id", caller.UserID)
	}
}

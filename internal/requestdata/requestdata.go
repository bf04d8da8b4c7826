package requestdata

import (
	"context"

	"github.com/google/uuid"
)

type callerKey struct{}

// CallerContext is the per-request identity the authentication layer
// resolves before any library operation runs. Services never reach for
// process-wide state; every entry point takes one of these.
type CallerContext struct {
	UserID            uuid.UUID
	Role              string
	ChapterID         *uuid.UUID
	EnrolledCourses   []uuid.UUID
	InstructorCourses []uuid.UUID
}

const RoleAdmin = "admin"

func (c *CallerContext) IsAdmin() bool {
	return c != nil && c.Role == RoleAdmin
}

func (c *CallerContext) HasChapter() bool {
	return c != nil && c.ChapterID != nil && *c.ChapterID != uuid.Nil
}

func (c *CallerContext) EnrolledIn(courseID uuid.UUID) bool {
	if c == nil {
		return false
	}
	for _, id := range c.EnrolledCourses {
		if id == courseID {
			return true
		}
	}
	return false
}

func (c *CallerContext) Teaches(courseID uuid.UUID) bool {
	if c == nil {
		return false
	}
	for _, id := range c.InstructorCourses {
		if id == courseID {
			return true
		}
	}
	return false
}

func WithCaller(ctx context.Context, caller *CallerContext) context.Context {
	return context.WithValue(ctx, callerKey{}, caller)
}

func GetCaller(ctx context.Context) *CallerContext {
	val := ctx.Value(callerKey{})
	if c, ok := val.(*CallerContext); ok {
		return c
	}
	return nil
}

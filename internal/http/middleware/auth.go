package middleware

import (
	"fmt"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/eoty/eoty-backend/internal/http/response"
	"github.com/eoty/eoty-backend/internal/platform/envutil"
	"github.com/eoty/eoty-backend/internal/platform/logger"
	"github.com/eoty/eoty-backend/internal/requestdata"
)

// callerClaims is the token shape the external auth layer issues. The
// library core trusts it for identity, role, chapter, and course
// memberships.
type callerClaims struct {
	UserID            string   `json:"user_id"`
	Role              string   `json:"role"`
	ChapterID         string   `json:"chapter_id"`
	EnrolledCourses   []string `json:"enrolled_courses"`
	InstructorCourses []string `json:"instructor_courses"`
	jwt.RegisteredClaims
}

type AuthMiddleware struct {
	log    *logger.Logger
	secret []byte
}

func NewAuthMiddleware(baseLog *logger.Logger) (*AuthMiddleware, error) {
	secret := envutil.String("AUTH_JWT_SECRET", "")
	if secret == "" {
		return nil, fmt.Errorf("AUTH_JWT_SECRET is required")
	}
	return &AuthMiddleware{
		log:    baseLog.With("middleware", "AuthMiddleware"),
		secret: []byte(secret),
	}, nil
}

func (am *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := extractToken(c)
		if tokenString == "" {
			response.AbortUnauthorized(c, "missing or invalid token")
			return
		}
		caller, err := am.parseCaller(tokenString)
		if err != nil {
			am.log.Debug("token rejected", "error", err)
			response.AbortUnauthorized(c, "missing or invalid token")
			return
		}
		ctx := requestdata.WithCaller(c.Request.Context(), caller)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}

func (am *AuthMiddleware) parseCaller(tokenString string) (*requestdata.CallerContext, error) {
	var claims callerClaims
	token, err := jwt.ParseWithClaims(tokenString, &claims, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return am.secret, nil
	})
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	userID, err := uuid.Parse(claims.UserID)
	if err != nil || userID == uuid.Nil {
		return nil, fmt.Errorf("invalid user_id claim")
	}
	caller := &requestdata.CallerContext{
		UserID: userID,
		Role:   strings.TrimSpace(claims.Role),
	}
	if claims.ChapterID != "" {
		if chapterID, err := uuid.Parse(claims.ChapterID); err == nil && chapterID != uuid.Nil {
			caller.ChapterID = &chapterID
		}
	}
	caller.EnrolledCourses = parseCourseIDs(claims.EnrolledCourses)
	caller.InstructorCourses = parseCourseIDs(claims.InstructorCourses)
	return caller, nil
}

func parseCourseIDs(raw []string) []uuid.UUID {
	out := make([]uuid.UUID, 0, len(raw))
	for _, r := range raw {
		if id, err := uuid.Parse(strings.TrimSpace(r)); err == nil && id != uuid.Nil {
			out = append(out, id)
		}
	}
	return out
}

func extractToken(c *gin.Context) string {
	if qToken := c.Query("token"); qToken != "" {
		return qToken
	}
	authHeader := c.GetHeader("Authorization")
	if len(authHeader) > 7 && strings.EqualFold(authHeader[:7], "Bearer ") {
		return authHeader[7:]
	}
	return ""
}

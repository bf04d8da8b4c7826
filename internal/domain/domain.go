package domain

import (
	"github.com/eoty/eoty-backend/internal/domain/jobs"
	"github.com/eoty/eoty-backend/internal/domain/library"
)

// Aliases so callers can import one package as `types`.

type Resource = library.Resource
type UserNote = library.UserNote
type NoteShare = library.NoteShare
type AISummary = library.AISummary
type UsageEvent = library.UsageEvent

type JobRun = jobs.JobRun

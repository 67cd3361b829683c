package domain

import "time"

// MergeProgress folds a finished session into the existing progress for its course.
// existing may be nil when the user has no record yet. The returned record keeps the
// existing Version; stores compare it on save.
func MergeProgress(existing *ProgressRecord, result QuizResult, now time.Time) ProgressRecord {
	completion := result.Completion()
	if existing == nil {
		return ProgressRecord{
			UserID:               result.UserID,
			CourseID:             result.CourseID,
			CompletionPercentage: completion,
			TotalStudyTime:       result.ElapsedSeconds,
			StudyStreak:          1,
			LastActivity:         now,
		}
	}

	merged := *existing
	if completion > merged.CompletionPercentage {
		merged.CompletionPercentage = completion
	}
	merged.TotalStudyTime += result.ElapsedSeconds
	merged.LastActivity = now
	// StudyStreak is left as stored.
	return merged
}

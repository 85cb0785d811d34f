package cache

import (
	"context"
	"fmt"
	"log/slog"
)

// SafeInvalidatePattern safely invalidates cache pattern with logging
func SafeInvalidatePattern(ctx context.Context, helper *CacheHelper, pattern string) {
	if err := helper.InvalidatePattern(ctx, pattern); err != nil {
		slog.ErrorContext(ctx, "Failed to invalidate cache pattern",
			"error", err,
			"pattern", pattern)
	}
}

// SafeDelete safely deletes cache keys with logging
func SafeDelete(ctx context.Context, helper *CacheHelper, keys ...string) {
	if err := helper.Delete(ctx, keys...); err != nil {
		slog.ErrorContext(ctx, "Failed to delete cache keys",
			"error", err,
			"keys", keys)
	}
}

// InvalidatePatternCache invalidates all pattern-related caches for one pattern
func InvalidatePatternCache(ctx context.Context, cm *CacheManager, patternID uint, creatorID string) {
	SafeDelete(ctx, cm.Pattern,
		fmt.Sprintf("id:%d", patternID),
		fmt.Sprintf("sections:%d", patternID))

	SafeInvalidatePattern(ctx, cm.Pattern, fmt.Sprintf("creator:%s:*", creatorID))
	SafeInvalidatePattern(ctx, cm.Pattern, "list:*")
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("pattern:%d:*", patternID))
}

// InvalidateAttemptCache invalidates attempt caches after a state transition
func InvalidateAttemptCache(ctx context.Context, cm *CacheManager, attemptID uint, candidateID string) {
	SafeDelete(ctx, cm.Attempt, fmt.Sprintf("id:%d", attemptID))
	SafeDelete(ctx, cm.Fast, fmt.Sprintf("id:%d", attemptID))
	SafeInvalidatePattern(ctx, cm.Attempt, fmt.Sprintf("candidate:%s:*", candidateID))
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("attempt:%d:*", attemptID))
}

// InvalidateTestCache invalidates test caches after question sequence changes
func InvalidateTestCache(ctx context.Context, cm *CacheManager, testID uint) {
	SafeDelete(ctx, cm.Test,
		fmt.Sprintf("id:%d", testID),
		fmt.Sprintf("questions:%d", testID))
	SafeInvalidatePattern(ctx, cm.Test, "list:*")
	SafeInvalidatePattern(ctx, cm.Stats, fmt.Sprintf("test:%d:*", testID))
}

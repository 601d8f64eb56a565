package kernel

// ValidEmotion reports whether e is a known emotion value.
func ValidEmotion(e Emotion) bool {
	switch e {
	case EmotionLove, EmotionAnger, EmotionCalm, EmotionJoy, EmotionFear, EmotionNeutral:
		return true
	}
	return false
}

// ValidContext reports whether c is a known context value.
func ValidContext(c Context) bool {
	switch c {
	case ContextCalm, ContextTense, ContextCrisis, ContextPeaceful, ContextUncertain:
		return true
	}
	return false
}

// ValidAlertLevel reports whether a is a known alert level.
func ValidAlertLevel(a AlertLevel) bool {
	switch a {
	case AlertNormal, AlertWarning, AlertCritical, AlertEmergency:
		return true
	}
	return false
}

// validRatio checks the 0.0..1.0 invariant for trust and harmony.
func validRatio(v float64) bool {
	return v >= 0.0 && v <= 1.0
}

// validate runs the per-field validators over a partial update.
// It returns the first offending field with its old and new values;
// the caller rejects the whole update on any failure (all-or-nothing).
func validate(current Snapshot, u Update) (field string, oldVal, newVal any, ok bool) {
	if u.Trust != nil && !validRatio(*u.Trust) {
		return "trust", current.Trust, *u.Trust, false
	}
	if u.Harmony != nil && !validRatio(*u.Harmony) {
		return "harmony", current.Harmony, *u.Harmony, false
	}
	if u.Emotion != nil && !ValidEmotion(*u.Emotion) {
		return "emotion", string(current.Emotion), string(*u.Emotion), false
	}
	if u.Context != nil && !ValidContext(*u.Context) {
		return "context", string(current.Context), string(*u.Context), false
	}
	if u.AlertLevel != nil && !ValidAlertLevel(*u.AlertLevel) {
		return "alert_level", string(current.AlertLevel), string(*u.AlertLevel), false
	}
	return "", nil, nil, true
}

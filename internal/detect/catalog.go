package detect

// Feedback catalogs, keyed by quality. The copy is illustrative; the session
// machine only requires non-empty, quality-appropriate strings.

var goodMessages = []string{
	"Great depth! Keep it up!",
	"Perfect form on that one!",
	"Nice and controlled!",
	"Excellent squat!",
	"Strong rep, stay tight!",
	"Beautiful! Hips below parallel!",
}

var warningMessages = []string{
	"Keep your chest up",
	"Try to go a little deeper",
	"Keep your knees tracking over your toes",
	"Push through your heels",
	"Slow down on the way down",
}

// MessagesFor returns the feedback catalog for a quality.
func MessagesFor(quality Quality) []string {
	if quality == QualityWarning {
		return warningMessages
	}
	return goodMessages
}

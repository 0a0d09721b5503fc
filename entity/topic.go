package entity

// Notification topics used to categorize bot messages.
// Staff subscribers filter which notifications they receive by topic.
// Log calls can tag messages with slog.String("tg_topic", entity.TopicXxx).
const (
	TopicBooking  = "booking"
	TopicSchedule = "schedule"
	TopicInvite   = "invite"
	TopicError    = "error"
	TopicSystem   = "system"
)

var allTopics = []string{
	TopicBooking,
	TopicSchedule,
	TopicInvite,
	TopicError,
	TopicSystem,
}

func AllTopics() []string {
	result := make([]string, len(allTopics))
	copy(result, allTopics)
	return result
}

func IsValidTopic(topic string) bool {
	for _, t := range allTopics {
		if t == topic {
			return true
		}
	}
	return false
}

package progression

// ActivityType identifies a kind of user activity that missions can track.
type ActivityType string

// Known activity types. These double as mission types in the catalog.
const (
	ActivityPlayMatch      ActivityType = "play_match"
	ActivityTrainUnit      ActivityType = "train_unit"
	ActivityCompleteLesson ActivityType = "complete_lesson"
	ActivityEarnCoins      ActivityType = "earn_coins"
)

// Valid reports whether t is a known activity type.
func (t ActivityType) Valid() bool {
	switch t {
	case ActivityPlayMatch, ActivityTrainUnit, ActivityCompleteLesson, ActivityEarnCoins:
		return true
	}
	return false
}

// String returns the wire representation of the activity type.
func (t ActivityType) String() string {
	return string(t)
}

package history

import "reflect"

// bookkeepingFields exist only to timestamp or count versions; they never make
// a save meaningful on their own.
var bookkeepingFields = map[string]struct{}{
	"modified_at":     {},
	"evaluated_at":    {},
	"current_version": {},
	"version":         {},
}

// Changed compares an entity's field set before and after a mutation and
// reports whether any non-bookkeeping field differs. A no-op save therefore
// opens no new history window.
func Changed(before, after map[string]any) bool {
	for field, previous := range before {
		if _, skip := bookkeepingFields[field]; skip {
			continue
		}
		next, present := after[field]
		if !present || !reflect.DeepEqual(previous, next) {
			return true
		}
	}
	for field := range after {
		if _, skip := bookkeepingFields[field]; skip {
			continue
		}
		if _, present := before[field]; !present {
			return true
		}
	}
	return false
}

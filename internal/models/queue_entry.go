package models

// QueueEntry is a person read from the stream together with the entry id used to ack it
type QueueEntry struct {
	EntryID string
	Person  *Person
}

// EntryIDs returns the ids of the given entries in order
func EntryIDs(entries []QueueEntry) []string {
	ids := make([]string, len(entries))
	for i, e := range entries {
		ids[i] = e.EntryID
	}
	return ids
}

// Persons returns the payloads of the given entries in order
func Persons(entries []QueueEntry) []*Person {
	persons := make([]*Person, len(entries))
	for i, e := range entries {
		persons[i] = e.Person
	}
	return persons
}

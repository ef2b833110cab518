package history

import (
	"strings"
	"time"
)

// Search returns the messages whose bodies contain term, case-insensitively,
// preserving store order. An empty term is a validation failure; a term with
// no matches yields an empty result, not an error.
func (s *Store) Search(term string) ([]Message, error) {
	if strings.TrimSpace(term) == "" {
		return nil, &ValidationError{Field: "term", Reason: "must not be empty"}
	}
	needle := strings.ToLower(term)
	var results []Message
	for _, msg := range s.messages {
		if strings.Contains(strings.ToLower(msg.Content), needle) {
			results = append(results, msg)
		}
	}
	return results, nil
}

// Stats aggregates message counts, sizes, and timing over the current store.
type Stats struct {
	TotalMessages        int            `json:"total_messages"`
	MessagesByRole       map[string]int `json:"messages_by_role"`
	TotalCharacters      int            `json:"total_characters"`
	AverageMessageLength int            `json:"average_message_length"`
	TotalEstimatedTokens int            `json:"total_estimated_tokens"`
	FirstTimestamp       *time.Time     `json:"first_timestamp,omitempty"`
	LastTimestamp        *time.Time     `json:"last_timestamp,omitempty"`
	Duration             string         `json:"duration,omitempty"`
}

// Stats computes aggregates over the current store. On an empty store all
// counts are zero and the timestamp fields stay unset; it never fails.
func (s *Store) Stats() Stats {
	stats := Stats{MessagesByRole: make(map[string]int)}
	if len(s.messages) == 0 {
		return stats
	}

	for _, msg := range s.messages {
		stats.TotalMessages++
		stats.MessagesByRole[msg.Role]++
		stats.TotalCharacters += len(msg.Content)
		stats.TotalEstimatedTokens += msg.TokenEstimate
	}
	stats.AverageMessageLength = stats.TotalCharacters / stats.TotalMessages

	first := s.messages[0].Timestamp
	last := s.messages[len(s.messages)-1].Timestamp
	stats.FirstTimestamp = &first
	stats.LastTimestamp = &last
	stats.Duration = last.Sub(first).Truncate(time.Second).String()
	return stats
}

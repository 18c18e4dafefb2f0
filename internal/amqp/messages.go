package amqp

import (
	"encoding/json"
	"fmt"
	"time"

	"gravl/internal/records"
)

// DatasetRefreshMessage announces that a table changed in the backing store.
// Consumers drop their resident copy of that table and refetch on demand.
type DatasetRefreshMessage struct {
	Table     string    `json:"table"`
	Count     int       `json:"count"`
	Source    string    `json:"source,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// NewDatasetRefreshMessage creates a refresh message stamped with the current time
func NewDatasetRefreshMessage(table string, count int, source string) *DatasetRefreshMessage {
	return &DatasetRefreshMessage{
		Table:     table,
		Count:     count,
		Source:    source,
		Timestamp: time.Now().UTC(),
	}
}

// Validate rejects messages for tables the service does not hold.
func (m *DatasetRefreshMessage) Validate() error {
	switch m.Table {
	case records.TableRuns, records.TableCompanies:
	default:
		return fmt.Errorf("unknown table %q", m.Table)
	}
	if m.Count < 0 {
		return fmt.Errorf("negative record count %d", m.Count)
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *DatasetRefreshMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// DatasetRefreshMessageFromJSON decodes and validates a message body.
func DatasetRefreshMessageFromJSON(data []byte) (*DatasetRefreshMessage, error) {
	var msg DatasetRefreshMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

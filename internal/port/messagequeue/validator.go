package messagequeue

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Validate checks whether data is valid JSON conforming to the schema
// associated with the given subject. Unknown subjects pass validation.
func Validate(subject string, data []byte) error {
	if !json.Valid(data) {
		return fmt.Errorf("invalid JSON on subject %s", subject)
	}

	switch {
	case strings.HasPrefix(subject, SubjectEvents+"."):
		var p EventPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
		if p.Type == "" {
			return fmt.Errorf("schema validation failed for %s: %w", subject, errors.New("type is required"))
		}
		if want := strings.TrimPrefix(subject, SubjectEvents+"."); want != p.Type {
			return fmt.Errorf("schema validation failed for %s: type %q does not match subject", subject, p.Type)
		}
	case subject == SubjectReadReceipts:
		var p ReadReceiptPayload
		if err := json.Unmarshal(data, &p); err != nil {
			return fmt.Errorf("schema validation failed for %s: %w", subject, err)
		}
	}
	return nil
}

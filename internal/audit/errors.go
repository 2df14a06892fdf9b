package audit

import "errors"

// ErrIncomplete is returned by Create when action, entity type or source is
// missing.
var ErrIncomplete = errors.New("audit: action, entity_type and source are required")

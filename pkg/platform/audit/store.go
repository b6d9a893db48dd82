package audit

import "context"

// Store persists audit events. Implementations must be append-only; there is
// no update or delete surface on purpose.
type Store interface {
	Append(ctx context.Context, event Event) error
}

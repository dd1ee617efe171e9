package linking

import "errors"

// ErrEmptyMessages is the only fatal validation error Link returns. Every
// other failure (store errors, cancellation) propagates unchanged from the
// Store implementation.
var ErrEmptyMessages = errors.New("linking: messages must be non-empty")

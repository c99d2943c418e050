package interfaces

import "context"

type Completer interface {
	Complete(ctx context.Context, system, prompt string) (string, error)
}

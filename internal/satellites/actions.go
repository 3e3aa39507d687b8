package satellites

import (
	"context"

	"github.com/gil0mendes/Stellar/internal/actions"
	"github.com/gil0mendes/Stellar/pkg/api"
)

// Actions registers the builtin actions and middleware.
type Actions struct{}

func (*Actions) Name() string { return "actions" }

func (*Actions) Load(_ context.Context, a *api.API) error {
	return actions.Register(a)
}

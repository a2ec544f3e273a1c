package credentials

import "context"

// Static always answers with the same credentials, whatever the ref.
// Dry runs and tests use it.
type Static Credentials

func (s Static) GetCredentials(ctx context.Context, _ string) (Credentials, error) {
	if err := ctx.Err(); err != nil {
		return Credentials{}, err
	}
	return Credentials(s), nil
}

// ProviderFunc adapts a function to Provider
type ProviderFunc func(ctx context.Context, ref string) (Credentials, error)

func (f ProviderFunc) GetCredentials(ctx context.Context, ref string) (Credentials, error) {
	return f(ctx, ref)
}
